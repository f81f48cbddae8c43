package httpapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/commerce-saga/internal/domain/payment"
	"github.com/xenking/commerce-saga/internal/event"
)

type mockPaymentRepo struct {
	byOrder map[uuid.UUID]*payment.Payment
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{byOrder: make(map[uuid.UUID]*payment.Payment)}
}

func (m *mockPaymentRepo) Create(_ context.Context, p *payment.Payment) error {
	if _, exists := m.byOrder[p.OrderID]; exists {
		return payment.ErrDuplicateOrder
	}
	cp := *p
	m.byOrder[p.OrderID] = &cp
	return nil
}

func (m *mockPaymentRepo) GetByOrderID(_ context.Context, orderID uuid.UUID) (*payment.Payment, error) {
	p, ok := m.byOrder[orderID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return p, nil
}

func TestPaymentByOrderEndpoint(t *testing.T) {
	repo := newMockPaymentRepo()
	svc := payment.NewService(repo, nopPublisher{})

	orderID := uuid.New()
	require.NoError(t, svc.ProcessOrder(context.Background(), event.OrderCreated{
		Envelope:    event.NewEnvelope(event.TypeOrderCreated),
		OrderID:     orderID,
		CustomerID:  uuid.New(),
		TotalAmount: decimal.RequireFromString("39.98"),
		Status:      "PENDING",
	}))

	mux := http.NewServeMux()
	NewPaymentHandler(svc).Register(mux)

	t.Run("found", func(t *testing.T) {
		w := doRequest(t, mux, http.MethodGet, "/payments/order/"+orderID.String(), "")
		require.Equal(t, http.StatusOK, w.Code)

		resp := decodeResponse[paymentResponse](t, w)
		assert.Equal(t, orderID.String(), resp.OrderID)
		assert.Equal(t, 39.98, resp.Amount)
		assert.Equal(t, "COMPLETED", resp.Status)
		assert.False(t, resp.CreatedAt.IsZero())
	})

	t.Run("not found", func(t *testing.T) {
		w := doRequest(t, mux, http.MethodGet, "/payments/order/"+uuid.New().String(), "")
		assert.Equal(t, http.StatusNotFound, w.Code)

		resp := decodeResponse[errorResponse](t, w)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		w := doRequest(t, mux, http.MethodGet, "/payments/order/nope", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
