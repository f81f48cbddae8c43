package app_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/xenking/commerce-saga/internal/bus"
	"github.com/xenking/commerce-saga/internal/domain/order"
	"github.com/xenking/commerce-saga/internal/domain/payment"
	"github.com/xenking/commerce-saga/internal/event"
)

type memOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*order.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[uuid.UUID]*order.Order)}
}

func (r *memOrderRepo) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *memOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *memOrderRepo) ListByCustomer(_ context.Context, customerID uuid.UUID) ([]order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []order.Order
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

type memPaymentRepo struct {
	mu      sync.Mutex
	byOrder map[uuid.UUID]*payment.Payment
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{byOrder: make(map[uuid.UUID]*payment.Payment)}
}

func (r *memPaymentRepo) Create(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byOrder[p.OrderID]; ok {
		return payment.ErrDuplicateOrder
	}
	cp := *p
	r.byOrder[p.OrderID] = &cp
	return nil
}

func (r *memPaymentRepo) GetByOrderID(_ context.Context, orderID uuid.UUID) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byOrder[orderID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPaymentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byOrder)
}

// sagaFixture wires both services over an in-memory broker the way the
// binaries wire them over Kafka.
type sagaFixture struct {
	broker    *bus.MemoryBroker
	orders    *order.Service
	orderRepo *memOrderRepo
	payments  *payment.Service
	payRepo   *memPaymentRepo

	mu        sync.Mutex
	processed []event.PaymentProcessed
}

func newSagaFixture(t *testing.T) *sagaFixture {
	t.Helper()

	f := &sagaFixture{
		broker:    bus.NewMemoryBroker(3),
		orderRepo: newMemOrderRepo(),
		payRepo:   newMemPaymentRepo(),
	}
	f.orders = order.NewService(f.orderRepo, f.broker.Publisher(event.TopicOrderCreated))
	f.payments = payment.NewService(f.payRepo, f.broker.Publisher(event.TopicPaymentProcessed))

	f.broker.Subscribe(event.TopicOrderCreated, f.payments.OnOrderCreated)
	f.broker.Subscribe(event.TopicPaymentProcessed, func(_ context.Context, msg bus.Message) error {
		evt, err := event.DecodePaymentProcessed(msg.Value)
		if err != nil {
			return err
		}
		f.mu.Lock()
		f.processed = append(f.processed, evt)
		f.mu.Unlock()
		return nil
	})

	return f
}

func (f *sagaFixture) processedEvents() []event.PaymentProcessed {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]event.PaymentProcessed, len(f.processed))
	copy(out, f.processed)
	return out
}

func TestSagaRoundTrip(t *testing.T) {
	f := newSagaFixture(t)
	ctx := context.Background()

	o, err := f.orders.SubmitOrder(ctx, order.SubmitOrderRequest{
		CustomerID: uuid.New(),
		Items: []order.ItemInput{
			{ProductID: uuid.New(), Quantity: 2, UnitPrice: decimal.RequireFromString("19.99")},
		},
		TotalAmount: decimal.RequireFromString("39.98"),
	})
	require.NoError(t, err)
	require.Equal(t, order.StatusPending, o.Status)

	// Dispatch is synchronous, so by now the payment side has reacted.
	p, err := f.payments.PaymentByOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, payment.StatusCompleted, p.Status)
	require.True(t, p.Amount.Equal(decimal.RequireFromString("39.98")))

	events := f.processedEvents()
	require.Len(t, events, 1)
	require.Equal(t, event.TypePaymentProcessed, events[0].EventType)
	require.Equal(t, o.ID, events[0].OrderID)
	require.Equal(t, p.ID, events[0].PaymentID)
	require.True(t, events[0].Amount.Equal(o.TotalAmount))
}

func TestSagaDuplicateDeliveryAbsorbed(t *testing.T) {
	f := newSagaFixture(t)
	ctx := context.Background()

	o, err := f.orders.SubmitOrder(ctx, order.SubmitOrderRequest{
		CustomerID: uuid.New(),
		Items: []order.ItemInput{
			{ProductID: uuid.New(), Quantity: 1, UnitPrice: decimal.RequireFromString("5.00")},
		},
		TotalAmount: decimal.RequireFromString("5.00"),
	})
	require.NoError(t, err)

	// Replay the OrderCreated event directly, simulating redelivery.
	evt := event.OrderCreated{
		Envelope:    event.NewEnvelope(event.TypeOrderCreated),
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		TotalAmount: o.TotalAmount,
		Status:      string(o.Status),
	}
	pub := f.broker.Publisher(event.TopicOrderCreated)
	for range 4 {
		require.NoError(t, pub.Publish(ctx, evt.Key(), evt))
	}

	require.Equal(t, 1, f.payRepo.count())
	require.Len(t, f.processedEvents(), 1)
}

func TestSagaMultipleOrdersIndependent(t *testing.T) {
	f := newSagaFixture(t)
	ctx := context.Background()
	customer := uuid.New()

	totals := []string{"10.00", "20.50", "0.00"}
	for _, total := range totals {
		_, err := f.orders.SubmitOrder(ctx, order.SubmitOrderRequest{
			CustomerID: customer,
			Items: []order.ItemInput{
				{ProductID: uuid.New(), Quantity: 1, UnitPrice: decimal.RequireFromString(total)},
			},
			TotalAmount: decimal.RequireFromString(total),
		})
		require.NoError(t, err)
	}

	require.Equal(t, len(totals), f.payRepo.count())
	require.Len(t, f.processedEvents(), len(totals))

	listed, err := f.orders.OrdersByCustomer(ctx, customer)
	require.NoError(t, err)
	require.Len(t, listed, len(totals))
}
