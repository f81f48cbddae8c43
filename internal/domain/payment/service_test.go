package payment

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/commerce-saga/internal/bus"
	"github.com/xenking/commerce-saga/internal/event"
)

// --- Mock implementations ---

// mockPaymentRepo enforces the order-id uniqueness the real schema declares.
type mockPaymentRepo struct {
	mu        sync.Mutex
	byOrder   map[uuid.UUID]*Payment
	createErr error
	getErr    error
	creates   int
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{byOrder: make(map[uuid.UUID]*Payment)}
}

func (m *mockPaymentRepo) Create(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.byOrder[p.OrderID]; exists {
		return ErrDuplicateOrder
	}
	cp := *p
	m.byOrder[p.OrderID] = &cp
	return nil
}

func (m *mockPaymentRepo) GetByOrderID(_ context.Context, orderID uuid.UUID) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPaymentRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byOrder)
}

type mockPublisher struct {
	mu        sync.Mutex
	published []event.PaymentProcessed
	keys      []string
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, key string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.keys = append(m.keys, key)
	m.published = append(m.published, payload.(event.PaymentProcessed))
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

// --- Helpers ---

func orderCreated(orderID uuid.UUID, total string) event.OrderCreated {
	return event.OrderCreated{
		Envelope:    event.NewEnvelope(event.TypeOrderCreated),
		OrderID:     orderID,
		CustomerID:  uuid.New(),
		TotalAmount: decimal.RequireFromString(total),
		Status:      "PENDING",
		Items: []event.OrderItem{
			{ProductID: uuid.New(), Quantity: 2, UnitPrice: decimal.RequireFromString("19.99")},
		},
	}
}

func deliver(t *testing.T, s *Service, evt event.OrderCreated) error {
	t.Helper()
	data, err := event.Encode(evt)
	require.NoError(t, err)
	return s.OnOrderCreated(context.Background(), bus.Message{
		Topic: event.TopicOrderCreated,
		Key:   []byte(evt.Key()),
		Value: data,
	})
}

// --- Tests ---

func TestProcessOrder(t *testing.T) {
	repo := newMockPaymentRepo()
	pub := &mockPublisher{}
	svc := NewService(repo, pub)

	orderID := uuid.New()
	evt := orderCreated(orderID, "39.98")

	require.NoError(t, svc.ProcessOrder(context.Background(), evt))

	p, err := svc.PaymentByOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, orderID, p.OrderID)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("39.98")))
	assert.False(t, p.CreatedAt.IsZero())

	require.Len(t, pub.published, 1)
	out := pub.published[0]
	assert.Equal(t, event.TypePaymentProcessed, out.EventType)
	assert.Equal(t, p.ID, out.PaymentID)
	assert.Equal(t, orderID, out.OrderID)
	assert.Equal(t, "COMPLETED", out.Status)
	assert.Equal(t, []string{orderID.String()}, pub.keys)
}

func TestProcessOrder_DuplicateDelivery(t *testing.T) {
	repo := newMockPaymentRepo()
	pub := &mockPublisher{}
	svc := NewService(repo, pub)

	evt := orderCreated(uuid.New(), "10.00")

	require.NoError(t, svc.ProcessOrder(context.Background(), evt))
	for range 5 {
		err := svc.ProcessOrder(context.Background(), evt)
		require.ErrorIs(t, err, ErrAlreadyProcessed)
	}

	assert.Equal(t, 1, repo.count(), "exactly one payment row")
	assert.Equal(t, 1, pub.count(), "exactly one payment processed publication")
}

func TestProcessOrder_RaceLosingInsertAbsorbed(t *testing.T) {
	// Both concurrent deliveries pass the pre-check; the storage uniqueness
	// guard fails the second insert, which must read as already-processed.
	repo := newMockPaymentRepo()
	pub := &mockPublisher{}

	evt := orderCreated(uuid.New(), "10.00")

	// Separate Service instances so neither shares the other's seen filter,
	// forcing both down the insert path (consumer-group rebalance shape).
	first := NewService(repo, pub)
	second := NewService(repo, pub)

	require.NoError(t, first.ProcessOrder(context.Background(), evt))
	err := second.ProcessOrder(context.Background(), evt)
	require.ErrorIs(t, err, ErrAlreadyProcessed)

	assert.Equal(t, 1, repo.count())
	assert.Equal(t, 1, pub.count())
}

func TestProcessOrder_ConcurrentDuplicates(t *testing.T) {
	repo := newMockPaymentRepo()
	pub := &mockPublisher{}

	evt := orderCreated(uuid.New(), "25.50")

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Fresh instance per goroutine: no shared bloom state, every
			// delivery races on the storage guard alone.
			errs[i] = NewService(repo, pub).ProcessOrder(context.Background(), evt)
		}()
	}
	wg.Wait()

	success := 0
	for _, err := range errs {
		if err == nil {
			success++
		} else {
			require.ErrorIs(t, err, ErrAlreadyProcessed)
		}
	}
	assert.Equal(t, 1, success, "exactly one delivery wins")
	assert.Equal(t, 1, repo.count())
	assert.Equal(t, 1, pub.count())
}

func TestProcessOrder_TransientErrorPropagates(t *testing.T) {
	repo := newMockPaymentRepo()
	repo.createErr = errors.New("connection reset")
	pub := &mockPublisher{}
	svc := NewService(repo, pub)

	err := svc.ProcessOrder(context.Background(), orderCreated(uuid.New(), "5.00"))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAlreadyProcessed, "transient failure must stay retryable")
	assert.Equal(t, 0, pub.count())
}

func TestOnOrderCreated_CommitSemantics(t *testing.T) {
	t.Run("success commits", func(t *testing.T) {
		svc := NewService(newMockPaymentRepo(), &mockPublisher{})
		require.NoError(t, deliver(t, svc, orderCreated(uuid.New(), "1.00")))
	})

	t.Run("duplicate commits", func(t *testing.T) {
		svc := NewService(newMockPaymentRepo(), &mockPublisher{})
		evt := orderCreated(uuid.New(), "1.00")
		require.NoError(t, deliver(t, svc, evt))
		require.NoError(t, deliver(t, svc, evt), "duplicate must not surface as a handler error")
	})

	t.Run("undecodable payload commits", func(t *testing.T) {
		svc := NewService(newMockPaymentRepo(), &mockPublisher{})
		err := svc.OnOrderCreated(context.Background(), bus.Message{
			Topic: event.TopicOrderCreated,
			Key:   []byte("k"),
			Value: []byte(`{broken`),
		})
		require.NoError(t, err, "redelivery cannot fix a malformed payload")
	})

	t.Run("transient failure leaves delivery uncommitted", func(t *testing.T) {
		repo := newMockPaymentRepo()
		repo.createErr = errors.New("db down")
		svc := NewService(repo, &mockPublisher{})
		require.Error(t, deliver(t, svc, orderCreated(uuid.New(), "1.00")))
	})
}

func TestOnOrderCreated_RedeliveryAfterPublishFailure(t *testing.T) {
	// Publish fails after the payment commits; the redelivery must terminate
	// as an absorbed duplicate, not a second payment.
	repo := newMockPaymentRepo()
	pub := &mockPublisher{err: errors.New("broker down")}
	svc := NewService(repo, pub)

	evt := orderCreated(uuid.New(), "12.00")
	require.Error(t, deliver(t, svc, evt), "first delivery fails on publish")
	assert.Equal(t, 1, repo.count(), "payment row committed despite publish failure")

	pub.err = nil
	require.NoError(t, deliver(t, svc, evt), "redelivery absorbed")
	assert.Equal(t, 1, repo.count())
	assert.Equal(t, 0, pub.count(), "lost publication is not replayed")
}
