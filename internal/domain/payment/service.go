package payment

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/commerce-saga/internal/bus"
	"github.com/xenking/commerce-saga/internal/event"
)

// Sizing for the seen-order filter. At 0.1% false positives a hit only costs
// one extra SELECT; a miss skips it entirely.
const (
	seenCapacity = 1_000_000
	seenFPR      = 0.001
)

// Service reacts to OrderCreated events: it records exactly one payment per
// order and announces the outcome.
type Service struct {
	payments  Repository
	publisher bus.Publisher

	// seen tracks order ids this instance has already processed. A miss is
	// authoritative ("definitely new", skip the pre-check SELECT); a hit is
	// only a hint and always falls through to the real checks.
	mu   sync.Mutex
	seen *bloom.BloomFilter
}

// NewService creates a payment Service. The publisher must be bound to the
// payment-processed topic.
func NewService(payments Repository, publisher bus.Publisher) *Service {
	return &Service{
		payments:  payments,
		publisher: publisher,
		seen:      bloom.NewWithEstimates(seenCapacity, seenFPR),
	}
}

// OnOrderCreated is the bus handler for the order-created topic. Returning
// nil commits the delivery; duplicates terminate as committed no-ops, and a
// payload that cannot be decoded is committed too since redelivery can never
// fix it.
func (s *Service) OnOrderCreated(ctx context.Context, msg bus.Message) error {
	lg := zctx.From(ctx)

	evt, err := event.DecodeOrderCreated(msg.Value)
	if err != nil {
		lg.Warn("dropping undecodable order created event",
			zap.String("key", string(msg.Key)),
			zap.Error(err),
		)
		return nil
	}

	err = s.ProcessOrder(ctx, evt)
	if errors.Is(err, ErrAlreadyProcessed) {
		lg.Info("duplicate order created delivery absorbed",
			zap.String("order_id", evt.OrderID.String()),
		)
		return nil
	}
	return err
}

// ProcessOrder persists a payment for the order and publishes
// PaymentProcessed. The idempotency guard is two-layered: an existence
// pre-check absorbs straightforward redeliveries, and the UNIQUE(order_id)
// constraint closes the race window when concurrent duplicates pass the
// pre-check together: the losing insert maps to ErrAlreadyProcessed instead
// of a second payment.
func (s *Service) ProcessOrder(ctx context.Context, evt event.OrderCreated) error {
	if s.maybeSeen(evt.OrderID) {
		_, err := s.payments.GetByOrderID(ctx, evt.OrderID)
		switch {
		case err == nil:
			return ErrAlreadyProcessed
		case !errors.Is(err, ErrNotFound):
			return errors.Wrap(err, "check existing payment")
		}
	}

	now := time.Now().UTC()
	p := &Payment{
		ID:        uuid.New(),
		OrderID:   evt.OrderID,
		Amount:    evt.TotalAmount,
		Status:    StatusCompleted,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.payments.Create(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicateOrder) {
			s.markSeen(evt.OrderID)
			return ErrAlreadyProcessed
		}
		return errors.Wrap(err, "create payment")
	}
	s.markSeen(evt.OrderID)

	out := event.PaymentProcessed{
		Envelope:  event.NewEnvelope(event.TypePaymentProcessed),
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Status:    string(p.Status),
	}
	if err := s.publisher.Publish(ctx, out.Key(), out); err != nil {
		// The payment row is already committed. The redelivery this error
		// triggers terminates in the duplicate guard above, so the event is
		// lost rather than the payment doubled, mirroring the order-side
		// persist/publish gap.
		return errors.Wrap(err, "publish payment processed")
	}

	return nil
}

// PaymentByOrder returns the payment recorded for an order.
func (s *Service) PaymentByOrder(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	return s.payments.GetByOrderID(ctx, orderID)
}

func (s *Service) maybeSeen(orderID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen.Test(orderID[:])
}

func (s *Service) markSeen(orderID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen.Add(orderID[:])
}
