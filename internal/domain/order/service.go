package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/commerce-saga/internal/bus"
	"github.com/xenking/commerce-saga/internal/event"
)

// ItemInput is one requested order line.
type ItemInput struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

// SubmitOrderRequest holds the input for submitting an order. TotalAmount is
// the client-declared total; it is accepted as given and not cross-checked
// against the item subtotals.
type SubmitOrderRequest struct {
	CustomerID  uuid.UUID
	Items       []ItemInput
	TotalAmount decimal.Decimal
}

// Service orchestrates order submission: validate, persist, publish.
type Service struct {
	orders    Repository
	publisher bus.Publisher
}

// NewService creates an order Service. The publisher must be bound to the
// order-created topic.
func NewService(orders Repository, publisher bus.Publisher) *Service {
	return &Service{
		orders:    orders,
		publisher: publisher,
	}
}

// SubmitOrder validates the request, persists the order and its items as one
// unit, and then publishes OrderCreated keyed by the order id. The publish is
// a separate step after the commit: if the process dies in between, the order
// exists but the saga never starts. There is no outbox.
func (s *Service) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if req.TotalAmount.IsNegative() {
		return nil, ErrNegativeTotal
	}

	now := time.Now().UTC()
	items := make([]Item, len(req.Items))
	for i, in := range req.Items {
		if in.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: in.ProductID}
		}
		if in.UnitPrice.IsNegative() {
			return nil, &NegativeUnitPriceError{ProductID: in.ProductID}
		}
		items[i] = Item{
			ID:        uuid.New(),
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
		}
	}

	o := &Order{
		ID:          uuid.New(),
		CustomerID:  req.CustomerID,
		Items:       items,
		TotalAmount: req.TotalAmount,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	s.publishCreated(ctx, o)

	return o, nil
}

// publishCreated emits OrderCreated for a persisted order. A publish failure
// does not fail the submission: the order is already committed, so the caller
// gets it back either way. The failure is logged; the order stays PENDING
// with no payment attempt until operators intervene.
func (s *Service) publishCreated(ctx context.Context, o *Order) {
	items := make([]event.OrderItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = event.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}

	evt := event.OrderCreated{
		Envelope:    event.NewEnvelope(event.TypeOrderCreated),
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		TotalAmount: o.TotalAmount,
		Status:      string(o.Status),
		Items:       items,
	}

	if err := s.publisher.Publish(ctx, evt.Key(), evt); err != nil {
		zctx.From(ctx).Error("publish order created",
			zap.String("order_id", o.ID.String()),
			zap.Error(err),
		)
	}
}

// GetOrder returns a single order by id.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// OrdersByCustomer returns all orders for a customer, newest first. The slice
// may be empty; the HTTP layer maps that to a 404.
func (s *Service) OrdersByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error) {
	return s.orders.ListByCustomer(ctx, customerID)
}
