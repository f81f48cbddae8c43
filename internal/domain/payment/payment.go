// Package payment owns the payment aggregate. At most one payment exists per
// order; that uniqueness is the saga's only cross-request invariant and is
// enforced at the storage layer, not with application locks.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates payment states. No gateway integration exists, so every
// payment completes immediately.
type Status string

const StatusCompleted Status = "COMPLETED"

// Payment records one payment attempt for an order. Never updated after
// creation.
type Payment struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Amount    decimal.Decimal
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrNotFound indicates no payment exists for the requested order.
	ErrNotFound = fmt.Errorf("payment not found")

	// ErrDuplicateOrder is returned by Repository.Create when the order id
	// already has a payment row. It is how the storage-level uniqueness
	// guard surfaces: the losing side of a concurrent duplicate delivery
	// sees this instead of silently double-paying.
	ErrDuplicateOrder = fmt.Errorf("payment already exists for order")

	// ErrAlreadyProcessed is the handler-level outcome for a duplicate
	// delivery. It is a benign terminal state, not a failure: deliveries
	// ending here are committed and never retried.
	ErrAlreadyProcessed = fmt.Errorf("order already processed")
)

// Repository defines persistence operations for payments. Create must fail
// with ErrDuplicateOrder when a payment for the same order id already exists.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*Payment, error)
}
