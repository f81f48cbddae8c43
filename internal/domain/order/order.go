// Package order owns the order aggregate: an order plus its line items,
// treated as one consistency unit.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates order states. Only StatusPending is produced: no consumer
// transitions an order after payment, so orders stay PENDING.
type Status string

const StatusPending Status = "PENDING"

// Order is the aggregate root. Immutable after creation except for status
// transitions (none are triggered in the current flow).
type Order struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID
	Items       []Item
	TotalAmount decimal.Decimal
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Item is a single order line.
type Item struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

// Sentinel errors for order validation and lookup.
var (
	ErrEmptyItems    = fmt.Errorf("items required")
	ErrNegativeTotal = fmt.Errorf("total amount must not be negative")
	ErrNotFound      = fmt.Errorf("order not found")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID uuid.UUID
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// NegativeUnitPriceError indicates a line item has a negative unit price.
type NegativeUnitPriceError struct {
	ProductID uuid.UUID
}

func (e *NegativeUnitPriceError) Error() string {
	return fmt.Sprintf("unit price must not be negative for product %s", e.ProductID)
}

// Repository defines persistence operations for orders. Create must persist
// the order and all of its items atomically.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error)
}
