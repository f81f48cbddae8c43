// Package product owns the catalog aggregate. It is independent of the
// order/payment saga: nothing here consumes events, and order creation does
// not touch stock.
package product

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalog entry.
type Product struct {
	ID        uuid.UUID
	Name      string
	Price     decimal.Decimal
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReservationStatus enumerates reservation states.
type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// Reservation holds stock aside for an order. The entity and its table exist
// for future flows; no protocol creates or transitions reservations yet.
type Reservation struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	OrderID   uuid.UUID
	Quantity  int
	Status    ReservationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sentinel errors for product validation and lookup.
var (
	ErrNotFound      = fmt.Errorf("product not found")
	ErrEmptyName     = fmt.Errorf("name required")
	ErrNegativePrice = fmt.Errorf("price must not be negative")
	ErrNegativeStock = fmt.Errorf("stock must not be negative")
)

// Repository defines persistence operations for products.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	UpdateStock(ctx context.Context, id uuid.UUID, stock int, updatedAt time.Time) (*Product, error)
}
