package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateProductRequest holds the input for adding a catalog entry.
type CreateProductRequest struct {
	Name  string
	Price decimal.Decimal
	Stock int
}

// Service implements catalog operations.
type Service struct {
	products Repository
}

// NewService creates a product Service.
func NewService(products Repository) *Service {
	return &Service{products: products}
}

// CreateProduct validates and persists a new catalog entry.
func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error) {
	if req.Name == "" {
		return nil, ErrEmptyName
	}
	if req.Price.IsNegative() {
		return nil, ErrNegativePrice
	}
	if req.Stock < 0 {
		return nil, ErrNegativeStock
	}

	now := time.Now().UTC()
	p := &Product{
		ID:        uuid.New(),
		Name:      req.Name,
		Price:     req.Price,
		Stock:     req.Stock,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return p, nil
}

// GetProduct returns a catalog entry by id.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	return s.products.GetByID(ctx, id)
}

// UpdateStock replaces the stock count for a product.
func (s *Service) UpdateStock(ctx context.Context, id uuid.UUID, stock int) (*Product, error) {
	if stock < 0 {
		return nil, ErrNegativeStock
	}
	return s.products.UpdateStock(ctx, id, stock, time.Now().UTC())
}
