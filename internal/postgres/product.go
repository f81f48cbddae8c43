package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/commerce-saga/internal/domain/product"
)

const (
	insertProductSQL = `INSERT INTO products (id, name, price, stock, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	selectProductSQL = `SELECT id, name, price, stock, created_at, updated_at
	FROM products WHERE id = $1`

	updateProductStockSQL = `UPDATE products SET stock = $2, updated_at = $3
	WHERE id = $1
	RETURNING id, name, price, stock, created_at, updated_at`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Create persists a new catalog entry.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, insertProductSQL,
		p.ID, p.Name, p.Price, p.Stock, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "insert product %s", p.ID)
	}
	return nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, selectProductSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %s", id)
	}
	return p, nil
}

// UpdateStock replaces the stock count and returns the updated row.
func (r *ProductRepository) UpdateStock(ctx context.Context, id uuid.UUID, stock int, updatedAt time.Time) (*product.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, updateProductStockSQL, id, stock, updatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "update stock for product %s", id)
	}
	return p, nil
}

func scanProduct(row pgx.Row) (*product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
