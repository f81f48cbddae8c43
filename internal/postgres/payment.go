package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/commerce-saga/internal/domain/payment"
)

const (
	insertPaymentSQL = `INSERT INTO payments (id, order_id, amount, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	selectPaymentByOrderSQL = `SELECT id, order_id, amount, status, created_at, updated_at
	FROM payments WHERE order_id = $1`
)

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create inserts a payment row. The payments_order_id_key constraint makes
// the insert the authoritative idempotency guard: a duplicate order id comes
// back as payment.ErrDuplicateOrder, every other failure stays a transient
// persistence error.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_, err := r.pool.Exec(ctx, insertPaymentSQL,
		p.ID, p.OrderID, p.Amount, string(p.Status), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return payment.ErrDuplicateOrder
		}
		return errors.Wrapf(err, "insert payment %s", p.ID)
	}
	return nil
}

// GetByOrderID returns the payment recorded for an order.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*payment.Payment, error) {
	var (
		p      payment.Payment
		status string
	)
	err := r.pool.QueryRow(ctx, selectPaymentByOrderSQL, orderID).
		Scan(&p.ID, &p.OrderID, &p.Amount, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get payment for order %s", orderID)
	}
	p.Status = payment.Status(status)
	return &p, nil
}
