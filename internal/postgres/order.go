package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/commerce-saga/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, customer_id, total, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, quantity, unit_price)
	VALUES ($1, $2, $3, $4, $5)`

	selectOrderSQL = `SELECT id, customer_id, total, status, created_at, updated_at
	FROM orders WHERE id = $1`

	selectOrdersByCustomerSQL = `SELECT id, customer_id, total, status, created_at, updated_at
	FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`

	selectOrderItemsSQL = `SELECT id, product_id, quantity, unit_price
	FROM order_items WHERE order_id = $1 ORDER BY id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and all of its items in a single transaction, so
// an order is either fully visible with its lines or not at all.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.CustomerID, o.TotalAmount, string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "insert order %s", o.ID)
	}

	for _, it := range o.Items {
		_, err = tx.Exec(ctx, insertOrderItemSQL,
			it.ID, o.ID, it.ProductID, it.Quantity, it.UnitPrice,
		)
		if err != nil {
			return errors.Wrapf(err, "insert order item %s", it.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// GetByID returns a single order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	row := r.pool.QueryRow(ctx, selectOrderSQL, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %s", id)
	}

	o.Items, err = r.loadItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListByCustomer returns the customer's orders, newest first, items included.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, selectOrdersByCustomerSQL, customerID)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for customer %s", customerID)
	}
	defer rows.Close()

	var orders []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate orders")
	}

	for i := range orders {
		orders[i].Items, err = r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderID uuid.UUID) ([]order.Item, error) {
	rows, err := r.pool.Query(ctx, selectOrderItemsSQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "load items for order %s", orderID)
	}
	defer rows.Close()

	var items []order.Item
	for rows.Next() {
		var it order.Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, errors.Wrap(err, "scan order item")
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate order items")
	}
	return items, nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.CustomerID, &o.TotalAmount, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	return &o, nil
}
