package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/repository"
)

type OrderRepo struct {
	DB DBTX
}

const orderColumns = `id, status, status_version, customer_ref, driver_ref, price, currency, pickup, dropoff, created_at, updated_at`

const createOrder = `-- name: CreateOrder
INSERT INTO orders (id, status, status_version, customer_ref, driver_ref, price, currency, pickup, dropoff, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + orderColumns

func (r *OrderRepo) CreateOrder(ctx context.Context, o models.Order) (models.Order, error) {
	rows, _ := r.DB.Query(ctx, createOrder,
		o.ID, o.Status, o.StatusVersion, o.CustomerRef, o.DriverRef, o.Price, o.Currency, o.Pickup, o.Dropoff, o.CreatedAt, o.UpdatedAt,
	)
	order, err := pgx.CollectOneRow(rows, rowToOrder)
	if err != nil {
		return order, fmt.Errorf("db error: %w", err)
	}

	return order, nil
}

const getOrder = `-- name: GetOrder
SELECT ` + orderColumns + ` FROM orders
WHERE id = $1
`

func (r *OrderRepo) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	rows, _ := r.DB.Query(ctx, getOrder, id)
	order, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, pgx.ErrNoRows):
		return order, apperrors.ErrOrderNotFound
	default:
		return order, fmt.Errorf("db error: %w", err)
	}
}

// LIMIT NULL is the same as no limit at all
const listOrders = `-- name: ListOrders
SELECT ` + orderColumns + ` FROM orders
WHERE ($1::varchar = '' OR customer_ref = $1 OR driver_ref = $1)
	AND (cardinality($2::varchar[]) = 0 OR status = ANY($2::varchar[]))
	AND (NOT $3::boolean OR driver_ref IS NULL)
ORDER BY created_at DESC, id
LIMIT NULLIF($4::integer, 0)
`

func (r *OrderRepo) ListOrders(ctx context.Context, opts repository.ListOrdersOpts) ([]models.Order, error) {
	statuses := make([]string, 0, len(opts.Statuses))
	for _, s := range opts.Statuses {
		statuses = append(statuses, string(s))
	}

	rows, _ := r.DB.Query(ctx, listOrders, opts.ActorRef, statuses, opts.Unassigned, opts.Limit)
	orders, err := pgx.CollectRows(rows, rowToOrder)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return orders, nil
}

// Driver is assigned only if the order has none, so two concurrent acceptances never both succeed
const updateOrderStatus = `-- name: UpdateOrderStatus
UPDATE orders
SET status = $4,
	status_version = status_version + 1,
	driver_ref = COALESCE($5::varchar, driver_ref),
	updated_at = $6
WHERE id = $1
	AND status = $2
	AND status_version = $3
	AND ($5::varchar IS NULL OR driver_ref IS NULL)
RETURNING ` + orderColumns

func (r *OrderRepo) UpdateStatus(ctx context.Context, arg repository.UpdateStatusParams) (models.Order, error) {
	rows, _ := r.DB.Query(ctx, updateOrderStatus,
		arg.ID, arg.FromStatus, arg.FromVersion, arg.ToStatus, arg.AssignDriver, arg.UpdatedAt,
	)
	order, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, pgx.ErrNoRows):
		return order, apperrors.ErrConcurrentModification
	default:
		return order, fmt.Errorf("db error: %w", err)
	}
}

const createOrderEvent = `-- name: CreateOrderEvent
INSERT INTO order_events (order_id, from_status, to_status, actor_ref, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, order_id, from_status, to_status, actor_ref, created_at
`

func (r *OrderRepo) CreateEvent(ctx context.Context, e models.OrderEvent) (models.OrderEvent, error) {
	rows, _ := r.DB.Query(ctx, createOrderEvent, e.OrderID, e.FromStatus, e.ToStatus, e.ActorRef, e.CreatedAt)
	event, err := pgx.CollectOneRow(rows, rowToOrderEvent)
	if err != nil {
		return event, fmt.Errorf("db error: %w", err)
	}

	return event, nil
}

const listOrderEvents = `-- name: ListOrderEvents
SELECT id, order_id, from_status, to_status, actor_ref, created_at FROM order_events
WHERE order_id = $1
ORDER BY id
`

func (r *OrderRepo) ListEvents(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error) {
	rows, _ := r.DB.Query(ctx, listOrderEvents, orderID)
	events, err := pgx.CollectRows(rows, rowToOrderEvent)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return events, nil
}

func rowToOrder(row pgx.CollectableRow) (models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.Status, &o.StatusVersion, &o.CustomerRef, &o.DriverRef,
		&o.Price, &o.Currency, &o.Pickup, &o.Dropoff, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func rowToOrderEvent(row pgx.CollectableRow) (models.OrderEvent, error) {
	var e models.OrderEvent
	err := row.Scan(&e.ID, &e.OrderID, &e.FromStatus, &e.ToStatus, &e.ActorRef, &e.CreatedAt)
	return e, err
}
