package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, external_order_id, external_check_id, order_sequence, order_number,
    branch_id, device_id, table_id, session_id, terminal_session_id, guest_count,
    subtotal, tax, discount, total, status, is_printed, printed_at, printed_by,
    created_at, updated_at`

func scanOrder(row scanner) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.ExternalOrderID,
		&i.ExternalCheckID,
		&i.OrderSequence,
		&i.OrderNumber,
		&i.BranchID,
		&i.DeviceID,
		&i.TableID,
		&i.SessionID,
		&i.TerminalSessionID,
		&i.GuestCount,
		&i.Subtotal,
		&i.Tax,
		&i.Discount,
		&i.Total,
		&i.Status,
		&i.IsPrinted,
		&i.PrintedAt,
		&i.PrintedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getNextOrderSequence = `-- name: GetNextOrderSequence :one
SELECT (COALESCE(MAX(order_sequence), 0) + 1)::integer FROM orders
`

func (q *Queries) GetNextOrderSequence(ctx context.Context) (int32, error) {
	row := q.db.QueryRow(ctx, getNextOrderSequence)
	var next int32
	err := row.Scan(&next)
	return next, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (
    external_order_id, external_check_id, order_sequence, order_number,
    branch_id, device_id, table_id, session_id, terminal_session_id, guest_count,
    subtotal, tax, discount, total, status
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	ExternalOrderID   pgtype.Int8    `json:"external_order_id"`
	ExternalCheckID   pgtype.Int8    `json:"external_check_id"`
	OrderSequence     int32          `json:"order_sequence"`
	OrderNumber       string         `json:"order_number"`
	BranchID          int64          `json:"branch_id"`
	DeviceID          int64          `json:"device_id"`
	TableID           int64          `json:"table_id"`
	SessionID         pgtype.Text    `json:"session_id"`
	TerminalSessionID int64          `json:"terminal_session_id"`
	GuestCount        int32          `json:"guest_count"`
	Subtotal          pgtype.Numeric `json:"subtotal"`
	Tax               pgtype.Numeric `json:"tax"`
	Discount          pgtype.Numeric `json:"discount"`
	Total             pgtype.Numeric `json:"total"`
	Status            string         `json:"status"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.ExternalOrderID,
		arg.ExternalCheckID,
		arg.OrderSequence,
		arg.OrderNumber,
		arg.BranchID,
		arg.DeviceID,
		arg.TableID,
		arg.SessionID,
		arg.TerminalSessionID,
		arg.GuestCount,
		arg.Subtotal,
		arg.Tax,
		arg.Discount,
		arg.Total,
		arg.Status,
	)
	return scanOrder(row)
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id int64) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR NO KEY UPDATE
`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const getOrderByExternalIDForUpdate = `-- name: GetOrderByExternalIDForUpdate :one
SELECT ` + orderColumns + ` FROM orders WHERE external_order_id = $1 FOR NO KEY UPDATE
`

func (q *Queries) GetOrderByExternalIDForUpdate(ctx context.Context, externalOrderID int64) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByExternalIDForUpdate, externalOrderID))
}

const countActiveOrdersByDevice = `-- name: CountActiveOrdersByDevice :one
SELECT COUNT(*) FROM orders
WHERE device_id = $1
  AND status IN ('PENDING', 'CONFIRMED', 'IN_PROGRESS', 'READY', 'SERVED')
`

func (q *Queries) CountActiveOrdersByDevice(ctx context.Context, deviceID int64) (int64, error) {
	row := q.db.QueryRow(ctx, countActiveOrdersByDevice, deviceID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const countActiveOrdersByTable = `-- name: CountActiveOrdersByTable :one
SELECT COUNT(*) FROM orders
WHERE table_id = $1
  AND status IN ('PENDING', 'CONFIRMED', 'IN_PROGRESS', 'READY', 'SERVED')
`

func (q *Queries) CountActiveOrdersByTable(ctx context.Context, tableID int64) (int64, error) {
	row := q.db.QueryRow(ctx, countActiveOrdersByTable, tableID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders SET status = $2, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status))
}

const addOrderTotals = `-- name: AddOrderTotals :one
UPDATE orders SET
    subtotal = subtotal + $2,
    tax = tax + $3,
    discount = discount + $4,
    total = total + $5,
    updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type AddOrderTotalsParams struct {
	ID       int64          `json:"id"`
	Subtotal pgtype.Numeric `json:"subtotal"`
	Tax      pgtype.Numeric `json:"tax"`
	Discount pgtype.Numeric `json:"discount"`
	Total    pgtype.Numeric `json:"total"`
}

func (q *Queries) AddOrderTotals(ctx context.Context, arg AddOrderTotalsParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, addOrderTotals,
		arg.ID,
		arg.Subtotal,
		arg.Tax,
		arg.Discount,
		arg.Total,
	))
}

// MarkOrderPrinted keeps the first print timestamp and printer; later acks
// only re-assert is_printed.
const markOrderPrinted = `-- name: MarkOrderPrinted :one
UPDATE orders SET
    is_printed = true,
    printed_at = COALESCE(printed_at, $2),
    printed_by = COALESCE(printed_by, $3),
    updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type MarkOrderPrintedParams struct {
	ID        int64              `json:"id"`
	PrintedAt pgtype.Timestamptz `json:"printed_at"`
	PrintedBy pgtype.Text        `json:"printed_by"`
}

func (q *Queries) MarkOrderPrinted(ctx context.Context, arg MarkOrderPrintedParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, markOrderPrinted, arg.ID, arg.PrintedAt, arg.PrintedBy))
}

const createPosOrphan = `-- name: CreatePosOrphan :one
INSERT INTO pos_orphans (external_order_id, device_id, branch_id, reason)
VALUES ($1, $2, $3, $4)
RETURNING id, external_order_id, device_id, branch_id, reason, resolved_at, created_at
`

type CreatePosOrphanParams struct {
	ExternalOrderID int64  `json:"external_order_id"`
	DeviceID        int64  `json:"device_id"`
	BranchID        int64  `json:"branch_id"`
	Reason          string `json:"reason"`
}

func (q *Queries) CreatePosOrphan(ctx context.Context, arg CreatePosOrphanParams) (PosOrphan, error) {
	row := q.db.QueryRow(ctx, createPosOrphan,
		arg.ExternalOrderID,
		arg.DeviceID,
		arg.BranchID,
		arg.Reason,
	)
	var i PosOrphan
	err := row.Scan(
		&i.ID,
		&i.ExternalOrderID,
		&i.DeviceID,
		&i.BranchID,
		&i.Reason,
		&i.ResolvedAt,
		&i.CreatedAt,
	)
	return i, err
}
