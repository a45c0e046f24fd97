package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const orderItemColumns = `id, order_id, menu_id, ordered_menu_id, item_index, seat_number,
    quantity, unit_price, subtotal, tax, discount, total, is_refill, note, status,
    created_at, updated_at`

func scanOrderItem(row scanner) (OrderItem, error) {
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.MenuID,
		&i.OrderedMenuID,
		&i.ItemIndex,
		&i.SeatNumber,
		&i.Quantity,
		&i.UnitPrice,
		&i.Subtotal,
		&i.Tax,
		&i.Discount,
		&i.Total,
		&i.IsRefill,
		&i.Note,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (
    order_id, menu_id, ordered_menu_id, item_index, seat_number, quantity,
    unit_price, subtotal, tax, discount, total, is_refill, note
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
)
RETURNING ` + orderItemColumns

type CreateOrderItemParams struct {
	OrderID       int64          `json:"order_id"`
	MenuID        int64          `json:"menu_id"`
	OrderedMenuID pgtype.Int8    `json:"ordered_menu_id"`
	ItemIndex     int32          `json:"item_index"`
	SeatNumber    pgtype.Int4    `json:"seat_number"`
	Quantity      int32          `json:"quantity"`
	UnitPrice     pgtype.Numeric `json:"unit_price"`
	Subtotal      pgtype.Numeric `json:"subtotal"`
	Tax           pgtype.Numeric `json:"tax"`
	Discount      pgtype.Numeric `json:"discount"`
	Total         pgtype.Numeric `json:"total"`
	IsRefill      bool           `json:"is_refill"`
	Note          pgtype.Text    `json:"note"`
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.MenuID,
		arg.OrderedMenuID,
		arg.ItemIndex,
		arg.SeatNumber,
		arg.Quantity,
		arg.UnitPrice,
		arg.Subtotal,
		arg.Tax,
		arg.Discount,
		arg.Total,
		arg.IsRefill,
		arg.Note,
	)
	return scanOrderItem(row)
}

const listOrderItemsByOrder = `-- name: ListOrderItemsByOrder :many
SELECT ` + orderItemColumns + ` FROM order_items
WHERE order_id = $1
ORDER BY item_index, id
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		i, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getMaxOrderItemIndex = `-- name: GetMaxOrderItemIndex :one
SELECT COALESCE(MAX(item_index), -1)::integer FROM order_items WHERE order_id = $1
`

func (q *Queries) GetMaxOrderItemIndex(ctx context.Context, orderID int64) (int32, error) {
	row := q.db.QueryRow(ctx, getMaxOrderItemIndex, orderID)
	var idx int32
	err := row.Scan(&idx)
	return idx, err
}

const updateOrderItemsStatus = `-- name: UpdateOrderItemsStatus :exec
UPDATE order_items SET status = $2, updated_at = now()
WHERE order_id = $1 AND status NOT IN ('CANCELLED', 'VOIDED')
`

type UpdateOrderItemsStatusParams struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

func (q *Queries) UpdateOrderItemsStatus(ctx context.Context, arg UpdateOrderItemsStatusParams) error {
	_, err := q.db.Exec(ctx, updateOrderItemsStatus, arg.OrderID, arg.Status)
	return err
}
