package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const printEventColumns = `id, order_id, event_type, meta, is_acknowledged, acknowledged_at,
    acknowledged_by_device_id, printer_id, printer_name, attempts, last_error,
    created_at, updated_at`

func scanPrintEvent(row scanner) (PrintEvent, error) {
	var i PrintEvent
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.EventType,
		&i.Meta,
		&i.IsAcknowledged,
		&i.AcknowledgedAt,
		&i.AcknowledgedByDeviceID,
		&i.PrinterID,
		&i.PrinterName,
		&i.Attempts,
		&i.LastError,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createPrintEvent = `-- name: CreatePrintEvent :one
INSERT INTO print_events (order_id, event_type, meta)
VALUES ($1, $2, $3)
RETURNING ` + printEventColumns

type CreatePrintEventParams struct {
	OrderID   int64  `json:"order_id"`
	EventType string `json:"event_type"`
	Meta      []byte `json:"meta"`
}

func (q *Queries) CreatePrintEvent(ctx context.Context, arg CreatePrintEventParams) (PrintEvent, error) {
	return scanPrintEvent(q.db.QueryRow(ctx, createPrintEvent, arg.OrderID, arg.EventType, arg.Meta))
}

const listPendingPrintEvents = `-- name: ListPendingPrintEvents :many
SELECT pe.id, pe.order_id, pe.event_type, pe.meta, pe.is_acknowledged, pe.acknowledged_at,
    pe.acknowledged_by_device_id, pe.printer_id, pe.printer_name, pe.attempts, pe.last_error,
    pe.created_at, pe.updated_at
FROM print_events pe
JOIN orders o ON o.id = pe.order_id
WHERE pe.is_acknowledged = false
  AND o.branch_id = $1
  AND ($2::timestamptz IS NULL OR pe.created_at > $2)
ORDER BY pe.created_at, pe.id
LIMIT $3
`

type ListPendingPrintEventsParams struct {
	BranchID int64              `json:"branch_id"`
	Since    pgtype.Timestamptz `json:"since"`
	Limit    int32              `json:"limit"`
}

func (q *Queries) ListPendingPrintEvents(ctx context.Context, arg ListPendingPrintEventsParams) ([]PrintEvent, error) {
	rows, err := q.db.Query(ctx, listPendingPrintEvents, arg.BranchID, arg.Since, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []PrintEvent{}
	for rows.Next() {
		i, err := scanPrintEvent(rows)
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

const getPrintEventForUpdate = `-- name: GetPrintEventForUpdate :one
SELECT pe.id, pe.order_id, pe.event_type, pe.meta, pe.is_acknowledged, pe.acknowledged_at,
    pe.acknowledged_by_device_id, pe.printer_id, pe.printer_name, pe.attempts, pe.last_error,
    pe.created_at, pe.updated_at, o.branch_id
FROM print_events pe
JOIN orders o ON o.id = pe.order_id
WHERE pe.id = $1
FOR UPDATE OF pe
`

type GetPrintEventForUpdateRow struct {
	PrintEvent
	BranchID int64 `json:"branch_id"`
}

func (q *Queries) GetPrintEventForUpdate(ctx context.Context, id int64) (GetPrintEventForUpdateRow, error) {
	row := q.db.QueryRow(ctx, getPrintEventForUpdate, id)
	var i GetPrintEventForUpdateRow
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.EventType,
		&i.Meta,
		&i.IsAcknowledged,
		&i.AcknowledgedAt,
		&i.AcknowledgedByDeviceID,
		&i.PrinterID,
		&i.PrinterName,
		&i.Attempts,
		&i.LastError,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.BranchID,
	)
	return i, err
}

const acknowledgePrintEvent = `-- name: AcknowledgePrintEvent :one
UPDATE print_events SET
    is_acknowledged = true,
    acknowledged_at = $2,
    acknowledged_by_device_id = $3,
    printer_id = $4,
    printer_name = $5,
    attempts = attempts + 1,
    updated_at = now()
WHERE id = $1 AND is_acknowledged = false
RETURNING ` + printEventColumns

type AcknowledgePrintEventParams struct {
	ID                     int64              `json:"id"`
	AcknowledgedAt         pgtype.Timestamptz `json:"acknowledged_at"`
	AcknowledgedByDeviceID pgtype.Int8        `json:"acknowledged_by_device_id"`
	PrinterID              pgtype.Text        `json:"printer_id"`
	PrinterName            pgtype.Text        `json:"printer_name"`
}

func (q *Queries) AcknowledgePrintEvent(ctx context.Context, arg AcknowledgePrintEventParams) (PrintEvent, error) {
	return scanPrintEvent(q.db.QueryRow(ctx, acknowledgePrintEvent,
		arg.ID,
		arg.AcknowledgedAt,
		arg.AcknowledgedByDeviceID,
		arg.PrinterID,
		arg.PrinterName,
	))
}

const failPrintEvent = `-- name: FailPrintEvent :one
UPDATE print_events SET
    attempts = attempts + 1,
    last_error = $2,
    updated_at = now()
WHERE id = $1 AND is_acknowledged = false
RETURNING ` + printEventColumns

type FailPrintEventParams struct {
	ID        int64       `json:"id"`
	LastError pgtype.Text `json:"last_error"`
}

func (q *Queries) FailPrintEvent(ctx context.Context, arg FailPrintEventParams) (PrintEvent, error) {
	return scanPrintEvent(q.db.QueryRow(ctx, failPrintEvent, arg.ID, arg.LastError))
}

const countPrintEventsByOrderAndType = `-- name: CountPrintEventsByOrderAndType :one
SELECT COUNT(*) FROM print_events WHERE order_id = $1 AND event_type = $2
`

type CountPrintEventsByOrderAndTypeParams struct {
	OrderID   int64  `json:"order_id"`
	EventType string `json:"event_type"`
}

func (q *Queries) CountPrintEventsByOrderAndType(ctx context.Context, arg CountPrintEventsByOrderAndTypeParams) (int64, error) {
	row := q.db.QueryRow(ctx, countPrintEventsByOrderAndType, arg.OrderID, arg.EventType)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const deleteAcknowledgedPrintEventsBefore = `-- name: DeleteAcknowledgedPrintEventsBefore :execrows
DELETE FROM print_events WHERE is_acknowledged = true AND acknowledged_at < $1
`

func (q *Queries) DeleteAcknowledgedPrintEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := q.db.Exec(ctx, deleteAcknowledgedPrintEventsBefore, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
