package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const deviceColumns = `id, uuid, branch_id, table_id, kind, name, secret_hash, ip_address, status,
    last_seen_at, app_version, printer_id, printer_name, created_at, updated_at`

func scanDevice(row scanner) (Device, error) {
	var i Device
	err := row.Scan(
		&i.ID,
		&i.UUID,
		&i.BranchID,
		&i.TableID,
		&i.Kind,
		&i.Name,
		&i.SecretHash,
		&i.IPAddress,
		&i.Status,
		&i.LastSeenAt,
		&i.AppVersion,
		&i.PrinterID,
		&i.PrinterName,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getDevice = `-- name: GetDevice :one
SELECT ` + deviceColumns + ` FROM devices WHERE id = $1
`

func (q *Queries) GetDevice(ctx context.Context, id int64) (Device, error) {
	return scanDevice(q.db.QueryRow(ctx, getDevice, id))
}

const getDeviceByUUID = `-- name: GetDeviceByUUID :one
SELECT ` + deviceColumns + ` FROM devices WHERE uuid = $1
`

func (q *Queries) GetDeviceByUUID(ctx context.Context, deviceUUID uuid.UUID) (Device, error) {
	return scanDevice(q.db.QueryRow(ctx, getDeviceByUUID, deviceUUID))
}

// LockDevice takes the row lock that serializes order creation per device.
const lockDevice = `-- name: LockDevice :one
SELECT id FROM devices WHERE id = $1 FOR UPDATE
`

func (q *Queries) LockDevice(ctx context.Context, id int64) (int64, error) {
	row := q.db.QueryRow(ctx, lockDevice, id)
	var locked int64
	err := row.Scan(&locked)
	return locked, err
}

const createDevice = `-- name: CreateDevice :one
INSERT INTO devices (uuid, branch_id, table_id, kind, name, secret_hash, ip_address)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + deviceColumns

type CreateDeviceParams struct {
	UUID       uuid.UUID   `json:"uuid"`
	BranchID   int64       `json:"branch_id"`
	TableID    pgtype.Int8 `json:"table_id"`
	Kind       string      `json:"kind"`
	Name       string      `json:"name"`
	SecretHash string      `json:"secret_hash"`
	IPAddress  pgtype.Text `json:"ip_address"`
}

func (q *Queries) CreateDevice(ctx context.Context, arg CreateDeviceParams) (Device, error) {
	return scanDevice(q.db.QueryRow(ctx, createDevice,
		arg.UUID,
		arg.BranchID,
		arg.TableID,
		arg.Kind,
		arg.Name,
		arg.SecretHash,
		arg.IPAddress,
	))
}

const updateDevice = `-- name: UpdateDevice :one
UPDATE devices SET
    branch_id = $2,
    table_id = $3,
    name = $4,
    ip_address = $5,
    updated_at = now()
WHERE id = $1
RETURNING ` + deviceColumns

type UpdateDeviceParams struct {
	ID        int64       `json:"id"`
	BranchID  int64       `json:"branch_id"`
	TableID   pgtype.Int8 `json:"table_id"`
	Name      string      `json:"name"`
	IPAddress pgtype.Text `json:"ip_address"`
}

func (q *Queries) UpdateDevice(ctx context.Context, arg UpdateDeviceParams) (Device, error) {
	return scanDevice(q.db.QueryRow(ctx, updateDevice,
		arg.ID,
		arg.BranchID,
		arg.TableID,
		arg.Name,
		arg.IPAddress,
	))
}

const updateDeviceHeartbeat = `-- name: UpdateDeviceHeartbeat :one
UPDATE devices SET
    status = $2,
    app_version = COALESCE($3, app_version),
    printer_id = COALESCE($4, printer_id),
    printer_name = COALESCE($5, printer_name),
    last_seen_at = now(),
    updated_at = now()
WHERE id = $1
RETURNING ` + deviceColumns

type UpdateDeviceHeartbeatParams struct {
	ID          int64       `json:"id"`
	Status      string      `json:"status"`
	AppVersion  pgtype.Text `json:"app_version"`
	PrinterID   pgtype.Text `json:"printer_id"`
	PrinterName pgtype.Text `json:"printer_name"`
}

func (q *Queries) UpdateDeviceHeartbeat(ctx context.Context, arg UpdateDeviceHeartbeatParams) (Device, error) {
	return scanDevice(q.db.QueryRow(ctx, updateDeviceHeartbeat,
		arg.ID,
		arg.Status,
		arg.AppVersion,
		arg.PrinterID,
		arg.PrinterName,
	))
}
