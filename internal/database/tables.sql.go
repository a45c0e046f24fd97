package database

import "context"

const diningTableColumns = `id, branch_id, name, is_locked, locked_at, created_at, updated_at`

func scanDiningTable(row scanner) (DiningTable, error) {
	var i DiningTable
	err := row.Scan(
		&i.ID,
		&i.BranchID,
		&i.Name,
		&i.IsLocked,
		&i.LockedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createBranch = `-- name: CreateBranch :one
INSERT INTO branches (name) VALUES ($1)
RETURNING id, name, created_at, updated_at
`

func (q *Queries) CreateBranch(ctx context.Context, name string) (Branch, error) {
	row := q.db.QueryRow(ctx, createBranch, name)
	var i Branch
	err := row.Scan(&i.ID, &i.Name, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const createDiningTable = `-- name: CreateDiningTable :one
INSERT INTO dining_tables (branch_id, name) VALUES ($1, $2)
RETURNING ` + diningTableColumns

type CreateDiningTableParams struct {
	BranchID int64  `json:"branch_id"`
	Name     string `json:"name"`
}

func (q *Queries) CreateDiningTable(ctx context.Context, arg CreateDiningTableParams) (DiningTable, error) {
	return scanDiningTable(q.db.QueryRow(ctx, createDiningTable, arg.BranchID, arg.Name))
}

const getDiningTable = `-- name: GetDiningTable :one
SELECT ` + diningTableColumns + ` FROM dining_tables WHERE id = $1
`

func (q *Queries) GetDiningTable(ctx context.Context, id int64) (DiningTable, error) {
	return scanDiningTable(q.db.QueryRow(ctx, getDiningTable, id))
}

const getDiningTableForUpdate = `-- name: GetDiningTableForUpdate :one
SELECT ` + diningTableColumns + ` FROM dining_tables WHERE id = $1 FOR UPDATE
`

func (q *Queries) GetDiningTableForUpdate(ctx context.Context, id int64) (DiningTable, error) {
	return scanDiningTable(q.db.QueryRow(ctx, getDiningTableForUpdate, id))
}

const lockDiningTable = `-- name: LockDiningTable :one
UPDATE dining_tables SET is_locked = true, locked_at = now(), updated_at = now()
WHERE id = $1
RETURNING ` + diningTableColumns

func (q *Queries) LockDiningTable(ctx context.Context, id int64) (DiningTable, error) {
	return scanDiningTable(q.db.QueryRow(ctx, lockDiningTable, id))
}

const unlockDiningTable = `-- name: UnlockDiningTable :one
UPDATE dining_tables SET is_locked = false, locked_at = NULL, updated_at = now()
WHERE id = $1
RETURNING ` + diningTableColumns

func (q *Queries) UnlockDiningTable(ctx context.Context, id int64) (DiningTable, error) {
	return scanDiningTable(q.db.QueryRow(ctx, unlockDiningTable, id))
}
