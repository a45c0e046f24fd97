// Package pos talks to the legacy POS database. Every call is a single
// blocking round trip bounded by a timeout and is never retried here.
package pos

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable means the POS could not be reached or did not answer in time.
	ErrUnavailable = errors.New("pos unavailable")
	// ErrRejected means the POS refused the request (constraint, data or
	// procedure error).
	ErrRejected = errors.New("pos rejected request")
	// ErrNoSession means no terminal session is open.
	ErrNoSession = errors.New("no active pos session")
	// ErrMenuNotFound means the catalog has no matching menu item.
	ErrMenuNotFound = errors.New("menu item not found")
)

type Session struct {
	ID       int64     `db:"id"`
	OpenedAt time.Time `db:"opened_at"`
}

type MenuItem struct {
	ID       int64           `db:"id"`
	Name     string          `db:"name"`
	Category string          `db:"category"`
	Price    decimal.Decimal `db:"price"`
}

type OrderRequest struct {
	SessionID  int64
	TableID    int64
	DeviceID   int64
	GuestCount int32
}

// Totals are the check amounts sent with CreateOrderCheck.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

type LineItem struct {
	MenuID     int64
	Quantity   int32
	Price      decimal.Decimal
	SeatNumber *int32
	Note       string
}

// Client is the subset of the POS the relay depends on.
type Client interface {
	ActiveSession(ctx context.Context) (Session, error)
	CreateOrder(ctx context.Context, req OrderRequest) (int64, error)
	CreateOrderCheck(ctx context.Context, orderID int64, totals Totals) (int64, error)
	// CreateOrderedMenuItems inserts all lines atomically and returns their POS
	// ids in input order.
	CreateOrderedMenuItems(ctx context.Context, orderID, checkID int64, items []LineItem) ([]int64, error)
	MenuByID(ctx context.Context, id int64) (MenuItem, error)
	MenuByName(ctx context.Context, name string) (MenuItem, error)
}
