package pos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// DB is the sqlx-backed Client.
type DB struct {
	db      *sqlx.DB
	timeout time.Duration
}

func Open(databaseURL string, timeout time.Duration, maxOpenConns int) (*DB, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open pos database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewDB(db, timeout), nil
}

func NewDB(db *sqlx.DB, timeout time.Duration) *DB {
	return &DB{db: db, timeout: timeout}
}

func (p *DB) Close() error {
	return p.db.Close()
}

func (p *DB) Ping(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return classify("ping", p.db.PingContext(ctx))
}

func (p *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *DB) ActiveSession(ctx context.Context) (Session, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var s Session
	err := p.db.GetContext(ctx, &s, `SELECT id, opened_at FROM pos_active_session()`)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, classify("active session", err)
	}
	return s, nil
}

func (p *DB) CreateOrder(ctx context.Context, req OrderRequest) (int64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var id int64
	err := p.db.GetContext(ctx, &id, `SELECT pos_create_order($1, $2, $3, $4)`,
		req.SessionID, req.TableID, req.DeviceID, req.GuestCount)
	if err != nil {
		return 0, classify("create order", err)
	}
	return id, nil
}

func (p *DB) CreateOrderCheck(ctx context.Context, orderID int64, totals Totals) (int64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var id int64
	err := p.db.GetContext(ctx, &id, `SELECT pos_create_order_check($1, $2, $3, $4, $5)`,
		orderID,
		totals.Subtotal.StringFixed(2),
		totals.Tax.StringFixed(2),
		totals.Discount.StringFixed(2),
		totals.Total.StringFixed(2),
	)
	if err != nil {
		return 0, classify("create order check", err)
	}
	return id, nil
}

func (p *DB) CreateOrderedMenuItems(ctx context.Context, orderID, checkID int64, items []LineItem) ([]int64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classify("begin ordered menu", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ids := make([]int64, 0, len(items))
	for i, item := range items {
		var seat sql.NullInt32
		if item.SeatNumber != nil {
			seat = sql.NullInt32{Int32: *item.SeatNumber, Valid: true}
		}
		var id int64
		err := tx.GetContext(ctx, &id, `SELECT pos_create_ordered_menu($1, $2, $3, $4, $5, $6, $7)`,
			orderID, checkID, item.MenuID, item.Quantity, item.Price.StringFixed(2), seat, item.Note)
		if err != nil {
			return nil, classify(fmt.Sprintf("create ordered menu %d", i), err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify("commit ordered menu", err)
	}
	return ids, nil
}

const menuColumns = `id, name, category, price`

func (p *DB) MenuByID(ctx context.Context, id int64) (MenuItem, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var m MenuItem
	err := p.db.GetContext(ctx, &m, `SELECT `+menuColumns+` FROM pos_menu_catalog WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return MenuItem{}, fmt.Errorf("menu %d: %w", id, ErrMenuNotFound)
	}
	if err != nil {
		return MenuItem{}, classify("menu by id", err)
	}
	return m, nil
}

func (p *DB) MenuByName(ctx context.Context, name string) (MenuItem, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var m MenuItem
	err := p.db.GetContext(ctx, &m,
		`SELECT `+menuColumns+` FROM pos_menu_catalog WHERE lower(name) = lower($1) ORDER BY id LIMIT 1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return MenuItem{}, fmt.Errorf("menu %q: %w", name, ErrMenuNotFound)
	}
	if err != nil {
		return MenuItem{}, classify("menu by name", err)
	}
	return m, nil
}

// classify tags err with ErrUnavailable or ErrRejected when it can tell which
// side of the wire failed. The cause stays reachable through errors.As.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("pos %s: %w: %w", op, ErrUnavailable, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23", "P0":
			return fmt.Errorf("pos %s: %w: %w", op, ErrRejected, err)
		case "08", "53", "57":
			return fmt.Errorf("pos %s: %w: %w", op, ErrUnavailable, err)
		}
		return fmt.Errorf("pos %s: %w", op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("pos %s: %w: %w", op, ErrUnavailable, err)
	}

	return fmt.Errorf("pos %s: %w", op, err)
}
