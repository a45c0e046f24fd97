package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/orderrelay/internal/database"
	"github.com/kiwari-pos/orderrelay/internal/enum"
	"github.com/kiwari-pos/orderrelay/internal/notify"
	"go.uber.org/zap"
)

const (
	MaxPollLimit     = 200
	DefaultPollLimit = 50
	MaxErrorLength   = 1000
)

type PrintEventStore interface {
	GetOrder(ctx context.Context, id int64) (database.Order, error)
	CreatePrintEvent(ctx context.Context, arg database.CreatePrintEventParams) (database.PrintEvent, error)
	ListPendingPrintEvents(ctx context.Context, arg database.ListPendingPrintEventsParams) ([]database.PrintEvent, error)
	GetPrintEventForUpdate(ctx context.Context, id int64) (database.GetPrintEventForUpdateRow, error)
	AcknowledgePrintEvent(ctx context.Context, arg database.AcknowledgePrintEventParams) (database.PrintEvent, error)
	FailPrintEvent(ctx context.Context, arg database.FailPrintEventParams) (database.PrintEvent, error)
	MarkOrderPrinted(ctx context.Context, arg database.MarkOrderPrintedParams) (database.Order, error)
}

type NewPrintEventStore func(db database.DBTX) PrintEventStore

type CreatePrintEventRequest struct {
	OrderID   int64
	BranchID  int64
	EventType string
	Meta      json.RawMessage
}

type ListPrintEventsRequest struct {
	BranchID int64
	Since    *time.Time
	Limit    int
}

// AckRequest identifies the calling relay and, optionally, the physical
// printer that produced the ticket.
type AckRequest struct {
	EventID     int64
	BranchID    int64
	DeviceID    int64
	PrinterID   *string
	PrinterName *string
	PrintedAt   *time.Time
}

type FailRequest struct {
	EventID  int64
	BranchID int64
	DeviceID int64
	Message  string
}

// MutationResult reports whether an ack or fail changed the row.
// WasUpdated is false when the event was already acknowledged.
type MutationResult struct {
	Event      database.PrintEvent
	WasUpdated bool
}

// PrintEventService is the only writer of print events after creation.
type PrintEventService struct {
	deps     Deps
	newStore NewPrintEventStore
	now      func() time.Time
}

func NewPrintEventService(deps Deps, newStore NewPrintEventStore) *PrintEventService {
	return &PrintEventService{deps: deps, newStore: newStore, now: time.Now}
}

// Create queues a print for an existing order, e.g. a manual reprint. It does
// not consult the POS session.
func (s *PrintEventService) Create(ctx context.Context, req CreatePrintEventRequest) (database.PrintEvent, error) {
	if req.EventType != enum.PrintEventInitial && req.EventType != enum.PrintEventRefill {
		return database.PrintEvent{}, ErrInvalidEventType
	}
	meta := req.Meta
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}

	store := s.newStore(s.deps.DB)
	order, err := store.GetOrder(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.PrintEvent{}, ErrOrderNotFound
		}
		return database.PrintEvent{}, fmt.Errorf("get order: %w", err)
	}
	if order.BranchID != req.BranchID {
		return database.PrintEvent{}, ErrBranchMismatch
	}

	evt, err := store.CreatePrintEvent(ctx, database.CreatePrintEventParams{
		OrderID:   order.ID,
		EventType: req.EventType,
		Meta:      meta,
	})
	if err != nil {
		return database.PrintEvent{}, fmt.Errorf("create print event: %w", err)
	}
	return evt, nil
}

// List returns unacknowledged events for a branch, oldest first. Limits above
// MaxPollLimit are clamped.
func (s *PrintEventService) List(ctx context.Context, req ListPrintEventsRequest) ([]database.PrintEvent, error) {
	if req.Limit < 0 {
		return nil, ErrInvalidLimit
	}
	limit := req.Limit
	if limit == 0 {
		limit = DefaultPollLimit
	}
	if limit > MaxPollLimit {
		limit = MaxPollLimit
	}

	var since pgtype.Timestamptz
	if req.Since != nil {
		since = pgtype.Timestamptz{Time: *req.Since, Valid: true}
	}

	events, err := s.newStore(s.deps.DB).ListPendingPrintEvents(ctx, database.ListPendingPrintEventsParams{
		BranchID: req.BranchID,
		Since:    since,
		Limit:    int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list print events: %w", err)
	}
	return events, nil
}

// lockEvent loads the event under a row lock and checks the branch.
func lockEvent(ctx context.Context, store PrintEventStore, id, branchID int64) (database.GetPrintEventForUpdateRow, error) {
	row, err := store.GetPrintEventForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return row, ErrPrintEventNotFound
		}
		return row, fmt.Errorf("get print event: %w", err)
	}
	if row.BranchID != branchID {
		return row, ErrBranchMismatch
	}
	return row, nil
}

// Acknowledge marks the event printed and flags the order. Repeating it is a
// no-op that reports WasUpdated=false.
func (s *PrintEventService) Acknowledge(ctx context.Context, req AckRequest) (*MutationResult, error) {
	tx, err := s.deps.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	row, err := lockEvent(ctx, store, req.EventID, req.BranchID)
	if err != nil {
		return nil, err
	}
	if row.IsAcknowledged {
		return &MutationResult{Event: row.PrintEvent, WasUpdated: false}, nil
	}

	now := s.now()
	var ackedBy pgtype.Int8
	if req.DeviceID > 0 {
		ackedBy = pgtype.Int8{Int64: req.DeviceID, Valid: true}
	}
	evt, err := store.AcknowledgePrintEvent(ctx, database.AcknowledgePrintEventParams{
		ID:                     row.ID,
		AcknowledgedAt:         pgtype.Timestamptz{Time: now, Valid: true},
		AcknowledgedByDeviceID: ackedBy,
		PrinterID:              optText(req.PrinterID),
		PrinterName:            optText(req.PrinterName),
	})
	if err != nil {
		return nil, fmt.Errorf("acknowledge print event: %w", err)
	}

	printedAt := now
	if req.PrintedAt != nil {
		printedAt = *req.PrintedAt
	}
	printedBy := optText(req.PrinterName)
	if !printedBy.Valid {
		printedBy = optText(req.PrinterID)
	}
	order, err := store.MarkOrderPrinted(ctx, database.MarkOrderPrintedParams{
		ID:        row.OrderID,
		PrintedAt: pgtype.Timestamptz{Time: printedAt, Valid: true},
		PrintedBy: printedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("mark order printed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	publish(ctx, s.deps.Notifier, s.deps.logger(), notify.EventOrderPrinted, newOrderEvent(order))

	return &MutationResult{Event: evt, WasUpdated: true}, nil
}

// Fail records a print failure. An acknowledged event is left untouched.
func (s *PrintEventService) Fail(ctx context.Context, req FailRequest) (*MutationResult, error) {
	if utf8.RuneCountInString(req.Message) > MaxErrorLength {
		return nil, ErrErrorTooLong
	}

	tx, err := s.deps.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	row, err := lockEvent(ctx, store, req.EventID, req.BranchID)
	if err != nil {
		return nil, err
	}
	if row.IsAcknowledged {
		return &MutationResult{Event: row.PrintEvent, WasUpdated: false}, nil
	}

	evt, err := store.FailPrintEvent(ctx, database.FailPrintEventParams{
		ID:        row.ID,
		LastError: text(req.Message),
	})
	if err != nil {
		return nil, fmt.Errorf("fail print event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.deps.logger().Warn("print failed",
		zap.Int64("print_event_id", evt.ID),
		zap.Int64("device_id", req.DeviceID),
		zap.Int32("attempts", evt.Attempts),
		zap.String("error", req.Message),
	)
	return &MutationResult{Event: evt, WasUpdated: true}, nil
}

