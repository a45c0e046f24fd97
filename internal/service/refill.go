package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/orderrelay/internal/apperr"
	"github.com/kiwari-pos/orderrelay/internal/database"
	"github.com/kiwari-pos/orderrelay/internal/enum"
	"github.com/kiwari-pos/orderrelay/internal/notify"
	"github.com/kiwari-pos/orderrelay/internal/orderstatus"
	"github.com/kiwari-pos/orderrelay/internal/pos"
	"github.com/shopspring/decimal"
)

type RefillStore interface {
	GetOrderByExternalIDForUpdate(ctx context.Context, externalOrderID int64) (database.Order, error)
	GetMaxOrderItemIndex(ctx context.Context, orderID int64) (int32, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	AddOrderTotals(ctx context.Context, arg database.AddOrderTotalsParams) (database.Order, error)
	CountPrintEventsByOrderAndType(ctx context.Context, arg database.CountPrintEventsByOrderAndTypeParams) (int64, error)
	CreatePrintEvent(ctx context.Context, arg database.CreatePrintEventParams) (database.PrintEvent, error)
	CreatePosOrphan(ctx context.Context, arg database.CreatePosOrphanParams) (database.PosOrphan, error)
}

type NewRefillStore func(db database.DBTX) RefillStore

type RefillRequest struct {
	ExternalOrderID int64
	BranchID        int64
	DeviceID        int64
	Session         pos.Session
	Items           []RefillItemRequest
}

// RefillItemRequest names a menu item by id or by name. Supplying both MenuID
// and Price skips the catalog.
type RefillItemRequest struct {
	MenuID     int64
	Name       string
	Price      *decimal.Decimal
	Quantity   int32
	SeatNumber *int32
	Note       string
}

type RefillResult struct {
	Order       database.Order
	Items       []database.OrderItem
	PrintEvent  database.PrintEvent
	RefillCount int64
}

// RefillMeta is stored on REFILL print events.
type RefillMeta struct {
	RefillCount int64     `json:"refill_count"`
	ItemCount   int       `json:"item_count"`
	RefilledAt  time.Time `json:"refilled_at"`
}

type RefillService struct {
	deps       Deps
	newStore   NewRefillStore
	pos        pos.Client
	taxRate    decimal.Decimal
	categories map[string]bool
	now        func() time.Time
}

func NewRefillService(deps Deps, newStore NewRefillStore, posClient pos.Client, taxRate decimal.Decimal, categories []string) *RefillService {
	allowed := make(map[string]bool, len(categories))
	for _, c := range categories {
		allowed[normalizeCategory(c)] = true
	}
	return &RefillService{
		deps:       deps,
		newStore:   newStore,
		pos:        posClient,
		taxRate:    taxRate,
		categories: allowed,
		now:        time.Now,
	}
}

func normalizeCategory(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

type resolvedItem struct {
	req  RefillItemRequest
	menu pos.MenuItem
}

// Refill appends items to an active order in both stores. Validation is all
// or nothing: nothing is written anywhere unless every item resolves to an
// allowed category.
func (s *RefillService) Refill(ctx context.Context, req RefillRequest) (*RefillResult, error) {
	if err := validateRefill(req); err != nil {
		return nil, err
	}

	tx, err := s.deps.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderByExternalIDForUpdate(ctx, req.ExternalOrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.BranchID != req.BranchID {
		return nil, ErrBranchMismatch
	}
	if order.TerminalSessionID != req.Session.ID {
		return nil, ErrSessionMismatch
	}
	status, err := orderstatus.Parse(order.Status)
	if err != nil || !status.IsActive() {
		return nil, apperr.Wrap(ErrOrderNotActive, fmt.Errorf("status %s", order.Status))
	}
	if status == orderstatus.Pending {
		return nil, ErrOrderNotConfirmed
	}
	if !order.ExternalCheckID.Valid {
		return nil, fmt.Errorf("order %d has no pos check", order.ID)
	}

	resolved, err := s.resolve(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	lines := make([]pos.LineItem, len(resolved))
	for i, r := range resolved {
		lines[i] = pos.LineItem{
			MenuID:     r.menu.ID,
			Quantity:   r.req.Quantity,
			Price:      r.menu.Price,
			SeatNumber: r.req.SeatNumber,
			Note:       r.req.Note,
		}
	}
	orderedIDs, err := s.pos.CreateOrderedMenuItems(ctx, order.ExternalOrderID.Int64, order.ExternalCheckID.Int64, lines)
	if err != nil {
		return nil, mapPosError(err)
	}
	if len(orderedIDs) != len(resolved) {
		err = fmt.Errorf("pos returned %d line ids for %d items", len(orderedIDs), len(resolved))
		return nil, s.fail(ctx, tx, req, order, err)
	}

	result, err := s.writeLocal(ctx, store, order, resolved, orderedIDs)
	if err == nil {
		if err = tx.Commit(ctx); err != nil {
			err = fmt.Errorf("commit tx: %w", err)
		}
	}
	if err != nil {
		return nil, s.fail(ctx, tx, req, order, err)
	}

	evt := newOrderEvent(result.Order)
	evt.ItemCount = len(result.Items)
	publish(ctx, s.deps.Notifier, s.deps.logger(), notify.EventOrderRefilled, evt)

	return result, nil
}

func validateRefill(req RefillRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for i, item := range req.Items {
		if item.MenuID <= 0 && strings.TrimSpace(item.Name) == "" {
			return apperr.Wrap(ErrInvalidMenu, fmt.Errorf("item[%d]", i))
		}
		if item.Quantity <= 0 {
			return apperr.Wrap(ErrInvalidQuantity, fmt.Errorf("item[%d]", i))
		}
		if item.Price != nil && item.Price.IsNegative() {
			return apperr.Wrap(ErrInvalidPrice, fmt.Errorf("item[%d]", i))
		}
	}
	return nil
}

// resolve looks every item up and collects all problems before failing.
func (s *RefillService) resolve(ctx context.Context, items []RefillItemRequest) ([]resolvedItem, error) {
	resolved := make([]resolvedItem, 0, len(items))
	verr := &ItemValidationError{}

	for i, item := range items {
		if item.MenuID > 0 && item.Price != nil {
			resolved = append(resolved, resolvedItem{
				req:  item,
				menu: pos.MenuItem{ID: item.MenuID, Name: item.Name, Price: *item.Price},
			})
			continue
		}

		var menu pos.MenuItem
		var err error
		if item.MenuID > 0 {
			menu, err = s.pos.MenuByID(ctx, item.MenuID)
		} else {
			menu, err = s.pos.MenuByName(ctx, strings.TrimSpace(item.Name))
		}

		label := item.Name
		if label == "" {
			label = fmt.Sprintf("menu %d", item.MenuID)
		}
		switch {
		case errors.Is(err, pos.ErrMenuNotFound):
			verr.notFound = true
			verr.Problems = append(verr.Problems, ItemProblem{Index: i, Name: label, Reason: "not found"})
			continue
		case err != nil:
			return nil, mapPosError(err)
		}

		if !s.categories[normalizeCategory(menu.Category)] {
			verr.Problems = append(verr.Problems, ItemProblem{
				Index:  i,
				Name:   menu.Name,
				Reason: fmt.Sprintf("category %q is not refillable", menu.Category),
			})
			continue
		}
		resolved = append(resolved, resolvedItem{req: item, menu: menu})
	}

	if len(verr.Problems) > 0 {
		return nil, verr
	}
	return resolved, nil
}

func (s *RefillService) writeLocal(ctx context.Context, store RefillStore, order database.Order, resolved []resolvedItem, orderedIDs []int64) (*RefillResult, error) {
	maxIndex, err := store.GetMaxOrderItemIndex(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("max item index: %w", err)
	}

	subtotal := decimal.Zero
	items := make([]database.OrderItem, 0, len(resolved))
	for i, r := range resolved {
		sub, tax, total := lineTotals(r.menu.Price, r.req.Quantity, s.taxRate)
		subtotal = subtotal.Add(sub)

		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:       order.ID,
			MenuID:        r.menu.ID,
			OrderedMenuID: pgtype.Int8{Int64: orderedIDs[i], Valid: true},
			ItemIndex:     maxIndex + 1 + int32(i),
			SeatNumber:    optInt4(r.req.SeatNumber),
			Quantity:      r.req.Quantity,
			UnitPrice:     decimalToNumeric(r.menu.Price),
			Subtotal:      decimalToNumeric(sub),
			Tax:           decimalToNumeric(tax),
			Discount:      decimalToNumeric(decimal.Zero),
			Total:         decimalToNumeric(total),
			IsRefill:      true,
			Note:          text(r.req.Note),
		})
		if err != nil {
			return nil, fmt.Errorf("item[%d]: create order item: %w", i, err)
		}
		items = append(items, item)
	}

	tax := subtotal.Mul(s.taxRate).Round(2)
	updated, err := store.AddOrderTotals(ctx, database.AddOrderTotalsParams{
		ID:       order.ID,
		Subtotal: decimalToNumeric(subtotal),
		Tax:      decimalToNumeric(tax),
		Discount: decimalToNumeric(decimal.Zero),
		Total:    decimalToNumeric(subtotal.Add(tax)),
	})
	if err != nil {
		return nil, fmt.Errorf("add order totals: %w", err)
	}

	previous, err := store.CountPrintEventsByOrderAndType(ctx, database.CountPrintEventsByOrderAndTypeParams{
		OrderID:   order.ID,
		EventType: enum.PrintEventRefill,
	})
	if err != nil {
		return nil, fmt.Errorf("count refills: %w", err)
	}

	meta := RefillMeta{RefillCount: previous + 1, ItemCount: len(items), RefilledAt: s.now().UTC()}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal refill meta: %w", err)
	}
	printEvent, err := store.CreatePrintEvent(ctx, database.CreatePrintEventParams{
		OrderID:   order.ID,
		EventType: enum.PrintEventRefill,
		Meta:      raw,
	})
	if err != nil {
		return nil, fmt.Errorf("create print event: %w", err)
	}

	return &RefillResult{Order: updated, Items: items, PrintEvent: printEvent, RefillCount: meta.RefillCount}, nil
}

// fail handles a local failure after the POS accepted the lines.
func (s *RefillService) fail(ctx context.Context, tx pgx.Tx, req RefillRequest, order database.Order, cause error) error {
	_ = tx.Rollback(ctx)
	recordOrphan(ctx, s.deps, func(db database.DBTX) orphanRecorder { return s.newStore(db) }, database.CreatePosOrphanParams{
		ExternalOrderID: order.ExternalOrderID.Int64,
		DeviceID:        req.DeviceID,
		BranchID:        order.BranchID,
		Reason:          "refill: " + cause.Error(),
	})
	return &OrphanError{ExternalOrderID: order.ExternalOrderID.Int64, Err: cause}
}
