package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/orderrelay/internal/apperr"
	"github.com/kiwari-pos/orderrelay/internal/database"
	"github.com/kiwari-pos/orderrelay/internal/enum"
	"github.com/kiwari-pos/orderrelay/internal/notify"
	"github.com/kiwari-pos/orderrelay/internal/orderstatus"
	"github.com/kiwari-pos/orderrelay/internal/pos"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxOrderNumberRetries = 5

// OrderStore defines the DB methods needed to create orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	LockDevice(ctx context.Context, id int64) (int64, error)
	CountActiveOrdersByDevice(ctx context.Context, deviceID int64) (int64, error)
	GetDiningTableForUpdate(ctx context.Context, id int64) (database.DiningTable, error)
	CountActiveOrdersByTable(ctx context.Context, tableID int64) (int64, error)
	GetNextOrderSequence(ctx context.Context) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	LockDiningTable(ctx context.Context, id int64) (database.DiningTable, error)
	CreatePrintEvent(ctx context.Context, arg database.CreatePrintEventParams) (database.PrintEvent, error)
	CreatePosOrphan(ctx context.Context, arg database.CreatePosOrphanParams) (database.PosOrphan, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool, tx or savepoint).
type NewOrderStore func(db database.DBTX) OrderStore

// CreateOrderRequest is the validated input for creating an order. Session is
// resolved once by the caller through CurrentSession.
type CreateOrderRequest struct {
	Device     database.Device
	Session    pos.Session
	SessionID  string
	GuestCount int32
	Discount   decimal.Decimal
	Items      []CreateOrderItemRequest
}

type CreateOrderItemRequest struct {
	MenuID     int64
	Quantity   int32
	Price      decimal.Decimal
	SeatNumber *int32
	Note       string
}

type CreateOrderResult struct {
	Order      database.Order
	Items      []database.OrderItem
	PrintEvent database.PrintEvent
}

// OrderService coordinates order creation across the POS and the local store.
type OrderService struct {
	deps     Deps
	newStore NewOrderStore
	pos      pos.Client
	taxRate  decimal.Decimal
}

func NewOrderService(deps Deps, newStore NewOrderStore, posClient pos.Client, taxRate decimal.Decimal) *OrderService {
	return &OrderService{deps: deps, newStore: newStore, pos: posClient, taxRate: taxRate}
}

// FormatOrderNumber renders the human-readable order number.
func FormatOrderNumber(sequence int32, externalOrderID int64) string {
	return fmt.Sprintf("ORD-%06d-%d", sequence, externalOrderID)
}

// CurrentSession resolves the open POS session for one request.
func (s *OrderService) CurrentSession(ctx context.Context) (pos.Session, error) {
	sess, err := s.pos.ActiveSession(ctx)
	if err != nil {
		return pos.Session{}, apperr.Wrap(ErrSessionUnavailable, err)
	}
	return sess, nil
}

type pricedLine struct {
	req      CreateOrderItemRequest
	subtotal decimal.Decimal
	tax      decimal.Decimal
	total    decimal.Decimal
}

// CreateOrder writes the order to the POS first and then records it locally.
// The device and table row locks taken before the duplicate checks are held
// until commit, so concurrent submissions for one device or one table
// serialize.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if err := validateCreateOrder(req); err != nil {
		return nil, err
	}
	if !req.Device.TableID.Valid {
		return nil, ErrDeviceNotAssigned
	}
	if req.Session.ID == 0 {
		return nil, ErrSessionUnavailable
	}

	lines, totals := s.price(req)

	tx, err := s.deps.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if _, err := store.LockDevice(ctx, req.Device.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("lock device: %w", err)
	}
	active, err := store.CountActiveOrdersByDevice(ctx, req.Device.ID)
	if err != nil {
		return nil, fmt.Errorf("count active orders: %w", err)
	}
	if active > 0 {
		return nil, ErrDuplicateOrder
	}
	if err := checkTableFree(ctx, store, req.Device.TableID.Int64); err != nil {
		return nil, err
	}

	externalOrderID, err := s.pos.CreateOrder(ctx, pos.OrderRequest{
		SessionID:  req.Session.ID,
		TableID:    req.Device.TableID.Int64,
		DeviceID:   req.Device.ID,
		GuestCount: req.GuestCount,
	})
	if err != nil {
		return nil, mapPosError(err)
	}

	checkID, err := s.createPosLines(ctx, externalOrderID, totals, lines)
	if err != nil {
		s.orphan(ctx, req.Device, externalOrderID, err)
		return nil, &OrphanError{ExternalOrderID: externalOrderID, Err: err}
	}

	result, err := s.writeLocal(ctx, tx, req, externalOrderID, checkID, totals, lines)
	if err == nil {
		if err = tx.Commit(ctx); err != nil {
			err = fmt.Errorf("commit tx: %w", err)
		}
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		s.orphan(ctx, req.Device, externalOrderID, err)
		return nil, &OrphanError{ExternalOrderID: externalOrderID, Err: err}
	}

	evt := newOrderEvent(result.Order)
	evt.ItemCount = len(result.Items)
	publish(ctx, s.deps.Notifier, s.deps.logger(), notify.EventOrderCreated, evt)

	return result, nil
}

// checkTableFree row-locks the device's table until commit and rejects the
// order when another device already has an active order there. A lock left
// behind with no active order is ignored.
func checkTableFree(ctx context.Context, store OrderStore, tableID int64) error {
	table, err := store.GetDiningTableForUpdate(ctx, tableID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDeviceNotAssigned
		}
		return fmt.Errorf("lock dining table: %w", err)
	}
	if !table.IsLocked {
		return nil
	}
	active, err := store.CountActiveOrdersByTable(ctx, tableID)
	if err != nil {
		return fmt.Errorf("count table orders: %w", err)
	}
	if active > 0 {
		return ErrTableLocked
	}
	return nil
}

func validateCreateOrder(req CreateOrderRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	if req.GuestCount < 1 {
		return ErrInvalidGuestCount
	}
	if req.Discount.IsNegative() {
		return ErrInvalidDiscount
	}
	for i, item := range req.Items {
		if item.MenuID <= 0 {
			return apperr.Wrap(ErrInvalidMenu, fmt.Errorf("item[%d]", i))
		}
		if item.Quantity <= 0 {
			return apperr.Wrap(ErrInvalidQuantity, fmt.Errorf("item[%d]", i))
		}
		if item.Price.IsNegative() {
			return apperr.Wrap(ErrInvalidPrice, fmt.Errorf("item[%d]", i))
		}
	}
	return nil
}

func (s *OrderService) price(req CreateOrderRequest) ([]pricedLine, pos.Totals) {
	lines := make([]pricedLine, len(req.Items))
	subtotal := decimal.Zero
	for i, item := range req.Items {
		sub, tax, total := lineTotals(item.Price, item.Quantity, s.taxRate)
		lines[i] = pricedLine{req: item, subtotal: sub, tax: tax, total: total}
		subtotal = subtotal.Add(sub)
	}

	tax := subtotal.Mul(s.taxRate).Round(2)
	total := subtotal.Add(tax).Sub(req.Discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return lines, pos.Totals{Subtotal: subtotal, Tax: tax, Discount: req.Discount, Total: total}
}

func (s *OrderService) createPosLines(ctx context.Context, externalOrderID int64, totals pos.Totals, lines []pricedLine) (int64, error) {
	checkID, err := s.pos.CreateOrderCheck(ctx, externalOrderID, totals)
	if err != nil {
		return 0, mapPosError(err)
	}

	items := make([]pos.LineItem, len(lines))
	for i, l := range lines {
		items[i] = pos.LineItem{
			MenuID:     l.req.MenuID,
			Quantity:   l.req.Quantity,
			Price:      l.req.Price,
			SeatNumber: l.req.SeatNumber,
			Note:       l.req.Note,
		}
	}
	if _, err := s.pos.CreateOrderedMenuItems(ctx, externalOrderID, checkID, items); err != nil {
		return 0, mapPosError(err)
	}
	return checkID, nil
}

func (s *OrderService) writeLocal(ctx context.Context, tx pgx.Tx, req CreateOrderRequest, externalOrderID, checkID int64, totals pos.Totals, lines []pricedLine) (*CreateOrderResult, error) {
	order, err := s.insertOrder(ctx, tx, database.CreateOrderParams{
		ExternalOrderID:   pgtype.Int8{Int64: externalOrderID, Valid: true},
		ExternalCheckID:   pgtype.Int8{Int64: checkID, Valid: true},
		BranchID:          req.Device.BranchID,
		DeviceID:          req.Device.ID,
		TableID:           req.Device.TableID.Int64,
		SessionID:         text(req.SessionID),
		TerminalSessionID: req.Session.ID,
		GuestCount:        req.GuestCount,
		Subtotal:          decimalToNumeric(totals.Subtotal),
		Tax:               decimalToNumeric(totals.Tax),
		Discount:          decimalToNumeric(totals.Discount),
		Total:             decimalToNumeric(totals.Total),
		Status:            string(orderstatus.Pending),
	})
	if err != nil {
		return nil, err
	}

	store := s.newStore(tx)

	items := make([]database.OrderItem, 0, len(lines))
	for i, l := range lines {
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:    order.ID,
			MenuID:     l.req.MenuID,
			ItemIndex:  int32(i),
			SeatNumber: optInt4(l.req.SeatNumber),
			Quantity:   l.req.Quantity,
			UnitPrice:  decimalToNumeric(l.req.Price),
			Subtotal:   decimalToNumeric(l.subtotal),
			Tax:        decimalToNumeric(l.tax),
			Discount:   decimalToNumeric(decimal.Zero),
			Total:      decimalToNumeric(l.total),
			Note:       text(l.req.Note),
		})
		if err != nil {
			return nil, fmt.Errorf("item[%d]: create order item: %w", i, err)
		}
		items = append(items, item)
	}

	if _, err := store.LockDiningTable(ctx, req.Device.TableID.Int64); err != nil {
		return nil, fmt.Errorf("lock dining table: %w", err)
	}

	meta, err := json.Marshal(map[string]interface{}{
		"order_number": order.OrderNumber,
		"guest_count":  order.GuestCount,
		"item_count":   len(items),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal print meta: %w", err)
	}
	printEvent, err := store.CreatePrintEvent(ctx, database.CreatePrintEventParams{
		OrderID:   order.ID,
		EventType: enum.PrintEventInitial,
		Meta:      meta,
	})
	if err != nil {
		return nil, fmt.Errorf("create print event: %w", err)
	}

	return &CreateOrderResult{Order: order, Items: items, PrintEvent: printEvent}, nil
}

// insertOrder allocates the order number inside a savepoint so a collision
// can be retried without discarding the device lock or the POS result.
func (s *OrderService) insertOrder(ctx context.Context, tx pgx.Tx, params database.CreateOrderParams) (database.Order, error) {
	for attempt := 1; attempt <= maxOrderNumberRetries; attempt++ {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return database.Order{}, fmt.Errorf("savepoint: %w", err)
		}
		store := s.newStore(sp)

		seq, err := store.GetNextOrderSequence(ctx)
		if err != nil {
			_ = sp.Rollback(ctx)
			return database.Order{}, fmt.Errorf("next order sequence: %w", err)
		}
		params.OrderSequence = seq
		params.OrderNumber = FormatOrderNumber(seq, params.ExternalOrderID.Int64)

		order, err := store.CreateOrder(ctx, params)
		if err == nil {
			if err := sp.Commit(ctx); err != nil {
				return database.Order{}, fmt.Errorf("release savepoint: %w", err)
			}
			return order, nil
		}
		_ = sp.Rollback(ctx)

		if !isOrderNumberConflict(err) {
			return database.Order{}, fmt.Errorf("create order: %w", err)
		}
		s.deps.logger().Debug("order number collision",
			zap.String("order_number", params.OrderNumber),
			zap.Int("attempt", attempt),
		)
	}
	return database.Order{}, apperr.Wrap(ErrOrderNumber, fmt.Errorf("gave up after %d attempts", maxOrderNumberRetries))
}

func isOrderNumberConflict(err error) bool {
	return isUniqueViolation(err, "orders_order_sequence_key", "orders_order_number_key")
}

func (s *OrderService) orphan(ctx context.Context, dev database.Device, externalOrderID int64, cause error) {
	recordOrphan(ctx, s.deps, func(db database.DBTX) orphanRecorder { return s.newStore(db) }, database.CreatePosOrphanParams{
		ExternalOrderID: externalOrderID,
		DeviceID:        dev.ID,
		BranchID:        dev.BranchID,
		Reason:          cause.Error(),
	})
}

func mapPosError(err error) error {
	switch {
	case errors.Is(err, pos.ErrUnavailable):
		return apperr.Wrap(ErrPosUnavailable, err)
	case errors.Is(err, pos.ErrRejected):
		return apperr.Wrap(ErrPosRejected, err)
	case errors.Is(err, pos.ErrNoSession):
		return apperr.Wrap(ErrSessionUnavailable, err)
	}
	return fmt.Errorf("pos: %w", err)
}
