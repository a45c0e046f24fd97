package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/orderrelay/internal/database"
	"github.com/kiwari-pos/orderrelay/internal/enum"
	"github.com/kiwari-pos/orderrelay/internal/notify"
	"github.com/kiwari-pos/orderrelay/internal/orderstatus"
	"github.com/kiwari-pos/orderrelay/internal/pos"
	"github.com/shopspring/decimal"
)

var errBoom = errors.New("boom")

// --- in-memory database ---

// fakeDB is a small in-memory stand-in for the local store. Writes apply
// immediately and are undone on rollback; row locks block like FOR UPDATE
// and are released when the owning transaction ends.
type fakeDB struct {
	mu sync.Mutex

	lockMu   sync.Mutex
	rowLocks map[string]*sync.Mutex

	nextID  int64
	clock   time.Time
	devices map[int64]database.Device
	tables  map[int64]database.DiningTable
	orders  map[int64]database.Order
	items   map[int64]database.OrderItem
	events  map[int64]database.PrintEvent
	orphans []database.PosOrphan

	// fail makes the named store method return the error once.
	fail map[string]error
	// staleSequence simulates a concurrent insert: GetNextOrderSequence
	// reports this many fewer than the true next value.
	staleSequence func(call int) int32
	seqCalls      int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		rowLocks: map[string]*sync.Mutex{},
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		devices:  map[int64]database.Device{},
		tables:   map[int64]database.DiningTable{},
		orders:   map[int64]database.Order{},
		items:    map[int64]database.OrderItem{},
		events:   map[int64]database.PrintEvent{},
		fail:     map[string]error{},
	}
}

func (db *fakeDB) id() int64 {
	db.nextID++
	return db.nextID
}

func (db *fakeDB) tick() time.Time {
	db.clock = db.clock.Add(time.Second)
	return db.clock
}

// injected must be called with mu held.
func (db *fakeDB) injected(method string) error {
	if err, ok := db.fail[method]; ok {
		delete(db.fail, method)
		return err
	}
	return nil
}

func (db *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := db.withLock(func() error { return db.injected("Begin") }); err != nil {
		return nil, err
	}
	return &fakeTx{db: db, held: map[string]bool{}}, nil
}

func (db *fakeDB) withLock(fn func() error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn()
}

func (db *fakeDB) rowLock(key string) *sync.Mutex {
	db.lockMu.Lock()
	defer db.lockMu.Unlock()
	m, ok := db.rowLocks[key]
	if !ok {
		m = &sync.Mutex{}
		db.rowLocks[key] = m
	}
	return m
}

func (db *fakeDB) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (db *fakeDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	panic("not implemented")
}
func (db *fakeDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	panic("not implemented")
}

func (db *fakeDB) deps(n notify.Notifier) Deps {
	return Deps{Pool: db, DB: db, Notifier: n}
}

func (db *fakeDB) storeFor(d database.DBTX) *fakeStore {
	if tx, ok := d.(*fakeTx); ok {
		return &fakeStore{db: db, tx: tx}
	}
	return &fakeStore{db: db}
}

// seeding helpers

func (db *fakeDB) addBranchDevice(branchID int64, kind string, withTable bool) database.Device {
	db.mu.Lock()
	defer db.mu.Unlock()
	dev := database.Device{
		ID:       db.id(),
		UUID:     uuid.New(),
		BranchID: branchID,
		Kind:     kind,
		Name:     kind,
		Status:   "online",
	}
	if withTable {
		table := database.DiningTable{ID: db.id(), BranchID: branchID, Name: "T1"}
		db.tables[table.ID] = table
		dev.TableID = pgtype.Int8{Int64: table.ID, Valid: true}
	}
	db.devices[dev.ID] = dev
	return dev
}

// addTabletAtTable adds a tablet assigned to an existing table.
func (db *fakeDB) addTabletAtTable(branchID, tableID int64) database.Device {
	dev := db.addBranchDevice(branchID, enum.DeviceKindTablet, false)
	db.mu.Lock()
	defer db.mu.Unlock()
	dev.TableID = pgtype.Int8{Int64: tableID, Valid: true}
	db.devices[dev.ID] = dev
	return dev
}

func (db *fakeDB) orderList() []database.Order {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []database.Order
	for _, o := range db.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (db *fakeDB) eventList() []database.PrintEvent {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []database.PrintEvent
	for _, e := range db.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (db *fakeDB) itemsFor(orderID int64) []database.OrderItem {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []database.OrderItem
	for _, it := range db.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemIndex < out[j].ItemIndex })
	return out
}

// --- transactions ---

type fakeTx struct {
	db     *fakeDB
	parent *fakeTx
	held   map[string]bool
	undo   []func()
	done   bool
}

func (t *fakeTx) root() *fakeTx {
	if t.parent != nil {
		return t.parent.root()
	}
	return t
}

func (t *fakeTx) lock(key string) {
	r := t.root()
	if r.held[key] {
		return
	}
	t.db.rowLock(key).Lock()
	r.held[key] = true
}

func (t *fakeTx) release() {
	for key := range t.held {
		t.db.rowLock(key).Unlock()
	}
	t.held = map[string]bool{}
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return &fakeTx{db: t.db, parent: t}, nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	if t.parent == nil {
		if err := t.db.withLock(func() error { return t.db.injected("Commit") }); err != nil {
			_ = t.Rollback(ctx)
			return err
		}
	}
	t.done = true
	if t.parent != nil {
		t.parent.undo = append(t.parent.undo, t.undo...)
		return nil
	}
	t.release()
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.db.mu.Unlock()
	if t.parent == nil {
		t.release()
	}
	return nil
}

func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (t *fakeTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (t *fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (t *fakeTx) Conn() *pgx.Conn { panic("not implemented") }

// --- store ---

type fakeStore struct {
	db *fakeDB
	tx *fakeTx
}

// onUndo must be called with db.mu held.
func (s *fakeStore) onUndo(fn func()) {
	if s.tx != nil {
		s.tx.undo = append(s.tx.undo, fn)
	}
}

func (s *fakeStore) lock(key string) {
	if s.tx != nil {
		s.tx.lock(key)
	}
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

func (s *fakeStore) LockDevice(ctx context.Context, id int64) (int64, error) {
	s.lock("device:" + itoa(id))
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.injected("LockDevice"); err != nil {
		return 0, err
	}
	if _, ok := s.db.devices[id]; !ok {
		return 0, pgx.ErrNoRows
	}
	return id, nil
}

func (s *fakeStore) CountActiveOrdersByDevice(ctx context.Context, deviceID int64) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, o := range s.db.orders {
		if o.DeviceID == deviceID && orderstatus.Status(o.Status).IsActive() {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CountActiveOrdersByTable(ctx context.Context, tableID int64) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, o := range s.db.orders {
		if o.TableID == tableID && orderstatus.Status(o.Status).IsActive() {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) GetNextOrderSequence(ctx context.Context) (int32, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var max int32
	for _, o := range s.db.orders {
		if o.OrderSequence > max {
			max = o.OrderSequence
		}
	}
	s.db.seqCalls++
	next := max + 1
	if s.db.staleSequence != nil {
		next -= s.db.staleSequence(s.db.seqCalls)
	}
	return next, nil
}

func (s *fakeStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.injected("CreateOrder"); err != nil {
		return database.Order{}, err
	}
	for _, o := range s.db.orders {
		if o.OrderSequence == arg.OrderSequence {
			return database.Order{}, uniqueViolation("orders_order_sequence_key")
		}
		if o.OrderNumber == arg.OrderNumber {
			return database.Order{}, uniqueViolation("orders_order_number_key")
		}
		if o.ExternalOrderID.Valid && o.ExternalOrderID == arg.ExternalOrderID {
			return database.Order{}, uniqueViolation("orders_external_order_id_key")
		}
	}
	now := s.db.tick()
	o := database.Order{
		ID:                s.db.id(),
		ExternalOrderID:   arg.ExternalOrderID,
		ExternalCheckID:   arg.ExternalCheckID,
		OrderSequence:     arg.OrderSequence,
		OrderNumber:       arg.OrderNumber,
		BranchID:          arg.BranchID,
		DeviceID:          arg.DeviceID,
		TableID:           arg.TableID,
		SessionID:         arg.SessionID,
		TerminalSessionID: arg.TerminalSessionID,
		GuestCount:        arg.GuestCount,
		Subtotal:          arg.Subtotal,
		Tax:               arg.Tax,
		Discount:          arg.Discount,
		Total:             arg.Total,
		Status:            arg.Status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.db.orders[o.ID] = o
	s.onUndo(func() { delete(s.db.orders, o.ID) })
	return o, nil
}

func (s *fakeStore) getOrder(id int64) (database.Order, error) {
	o, ok := s.db.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (s *fakeStore) GetOrder(ctx context.Context, id int64) (database.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.getOrder(id)
}

func (s *fakeStore) GetOrderForUpdate(ctx context.Context, id int64) (database.Order, error) {
	s.lock("order:" + itoa(id))
	return s.GetOrder(ctx, id)
}

func (s *fakeStore) GetOrderByExternalIDForUpdate(ctx context.Context, externalOrderID int64) (database.Order, error) {
	s.db.mu.Lock()
	var found *database.Order
	for _, o := range s.db.orders {
		if o.ExternalOrderID.Valid && o.ExternalOrderID.Int64 == externalOrderID {
			o := o
			found = &o
		}
	}
	s.db.mu.Unlock()
	if found == nil {
		return database.Order{}, pgx.ErrNoRows
	}
	return s.GetOrderForUpdate(ctx, found.ID)
}

// update replaces an order row and registers the undo. mu must be held.
func (s *fakeStore) update(o database.Order) database.Order {
	prev := s.db.orders[o.ID]
	o.UpdatedAt = s.db.tick()
	s.db.orders[o.ID] = o
	s.onUndo(func() { s.db.orders[o.ID] = prev })
	return o
}

func (s *fakeStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, err := s.getOrder(arg.ID)
	if err != nil {
		return o, err
	}
	o.Status = arg.Status
	return s.update(o), nil
}

func addNumeric(a, b pgtype.Numeric) pgtype.Numeric {
	return decimalToNumeric(numericToDecimal(a).Add(numericToDecimal(b)))
}

func (s *fakeStore) AddOrderTotals(ctx context.Context, arg database.AddOrderTotalsParams) (database.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.injected("AddOrderTotals"); err != nil {
		return database.Order{}, err
	}
	o, err := s.getOrder(arg.ID)
	if err != nil {
		return o, err
	}
	o.Subtotal = addNumeric(o.Subtotal, arg.Subtotal)
	o.Tax = addNumeric(o.Tax, arg.Tax)
	o.Discount = addNumeric(o.Discount, arg.Discount)
	o.Total = addNumeric(o.Total, arg.Total)
	return s.update(o), nil
}

func (s *fakeStore) MarkOrderPrinted(ctx context.Context, arg database.MarkOrderPrintedParams) (database.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, err := s.getOrder(arg.ID)
	if err != nil {
		return o, err
	}
	o.IsPrinted = true
	if !o.PrintedAt.Valid {
		o.PrintedAt = arg.PrintedAt
	}
	if !o.PrintedBy.Valid {
		o.PrintedBy = arg.PrintedBy
	}
	return s.update(o), nil
}

func (s *fakeStore) CreatePosOrphan(ctx context.Context, arg database.CreatePosOrphanParams) (database.PosOrphan, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o := database.PosOrphan{
		ID:              s.db.id(),
		ExternalOrderID: arg.ExternalOrderID,
		DeviceID:        arg.DeviceID,
		BranchID:        arg.BranchID,
		Reason:          arg.Reason,
		CreatedAt:       s.db.tick(),
	}
	n := len(s.db.orphans)
	s.db.orphans = append(s.db.orphans, o)
	s.onUndo(func() { s.db.orphans = s.db.orphans[:n] })
	return o, nil
}

func (s *fakeStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.injected("CreateOrderItem"); err != nil {
		return database.OrderItem{}, err
	}
	now := s.db.tick()
	it := database.OrderItem{
		ID:            s.db.id(),
		OrderID:       arg.OrderID,
		MenuID:        arg.MenuID,
		OrderedMenuID: arg.OrderedMenuID,
		ItemIndex:     arg.ItemIndex,
		SeatNumber:    arg.SeatNumber,
		Quantity:      arg.Quantity,
		UnitPrice:     arg.UnitPrice,
		Subtotal:      arg.Subtotal,
		Tax:           arg.Tax,
		Discount:      arg.Discount,
		Total:         arg.Total,
		IsRefill:      arg.IsRefill,
		Note:          arg.Note,
		Status:        "PENDING",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.db.items[it.ID] = it
	s.onUndo(func() { delete(s.db.items, it.ID) })
	return it, nil
}

func (s *fakeStore) GetMaxOrderItemIndex(ctx context.Context, orderID int64) (int32, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	max := int32(-1)
	for _, it := range s.db.items {
		if it.OrderID == orderID && it.ItemIndex > max {
			max = it.ItemIndex
		}
	}
	return max, nil
}

func (s *fakeStore) UpdateOrderItemsStatus(ctx context.Context, arg database.UpdateOrderItemsStatusParams) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for id, it := range s.db.items {
		if it.OrderID != arg.OrderID || it.Status == "CANCELLED" || it.Status == "VOIDED" {
			continue
		}
		prev := it
		it.Status = arg.Status
		s.db.items[id] = it
		s.onUndo(func() { s.db.items[prev.ID] = prev })
	}
	return nil
}

func (s *fakeStore) setTableLock(id int64, locked bool) (database.DiningTable, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if locked {
		if err := s.db.injected("LockDiningTable"); err != nil {
			return database.DiningTable{}, err
		}
	}
	t, ok := s.db.tables[id]
	if !ok {
		return t, pgx.ErrNoRows
	}
	prev := t
	t.IsLocked = locked
	s.db.tables[id] = t
	s.onUndo(func() { s.db.tables[id] = prev })
	return t, nil
}

func (s *fakeStore) GetDiningTableForUpdate(ctx context.Context, id int64) (database.DiningTable, error) {
	s.lock("table:" + itoa(id))
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.tables[id]
	if !ok {
		return t, pgx.ErrNoRows
	}
	return t, nil
}

func (s *fakeStore) LockDiningTable(ctx context.Context, id int64) (database.DiningTable, error) {
	return s.setTableLock(id, true)
}

func (s *fakeStore) UnlockDiningTable(ctx context.Context, id int64) (database.DiningTable, error) {
	return s.setTableLock(id, false)
}

func (s *fakeStore) CreatePrintEvent(ctx context.Context, arg database.CreatePrintEventParams) (database.PrintEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.injected("CreatePrintEvent"); err != nil {
		return database.PrintEvent{}, err
	}
	now := s.db.tick()
	e := database.PrintEvent{
		ID:        s.db.id(),
		OrderID:   arg.OrderID,
		EventType: arg.EventType,
		Meta:      arg.Meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.db.events[e.ID] = e
	s.onUndo(func() { delete(s.db.events, e.ID) })
	return e, nil
}

func (s *fakeStore) ListPendingPrintEvents(ctx context.Context, arg database.ListPendingPrintEventsParams) ([]database.PrintEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []database.PrintEvent
	for _, e := range s.db.events {
		if e.IsAcknowledged || s.db.orders[e.OrderID].BranchID != arg.BranchID {
			continue
		}
		if arg.Since.Valid && !e.CreatedAt.After(arg.Since.Time) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > int(arg.Limit) {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (s *fakeStore) GetPrintEventForUpdate(ctx context.Context, id int64) (database.GetPrintEventForUpdateRow, error) {
	s.lock("event:" + itoa(id))
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.db.events[id]
	if !ok {
		return database.GetPrintEventForUpdateRow{}, pgx.ErrNoRows
	}
	return database.GetPrintEventForUpdateRow{PrintEvent: e, BranchID: s.db.orders[e.OrderID].BranchID}, nil
}

func (s *fakeStore) AcknowledgePrintEvent(ctx context.Context, arg database.AcknowledgePrintEventParams) (database.PrintEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.db.events[arg.ID]
	if !ok || e.IsAcknowledged {
		return database.PrintEvent{}, pgx.ErrNoRows
	}
	prev := e
	e.IsAcknowledged = true
	e.AcknowledgedAt = arg.AcknowledgedAt
	e.AcknowledgedByDeviceID = arg.AcknowledgedByDeviceID
	e.PrinterID = arg.PrinterID
	e.PrinterName = arg.PrinterName
	e.Attempts++
	s.db.events[e.ID] = e
	s.onUndo(func() { s.db.events[e.ID] = prev })
	return e, nil
}

func (s *fakeStore) FailPrintEvent(ctx context.Context, arg database.FailPrintEventParams) (database.PrintEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.db.events[arg.ID]
	if !ok || e.IsAcknowledged {
		return database.PrintEvent{}, pgx.ErrNoRows
	}
	prev := e
	e.Attempts++
	e.LastError = arg.LastError
	s.db.events[e.ID] = e
	s.onUndo(func() { s.db.events[e.ID] = prev })
	return e, nil
}

func (s *fakeStore) CountPrintEventsByOrderAndType(ctx context.Context, arg database.CountPrintEventsByOrderAndTypeParams) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, e := range s.db.events {
		if e.OrderID == arg.OrderID && e.EventType == arg.EventType {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) DeleteAcknowledgedPrintEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, e := range s.db.events {
		if e.IsAcknowledged && e.AcknowledgedAt.Time.Before(before) {
			delete(s.db.events, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) GetDevice(ctx context.Context, id int64) (database.Device, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	d, ok := s.db.devices[id]
	if !ok {
		return d, pgx.ErrNoRows
	}
	return d, nil
}

func (s *fakeStore) GetDeviceByUUID(ctx context.Context, deviceUUID uuid.UUID) (database.Device, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, d := range s.db.devices {
		if d.UUID == deviceUUID {
			return d, nil
		}
	}
	return database.Device{}, pgx.ErrNoRows
}

func (s *fakeStore) ipTaken(ip pgtype.Text, except int64) bool {
	if !ip.Valid {
		return false
	}
	for _, d := range s.db.devices {
		if d.ID != except && d.IPAddress == ip {
			return true
		}
	}
	return false
}

func (s *fakeStore) CreateDevice(ctx context.Context, arg database.CreateDeviceParams) (database.Device, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, d := range s.db.devices {
		if d.UUID == arg.UUID {
			return database.Device{}, uniqueViolation("devices_uuid_key")
		}
	}
	if s.ipTaken(arg.IPAddress, 0) {
		return database.Device{}, uniqueViolation("devices_ip_address_key")
	}
	d := database.Device{
		ID:         s.db.id(),
		UUID:       arg.UUID,
		BranchID:   arg.BranchID,
		TableID:    arg.TableID,
		Kind:       arg.Kind,
		Name:       arg.Name,
		SecretHash: arg.SecretHash,
		IPAddress:  arg.IPAddress,
		Status:     "online",
		CreatedAt:  s.db.tick(),
	}
	s.db.devices[d.ID] = d
	s.onUndo(func() { delete(s.db.devices, d.ID) })
	return d, nil
}

func (s *fakeStore) UpdateDevice(ctx context.Context, arg database.UpdateDeviceParams) (database.Device, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	d, ok := s.db.devices[arg.ID]
	if !ok {
		return d, pgx.ErrNoRows
	}
	if s.ipTaken(arg.IPAddress, arg.ID) {
		return database.Device{}, uniqueViolation("devices_ip_address_key")
	}
	prev := d
	d.BranchID = arg.BranchID
	d.TableID = arg.TableID
	d.Name = arg.Name
	d.IPAddress = arg.IPAddress
	s.db.devices[d.ID] = d
	s.onUndo(func() { s.db.devices[d.ID] = prev })
	return d, nil
}

func (s *fakeStore) UpdateDeviceHeartbeat(ctx context.Context, arg database.UpdateDeviceHeartbeatParams) (database.Device, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	d, ok := s.db.devices[arg.ID]
	if !ok {
		return d, pgx.ErrNoRows
	}
	d.Status = arg.Status
	if arg.AppVersion.Valid {
		d.AppVersion = arg.AppVersion
	}
	if arg.PrinterID.Valid {
		d.PrinterID = arg.PrinterID
	}
	if arg.PrinterName.Valid {
		d.PrinterName = arg.PrinterName
	}
	d.LastSeenAt = pgtype.Timestamptz{Time: s.db.tick(), Valid: true}
	s.db.devices[d.ID] = d
	return d, nil
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// --- POS ---

type fakePos struct {
	mu sync.Mutex

	session    pos.Session
	sessionErr error
	nextID     int64
	delay      time.Duration

	orderErr error
	checkErr error
	linesErr error

	menus map[int64]pos.MenuItem

	orders     []pos.OrderRequest
	orderIDs   []int64
	checks     []pos.Totals
	lineCalls  [][]pos.LineItem
	menuLookup int
}

func newFakePos() *fakePos {
	return &fakePos{
		session: pos.Session{ID: 77, OpenedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
		nextID:  5000,
		menus:   map[int64]pos.MenuItem{},
	}
}

func (p *fakePos) ActiveSession(ctx context.Context) (pos.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessionErr != nil {
		return pos.Session{}, p.sessionErr
	}
	return p.session, nil
}

func (p *fakePos) CreateOrder(ctx context.Context, req pos.OrderRequest) (int64, error) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.orderErr != nil {
		return 0, p.orderErr
	}
	p.orders = append(p.orders, req)
	p.nextID++
	p.orderIDs = append(p.orderIDs, p.nextID)
	return p.nextID, nil
}

func (p *fakePos) CreateOrderCheck(ctx context.Context, orderID int64, totals pos.Totals) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.checkErr != nil {
		return 0, p.checkErr
	}
	p.checks = append(p.checks, totals)
	return orderID + 100000, nil
}

func (p *fakePos) CreateOrderedMenuItems(ctx context.Context, orderID, checkID int64, items []pos.LineItem) ([]int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.linesErr != nil {
		return nil, p.linesErr
	}
	p.lineCalls = append(p.lineCalls, items)
	ids := make([]int64, len(items))
	for i := range items {
		p.nextID++
		ids[i] = p.nextID
	}
	return ids, nil
}

func (p *fakePos) MenuByID(ctx context.Context, id int64) (pos.MenuItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.menuLookup++
	m, ok := p.menus[id]
	if !ok {
		return pos.MenuItem{}, pos.ErrMenuNotFound
	}
	return m, nil
}

func (p *fakePos) MenuByName(ctx context.Context, name string) (pos.MenuItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.menuLookup++
	for _, m := range p.menus {
		if equalFold(m.Name, name) {
			return m, nil
		}
	}
	return pos.MenuItem{}, pos.ErrMenuNotFound
}

func equalFold(a, b string) bool {
	return normalizeCategory(a) == normalizeCategory(b)
}

// --- notifier ---

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Publish(_ context.Context, _ int64, evt notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.Type
	}
	return out
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
