package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kiwari-pos/orderrelay/internal/database"
	"github.com/kiwari-pos/orderrelay/internal/enum"
	"github.com/kiwari-pos/orderrelay/internal/notify"
	"github.com/kiwari-pos/orderrelay/internal/orderstatus"
	"github.com/kiwari-pos/orderrelay/internal/pos"
	"github.com/shopspring/decimal"
)

type refillFixture struct {
	db    *fakeDB
	pos   *fakePos
	n     *recordingNotifier
	svc   *RefillService
	dev   database.Device
	order database.Order
}

func newRefillFixture(t *testing.T) *refillFixture {
	t.Helper()
	db := newFakeDB()
	p := newFakePos()
	p.menus[21] = pos.MenuItem{ID: 21, Name: "Beef Brisket", Category: "Meat", Price: dec("120.00")}
	p.menus[22] = pos.MenuItem{ID: 22, Name: "Kimchi", Category: "Side Dish", Price: dec("15.00")}
	p.menus[30] = pos.MenuItem{ID: 30, Name: "Soju", Category: "Drinks", Price: dec("50.00")}

	n := &recordingNotifier{}
	dev := db.addBranchDevice(1, enum.DeviceKindTablet, true)
	orders := NewOrderService(db.deps(nil), func(d database.DBTX) OrderStore { return db.storeFor(d) }, p, dec("0.10"))
	created, err := orders.CreateOrder(context.Background(), basicOrder(dev, p.session))
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	confirmed := created.Order
	confirmed.Status = string(orderstatus.Confirmed)
	db.orders[confirmed.ID] = confirmed

	svc := NewRefillService(db.deps(n), func(d database.DBTX) RefillStore { return db.storeFor(d) }, p,
		dec("0.10"), []string{"meat", " SIDE DISH "})
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 19, 30, 0, 0, time.UTC) }

	return &refillFixture{db: db, pos: p, n: n, svc: svc, dev: dev, order: confirmed}
}

func (f *refillFixture) request(items ...RefillItemRequest) RefillRequest {
	return RefillRequest{
		ExternalOrderID: f.order.ExternalOrderID.Int64,
		BranchID:        f.order.BranchID,
		DeviceID:        f.dev.ID,
		Session:         f.pos.session,
		Items:           items,
	}
}

func TestRefill_ByNameAndID(t *testing.T) {
	f := newRefillFixture(t)

	res, err := f.svc.Refill(context.Background(), f.request(
		RefillItemRequest{Name: "beef brisket", Quantity: 2},
		RefillItemRequest{MenuID: 22, Quantity: 1, Note: "extra"},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Items) != 2 {
		t.Fatalf("items: got %d", len(res.Items))
	}
	// The seed order used indexes 0 and 1.
	if res.Items[0].ItemIndex != 2 || res.Items[1].ItemIndex != 3 {
		t.Errorf("item indexes: got %d, %d", res.Items[0].ItemIndex, res.Items[1].ItemIndex)
	}
	for _, it := range res.Items {
		if !it.IsRefill || !it.OrderedMenuID.Valid {
			t.Errorf("item %d: refill=%v ordered=%v", it.ID, it.IsRefill, it.OrderedMenuID.Valid)
		}
	}
	if res.Items[0].MenuID != 21 {
		t.Errorf("resolved menu: got %d", res.Items[0].MenuID)
	}

	// 798.00 + (240 + 15) * 1.10
	if got := numericToDecimal(res.Order.Total).StringFixed(2); got != "1078.50" {
		t.Errorf("total: got %s", got)
	}

	if res.RefillCount != 1 || res.PrintEvent.EventType != enum.PrintEventRefill {
		t.Errorf("refill event: count=%d type=%s", res.RefillCount, res.PrintEvent.EventType)
	}
	var meta RefillMeta
	if err := json.Unmarshal(res.PrintEvent.Meta, &meta); err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.RefillCount != 1 || meta.ItemCount != 2 || !meta.RefilledAt.Equal(f.svc.now()) {
		t.Errorf("meta: got %+v", meta)
	}

	if len(f.pos.lineCalls) != 2 || len(f.pos.lineCalls[1]) != 2 {
		t.Errorf("pos line calls: got %d", len(f.pos.lineCalls))
	}
	if got := f.n.types(); len(got) != 1 || got[0] != notify.EventOrderRefilled {
		t.Errorf("notifications: got %v", got)
	}
}

func TestRefill_CountIncrements(t *testing.T) {
	f := newRefillFixture(t)
	for want := int64(1); want <= 3; want++ {
		res, err := f.svc.Refill(context.Background(), f.request(RefillItemRequest{MenuID: 21, Quantity: 1}))
		if err != nil {
			t.Fatalf("refill %d: %v", want, err)
		}
		if res.RefillCount != want {
			t.Errorf("refill count: got %d, want %d", res.RefillCount, want)
		}
	}
}

func TestRefill_FastPathSkipsCatalog(t *testing.T) {
	f := newRefillFixture(t)
	price := dec("99.00")

	// Menu 999 is unknown to the catalog and would otherwise be rejected.
	res, err := f.svc.Refill(context.Background(), f.request(RefillItemRequest{MenuID: 999, Price: &price, Quantity: 1}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.pos.menuLookup != 0 {
		t.Errorf("catalog lookups: got %d", f.pos.menuLookup)
	}
	if got := numericToDecimal(res.Items[0].UnitPrice); !got.Equal(price) {
		t.Errorf("unit price: got %s", got)
	}
}

func TestRefill_AllOrNothing(t *testing.T) {
	tests := []struct {
		name  string
		items []RefillItemRequest
		want  error
		count int
	}{
		{
			name:  "forbidden category",
			items: []RefillItemRequest{{MenuID: 21, Quantity: 1}, {Name: "Soju", Quantity: 1}},
			want:  ErrCategoryForbidden,
			count: 1,
		},
		{
			name:  "unknown name",
			items: []RefillItemRequest{{Name: "Wagyu", Quantity: 1}, {MenuID: 22, Quantity: 1}},
			want:  ErrItemNotFound,
			count: 1,
		},
		{
			name:  "both problems reported",
			items: []RefillItemRequest{{Name: "Soju", Quantity: 1}, {MenuID: 404, Quantity: 1}, {MenuID: 21, Quantity: 1}},
			want:  ErrItemNotFound,
			count: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRefillFixture(t)
			itemsBefore := len(f.db.itemsFor(f.order.ID))
			eventsBefore := len(f.db.eventList())

			_, err := f.svc.Refill(context.Background(), f.request(tt.items...))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var verr *ItemValidationError
			if !errors.As(err, &verr) || len(verr.Problems) != tt.count {
				t.Fatalf("problems: got %+v", err)
			}

			if len(f.pos.lineCalls) != 1 {
				t.Errorf("pos must not be called: %d line calls", len(f.pos.lineCalls))
			}
			if len(f.db.itemsFor(f.order.ID)) != itemsBefore || len(f.db.eventList()) != eventsBefore {
				t.Error("no local rows expected")
			}
			if len(f.n.types()) != 0 {
				t.Errorf("notifications: got %v", f.n.types())
			}
		})
	}
}

func TestRefill_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*refillFixture, *RefillRequest)
		want   error
	}{
		{"unknown order", func(_ *refillFixture, r *RefillRequest) { r.ExternalOrderID = 1 }, ErrOrderNotFound},
		{"other branch", func(_ *refillFixture, r *RefillRequest) { r.BranchID = 2 }, ErrBranchMismatch},
		{"other session", func(_ *refillFixture, r *RefillRequest) { r.Session.ID = 78 }, ErrSessionMismatch},
		{"no items", func(_ *refillFixture, r *RefillRequest) { r.Items = nil }, ErrEmptyItems},
		{"zero quantity", func(_ *refillFixture, r *RefillRequest) { r.Items[0].Quantity = 0 }, ErrInvalidQuantity},
		{"no menu or name", func(_ *refillFixture, r *RefillRequest) { r.Items[0] = RefillItemRequest{Quantity: 1} }, ErrInvalidMenu},
		{"negative price", func(_ *refillFixture, r *RefillRequest) {
			p := decimal.NewFromInt(-1)
			r.Items[0].Price = &p
		}, ErrInvalidPrice},
		{"completed order", func(f *refillFixture, _ *RefillRequest) {
			o := f.db.orders[f.order.ID]
			o.Status = "COMPLETED"
			f.db.orders[o.ID] = o
		}, ErrOrderNotActive},
		{"pending order", func(f *refillFixture, _ *RefillRequest) {
			o := f.db.orders[f.order.ID]
			o.Status = string(orderstatus.Pending)
			f.db.orders[o.ID] = o
		}, ErrOrderNotConfirmed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRefillFixture(t)
			req := f.request(RefillItemRequest{MenuID: 21, Quantity: 1})
			tt.mutate(f, &req)

			_, err := f.svc.Refill(context.Background(), req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(f.pos.lineCalls) != 1 {
				t.Error("pos must not be called")
			}
		})
	}
}

func TestRefill_PosFailureWritesNothing(t *testing.T) {
	f := newRefillFixture(t)
	f.pos.linesErr = pos.ErrUnavailable

	_, err := f.svc.Refill(context.Background(), f.request(RefillItemRequest{MenuID: 21, Quantity: 1}))
	if !errors.Is(err, ErrPosUnavailable) {
		t.Fatalf("expected ErrPosUnavailable, got %v", err)
	}
	var orphan *OrphanError
	if errors.As(err, &orphan) {
		t.Error("nothing was written to the pos, no orphan expected")
	}
	if len(f.db.eventList()) != 1 {
		t.Errorf("events: got %d", len(f.db.eventList()))
	}
}

func TestRefill_LocalFailureRecordsOrphan(t *testing.T) {
	f := newRefillFixture(t)
	f.db.fail["AddOrderTotals"] = errBoom
	before := numericToDecimal(f.db.orders[f.order.ID].Total)

	_, err := f.svc.Refill(context.Background(), f.request(RefillItemRequest{MenuID: 21, Quantity: 1}))
	var orphan *OrphanError
	if !errors.As(err, &orphan) || orphan.ExternalOrderID != f.order.ExternalOrderID.Int64 {
		t.Fatalf("expected OrphanError, got %v", err)
	}
	if len(f.db.itemsFor(f.order.ID)) != 2 {
		t.Errorf("refill items must roll back, got %d items", len(f.db.itemsFor(f.order.ID)))
	}
	if !numericToDecimal(f.db.orders[f.order.ID].Total).Equal(before) {
		t.Error("totals must roll back")
	}
	if len(f.db.orphans) != 1 || f.db.orphans[0].Reason != "refill: add order totals: boom" {
		t.Errorf("orphans: got %+v", f.db.orphans)
	}
}
