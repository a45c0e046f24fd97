package service

import (
	"context"
	"time"

	"github.com/kiwari-pos/orderrelay/internal/database"
	"github.com/kiwari-pos/orderrelay/internal/notify"
	"go.uber.org/zap"
)

// OrderEvent is the payload of every order.* notification.
type OrderEvent struct {
	OrderID         int64      `json:"order_id"`
	ExternalOrderID int64      `json:"external_order_id"`
	OrderNumber     string     `json:"order_number"`
	BranchID        int64      `json:"branch_id"`
	TableID         int64      `json:"table_id"`
	Status          string     `json:"status"`
	Total           string     `json:"total"`
	IsPrinted       bool       `json:"is_printed"`
	PrintedAt       *time.Time `json:"printed_at,omitempty"`
	ItemCount       int        `json:"item_count,omitempty"`
}

func newOrderEvent(o database.Order) OrderEvent {
	evt := OrderEvent{
		OrderID:         o.ID,
		ExternalOrderID: o.ExternalOrderID.Int64,
		OrderNumber:     o.OrderNumber,
		BranchID:        o.BranchID,
		TableID:         o.TableID,
		Status:          o.Status,
		Total:           numericToDecimal(o.Total).StringFixed(2),
		IsPrinted:       o.IsPrinted,
	}
	if o.PrintedAt.Valid {
		t := o.PrintedAt.Time
		evt.PrintedAt = &t
	}
	return evt
}

// publish runs after commit. Failures are logged and never returned.
func publish(ctx context.Context, n notify.Notifier, log *zap.Logger, eventType string, payload OrderEvent) {
	if n == nil {
		return
	}
	evt, err := notify.NewEvent(eventType, payload)
	if err == nil {
		err = n.Publish(ctx, payload.BranchID, evt)
	}
	if err != nil {
		log.Warn("publish order event",
			zap.String("type", eventType),
			zap.Int64("order_id", payload.OrderID),
			zap.Error(err),
		)
	}
}
