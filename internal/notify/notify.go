// Package notify fans order lifecycle events out to live subscribers. Delivery
// is best effort: a failed publish never undoes a committed write.
package notify

import (
	"context"
	"encoding/json"
	"errors"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderRefilled      = "order.refilled"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderPrinted       = "order.printed"
)

type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent marshals payload into an Event.
func NewEvent(eventType string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: data}, nil
}

type Notifier interface {
	Publish(ctx context.Context, branchID int64, evt Event) error
}

// Multi publishes to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Publish(ctx context.Context, branchID int64, evt Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Publish(ctx, branchID, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, int64, Event) error { return nil }
