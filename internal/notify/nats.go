package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

type natsConn interface {
	Publish(subj string, data []byte) error
}

// NATSPublisher publishes events on orderrelay.branch.<id>.<type>.
type NATSPublisher struct {
	conn   natsConn
	closer func()
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("orderrelay"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn, closer: conn.Close}, nil
}

// Subject returns the subject an event for branchID is published on.
func Subject(branchID int64, eventType string) string {
	return fmt.Sprintf("orderrelay.branch.%d.%s", branchID, eventType)
}

func (p *NATSPublisher) Publish(ctx context.Context, branchID int64, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(Subject(branchID, evt.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}
