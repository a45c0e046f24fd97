package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type ReaperStore interface {
	DeleteAcknowledgedPrintEventsBefore(ctx context.Context, before time.Time) (int64, error)
}

// Reaper deletes acknowledged print events older than the retention window.
type Reaper struct {
	store     ReaperStore
	retention time.Duration
	interval  time.Duration
	log       *zap.Logger
	now       func() time.Time
}

const DefaultReaperInterval = 15 * time.Minute

// NewReaper builds a reaper. A non-positive interval is replaced by
// DefaultReaperInterval since time.NewTicker rejects it.
func NewReaper(store ReaperStore, retention, interval time.Duration, log *zap.Logger) *Reaper {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		log.Warn("invalid print event reaper interval, using default",
			zap.Duration("interval", interval),
			zap.Duration("default", DefaultReaperInterval),
		)
		interval = DefaultReaperInterval
	}
	return &Reaper{store: store, retention: retention, interval: interval, log: log, now: time.Now}
}

// Sweep runs one deletion pass.
func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	n, err := r.store.DeleteAcknowledgedPrintEventsBefore(ctx, r.now().Add(-r.retention))
	if err != nil {
		return 0, fmt.Errorf("delete acknowledged print events: %w", err)
	}
	return n, nil
}

// Run sweeps every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				r.log.Error("print event sweep", zap.Error(err))
				continue
			}
			if n > 0 {
				r.log.Info("print events purged", zap.Int64("deleted", n))
			}
		}
	}
}
