package service

import (
	"context"
	"fmt"

	"github.com/kiwari-pos/orderrelay/internal/database"
	"github.com/kiwari-pos/orderrelay/internal/notify"
	"go.uber.org/zap"
)

// Deps are the collaborators every service shares. *pgxpool.Pool satisfies
// both Pool and DB.
type Deps struct {
	Pool     TxBeginner
	DB       database.DBTX
	Notifier notify.Notifier
	Log      *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

type orphanRecorder interface {
	CreatePosOrphan(ctx context.Context, arg database.CreatePosOrphanParams) (database.PosOrphan, error)
}

// recordOrphan writes the reconciliation row in its own transaction, after
// the failed one has rolled back. It outlives request cancellation.
func recordOrphan(ctx context.Context, d Deps, newStore func(database.DBTX) orphanRecorder, arg database.CreatePosOrphanParams) {
	ctx = context.WithoutCancel(ctx)
	log := d.logger().With(
		zap.Int64("external_order_id", arg.ExternalOrderID),
		zap.Int64("device_id", arg.DeviceID),
		zap.String("reason", arg.Reason),
	)

	err := func() error {
		tx, err := d.Pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx) //nolint:errcheck

		if _, err := newStore(tx).CreatePosOrphan(ctx, arg); err != nil {
			return fmt.Errorf("create pos orphan: %w", err)
		}
		return tx.Commit(ctx)
	}()
	if err != nil {
		log.Error("record pos orphan", zap.Error(err))
		return
	}
	log.Warn("pos order orphaned")
}
