package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/orderrelay/internal/apperr"
	"github.com/kiwari-pos/orderrelay/internal/database"
	"github.com/kiwari-pos/orderrelay/internal/enum"
	"github.com/kiwari-pos/orderrelay/internal/notify"
	"github.com/kiwari-pos/orderrelay/internal/orderstatus"
	"go.uber.org/zap"
)

type StatusStore interface {
	GetOrderForUpdate(ctx context.Context, id int64) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	UpdateOrderItemsStatus(ctx context.Context, arg database.UpdateOrderItemsStatusParams) error
	GetDiningTableForUpdate(ctx context.Context, id int64) (database.DiningTable, error)
	CountActiveOrdersByTable(ctx context.Context, tableID int64) (int64, error)
	UnlockDiningTable(ctx context.Context, id int64) (database.DiningTable, error)
}

type NewStatusStore func(db database.DBTX) StatusStore

type UpdateStatusRequest struct {
	OrderID  int64
	BranchID int64
	To       orderstatus.Status
}

// StatusService applies lifecycle transitions against a configured matrix.
type StatusService struct {
	deps     Deps
	newStore NewStatusStore
	matrix   orderstatus.Matrix
}

func NewStatusService(deps Deps, newStore NewStatusStore, matrix orderstatus.Matrix) *StatusService {
	if matrix == nil {
		matrix = orderstatus.DefaultMatrix()
	}
	return &StatusService{deps: deps, newStore: newStore, matrix: matrix}
}

// itemStatusFor maps an order state onto the item state it implies, if any.
func itemStatusFor(s orderstatus.Status) (string, bool) {
	switch s {
	case orderstatus.InProgress:
		return enum.OrderItemStatusInProgress, true
	case orderstatus.Ready:
		return enum.OrderItemStatusReady, true
	case orderstatus.Served, orderstatus.Completed:
		return enum.OrderItemStatusServed, true
	case orderstatus.Cancelled:
		return enum.OrderItemStatusCancelled, true
	case orderstatus.Voided:
		return enum.OrderItemStatusVoided, true
	}
	return "", false
}

func (s *StatusService) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (database.Order, error) {
	tx, err := s.deps.Pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	if order.BranchID != req.BranchID {
		return database.Order{}, ErrBranchMismatch
	}

	from, err := orderstatus.Parse(order.Status)
	if err != nil {
		return database.Order{}, fmt.Errorf("stored status: %w", err)
	}
	if err := s.matrix.Validate(from, req.To); err != nil {
		return database.Order{}, apperr.Wrap(ErrInvalidTransition, err)
	}

	updated, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{ID: order.ID, Status: string(req.To)})
	if err != nil {
		return database.Order{}, fmt.Errorf("update order status: %w", err)
	}

	if itemStatus, ok := itemStatusFor(req.To); ok {
		if err := store.UpdateOrderItemsStatus(ctx, database.UpdateOrderItemsStatusParams{
			OrderID: order.ID,
			Status:  itemStatus,
		}); err != nil {
			return database.Order{}, fmt.Errorf("update item status: %w", err)
		}
	}

	if req.To.IsTerminal() {
		// Taken before counting so an order being created for the table is
		// either visible here or waits for this unlock.
		if _, err := store.GetDiningTableForUpdate(ctx, order.TableID); err != nil {
			return database.Order{}, fmt.Errorf("lock dining table: %w", err)
		}
		active, err := store.CountActiveOrdersByTable(ctx, order.TableID)
		if err != nil {
			return database.Order{}, fmt.Errorf("count table orders: %w", err)
		}
		if active == 0 {
			if _, err := store.UnlockDiningTable(ctx, order.TableID); err != nil {
				return database.Order{}, fmt.Errorf("unlock dining table: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}

	s.deps.logger().Info("order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(req.To)),
	)
	publish(ctx, s.deps.Notifier, s.deps.logger(), notify.EventOrderStatusChanged, newOrderEvent(updated))

	return updated, nil
}
