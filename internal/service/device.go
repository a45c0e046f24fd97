package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/orderrelay/internal/apperr"
	"github.com/kiwari-pos/orderrelay/internal/auth"
	"github.com/kiwari-pos/orderrelay/internal/database"
	"github.com/kiwari-pos/orderrelay/internal/enum"
	"go.uber.org/zap"
)

type DeviceStore interface {
	GetDevice(ctx context.Context, id int64) (database.Device, error)
	GetDeviceByUUID(ctx context.Context, deviceUUID uuid.UUID) (database.Device, error)
	LockDevice(ctx context.Context, id int64) (int64, error)
	CreateDevice(ctx context.Context, arg database.CreateDeviceParams) (database.Device, error)
	UpdateDevice(ctx context.Context, arg database.UpdateDeviceParams) (database.Device, error)
	UpdateDeviceHeartbeat(ctx context.Context, arg database.UpdateDeviceHeartbeatParams) (database.Device, error)
}

type NewDeviceStore func(db database.DBTX) DeviceStore

type RegisterDeviceRequest struct {
	UUID      uuid.UUID // generated when zero
	BranchID  int64
	TableID   *int64
	Kind      string
	Name      string
	Secret    string
	IPAddress *string
}

// UpdateDeviceRequest changes a device's placement. UUID may be echoed back
// by clients but must match the stored value.
type UpdateDeviceRequest struct {
	ID        int64
	UUID      *uuid.UUID
	BranchID  int64
	TableID   *int64
	Name      string
	IPAddress *string
}

type HeartbeatRequest struct {
	CallerID    int64
	DeviceID    int64
	Status      string
	AppVersion  *string
	PrinterID   *string
	PrinterName *string
}

type DeviceToken struct {
	Token  string
	Device database.Device
}

type DeviceService struct {
	deps       Deps
	newStore   NewDeviceStore
	jwtSecret  string
	tokenTTL   time.Duration
	production bool
}

// NewDeviceService builds the device service. Outside production an attempt
// to change a device uuid panics.
func NewDeviceService(deps Deps, newStore NewDeviceStore, jwtSecret string, tokenTTL time.Duration, production bool) *DeviceService {
	return &DeviceService{
		deps:       deps,
		newStore:   newStore,
		jwtSecret:  jwtSecret,
		tokenTTL:   tokenTTL,
		production: production,
	}
}

func (s *DeviceService) Get(ctx context.Context, id int64) (database.Device, error) {
	dev, err := s.newStore(s.deps.DB).GetDevice(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Device{}, ErrDeviceNotFound
		}
		return database.Device{}, fmt.Errorf("get device: %w", err)
	}
	return dev, nil
}

func (s *DeviceService) Register(ctx context.Context, req RegisterDeviceRequest) (database.Device, error) {
	if !enum.IsDeviceKind(req.Kind) {
		return database.Device{}, ErrInvalidDeviceKind
	}
	if strings.TrimSpace(req.Name) == "" || req.Secret == "" {
		return database.Device{}, ErrInvalidDevice
	}
	if req.UUID == uuid.Nil {
		req.UUID = uuid.New()
	}

	hash, err := auth.HashSecret(req.Secret)
	if err != nil {
		return database.Device{}, fmt.Errorf("hash secret: %w", err)
	}

	dev, err := s.newStore(s.deps.DB).CreateDevice(ctx, database.CreateDeviceParams{
		UUID:       req.UUID,
		BranchID:   req.BranchID,
		TableID:    optInt8(req.TableID),
		Kind:       req.Kind,
		Name:       strings.TrimSpace(req.Name),
		SecretHash: hash,
		IPAddress:  optText(req.IPAddress),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return database.Device{}, apperr.Wrap(ErrDeviceConflict, err)
		}
		return database.Device{}, fmt.Errorf("create device: %w", err)
	}
	return dev, nil
}

// Update reassigns a device. A differing uuid is a programming error upstream:
// it panics outside production and returns ErrUUIDImmutable in production.
func (s *DeviceService) Update(ctx context.Context, req UpdateDeviceRequest) (database.Device, error) {
	if strings.TrimSpace(req.Name) == "" {
		return database.Device{}, ErrInvalidDevice
	}

	tx, err := s.deps.Pool.Begin(ctx)
	if err != nil {
		return database.Device{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if _, err := store.LockDevice(ctx, req.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Device{}, ErrDeviceNotFound
		}
		return database.Device{}, fmt.Errorf("lock device: %w", err)
	}
	current, err := store.GetDevice(ctx, req.ID)
	if err != nil {
		return database.Device{}, fmt.Errorf("get device: %w", err)
	}

	if req.UUID != nil && *req.UUID != current.UUID {
		err := apperr.Wrap(ErrUUIDImmutable, fmt.Errorf("device %d: %s -> %s", current.ID, current.UUID, *req.UUID))
		s.deps.logger().Error("device uuid mutation", zap.Int64("device_id", current.ID), zap.Error(err))
		if !s.production {
			panic(err)
		}
		return database.Device{}, err
	}

	dev, err := store.UpdateDevice(ctx, database.UpdateDeviceParams{
		ID:        req.ID,
		BranchID:  req.BranchID,
		TableID:   optInt8(req.TableID),
		Name:      strings.TrimSpace(req.Name),
		IPAddress: optText(req.IPAddress),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return database.Device{}, apperr.Wrap(ErrDeviceConflict, err)
		}
		return database.Device{}, fmt.Errorf("update device: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Device{}, fmt.Errorf("commit tx: %w", err)
	}
	return dev, nil
}

// Heartbeat records liveness and printer pairing for the calling device only.
func (s *DeviceService) Heartbeat(ctx context.Context, req HeartbeatRequest) (database.Device, error) {
	if req.DeviceID != req.CallerID {
		return database.Device{}, ErrDeviceMismatch
	}
	if !enum.IsDeviceStatus(req.Status) {
		return database.Device{}, ErrInvalidDeviceStatus
	}

	dev, err := s.newStore(s.deps.DB).UpdateDeviceHeartbeat(ctx, database.UpdateDeviceHeartbeatParams{
		ID:          req.DeviceID,
		Status:      req.Status,
		AppVersion:  optText(req.AppVersion),
		PrinterID:   optText(req.PrinterID),
		PrinterName: optText(req.PrinterName),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Device{}, ErrDeviceNotFound
		}
		return database.Device{}, fmt.Errorf("update heartbeat: %w", err)
	}
	return dev, nil
}

// IssueToken exchanges a device uuid and pairing secret for a JWT.
func (s *DeviceService) IssueToken(ctx context.Context, deviceUUID uuid.UUID, secret string) (*DeviceToken, error) {
	dev, err := s.newStore(s.deps.DB).GetDeviceByUUID(ctx, deviceUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	if !auth.CheckSecret(dev.SecretHash, secret) {
		return nil, ErrInvalidCredentials
	}

	role := enum.RoleTablet
	if dev.Kind == enum.DeviceKindRelay {
		role = enum.RoleRelay
	}
	token, err := auth.GenerateToken(s.jwtSecret, auth.Principal{
		DeviceID:   dev.ID,
		DeviceUUID: dev.UUID,
		BranchID:   dev.BranchID,
		Role:       role,
	}, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &DeviceToken{Token: token, Device: dev}, nil
}
