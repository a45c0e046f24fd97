package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/orderrelay/internal/database"
	"github.com/kiwari-pos/orderrelay/internal/enum"
	"github.com/kiwari-pos/orderrelay/internal/middleware"
	"github.com/kiwari-pos/orderrelay/internal/service"
	"go.uber.org/zap"
)

// DeviceServicer is satisfied by *service.DeviceService.
type DeviceServicer interface {
	Get(ctx context.Context, id int64) (database.Device, error)
	Register(ctx context.Context, req service.RegisterDeviceRequest) (database.Device, error)
	Update(ctx context.Context, req service.UpdateDeviceRequest) (database.Device, error)
	Heartbeat(ctx context.Context, req service.HeartbeatRequest) (database.Device, error)
}

// DeviceHandler serves admin device management and relay heartbeats.
type DeviceHandler struct {
	svc DeviceServicer
	log *zap.Logger
}

func NewDeviceHandler(svc DeviceServicer, log *zap.Logger) *DeviceHandler {
	return &DeviceHandler{svc: svc, log: nopIfNil(log)}
}

// RegisterRoutes mounts at the root of an authenticated group.
func (h *DeviceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/devices", func(r chi.Router) {
		r.Use(middleware.RequireRole(enum.RoleAdmin))
		r.Post("/", h.Register)
		r.Patch("/{id}", h.Update)
	})
	r.With(middleware.RequireRole(enum.RoleRelay)).Post("/printer/heartbeat", h.Heartbeat)
}

type registerDeviceRequest struct {
	UUID      *uuid.UUID `json:"uuid"`
	BranchID  int64      `json:"branch_id"`
	TableID   *int64     `json:"table_id"`
	Kind      string     `json:"kind"`
	Name      string     `json:"name"`
	Secret    string     `json:"secret"`
	IPAddress *string    `json:"ip_address"`
}

type updateDeviceRequest struct {
	UUID      *uuid.UUID `json:"uuid"`
	BranchID  int64      `json:"branch_id"`
	TableID   *int64     `json:"table_id"`
	Name      string     `json:"name"`
	IPAddress *string    `json:"ip_address"`
}

type heartbeatRequest struct {
	DeviceID    int64   `json:"device_id"`
	Status      string  `json:"status"`
	AppVersion  *string `json:"app_version"`
	PrinterID   *string `json:"printer_id"`
	PrinterName *string `json:"printer_name"`
}

// Register handles POST /admin/devices. Admins manage their own branch only.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return
	}

	var req registerDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.BranchID == 0 {
		req.BranchID = claims.BranchID
	}
	if req.BranchID != claims.BranchID {
		writeError(w, h.log, service.ErrBranchMismatch)
		return
	}

	svcReq := service.RegisterDeviceRequest{
		BranchID:  req.BranchID,
		TableID:   req.TableID,
		Kind:      req.Kind,
		Name:      req.Name,
		Secret:    req.Secret,
		IPAddress: req.IPAddress,
	}
	if req.UUID != nil {
		svcReq.UUID = *req.UUID
	}

	dev, err := h.svc.Register(r.Context(), svcReq)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDeviceResponse(dev))
}

// Update handles PATCH /admin/devices/{id}.
func (h *DeviceHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return
	}

	id, ok := parseIDParam(r, "id")
	if !ok {
		badRequest(w, "invalid device ID")
		return
	}

	var req updateDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.BranchID == 0 {
		req.BranchID = claims.BranchID
	}

	current, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if current.BranchID != claims.BranchID || req.BranchID != claims.BranchID {
		writeError(w, h.log, service.ErrBranchMismatch)
		return
	}

	dev, err := h.svc.Update(r.Context(), service.UpdateDeviceRequest{
		ID:        id,
		UUID:      req.UUID,
		BranchID:  req.BranchID,
		TableID:   req.TableID,
		Name:      req.Name,
		IPAddress: req.IPAddress,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeviceResponse(dev))
}

// Heartbeat handles POST /printer/heartbeat. device_id defaults to the caller.
func (h *DeviceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return
	}

	var req heartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.DeviceID == 0 {
		req.DeviceID = claims.DeviceID
	}

	dev, err := h.svc.Heartbeat(r.Context(), service.HeartbeatRequest{
		CallerID:    claims.DeviceID,
		DeviceID:    req.DeviceID,
		Status:      req.Status,
		AppVersion:  req.AppVersion,
		PrinterID:   req.PrinterID,
		PrinterName: req.PrinterName,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeviceResponse(dev))
}
