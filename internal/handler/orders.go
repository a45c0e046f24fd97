package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/orderrelay/internal/apperr"
	"github.com/kiwari-pos/orderrelay/internal/database"
	"github.com/kiwari-pos/orderrelay/internal/enum"
	"github.com/kiwari-pos/orderrelay/internal/middleware"
	"github.com/kiwari-pos/orderrelay/internal/orderstatus"
	"github.com/kiwari-pos/orderrelay/internal/pos"
	"github.com/kiwari-pos/orderrelay/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderServicer is satisfied by *service.OrderService.
type OrderServicer interface {
	CurrentSession(ctx context.Context) (pos.Session, error)
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
}

type RefillServicer interface {
	Refill(ctx context.Context, req service.RefillRequest) (*service.RefillResult, error)
}

type StatusServicer interface {
	UpdateStatus(ctx context.Context, req service.UpdateStatusRequest) (database.Order, error)
}

type DeviceGetter interface {
	Get(ctx context.Context, id int64) (database.Device, error)
}

type PrintEventCreator interface {
	Create(ctx context.Context, req service.CreatePrintEventRequest) (database.PrintEvent, error)
}

// OrderHandler serves order creation, refills, status changes and reprints.
type OrderHandler struct {
	orders  OrderServicer
	refills RefillServicer
	status  StatusServicer
	devices DeviceGetter
	prints  PrintEventCreator
	log     *zap.Logger
}

func NewOrderHandler(orders OrderServicer, refills RefillServicer, status StatusServicer, devices DeviceGetter, prints PrintEventCreator, log *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders:  orders,
		refills: refills,
		status:  status,
		devices: devices,
		prints:  prints,
		log:     nopIfNil(log),
	}
}

// RegisterRoutes mounts under /orders inside an authenticated group.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	tablet := middleware.RequireRole(enum.RoleTablet)
	admin := middleware.RequireRole(enum.RoleAdmin)

	r.With(tablet).Post("/", h.Create)
	r.With(tablet).Post("/{externalOrderId}/refill", h.Refill)
	r.With(admin).Patch("/{id}/status", h.UpdateStatus)
	r.With(admin).Post("/{id}/print-events", h.Reprint)
}

// --- Request / Response types ---

type createOrderRequest struct {
	SessionID  string                   `json:"session_id"`
	GuestCount int32                    `json:"guest_count"`
	Discount   decimal.Decimal          `json:"discount"`
	Items      []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	MenuID     int64           `json:"menu_id"`
	Quantity   int32           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	SeatNumber *int32          `json:"seat_number"`
	Note       string          `json:"note"`
}

type refillRequest struct {
	Items []refillItemRequest `json:"items"`
}

type refillItemRequest struct {
	MenuID     int64            `json:"menu_id"`
	Name       string           `json:"name"`
	Price      *decimal.Decimal `json:"price"`
	Quantity   int32            `json:"quantity"`
	SeatNumber *int32           `json:"seat_number"`
	Note       string           `json:"note"`
}

type refillResponse struct {
	orderResponse
	RefillCount int64 `json:"refill_count"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type reprintRequest struct {
	EventType string          `json:"event_type"`
	Meta      json.RawMessage `json:"meta"`
}

// --- Handlers ---

// Create handles POST /orders. The device must be seated before the POS
// session is consulted.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	dev, err := h.devices.Get(r.Context(), claims.DeviceID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if !dev.TableID.Valid {
		writeError(w, h.log, service.ErrDeviceNotAssigned)
		return
	}

	session, err := h.orders.CurrentSession(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	items := make([]service.CreateOrderItemRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = service.CreateOrderItemRequest{
			MenuID:     it.MenuID,
			Quantity:   it.Quantity,
			Price:      it.Price,
			SeatNumber: it.SeatNumber,
			Note:       it.Note,
		}
	}

	result, err := h.orders.CreateOrder(r.Context(), service.CreateOrderRequest{
		Device:     dev,
		Session:    session,
		SessionID:  req.SessionID,
		GuestCount: req.GuestCount,
		Discount:   req.Discount,
		Items:      items,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	resp := toOrderResponse(result.Order)
	resp.Items = toOrderItemResponses(result.Items)
	pe := toPrintEventResponse(result.PrintEvent)
	resp.PrintEvent = &pe
	writeJSON(w, http.StatusCreated, resp)
}

// Refill handles POST /orders/{externalOrderId}/refill.
func (h *OrderHandler) Refill(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return
	}

	externalOrderID, ok := parseIDParam(r, "externalOrderId")
	if !ok {
		badRequest(w, "invalid order ID")
		return
	}

	var req refillRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	session, err := h.orders.CurrentSession(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	items := make([]service.RefillItemRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = service.RefillItemRequest{
			MenuID:     it.MenuID,
			Name:       it.Name,
			Price:      it.Price,
			Quantity:   it.Quantity,
			SeatNumber: it.SeatNumber,
			Note:       it.Note,
		}
	}

	result, err := h.refills.Refill(r.Context(), service.RefillRequest{
		ExternalOrderID: externalOrderID,
		BranchID:        claims.BranchID,
		DeviceID:        claims.DeviceID,
		Session:         session,
		Items:           items,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	resp := refillResponse{orderResponse: toOrderResponse(result.Order), RefillCount: result.RefillCount}
	resp.Items = toOrderItemResponses(result.Items)
	pe := toPrintEventResponse(result.PrintEvent)
	resp.PrintEvent = &pe
	writeJSON(w, http.StatusOK, resp)
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return
	}

	orderID, ok := parseIDParam(r, "id")
	if !ok {
		badRequest(w, "invalid order ID")
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	to, err := orderstatus.Parse(req.Status)
	if err != nil {
		writeError(w, h.log, apperr.Wrap(service.ErrInvalidStatus, err))
		return
	}

	order, err := h.status.UpdateStatus(r.Context(), service.UpdateStatusRequest{
		OrderID:  orderID,
		BranchID: claims.BranchID,
		To:       to,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// Reprint handles POST /orders/{id}/print-events.
func (h *OrderHandler) Reprint(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return
	}

	orderID, ok := parseIDParam(r, "id")
	if !ok {
		badRequest(w, "invalid order ID")
		return
	}

	var req reprintRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
	}
	if req.EventType == "" {
		req.EventType = enum.PrintEventInitial
	}

	evt, err := h.prints.Create(r.Context(), service.CreatePrintEventRequest{
		OrderID:   orderID,
		BranchID:  claims.BranchID,
		EventType: req.EventType,
		Meta:      req.Meta,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPrintEventResponse(evt))
}
