package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/orderrelay/internal/apperr"
	"github.com/kiwari-pos/orderrelay/internal/database"
	"github.com/kiwari-pos/orderrelay/internal/enum"
	"github.com/kiwari-pos/orderrelay/internal/middleware"
	"github.com/kiwari-pos/orderrelay/internal/service"
	"go.uber.org/zap"
)

// PrintEventServicer is satisfied by *service.PrintEventService.
type PrintEventServicer interface {
	List(ctx context.Context, req service.ListPrintEventsRequest) ([]database.PrintEvent, error)
	Acknowledge(ctx context.Context, req service.AckRequest) (*service.MutationResult, error)
	Fail(ctx context.Context, req service.FailRequest) (*service.MutationResult, error)
}

// PrintEventHandler is the relay's pull API.
type PrintEventHandler struct {
	svc PrintEventServicer
	log *zap.Logger
}

func NewPrintEventHandler(svc PrintEventServicer, log *zap.Logger) *PrintEventHandler {
	return &PrintEventHandler{svc: svc, log: nopIfNil(log)}
}

// RegisterRoutes mounts under /print-events inside an authenticated group.
func (h *PrintEventHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.RequireRole(enum.RoleRelay))
	r.Get("/", h.List)
	r.Post("/{id}/ack", h.Ack)
	r.Post("/{id}/fail", h.Fail)
}

type ackRequest struct {
	PrinterID   *string `json:"printer_id"`
	PrinterName *string `json:"printer_name"`
	PrintedAt   *string `json:"printed_at"`
}

type failRequest struct {
	Error string `json:"error"`
}

type mutationResponse struct {
	WasUpdated bool               `json:"was_updated"`
	Attempts   int32              `json:"attempts"`
	Event      printEventResponse `json:"event"`
}

type printEventListResponse struct {
	Events []printEventResponse `json:"events"`
	Limit  int                  `json:"limit"`
}

// List handles GET /print-events?since=&limit=.
func (h *PrintEventHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return
	}

	req := service.ListPrintEventsRequest{BranchID: claims.BranchID}
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, h.log, service.ErrInvalidLimit)
			return
		}
		req.Limit = v
	}
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			writeError(w, h.log, apperr.Wrap(service.ErrInvalidSince, err))
			return
		}
		req.Since = &t
	}

	events, err := h.svc.List(r.Context(), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	limit := req.Limit
	if limit == 0 {
		limit = service.DefaultPollLimit
	}
	if limit > service.MaxPollLimit {
		limit = service.MaxPollLimit
	}
	resp := printEventListResponse{Events: make([]printEventResponse, len(events)), Limit: limit}
	for i, e := range events {
		resp.Events[i] = toPrintEventResponse(e)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Ack handles POST /print-events/{id}/ack. The body is optional.
func (h *PrintEventHandler) Ack(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return
	}

	id, ok := parseIDParam(r, "id")
	if !ok {
		badRequest(w, "invalid print event ID")
		return
	}

	var req ackRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
	}

	var printedAt *time.Time
	if req.PrintedAt != nil {
		t, err := time.Parse(time.RFC3339Nano, *req.PrintedAt)
		if err != nil {
			writeError(w, h.log, apperr.Wrap(service.ErrInvalidPrintedAt, err))
			return
		}
		printedAt = &t
	}

	res, err := h.svc.Acknowledge(r.Context(), service.AckRequest{
		EventID:     id,
		BranchID:    claims.BranchID,
		DeviceID:    claims.DeviceID,
		PrinterID:   req.PrinterID,
		PrinterName: req.PrinterName,
		PrintedAt:   printedAt,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toMutationResponse(res))
}

// Fail handles POST /print-events/{id}/fail.
func (h *PrintEventHandler) Fail(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return
	}

	id, ok := parseIDParam(r, "id")
	if !ok {
		badRequest(w, "invalid print event ID")
		return
	}

	var req failRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	res, err := h.svc.Fail(r.Context(), service.FailRequest{
		EventID:  id,
		BranchID: claims.BranchID,
		DeviceID: claims.DeviceID,
		Message:  req.Error,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toMutationResponse(res))
}

func toMutationResponse(res *service.MutationResult) mutationResponse {
	return mutationResponse{
		WasUpdated: res.WasUpdated,
		Attempts:   res.Event.Attempts,
		Event:      toPrintEventResponse(res.Event),
	}
}
