package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/orderrelay/internal/service"
	"go.uber.org/zap"
)

// TokenIssuer is satisfied by *service.DeviceService.
type TokenIssuer interface {
	IssueToken(ctx context.Context, deviceUUID uuid.UUID, secret string) (*service.DeviceToken, error)
}

// AuthHandler exchanges device credentials for a bearer token.
type AuthHandler struct {
	issuer TokenIssuer
	ttl    time.Duration
	log    *zap.Logger
}

func NewAuthHandler(issuer TokenIssuer, ttl time.Duration, log *zap.Logger) *AuthHandler {
	return &AuthHandler{issuer: issuer, ttl: ttl, log: nopIfNil(log)}
}

// RegisterRoutes registers the public auth endpoints.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/device-token", h.DeviceToken)
}

type deviceTokenRequest struct {
	UUID   uuid.UUID `json:"uuid"`
	Secret string    `json:"secret"`
}

type deviceTokenResponse struct {
	AccessToken string         `json:"access_token"`
	ExpiresIn   int64          `json:"expires_in"`
	Device      deviceResponse `json:"device"`
}

// DeviceToken handles POST /auth/device-token.
func (h *AuthHandler) DeviceToken(w http.ResponseWriter, r *http.Request) {
	var req deviceTokenRequest
	if err := decodeJSON(r, &req); err != nil || req.UUID == uuid.Nil || req.Secret == "" {
		badRequest(w, "uuid and secret are required")
		return
	}

	tok, err := h.issuer.IssueToken(r.Context(), req.UUID, req.Secret)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	h.log.Info("device token issued",
		zap.Int64("device_id", tok.Device.ID),
		zap.String("kind", tok.Device.Kind),
	)
	writeJSON(w, http.StatusOK, deviceTokenResponse{
		AccessToken: tok.Token,
		ExpiresIn:   int64(h.ttl.Seconds()),
		Device:      toDeviceResponse(tok.Device),
	})
}
