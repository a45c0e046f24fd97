package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/orderrelay/internal/auth"
)

type contextKey string

const (
	claimsKey contextKey = "claims"
	branchKey contextKey = "branch"
)

var (
	errMissingToken = errors.New("missing authorization header")
	errTokenFormat  = errors.New("invalid authorization format")
)

// TokenSource pulls the raw JWT out of a request.
type TokenSource func(r *http.Request) (string, error)

// BearerHeader reads "Authorization: Bearer <jwt>".
func BearerHeader(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", errTokenFormat
	}
	return token, nil
}

// QueryParam reads the JWT from a query parameter. Browsers cannot set
// headers on a websocket upgrade.
func QueryParam(name string) TokenSource {
	return func(r *http.Request) (string, error) {
		if tok := r.URL.Query().Get(name); tok != "" {
			return tok, nil
		}
		return "", errors.New("missing " + name + " parameter")
	}
}

// Authenticate validates a bearer token and stores its claims on the request.
func Authenticate(jwtSecret string) func(http.Handler) http.Handler {
	return AuthenticateFrom(jwtSecret, BearerHeader)
}

func AuthenticateFrom(jwtSecret string, source TokenSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := source(r)
			if err != nil {
				deny(w, http.StatusUnauthorized, "Unauthenticated", err.Error())
				return
			}

			claims, err := auth.ValidateToken(jwtSecret, raw)
			if err != nil {
				deny(w, http.StatusUnauthorized, "Unauthenticated", "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireBranch admits only principals whose branch equals the branch in URL
// parameter param, and stores that branch on the request. Every role is
// branch-scoped, admins included.
func RequireBranch(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				deny(w, http.StatusUnauthorized, "Unauthenticated", "not authenticated")
				return
			}

			branchID, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
			if err != nil || branchID <= 0 {
				deny(w, http.StatusBadRequest, "", "invalid branch ID")
				return
			}
			if claims.BranchID != branchID {
				deny(w, http.StatusForbidden, "BranchMismatch", "access denied for this branch")
				return
			}

			ctx := context.WithValue(r.Context(), branchKey, branchID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				deny(w, http.StatusUnauthorized, "Unauthenticated", "not authenticated")
				return
			}

			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			deny(w, http.StatusForbidden, "RoleNotAllowed", "insufficient permissions")
		})
	}
}

func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// WithClaims stores claims on ctx.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// BranchFromContext returns the branch admitted by RequireBranch.
func BranchFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(branchKey).(int64)
	return id, ok
}

func deny(w http.ResponseWriter, status int, code, msg string) {
	body := map[string]string{"error": msg}
	if code != "" {
		body["code"] = code
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
