package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/orderrelay/internal/auth"
	"github.com/kiwari-pos/orderrelay/internal/enum"
	"github.com/kiwari-pos/orderrelay/internal/middleware"
)

const testSecret = "handler-test-secret"

func token(t *testing.T, role string, deviceID, branchID int64) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, auth.Principal{DeviceID: deviceID, BranchID: branchID, Role: role}, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func tabletToken(t *testing.T) string { return token(t, enum.RoleTablet, 7, 1) }
func relayToken(t *testing.T) string  { return token(t, enum.RoleRelay, 9, 1) }
func adminToken(t *testing.T) string  { return token(t, enum.RoleAdmin, 0, 1) }

// authedRouter mounts setup behind the JWT middleware, the way the server does.
func authedRouter(setup func(r chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(testSecret))
		setup(r)
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return out
}
