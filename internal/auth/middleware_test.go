package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haasonsaas/scholar/internal/observability"
)

func newTestHandler(t *testing.T, service *Service, public ...string) (http.Handler, *string) {
	t.Helper()
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := UserFromContext(r.Context()); ok {
			seen = user.ID
		}
		if got, _ := r.Context().Value(observability.UserIDKey).(string); got != seen {
			t.Errorf("log user id = %q, want %q", got, seen)
		}
		w.WriteHeader(http.StatusOK)
	})
	return Middleware(service, slog.New(slog.NewTextHandler(io.Discard, nil)), public...)(next), &seen
}

func TestMiddlewareAllowsWhenDisabled(t *testing.T) {
	handler, _ := newTestHandler(t, NewService(Config{}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddleware(t *testing.T) {
	service := NewService(Config{
		JWTSecret:   "secret",
		TokenExpiry: time.Hour,
		APIKeys:     []APIKeyConfig{{Key: "key-123", UserID: "dashboard"}},
	})
	token, err := service.GenerateJWT(&User{ID: "student-1"})
	if err != nil {
		t.Fatalf("GenerateJWT() error = %v", err)
	}

	tests := []struct {
		name     string
		path     string
		header   string
		value    string
		wantCode int
		wantUser string
	}{
		{"missing credentials", "/v1/ask", "", "", http.StatusUnauthorized, ""},
		{"valid bearer", "/v1/ask", "Authorization", "Bearer " + token, http.StatusOK, "student-1"},
		{"lowercase scheme", "/v1/ask", "Authorization", "bearer " + token, http.StatusOK, "student-1"},
		{"invalid bearer", "/v1/ask", "Authorization", "Bearer nope", http.StatusUnauthorized, ""},
		{"valid api key", "/v1/ask", "X-API-Key", "key-123", http.StatusOK, "dashboard"},
		{"invalid api key", "/v1/ask", "X-API-Key", "wrong", http.StatusUnauthorized, ""},
		{"public path", "/healthz", "", "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, seen := newTestHandler(t, service, "/healthz")
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if *seen != tt.wantUser {
				t.Fatalf("expected user %q, got %q", tt.wantUser, *seen)
			}
			if tt.wantCode == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("expected WWW-Authenticate header")
			}
		})
	}
}

func TestValidateAPIKeyDerivesUserID(t *testing.T) {
	service := NewService(Config{APIKeys: []APIKeyConfig{{Key: " key-abc "}}})
	user, err := service.ValidateAPIKey("key-abc")
	if err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}
	if len(user.ID) != len("api_")+16 {
		t.Fatalf("unexpected derived id %q", user.ID)
	}
}
