package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Middleware enforces JWT or API key auth on next. Paths in public bypass the
// check.
func Middleware(service *Service, logger *slog.Logger, public ...string) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !service.Enabled() || open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if token := extractBearer(r); token != "" {
				user, err := service.ValidateJWT(token)
				if err != nil {
					logger.WarnContext(r.Context(), "jwt validation failed", "error", err)
					unauthorized(w, "invalid token")
					return
				}
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
				return
			}

			if apiKey := extractAPIKey(r); apiKey != "" {
				user, err := service.ValidateAPIKey(apiKey)
				if err != nil {
					logger.WarnContext(r.Context(), "api key validation failed", "error", err)
					unauthorized(w, "invalid api key")
					return
				}
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
				return
			}

			unauthorized(w, "missing credentials")
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="scholar"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func extractBearer(r *http.Request) string {
	for _, value := range r.Header.Values("Authorization") {
		lower := strings.ToLower(value)
		if strings.HasPrefix(lower, "bearer ") {
			return strings.TrimSpace(value[len("bearer "):])
		}
	}
	return ""
}

func extractAPIKey(r *http.Request) string {
	for _, key := range []string{"X-API-Key", "Api-Key"} {
		if trimmed := strings.TrimSpace(r.Header.Get(key)); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
