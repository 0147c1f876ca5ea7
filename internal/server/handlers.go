package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/scholar/internal/assistant"
	"github.com/haasonsaas/scholar/internal/auth"
	"github.com/haasonsaas/scholar/internal/ledger"
	"github.com/haasonsaas/scholar/internal/models"
	"github.com/haasonsaas/scholar/internal/orchestrator"
	"github.com/haasonsaas/scholar/internal/providers"
)

const (
	maxBodyBytes       = 1 << 20
	defaultOutcomes    = 50
	maxOutcomes        = 500
	defaultStatsWindow = 24 * time.Hour
)

type errorResponse struct {
	Error    string                 `json:"error"`
	Attempts []orchestrator.Attempt `json:"attempts,omitempty"`
	Skipped  []string               `json:"skipped,omitempty"`
}

type askRequest struct {
	assistant.Query

	// Preferences replaces the server defaults for this request.
	Preferences *models.UserPreferences `json:"preferences,omitempty"`

	// Credentials are user-supplied provider keys, consulted before the
	// server's own.
	Credentials map[string]string `json:"credentials,omitempty"`
}

type classifyRequest struct {
	Query string `json:"query"`
}

type classifyResponse struct {
	Intent  string `json:"intent"`
	Source  string `json:"source"`
	Persona string `json:"persona"`
	Task    string `json:"task"`
}

type candidate struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Provider    string        `json:"provider"`
	Family      models.Family `json:"family"`
	Credentials bool          `json:"credentials"`
}

type candidatesResponse struct {
	Task       models.TaskCategory `json:"task"`
	Candidates []candidate         `json:"candidates"`
}

type outcomesResponse struct {
	Records      []*ledger.Record `json:"records"`
	Stats        *ledger.Stats    `json:"stats"`
	FallbackRate float64          `json:"fallback_rate"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"models": s.config.Registry.Len(),
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if ok, wait := s.config.RateLimiter.Allow(callerKey(r)); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		writeError(w, http.StatusTooManyRequests, "too many requests; retry later")
		return
	}

	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	prefs := s.config.Settings.Preferences()
	if req.Preferences != nil {
		prefs = *req.Preferences
	}
	creds := s.config.Settings.Credentials()
	if len(req.Credentials) > 0 {
		creds = providers.ChainCredentials{providers.StaticCredentials(req.Credentials), creds}
	}

	answer, err := s.config.Assistant.Ask(r.Context(), req.Query, prefs, creds)
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if ex, ok := orchestrator.GetExhausted(err); ok {
			writeJSON(w, http.StatusBadGateway, errorResponse{
				Error:    orchestrator.UserMessage(err),
				Attempts: ex.Attempts,
				Skipped:  ex.Skipped,
			})
			return
		}
		s.logger.ErrorContext(r.Context(), "ask failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, assistant.ErrEmptyQuery.Error())
		return
	}

	res, profile := s.config.Assistant.Classify(r.Context(), req.Query)
	writeJSON(w, http.StatusOK, classifyResponse{
		Intent:  string(res.Intent),
		Source:  string(res.Source),
		Persona: profile.ID,
		Task:    string(profile.Task),
	})
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	task := models.TaskChat
	if raw := r.URL.Query().Get("task"); raw != "" {
		parsed, err := models.ParseTaskCategory(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		task = parsed
	}

	creds := s.config.Settings.Credentials()
	ids := s.config.Resolver.Resolve(task, s.config.Settings.Preferences())
	out := candidatesResponse{Task: task, Candidates: make([]candidate, 0, len(ids))}
	for _, id := range ids {
		desc, ok := s.config.Registry.Get(id)
		if !ok {
			continue
		}
		_, hasKey := creds.Lookup(desc.Provider)
		out.Candidates = append(out.Candidates, candidate{
			ID:          desc.ID,
			Name:        desc.DisplayName(),
			Provider:    desc.Provider,
			Family:      desc.Family,
			Credentials: hasKey,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &models.Filter{
		RequireTools:  q.Get("tools") == "true",
		RequireJSON:   q.Get("json") == "true",
		RequireVision: q.Get("vision") == "true",
	}
	if provider := q.Get("provider"); provider != "" {
		filter.Providers = []string{provider}
	}
	if family := q.Get("family"); family != "" {
		filter.Families = []models.Family{models.Family(family)}
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": s.config.Registry.List(filter)})
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	if s.config.Ledger == nil {
		writeError(w, http.StatusNotFound, "outcome ledger is disabled")
		return
	}

	q := r.URL.Query()
	limit := defaultOutcomes
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = min(n, maxOutcomes)
	}
	window := defaultStatsWindow
	if raw := q.Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid since %q", raw))
			return
		}
		window = d
	}

	records, err := s.config.Ledger.List(r.Context(), limit)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list outcomes failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	stats, err := s.config.Ledger.Stats(r.Context(), time.Now().Add(-window))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "outcome stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if records == nil {
		records = []*ledger.Record{}
	}
	writeJSON(w, http.StatusOK, outcomesResponse{Records: records, Stats: stats, FallbackRate: stats.FallbackRate()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// callerKey identifies the caller for rate limiting: the authenticated user
// when there is one, otherwise the client address.
func callerKey(r *http.Request) string {
	if user, ok := auth.UserFromContext(r.Context()); ok && user.ID != "" {
		return "user:" + user.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
