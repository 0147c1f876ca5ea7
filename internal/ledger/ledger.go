// Package ledger persists the final outcome of each orchestrated request. Only
// the outcome and the identity of the first requested candidate are kept;
// per-attempt detail is never stored.
package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is the stored outcome of one request.
type Record struct {
	ID           string    `json:"id"`
	RequestID    string    `json:"request_id"`
	Intent       string    `json:"intent"`
	Persona      string    `json:"persona"`
	Task         string    `json:"task"`
	FirstChoice  string    `json:"first_choice,omitempty"`
	RespondedBy  string    `json:"responded_by,omitempty"`
	WasFallback  bool      `json:"was_fallback"`
	AttemptCount int       `json:"attempt_count"`
	Success      bool      `json:"success"`
	ErrorSummary string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Stats aggregates records created since a point in time.
type Stats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Fallbacks int `json:"fallbacks"`
	Exhausted int `json:"exhausted"`

	// ByModel counts successful answers per responding model.
	ByModel map[string]int `json:"by_model"`
}

// FallbackRate is the share of successful requests that needed a fallback.
func (s *Stats) FallbackRate() float64 {
	if s == nil || s.Succeeded == 0 {
		return 0
	}
	return float64(s.Fallbacks) / float64(s.Succeeded)
}

// Store persists outcome records.
type Store interface {
	Append(ctx context.Context, rec *Record) error
	// List returns the newest records first. limit <= 0 means no limit.
	List(ctx context.Context, limit int) ([]*Record, error)
	Stats(ctx context.Context, since time.Time) (*Stats, error)
	Close() error
}

// ErrInvalidRecord is returned for records missing required fields.
var ErrInvalidRecord = errors.New("invalid ledger record")

// prepare fills defaults and validates rec in place.
func prepare(rec *Record) error {
	if rec == nil {
		return ErrInvalidRecord
	}
	if rec.RequestID == "" {
		return errors.Join(ErrInvalidRecord, errors.New("request id is required"))
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return nil
}

// MemoryStore keeps records in memory, bounded to the newest max entries.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record
	max     int
}

// NewMemoryStore returns an in-memory store. max <= 0 keeps everything.
func NewMemoryStore(max int) *MemoryStore {
	return &MemoryStore{max: max}
}

// Append stores a copy of rec.
func (s *MemoryStore) Append(_ context.Context, rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}
	clone := *rec

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, &clone)
	if s.max > 0 && len(s.records) > s.max {
		s.records = s.records[len(s.records)-s.max:]
	}
	return nil
}

// List returns copies of the newest records first.
func (s *MemoryStore) List(_ context.Context, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		clone := *s.records[i]
		out = append(out, &clone)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Stats aggregates records created at or after since.
func (s *MemoryStore) Stats(_ context.Context, since time.Time) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{ByModel: map[string]int{}}
	for _, r := range s.records {
		if r.CreatedAt.Before(since) {
			continue
		}
		stats.Total++
		if !r.Success {
			stats.Exhausted++
			continue
		}
		stats.Succeeded++
		if r.WasFallback {
			stats.Fallbacks++
		}
		stats.ByModel[r.RespondedBy]++
	}
	return stats, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
