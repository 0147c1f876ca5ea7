package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/haasonsaas/scholar/internal/observability"
)

// Dialect selects driver name, placeholders and DDL.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect accepts the configured driver name.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("unsupported ledger driver %q", s)
}

func (d Dialect) driverName() string {
	return string(d)
}

// placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d Dialect) placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.placeholder(i + 1)
	}
	return strings.Join(parts, ",")
}

func (d Dialect) schema() []string {
	boolType := "BOOLEAN"
	if d == DialectSQLite {
		boolType = "INTEGER"
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS outcomes (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			intent TEXT NOT NULL,
			persona TEXT NOT NULL,
			task TEXT NOT NULL,
			first_choice TEXT NOT NULL DEFAULT '',
			responded_by TEXT NOT NULL DEFAULT '',
			was_fallback %[1]s NOT NULL,
			attempt_count INTEGER NOT NULL,
			success %[1]s NOT NULL,
			error_summary TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`, boolType),
		"CREATE INDEX IF NOT EXISTS idx_outcomes_created ON outcomes(created_at)",
	}
}

// SQLConfig holds connection settings.
type SQLConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultSQLConfig returns pool defaults.
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		Driver:          string(DialectSQLite),
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// SQLStore implements Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithMetrics records query counts and latency.
func WithMetrics(m *observability.Metrics) SQLOption {
	return func(s *SQLStore) { s.metrics = m }
}

// WithTracer wraps each query in a span.
func WithTracer(t *observability.Tracer) SQLOption {
	return func(s *SQLStore) { s.tracer = t }
}

// OpenSQL opens, pings and migrates a SQL-backed store.
func OpenSQL(ctx context.Context, cfg SQLConfig, opts ...SQLOption) (*SQLStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger: dsn is required")
	}
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	defaults := DefaultSQLConfig()
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = defaults.MaxOpenConns
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = defaults.MaxIdleConns
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}

	db, err := sql.Open(dialect.driverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dialect == DialectSQLite {
		// sqlite allows a single writer.
		cfg.MaxOpenConns = 1
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := NewSQLStore(db, dialect, opts...)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database.
func NewSQLStore(db *sql.DB, dialect Dialect, opts ...SQLOption) *SQLStore {
	s := &SQLStore{db: db, dialect: dialect}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the outcomes table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate ledger: %w", err)
		}
	}
	return nil
}

// Close releases database resources.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) observe(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.TraceDatabaseQuery(ctx, operation, "outcomes")
	return ctx, func(err error) {
		status := "success"
		if err != nil {
			status = "error"
			s.tracer.RecordError(span, err)
		}
		span.End()
		s.metrics.RecordDatabaseQuery(operation, "outcomes", status, time.Since(start).Seconds())
	}
}

// Append inserts rec.
func (s *SQLStore) Append(ctx context.Context, rec *Record) (err error) {
	if err := prepare(rec); err != nil {
		return err
	}
	ctx, done := s.observe(ctx, "insert")
	defer func() { done(err) }()

	query := fmt.Sprintf(`
		INSERT INTO outcomes (id, request_id, intent, persona, task, first_choice, responded_by, was_fallback, attempt_count, success, error_summary, created_at)
		VALUES (%s)`, s.dialect.placeholders(12))

	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.RequestID,
		rec.Intent,
		rec.Persona,
		rec.Task,
		rec.FirstChoice,
		rec.RespondedBy,
		rec.WasFallback,
		rec.AttemptCount,
		rec.Success,
		rec.ErrorSummary,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

// List returns the newest records first.
func (s *SQLStore) List(ctx context.Context, limit int) (records []*Record, err error) {
	ctx, done := s.observe(ctx, "select")
	defer func() { done(err) }()

	query := `
		SELECT id, request_id, intent, persona, task, first_choice, responded_by, was_fallback, attempt_count, success, error_summary, created_at
		FROM outcomes
		ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT " + s.dialect.placeholder(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID,
			&r.RequestID,
			&r.Intent,
			&r.Persona,
			&r.Task,
			&r.FirstChoice,
			&r.RespondedBy,
			&r.WasFallback,
			&r.AttemptCount,
			&r.Success,
			&r.ErrorSummary,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return records, nil
}

// Stats aggregates records created at or after since.
func (s *SQLStore) Stats(ctx context.Context, since time.Time) (stats *Stats, err error) {
	ctx, done := s.observe(ctx, "aggregate")
	defer func() { done(err) }()

	since = since.UTC()
	p := s.dialect.placeholder(1)

	stats = &Stats{ByModel: map[string]int{}}
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN success AND was_fallback THEN 1 ELSE 0 END), 0)
		FROM outcomes
		WHERE created_at >= %s`, p), since)
	if err := row.Scan(&stats.Total, &stats.Succeeded, &stats.Fallbacks); err != nil {
		return nil, fmt.Errorf("aggregate outcomes: %w", err)
	}
	stats.Exhausted = stats.Total - stats.Succeeded

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT responded_by, COUNT(*)
		FROM outcomes
		WHERE created_at >= %s AND success
		GROUP BY responded_by`, p), since)
	if err != nil {
		return nil, fmt.Errorf("aggregate outcomes by model: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var model string
		var count int
		if err := rows.Scan(&model, &count); err != nil {
			return nil, fmt.Errorf("scan outcome stats: %w", err)
		}
		stats.ByModel[model] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome stats: %w", err)
	}
	return stats, nil
}
