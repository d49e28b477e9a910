package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// PostgresConfig controls the optional relational event mirror. Disabled
// by default; the JSONL files remain the source of truth.
type PostgresConfig struct {
	Enabled bool   `json:"enabled"`
	DSN     string `json:"dsn"`
	Timeout time.Duration
}

// Event is one execution event bound for the order_events table.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	PlanID    string                 `json:"plan_id"`
	Symbol    string                 `json:"symbol"`
	Name      string                 `json:"event"`
	Details   map[string]interface{} `json:"details"`
}

// PostgresSink writes events into order_events. Duplicate keys are
// tolerated so journal replays stay idempotent.
type PostgresSink struct {
	db      *sqlx.DB
	timeout time.Duration
	logger  zerolog.Logger
}

// NewPostgresSink connects per the config and verifies the connection.
// Returns (nil, nil) when disabled.
func NewPostgresSink(cfg PostgresConfig, logger zerolog.Logger) (*PostgresSink, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgresSinkWithDB(db, cfg.Timeout, logger), nil
}

// NewPostgresSinkWithDB wraps an existing connection, for tests and
// shared pools.
func NewPostgresSinkWithDB(db *sqlx.DB, timeout time.Duration, logger zerolog.Logger) *PostgresSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresSink{
		db:      db,
		timeout: timeout,
		logger:  logger.With().Str("component", "journal_pg").Logger(),
	}
}

// EnsureSchema creates the order_events table when missing. The unique
// constraint is what makes replayed inserts collapse to no-ops.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS order_events (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			plan_id TEXT NOT NULL DEFAULT '',
			symbol TEXT NOT NULL DEFAULT '',
			event TEXT NOT NULL,
			details JSONB,
			UNIQUE (plan_id, event, ts)
		)`)
	if err != nil {
		return fmt.Errorf("ensure order_events schema: %w", err)
	}
	return nil
}

// InsertEvent writes one event. A duplicate key is tolerated: replaying
// the same journal line is a no-op, not a failure.
func (s *PostgresSink) InsertEvent(ctx context.Context, event Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	detailsJSON, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO order_events (ts, plan_id, symbol, event, details)
		VALUES ($1, $2, $3, $4, $5)`,
		event.Timestamp, event.PlanID, event.Symbol, event.Name, detailsJSON)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			s.logger.Debug().Str("event", event.Name).Msg("duplicate event skipped")
			return nil
		}
		return fmt.Errorf("insert event %s: %w", event.Name, err)
	}
	return nil
}

// InsertEvents writes a batch in one transaction. Conflicting rows are
// dropped in-statement; a mid-batch duplicate must not abort the
// transaction.
func (s *PostgresSink) InsertEvents(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout*time.Duration(len(events)/100+1))
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO order_events (ts, plan_id, symbol, event, details)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		detailsJSON, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshal event details: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, event.Timestamp, event.PlanID, event.Symbol, event.Name, detailsJSON); err != nil {
			return fmt.Errorf("insert event %s: %w", event.Name, err)
		}
	}

	return tx.Commit()
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
