// Package journal appends execution events and results to day-stamped
// JSONL files, optionally mirroring events into Postgres. Lines are
// self-contained JSON objects so tail -f and jq work on live files.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snipetrade/snipetrade/internal/telemetry"
)

// Journal writes append-only execution history under dir, one file per
// UTC day.
type Journal struct {
	mu       sync.Mutex
	dir      string
	redact   bool
	counters *telemetry.Counters
	sink     *PostgresSink
	logger   zerolog.Logger
	nowFn    func() time.Time
}

// New creates a journal rooted at dir ("journal" when empty). redact
// masks secret-bearing detail values before they reach disk.
func New(dir string, redact bool, logger zerolog.Logger) *Journal {
	if dir == "" {
		dir = "journal"
	}
	return &Journal{
		dir:    dir,
		redact: redact,
		logger: logger.With().Str("component", "journal").Logger(),
		nowFn:  time.Now,
	}
}

// WithCounters wires the shared telemetry counters.
func (j *Journal) WithCounters(counters *telemetry.Counters) *Journal {
	j.counters = counters
	return j
}

// WithPostgres mirrors events into the given sink.
func (j *Journal) WithPostgres(sink *PostgresSink) *Journal {
	j.sink = sink
	return j
}

// WithClock swaps the wall clock, for deterministic file names in tests.
func (j *Journal) WithClock(nowFn func() time.Time) *Journal {
	j.nowFn = nowFn
	return j
}

// LogEvent appends one event line. planID and symbol are optional and
// omitted when empty; details are redacted when enabled.
func (j *Journal) LogEvent(planID, symbol, event string, details map[string]interface{}) error {
	now := j.nowFn().UTC()
	if j.redact {
		details = redactDetails(details)
	}

	line := map[string]interface{}{
		"timestamp": now.Format(time.RFC3339Nano),
		"event":     event,
	}
	if planID != "" {
		line["plan_id"] = planID
	}
	if symbol != "" {
		line["symbol"] = symbol
	}
	if details != nil {
		line["details"] = details
	}

	if err := j.append(now, line); err != nil {
		return err
	}

	if j.sink != nil {
		err := j.sink.InsertEvent(context.Background(), Event{
			Timestamp: now,
			PlanID:    planID,
			Symbol:    symbol,
			Name:      event,
			Details:   details,
		})
		if err != nil {
			j.logger.Warn().Err(err).Str("event", event).Msg("postgres mirror failed")
		}
	}
	return nil
}

// Record appends a result line and bumps the recorded-orders counter.
func (j *Journal) Record(result interface{}) error {
	now := j.nowFn().UTC()
	line := map[string]interface{}{
		"timestamp": now.Format(time.RFC3339Nano),
		"result":    result,
	}
	if err := j.append(now, line); err != nil {
		return err
	}
	if j.counters != nil {
		j.counters.Incr("orders_recorded")
	}
	return nil
}

// Path returns the journal file for the given day.
func (j *Journal) Path(day time.Time) string {
	return filepath.Join(j.dir, day.UTC().Format("2006-01-02")+".jsonl")
}

func (j *Journal) append(now time.Time, line map[string]interface{}) error {
	payload, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("encode journal line: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(j.Path(now), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// redactDetails masks values whose key mentions a credential, recursing
// into nested maps. The input map is not modified.
func redactDetails(details map[string]interface{}) map[string]interface{} {
	if details == nil {
		return nil
	}
	masked := make(map[string]interface{}, len(details))
	for key, value := range details {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "key") || strings.Contains(lower, "secret") {
			masked[key] = "***"
			continue
		}
		if nested, ok := value.(map[string]interface{}); ok {
			masked[key] = redactDetails(nested)
			continue
		}
		masked[key] = value
	}
	return masked
}
