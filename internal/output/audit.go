package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Audit appends scan lifecycle events to a daily JSONL file under the
// audit directory. A write failure never fails the scan; it is logged
// and dropped.
type Audit struct {
	mu      sync.Mutex
	dir     string
	enabled bool
	logger  zerolog.Logger
	nowFn   func() time.Time
}

// NewAudit returns an audit logger writing under dir (default
// "audit_logs"). Disabled audits accept events and drop them.
func NewAudit(dir string, enabled bool, logger zerolog.Logger) *Audit {
	if dir == "" {
		dir = "audit_logs"
	}
	return &Audit{
		dir:     dir,
		enabled: enabled,
		logger:  logger.With().Str("component", "audit").Logger(),
		nowFn:   time.Now,
	}
}

// WithClock overrides the timestamp source.
func (a *Audit) WithClock(now func() time.Time) *Audit {
	a.nowFn = now
	return a
}

// Event appends one audit line. Events named *_error are recorded at
// ERROR level, everything else at INFO.
func (a *Audit) Event(name string, data map[string]interface{}) {
	if !a.enabled {
		return
	}

	level := "INFO"
	if strings.HasSuffix(name, "_error") {
		level = "ERROR"
	}
	now := a.nowFn().UTC()
	line, err := json.Marshal(map[string]interface{}{
		"timestamp":  now.Format(time.RFC3339Nano),
		"event_type": name,
		"level":      level,
		"data":       data,
	})
	if err != nil {
		a.logger.Warn().Err(err).Str("event", name).Msg("audit event not serializable")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		a.logger.Warn().Err(err).Msg("audit dir unavailable")
		return
	}
	f, err := os.OpenFile(a.pathFor(now), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		a.logger.Warn().Err(err).Msg("audit file unavailable")
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		a.logger.Warn().Err(err).Str("event", name).Msg("audit append failed")
	}
}

// Path returns the audit file for the given day.
func (a *Audit) Path(day time.Time) string {
	return a.pathFor(day.UTC())
}

func (a *Audit) pathFor(day time.Time) string {
	return filepath.Join(a.dir, "audit_"+day.Format("20060102")+".jsonl")
}
