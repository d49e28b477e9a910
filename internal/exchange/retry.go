package exchange

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snipetrade/snipetrade/internal/domain"
)

const backoffCap = 10 * time.Second

// Retrier re-runs venue calls that failed with a retryable classification,
// backing off exponentially with jitter between attempts.
type Retrier struct {
	maxAttempts int
	backoffBase time.Duration
	logger      zerolog.Logger

	// rng drives jitter; swapped in tests for determinism.
	rng *rand.Rand
}

// NewRetrier builds a retrier. maxAttempts below 1 is clamped to 1;
// a zero backoffBase defaults to 500ms.
func NewRetrier(maxAttempts int, backoffBase time.Duration, logger zerolog.Logger) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if backoffBase <= 0 {
		backoffBase = 500 * time.Millisecond
	}
	return &Retrier{
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		logger:      logger,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Do runs fn until it succeeds, fails fatally, or attempts are exhausted.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		attempt++
		if !domain.IsRetryable(err) || attempt >= r.maxAttempts {
			return err
		}

		delay := r.backoffDelay(attempt)
		r.logger.Debug().
			Str("op", op).
			Int("attempt", attempt).
			Int("max_attempts", r.maxAttempts).
			Dur("sleep", delay).
			Err(err).
			Msg("retrying venue call")

		select {
		case <-ctx.Done():
			return domain.WrapErr(domain.KindTransient, op+" cancelled during backoff", ctx.Err())
		case <-time.After(delay):
		}
	}
}

func (r *Retrier) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(float64(r.backoffBase) * math.Pow(2, float64(attempt-1)))
	if delay > backoffCap {
		delay = backoffCap
	}
	jitter := 0.5 + r.rng.Float64()
	return time.Duration(float64(delay) * jitter)
}

// ClassifyHTTP converts an HTTP status plus body hint into a classified error.
func ClassifyHTTP(status int, op string, body string) error {
	msg := op + " failed"
	if body != "" {
		msg += ": " + truncate(body, 180)
	}
	switch {
	case status == http.StatusTooManyRequests:
		return domain.Ef(domain.KindRateLimit, "%s (status %d)", msg, status)
	case status >= 500:
		return domain.Ef(domain.KindTransient, "%s (status %d)", msg, status)
	default:
		return domain.Ef(domain.KindFatal, "%s (status %d)", msg, status)
	}
}

// ClassifyNetErr buckets transport errors. Rate-limit hints win over the
// generic transient classification.
func ClassifyNetErr(op string, err error) error {
	if err == nil {
		return nil
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") {
		return domain.WrapErr(domain.KindRateLimit, op, err)
	}
	return domain.WrapErr(domain.KindTransient, op, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
