package exchange

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// BreakerConfig tunes one endpoint-class circuit breaker.
type BreakerConfig struct {
	Name                string
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ErrorRateThreshold  float64
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig matches the posture used for venue REST calls:
// trip after a sustained error rate or a short run of consecutive failures,
// probe again after 30 seconds.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		MaxRequests:         3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ErrorRateThreshold:  0.5,
		ConsecutiveFailures: 5,
	}
}

// BreakerSet holds one circuit breaker per endpoint class for a venue.
type BreakerSet struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
	configs  map[string]BreakerConfig
}

// NewBreakerSet creates an empty breaker set; classes are registered lazily
// with default settings on first use.
func NewBreakerSet() *BreakerSet {
	return &BreakerSet{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		configs:  make(map[string]BreakerConfig),
	}
}

// Register installs a breaker for an endpoint class with explicit settings.
func (bs *BreakerSet) Register(class string, config BreakerConfig) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.install(class, config)
}

func (bs *BreakerSet) install(class string, config BreakerConfig) {
	bs.configs[class] = config
	bs.breakers[class] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= config.ConsecutiveFailures {
				return true
			}
			if counts.Requests < 10 {
				return false
			}
			errorRate := float64(counts.TotalFailures) / float64(counts.Requests)
			return errorRate >= config.ErrorRateThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
}

func (bs *BreakerSet) get(class string) *gobreaker.CircuitBreaker {
	bs.mu.RLock()
	breaker, exists := bs.breakers[class]
	bs.mu.RUnlock()
	if exists {
		return breaker
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if breaker, exists := bs.breakers[class]; exists {
		return breaker
	}
	bs.install(class, DefaultBreakerConfig(class))
	return bs.breakers[class]
}

// Execute runs fn behind the breaker for the endpoint class. An open circuit
// is reported as a transient venue failure so retry budgets apply.
func (bs *BreakerSet) Execute(class string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := bs.get(class).Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, domain.WrapErr(domain.KindTransient, "circuit open for "+class, err)
	}
	return result, err
}

// Status reports every breaker's state and counts.
func (bs *BreakerSet) Status() map[string]BreakerStatus {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	statuses := make(map[string]BreakerStatus, len(bs.breakers))
	for class, breaker := range bs.breakers {
		counts := breaker.Counts()
		errorRate := 0.0
		if counts.Requests > 0 {
			errorRate = float64(counts.TotalFailures) / float64(counts.Requests)
		}
		statuses[class] = BreakerStatus{
			Name:      bs.configs[class].Name,
			State:     breaker.State().String(),
			Counts:    counts,
			ErrorRate: errorRate,
		}
	}
	return statuses
}

// BreakerStatus is a snapshot of one breaker for ops surfaces.
type BreakerStatus struct {
	Name      string           `json:"name"`
	State     string           `json:"state"`
	Counts    gobreaker.Counts `json:"counts"`
	ErrorRate float64          `json:"error_rate"`
}
