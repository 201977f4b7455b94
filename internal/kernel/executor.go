package kernel

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures per-task circuit breakers.
type BreakerConfig struct {
	Enabled bool

	// FailureThreshold is the number of consecutive failures that opens the
	// breaker.
	FailureThreshold uint32

	// Timeout is how long an open breaker skips its task before letting a
	// trial call through.
	Timeout time.Duration

	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		MaxRequests:      1,
	}
}

// executor runs task functions with panic recovery, breakers and metrics.
type executor struct {
	cfg      BreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
	metrics  *MetricsCollector
	logger   *slog.Logger
}

func newExecutor(cfg BreakerConfig, metrics *MetricsCollector, logger *slog.Logger) *executor {
	return &executor{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
		metrics:  metrics,
		logger:   logger,
	}
}

func (e *executor) breaker(task string) *gobreaker.CircuitBreaker[struct{}] {
	if !e.cfg.Enabled {
		return nil
	}
	if b, ok := e.breakers[task]; ok {
		return b
	}

	settings := gobreaker.Settings{
		Name:        task,
		MaxRequests: e.cfg.MaxRequests,
		Timeout:     e.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= e.cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("task circuit breaker state changed",
				"task", name,
				"from", from.String(),
				"to", to.String(),
			)
			e.metrics.RecordCircuitBreakerChange(name, to.String())
		},
	}
	b := gobreaker.NewCircuitBreaker[struct{}](settings)
	e.breakers[task] = b
	return b
}

// prune drops breakers of tasks that are no longer registered.
func (e *executor) prune(live map[string]bool) {
	for name := range e.breakers {
		if !live[name] {
			delete(e.breakers, name)
		}
	}
}

// update runs one update task call through its breaker. It returns
// ErrCircuitOpen when the call was skipped.
func (e *executor) update(task, phase string, tick uint64, fn func() error) error {
	start := time.Now()

	var err error
	if b := e.breaker(task); b != nil {
		_, err = b.Execute(func() (struct{}, error) {
			return struct{}{}, safeCall(fn)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			e.metrics.RecordSkip(task)
			return ErrCircuitOpen
		}
	} else {
		err = safeCall(fn)
	}

	e.metrics.RecordCall(task, phase, OpUpdate, tick, time.Since(start), err)
	return err
}

// lifecycle runs an init or shutdown call. Breakers do not apply.
func (e *executor) lifecycle(task, op string, fn func() error) error {
	start := time.Now()
	err := safeCall(fn)
	e.metrics.RecordCall(task, "", op, 0, time.Since(start), err)
	return err
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return fn()
}
