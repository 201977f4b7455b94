package observability

import (
	"context"
	"log/slog"
	"time"
)

// Timer logs the duration of a kernel operation such as boot or a module
// reload.
type Timer struct {
	operation string
	start     time.Time
	logger    *slog.Logger
	attrs     []any
}

// StartTimer creates a timer for operation.
func StartTimer(logger *slog.Logger, operation string, attrs ...any) *Timer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Timer{
		operation: operation,
		start:     time.Now(),
		logger:    logger,
		attrs:     attrs,
	}
}

// Stop logs the elapsed time, at error level when err is non-nil.
func (t *Timer) Stop(ctx context.Context, err error) time.Duration {
	d := time.Since(t.start)
	args := []any{DurationKey, d.Milliseconds()}
	if operationFromContext(ctx) != t.operation {
		args = append(args, OperationKey, t.operation)
	}
	args = append(args, t.attrs...)
	if err != nil {
		t.logger.ErrorContext(ctx, "operation failed", append(args, ErrorKey, err.Error())...)
		return d
	}
	t.logger.InfoContext(ctx, "operation completed", args...)
	return d
}

// TimeOperation runs fn and logs how long it took.
func TimeOperation(ctx context.Context, logger *slog.Logger, operation string, fn func() error) error {
	timer := StartTimer(logger, operation)
	err := fn()
	timer.Stop(ctx, err)
	return err
}
