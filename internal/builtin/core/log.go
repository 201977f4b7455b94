package core

import (
	"context"
	"fmt"
	"log/slog"
)

// Level is a log level of the log API.
type Level int

const (
	LevelInfo Level = iota
	LevelDebug
	LevelWarn
	LevelErr
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelErr:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogAPI writes scoped log lines. Scope is usually the module name.
type LogAPI struct {
	Log   func(level Level, scope, msg string)
	Info  func(scope, format string, args ...any)
	Debug func(scope, format string, args ...any)
	Warn  func(scope, format string, args ...any)
	Err   func(scope, format string, args ...any)
}

// NewLogAPI returns a log API writing to logger.
func NewLogAPI(logger *slog.Logger) *LogAPI {
	write := func(level Level, scope, msg string) {
		logger.Log(context.Background(), level.slogLevel(), msg, "scope", scope)
	}
	format := func(level Level) func(scope, format string, args ...any) {
		return func(scope, f string, args ...any) {
			if !logger.Enabled(context.Background(), level.slogLevel()) {
				return
			}
			write(level, scope, fmt.Sprintf(f, args...))
		}
	}
	return &LogAPI{
		Log:   write,
		Info:  format(LevelInfo),
		Debug: format(LevelDebug),
		Warn:  format(LevelWarn),
		Err:   format(LevelErr),
	}
}
