package crosscat

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with inference-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithColumn adds a column field to the logger.
func (l *Logger) WithColumn(col int) *Logger {
	return &Logger{
		Logger: l.Logger.With("column", col),
	}
}

// WithRow adds a row field to the logger.
func (l *Logger) WithRow(rowid int) *Logger {
	return &Logger{
		Logger: l.Logger.With("row", rowid),
	}
}

// LogIncorporate logs a row incorporation.
func (l *Logger) LogIncorporate(ctx context.Context, rowid, cluster int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "incorporate failed",
			"row", rowid,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "incorporate completed",
			"row", rowid,
			"cluster", cluster,
		)
	}
}

// LogSweep logs one completed transition sweep.
func (l *Logger) LogSweep(ctx context.Context, sweep int, score, alpha float64, clusters int) {
	l.DebugContext(ctx, "sweep completed",
		"sweep", sweep,
		"score", score,
		"alpha", alpha,
		"clusters", clusters,
	)
}

// LogQuery logs a query-engine evaluation.
func (l *Logger) LogQuery(ctx context.Context, kind string, cols int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"kind", kind,
			"columns", cols,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"kind", kind,
			"columns", cols,
		)
	}
}

// LogSnapshot logs a snapshot operation.
func (l *Logger) LogSnapshot(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"name", name,
		)
	}
}
