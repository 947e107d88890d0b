package nestward

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with walk-specific context.
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

// WithAgent adds the agent name to the logger.
func (l *Logger) WithAgent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("agent", name),
	}
}

// WithRoute adds a route sequence number to the logger.
func (l *Logger) WithRoute(seq int) *Logger {
	return &Logger{
		Logger: l.Logger.With("route", seq),
	}
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimension", dim),
	}
}

// LogBindRoute logs a route bind.
func (l *Logger) LogBindRoute(ctx context.Context, seq, samples int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "bind route failed",
			"seq", seq,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "route bound",
			"seq", seq,
			"samples", samples,
		)
	}
}

// LogLearnSample logs one committed learning-walk sample.
func (l *Logger) LogLearnSample(ctx context.Context, routeIndex, sampleIndex int, familiarity float32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "learn sample failed",
			"route", routeIndex,
			"sample", sampleIndex,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "learn sample committed",
			"route", routeIndex,
			"sample", sampleIndex,
			"familiarity", familiarity,
		)
	}
}

// LogLearningWalk logs the completion of a learning walk.
func (l *Logger) LogLearningWalk(ctx context.Context, routes, samples int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "learning walk failed",
			"routes", routes,
			"samples", samples,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "learning walk completed",
			"routes", routes,
			"samples", samples,
		)
	}
}

// LogHomingStep logs one committed homing step.
func (l *Logger) LogHomingStep(ctx context.Context, step int, turn float64, familiarity float32, distToNest float64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "homing step failed",
			"step", step,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "homing step committed",
			"step", step,
			"turn", turn,
			"familiarity", familiarity,
			"dist_to_nest", distToNest,
		)
	}
}

// LogHomingWalk logs the terminal outcome of a homing walk.
func (l *Logger) LogHomingWalk(ctx context.Context, outcome Outcome, steps int, distToNest float64) {
	l.InfoContext(ctx, "homing walk finished",
		"outcome", outcome.String(),
		"steps", steps,
		"dist_to_nest", distToNest,
	)
}

// LogJournal logs a journal append failure. Appends succeed silently.
func (l *Logger) LogJournal(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "journal append failed",
			"error", err,
		)
	}
}
