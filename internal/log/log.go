package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Logger is the structured logger every package receives. Methods take the
// request context so trace and span ids reach the log line. kv are
// alternating keys and values.
type Logger interface {
	With(kv ...any) Logger

	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, err error, msg string, kv ...any)

	Sync() error
}

// Options configures New. App, Component and Version become attributes on
// every line.
type Options struct {
	App       string
	Component string
	Version   string

	Level           slog.Level
	StacktraceLevel slog.Level
	JsonFormat      bool

	// error chain rendering
	IncludeErrorLinks bool
	MaxErrorLinks     int

	// defaults to stdout
	Writer io.Writer
}

func New(opts Options) (Logger, error) { return newSlog(opts) }

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel maps a case-insensitive level name from config to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl, nil
	}
	return 0, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
}

// Secret wraps a sensitive config value so it can be passed to a logger
// without leaking. Only whether it is set is ever rendered.
type Secret string

func (s Secret) LogValue() slog.Value {
	if s == "" {
		return slog.StringValue("")
	}
	return slog.StringValue("[redacted]")
}

func (s Secret) String() string { return s.LogValue().String() }
