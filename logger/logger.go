// Package logger builds the process slog.Logger and carries request-scoped loggers in a context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/pure-golang/bikerental/logger/devslog"
	"github.com/pure-golang/bikerental/logger/noop"
	"github.com/pure-golang/bikerental/logger/stdjson"
)

type Level string
type Provider string
type contextKeyT string

var contextKey = contextKeyT("github.com/pure-golang/bikerental/logger")

const (
	INFO  Level = "info"
	ERROR Level = "error"
	WARN  Level = "warn"
	DEBUG Level = "debug"

	ProviderDevSlog Provider = "dev"      // colored, for local runs
	ProviderStdJson Provider = "std_json" // for production
	ProviderNoop    Provider = "noop"     // for unit tests
)

// maxStackFrames bounds the "stack" attribute of error logs.
const maxStackFrames = 10

type Config struct {
	Provider Provider `envconfig:"LOG_PROVIDER" default:"std_json"`
	Level    Level    `envconfig:"LOG_LEVEL" default:"info"`
	// Service is attached to every record when set.
	Service string `envconfig:"SERVICE_NAME" default:"bikerental"`
}

// NewDefault builds a logger writing to stdout.
func NewDefault(c Config) *slog.Logger {
	return New(c, os.Stdout)
}

// New builds a logger writing to w. The noop provider ignores w.
func New(c Config, w io.Writer) *slog.Logger {
	var l *slog.Logger
	switch c.Provider {
	case ProviderNoop:
		return noop.NewNoop()
	case ProviderDevSlog:
		l = devslog.New(w, ParseLevel(c.Level))
	default:
		l = stdjson.New(w, ParseLevel(c.Level))
	}

	if c.Service != "" {
		l = l.With("service", c.Service)
	}
	return l
}

// InitDefault sets the logger as slog default and routes otel errors into it.
func InitDefault(c Config) {
	slog.SetDefault(NewDefault(c))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		slog.Default().Error("otel", "error", err.Error())
	}))
}

// FromContext extracts the logger from ctx, or returns the default one.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}

// NewContext stores l in ctx.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey, l)
}

// With stores the context logger extended with args.
func With(ctx context.Context, args ...any) context.Context {
	return NewContext(ctx, FromContext(ctx).With(args...))
}

// WithErr returns the default logger with the error attached.
func WithErr(err error) *slog.Logger {
	return appendErr(slog.Default(), err)
}

// FromContextWithErr extracts the logger from ctx and attaches the error.
func FromContextWithErr(ctx context.Context, err error) *slog.Logger {
	return appendErr(FromContext(ctx), err)
}

// WithErrIf is WithErr for a non-nil err, a no-op logger otherwise.
func WithErrIf(err error) *slog.Logger {
	if err == nil {
		return noop.NewNoop()
	}

	return WithErr(err)
}

// FromContextWithErrIf is FromContextWithErr for a non-nil err, a no-op logger otherwise.
func FromContextWithErrIf(ctx context.Context, err error) *slog.Logger {
	if err == nil {
		return noop.NewNoop()
	}

	return FromContextWithErr(ctx, err)
}

func appendErr(l *slog.Logger, err error) *slog.Logger {
	var stackTracer interface {
		StackTrace() errors.StackTrace
	}

	if errors.As(err, &stackTracer) {
		l = l.With("stack", formatStack(stackTracer.StackTrace()))
	}

	return l.With("error", err.Error())
}

// formatStack renders the innermost frames as "func file:line".
func formatStack(st errors.StackTrace) []string {
	if len(st) > maxStackFrames {
		st = st[:maxStackFrames]
	}
	frames := make([]string, len(st))
	for i, f := range st {
		frames[i] = fmt.Sprintf("%n %s:%d", f, f, f)
	}
	return frames
}

// ParseLevel maps a configured level to slog, falling back to info.
func ParseLevel(level Level) slog.Level {
	switch Level(strings.ToLower(strings.TrimSpace(string(level)))) {
	case ERROR:
		return slog.LevelError
	case WARN:
		return slog.LevelWarn
	case DEBUG:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
