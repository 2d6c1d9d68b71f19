// Package obs is the structured logging layer: a process-wide slog JSON
// logger plus per-request correlation ids carried in the context.
package obs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

type correlationContextKey struct{}

// Correlation carries per-request correlation identifiers.
type Correlation struct {
	RequestID   string
	TraceID     string
	Traceparent string
	UserID      string
}

var (
	current atomic.Pointer[slog.Logger]

	// level gates the global logger; its zero value is info.
	level = new(slog.LevelVar)
)

func install(l *slog.Logger) *slog.Logger {
	prev := current.Swap(l)
	slog.SetDefault(l)
	return prev
}

// Init installs the JSON logger on stderr as the slog default unless a
// logger is already installed.
func Init() {
	if current.Load() == nil {
		l := newLogger(os.Stderr, level)
		if current.CompareAndSwap(nil, l) {
			slog.SetDefault(l)
		}
	}
}

// SetLevel changes the minimum level of the global logger at runtime.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// ParseLevel accepts debug, info, warn or error (any case, optional
// +N/-N offset as slog understands it). Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("obs: unknown log level %q", s)
	}
	return l, nil
}

// SetOutputForTests sends every log event, debug included, to w until the
// returned restore func runs.
func SetOutputForTests(w io.Writer) func() {
	prev := install(newLogger(w, slog.LevelDebug))
	return func() {
		if prev == nil {
			prev = newLogger(os.Stderr, level)
		}
		install(prev)
	}
}

func newLogger(w io.Writer, lvl slog.Leveler) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if t, ok := attr.Value.Any().(time.Time); ok && attr.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, t.UTC().Format(time.RFC3339Nano))
			}
			return attr
		},
	}))
}

func globalLogger() *slog.Logger {
	Init()
	return current.Load()
}

// Pkg returns a logger tagged with package name.
func Pkg(pkg string) *slog.Logger {
	return globalLogger().With("pkg", pkg)
}

// From returns a logger with correlation fields from context.
func From(ctx context.Context) *slog.Logger {
	l := globalLogger()
	attrs := correlationAttrs(CorrelationFromContext(ctx))
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}

// WithCorrelation merges corr into the correlation already in ctx. Empty
// fields in corr keep the existing value.
func WithCorrelation(ctx context.Context, corr Correlation) context.Context {
	merged := CorrelationFromContext(ctx)
	keep := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	keep(&merged.RequestID, corr.RequestID)
	keep(&merged.TraceID, corr.TraceID)
	keep(&merged.Traceparent, corr.Traceparent)
	keep(&merged.UserID, corr.UserID)
	return context.WithValue(ctx, correlationContextKey{}, merged)
}

// CorrelationFromContext returns request correlation fields from context.
func CorrelationFromContext(ctx context.Context) Correlation {
	if ctx == nil {
		return Correlation{}
	}
	corr, ok := ctx.Value(correlationContextKey{}).(Correlation)
	if !ok {
		return Correlation{}
	}
	return corr
}

func correlationAttrs(corr Correlation) []any {
	var attrs []any
	for _, f := range [...]struct{ key, val string }{
		{"request_id", corr.RequestID},
		{"trace_id", corr.TraceID},
		{"traceparent", corr.Traceparent},
		{"user_id", corr.UserID},
	} {
		if f.val != "" {
			attrs = append(attrs, f.key, f.val)
		}
	}
	return attrs
}

func newRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "req-fallback"
	}
	return "req-" + hex.EncodeToString(buf)
}
