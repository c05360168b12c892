// Package logger configures the process-wide slog logger.
//
// Strand logs through log/slog everywhere. By default third-party library
// records are suppressed unless the level is debug, so operator output stays
// focused on orchestration events.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

const strandPackagePrefix = "github.com/strandkit/strand"

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error. Unknown values fall back to warn.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Options controls logger construction.
type Options struct {
	// Level is the minimum level emitted.
	Level slog.Level

	// Format is "text" or "json".
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer

	// IncludeThirdParty emits records from outside this module even when the
	// level is above debug.
	IncludeThirdParty bool
}

// New builds a slog.Logger per Options.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	if !opts.IncludeThirdParty {
		handler = &filteringHandler{handler: handler, minLevel: opts.Level}
	}

	return slog.New(handler)
}

// Setup installs a logger built from Options as the slog default.
func Setup(opts Options) *slog.Logger {
	l := New(opts)
	slog.SetDefault(l)
	return l
}

// filteringHandler suppresses records originating outside the strand module
// unless the configured level is debug.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.minLevel {
		return false
	}
	return h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug {
		return h.handler.Handle(ctx, record)
	}

	if isStrandPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}

	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{
		handler:  h.handler.WithAttrs(attrs),
		minLevel: h.minLevel,
	}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{
		handler:  h.handler.WithGroup(name),
		minLevel: h.minLevel,
	}
}

func isStrandPackage(pc uintptr) bool {
	if pc == 0 {
		// No caller info recorded; keep the record rather than drop it.
		return true
	}

	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}

	return strings.HasPrefix(fn.Name(), strandPackagePrefix)
}
