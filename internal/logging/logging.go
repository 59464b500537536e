// Package logging builds the process-wide structured logger: a leveled,
// dual-format (text/json) slog.Logger with an optional file sink. Grounded
// on original_source/src/util/Logger.cpp (level gate, json-vs-text switch,
// file-or-stdout sink) re-expressed on top of log/slog, which is the
// structured-logging idiom used across the example pack in place of a
// dedicated third-party logging library (see DESIGN.md).
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures New. Format is "json" or "text"; any other value (or
// empty) falls back to "text". File, if non-empty, is opened for append and
// used as the sink instead of stdout.
type Options struct {
	Level  string
	Format string
	File   string
}

// ParseLevel maps a case-insensitive level name to a slog.Level, defaulting
// to Info for anything unrecognised -- matching Logger.cpp's parseLevel.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a *slog.Logger per opts. The returned closer must be closed by
// the caller (normally registered as a shutdown.Coordinator step) to flush
// and release a file sink; it is a no-op when logging to stdout.
func New(opts Options) (*slog.Logger, io.Closer) {
	var sink io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			sink = f
			closer = f
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(sink, handlerOpts)
	} else {
		handler = slog.NewTextHandler(sink, handlerOpts)
	}
	return slog.New(handler), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
