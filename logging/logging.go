// Package logging provides the thin structured-logging wrapper every
// sub-manager logs through. None of the example repos pull in a
// structured-logging library for anything like this core's volume of
// lifecycle/error events, so this wraps log/slog rather than reaching
// for an unneeded dependency (see DESIGN.md).
package logging

import (
	"log/slog"
	"os"
)

// Logger is a *slog.Logger alias so callers don't need to import log/slog
// themselves just to pass one around.
type Logger = slog.Logger

// New returns a Logger that writes structured text to w, tagged with
// component=name on every record.
func New(name string, w *os.File) *Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h).With("component", name)
}

// Discard returns a Logger that drops every record, for tests and
// embedders that don't want libweave's own logging.
func Discard() *Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
