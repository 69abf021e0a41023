// Package diffimlog provides opt-in structured tracing for the solver
// packages. Logging is silent by default; call SetLogger to enable it.
// This mirrors the debug-trace call sites of the original implementation
// (condition number reports, lambda selection, the LU-to-eigenvector
// fallback) without
// requiring a logging collaborator to be wired in for normal operation.
package diffimlog

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler         { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler              { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger installs the logger used by every package under this module.
// Pass nil to restore the silent default. Safe for concurrent use.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Get returns the currently installed logger.
func Get() *slog.Logger {
	return loggerPtr.Load()
}

// Debug is a convenience wrapper over Get().Debug.
func Debug(msg string, args ...any) {
	loggerPtr.Load().Debug(msg, args...)
}
