// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rgraph

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var logger atomic.Pointer[slog.Logger]

func init() { logger.Store(slog.New(nopHandler{})) }

// SetLogger sets the logger used by the graph and by the
// packages built on it. By default nothing is logged.
// Passing nil restores the default.
//
// Levels in use:
//   - slog.LevelDebug: skipped features, query pool growth,
//     descriptor exhaustion, unready timestamps
//   - slog.LevelInfo: lifecycle events
//   - slog.LevelWarn: recoverable misuse
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	logger.Store(l)
}

// Logger returns the current logger.
// It is safe for concurrent use.
func Logger() *slog.Logger { return logger.Load() }
