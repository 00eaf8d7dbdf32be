package frontend

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler drops every record. Because Enabled is false, slog never
// builds the attributes.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

var pkgLogger atomic.Pointer[slog.Logger]

func init() {
	pkgLogger.Store(newNopLogger())
}

// SetLogger replaces the logger that contexts without WithLogger and the
// bundled backends write to. nil silences them again, which is also the
// starting state.
//
// Debug records processed frames, arena creation and store growth. Info
// records contexts and backends opening and closing. Warn records full
// pools, a full command buffer and commands a backend failed to execute.
//
// For example:
//
//	frontend.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	pkgLogger.Store(l)
}

// Logger returns the logger set by SetLogger.
func Logger() *slog.Logger { return pkgLogger.Load() }
