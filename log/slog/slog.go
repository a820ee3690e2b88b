// Package slog routes rescache log lines into a log/slog logger.
package slog

import (
	"context"
	stdslog "log/slog"
	"sort"

	"github.com/unkn0wn-root/rescache"
)

var _ rescache.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

// New wraps l; a nil l uses slog.Default().
func New(l *stdslog.Logger) Logger {
	if l == nil {
		l = stdslog.Default()
	}
	return Logger{L: l}
}

func (s Logger) Debug(msg string, f rescache.Fields) { s.emit(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f rescache.Fields)  { s.emit(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f rescache.Fields)  { s.emit(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f rescache.Fields) { s.emit(stdslog.LevelError, msg, f) }

func (s Logger) emit(level stdslog.Level, msg string, f rescache.Fields) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, level) {
		return
	}
	s.L.LogAttrs(ctx, level, msg, toAttrs(f)...)
}

// toAttrs orders attributes by key so text output is stable across runs.
func toAttrs(f rescache.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]stdslog.Attr, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, stdslog.String(k, err.Error()))
			continue
		}
		out = append(out, stdslog.Any(k, f[k]))
	}
	return out
}
