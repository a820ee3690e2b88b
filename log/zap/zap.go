// Package zap adapts a zap logger to rescache.Logger.
package zap

import (
	"go.uber.org/zap"

	"github.com/unkn0wn-root/rescache"
)

var _ rescache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New wraps l; a nil l discards everything.
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l}
}

func (z Logger) Debug(msg string, f rescache.Fields) { z.L.Debug(msg, zf(f)...) }
func (z Logger) Info(msg string, f rescache.Fields)  { z.L.Info(msg, zf(f)...) }
func (z Logger) Warn(msg string, f rescache.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z Logger) Error(msg string, f rescache.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f rescache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
