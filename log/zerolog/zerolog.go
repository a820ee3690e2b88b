// Package zerolog adapts a zerolog logger to rescache.Logger.
package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/rescache"
)

var _ rescache.Logger = Logger{}

type Logger struct{ L zerolog.Logger }

func New(l zerolog.Logger) Logger { return Logger{L: l} }

func (z Logger) Debug(msg string, f rescache.Fields) { emit(z.L.Debug(), msg, f) }
func (z Logger) Info(msg string, f rescache.Fields)  { emit(z.L.Info(), msg, f) }
func (z Logger) Warn(msg string, f rescache.Fields)  { emit(z.L.Warn(), msg, f) }
func (z Logger) Error(msg string, f rescache.Fields) { emit(z.L.Error(), msg, f) }

// emit is a no-op for disabled levels (zerolog returns a nil event).
func emit(e *zerolog.Event, msg string, f rescache.Fields) {
	if e == nil {
		return
	}
	for k, v := range f {
		if err, ok := v.(error); ok {
			e = e.AnErr(k, err)
			continue
		}
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}
