// Package logrus adapts a logrus entry to rescache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/rescache"
)

var _ rescache.Logger = Logger{}

// Logger forwards to E. An "err" field holding an error is attached with
// WithError so hooks and formatters see it under logrus.ErrorKey.
type Logger struct{ E *logrus.Entry }

// New wraps l.
func New(l *logrus.Logger) Logger { return Logger{E: logrus.NewEntry(l)} }

func (l Logger) Debug(msg string, f rescache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f rescache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f rescache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f rescache.Fields) { l.with(f).Error(msg) }

func (l Logger) with(f rescache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	out := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			out[logrus.ErrorKey] = err
			continue
		}
		out[k] = v
	}
	return l.E.WithFields(out)
}
