package rescache

// Fields carries structured context for a log line.
type Fields map[string]any

// Logger is the leveled sink the controller writes to. Adapters for logrus,
// zap, zerolog and log/slog live under log/.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// nsLogger stamps every line with the controller namespace so that several
// controllers can share one sink.
type nsLogger struct {
	next Logger
	ns   string
}

func withNamespace(l Logger, ns string) Logger {
	if _, ok := l.(NopLogger); ok {
		return l
	}
	return nsLogger{next: l, ns: ns}
}

func (l nsLogger) Debug(msg string, f Fields) { l.next.Debug(msg, l.tag(f)) }
func (l nsLogger) Info(msg string, f Fields)  { l.next.Info(msg, l.tag(f)) }
func (l nsLogger) Warn(msg string, f Fields)  { l.next.Warn(msg, l.tag(f)) }
func (l nsLogger) Error(msg string, f Fields) { l.next.Error(msg, l.tag(f)) }

func (l nsLogger) tag(f Fields) Fields {
	out := make(Fields, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	if _, set := out["namespace"]; !set {
		out["namespace"] = l.ns
	}
	return out
}
