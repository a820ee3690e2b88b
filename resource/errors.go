package resource

import "fmt"

// Kind classifies a ValidationError.
type Kind string

const (
	KindInvalidParam      Kind = "invalid_param"
	KindMissingID         Kind = "missing_id"
	KindInvalidMethod     Kind = "invalid_method"
	KindInvalidDescriptor Kind = "invalid_descriptor"
	KindInvalidOption     Kind = "invalid_option"
	KindGetAsWrite        Kind = "get_as_write"
	KindResponseType      Kind = "response_type"
)

// ValidationError reports a programmer error caught before any I/O:
// malformed parameters, a bad descriptor, or misuse of a request.
type ValidationError struct {
	Kind   Kind
	Field  string // offending parameter, option or field; may be empty
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("resource: %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("resource: %s %q: %s", e.Kind, e.Field, e.Reason)
}

// Is matches another *ValidationError of the same Kind, so callers can write
// errors.Is(err, &resource.ValidationError{Kind: resource.KindMissingID}).
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

func invalid(kind Kind, field, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Reason: fmt.Sprintf(format, args...)}
}
