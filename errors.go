package rescache

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/rescache/resource"
	"github.com/unkn0wn-root/rescache/transport"
)

type (
	// ValidationError rejects a request before any I/O.
	ValidationError = resource.ValidationError
	// RequestError is a non-2xx response.
	RequestError = transport.RequestError
	// TransportError is a failure with no usable response.
	TransportError = transport.TransportError
)

var (
	ErrClosed = errors.New("rescache: controller closed")
	// ErrFetchCanceled is wrapped by reads whose fetch was cancelled because a
	// write to the same key began.
	ErrFetchCanceled = errors.New("rescache: fetch canceled by a write")
)

// OptimisticError reports a failed optimistic function. The write was not
// sent; the key was still invalidated.
type OptimisticError struct {
	Key string
	Err error
}

func (e *OptimisticError) Error() string {
	return fmt.Sprintf("optimistic update %q: %v", e.Key, e.Err)
}

func (e *OptimisticError) Unwrap() error { return e.Err }

type InvalidateError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("invalidate %q failed: gen bump and delete failed: bump=%v; delete=%v",
			e.Key, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("invalidate %q: gen bump failed: %v", e.Key, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("invalidate %q: delete failed: %v", e.Key, e.DelErr)
	default:
		return fmt.Sprintf("invalidate %q: unknown error", e.Key)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
