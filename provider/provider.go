// Package provider defines the byte store a rescache controller caches into.
//
// A provider hands back exactly the bytes it was given. The controller frames
// and validates its own entries, so any compression or framing a store adds
// has to be undone before Get returns. Keys under "entry:<namespace>:" belong
// to the controller; a foreign value found there fails validation and is
// deleted.
package provider

import (
	"context"
	"time"
)

// Provider is a concurrency-safe byte store with per-entry TTLs.
type Provider interface {
	// Get reports a miss as (nil, false, nil). Errors are for a store that
	// could not answer.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set returns ok=false when the store dropped the write under memory
	// pressure. cost is a hint for admission-based stores.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del of a missing key is not an error.
	Del(ctx context.Context, key string) error

	Close(ctx context.Context) error
}

// Shared marks a provider whose entries other processes can read. The
// controller warns when one is paired with in-process generations.
type Shared interface {
	Shared() bool
}
