// Package genstore holds the generation counter behind every cache key.
//
// A value is stored together with the generation observed before its fetch
// began. It is current only while the counter still equals that number, so
// invalidation is a single increment and never races a fetch that is still
// in flight.
package genstore

import (
	"context"
	"time"
)

// GenStore is implemented by Local (one process) and Redis (shared by all
// replicas). An unknown key has generation 0.
type GenStore interface {
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	SnapshotMany(ctx context.Context, storageKeys []string) (map[string]uint64, error)
	// Bump increments atomically and returns the new value.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// BumpMany returns the keys it could not bump along with the cause.
	BumpMany(ctx context.Context, storageKeys []string) (failed []string, err error)
	// Cleanup forgets counters idle for longer than retention. Stores that
	// expire on their own ignore it.
	Cleanup(retention time.Duration)
	Close(context.Context) error
}
