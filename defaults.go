package rescache

import "time"

const (
	defaultEntryTTL         = 10 * time.Minute
	defaultSweep            = time.Hour
	defaultGenRetention     = 30 * 24 * time.Hour
	defaultBatchConcurrency = 8
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func byteCost(_ string, raw []byte) int64 { return int64(len(raw)) }
