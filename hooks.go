package rescache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The controller calls them on hot paths; wrap slow sinks in hooks/async.
type Hooks interface {
	// A read joined a fetch already in flight for the same key.
	ReadCoalesced(key string)

	// A fetch result was not cached because the key's generation moved
	// while it was in flight (a write began or the key was invalidated).
	StaleReadDropped(key string)

	// A write placed its optimistic value in the cache.
	OptimisticApplied(key string)

	// A write failed and the cache entry was restored to its snapshot.
	RolledBack(key string, cause error)

	// Invalidation after a write failed for at least one key.
	SettleFailed(key string, err error)

	// An entry was deleted by the controller on read.
	// reason ∈ {"corrupt", "value_decode"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// GenStore errors (snapshot or bump).
	// count is number of keys involved (1 for Snapshot, N for SnapshotMany).
	GenSnapshotError(count int, err error)
	GenBumpError(storageKey string, err error)

	// Both gen bump and delete failed during invalidation (likely backend outage).
	InvalidateOutage(key string, bumpErr, delErr error)

	// A shared provider is paired with an in-process GenStore: other
	// replicas will not see this process's invalidations.
	LocalGenWithSharedProvider()
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) ReadCoalesced(string)                  {}
func (NopHooks) StaleReadDropped(string)               {}
func (NopHooks) OptimisticApplied(string)              {}
func (NopHooks) RolledBack(string, error)              {}
func (NopHooks) SettleFailed(string, error)            {}
func (NopHooks) SelfHeal(string, string)               {}
func (NopHooks) ProviderSetRejected(string)            {}
func (NopHooks) GenSnapshotError(int, error)           {}
func (NopHooks) GenBumpError(string, error)            {}
func (NopHooks) InvalidateOutage(string, error, error) {}
func (NopHooks) LocalGenWithSharedProvider()           {}
