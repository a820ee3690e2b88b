package rescache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/rescache/codec"
	gen "github.com/unkn0wn-root/rescache/genstore"
	pr "github.com/unkn0wn-root/rescache/provider"
	"github.com/unkn0wn-root/rescache/resource"
	"github.com/unkn0wn-root/rescache/transport"
)

// SetCostFunc returns the provider cost of one stored entry. The default is
// the entry size in bytes.
type SetCostFunc func(storageKey string, raw []byte) int64

// Options configure a Controller.
// Only Namespace and Provider are required; others have sensible defaults.
type Options struct {
	// Required
	Namespace string // logical namespace to avoid collisions, e.g. "shop:prod"
	Provider  pr.Provider

	Codec            codec.Codec         // nil => codec.JSON{}
	GenStore         gen.GenStore        // nil => genstore.Local (in-process)
	Transport        *transport.Executor // nil => transport.New()
	Logger           Logger              // if nil, NopLogger is used
	Hooks            Hooks               // if nil, NopHooks is used
	EntryTTL         time.Duration       // provider TTL of every entry; 0 => 10m
	CleanupInterval  time.Duration       // local genstore sweep; 0 => 1h
	GenRetention     time.Duration       // local genstore retention; 0 => 30d
	ComputeSetCost   SetCostFunc         // default: len(entry)
	BatchConcurrency int                 // ReadBatch fan-out; 0 => 8
}

// Controller is the cache coordinator. It is safe for concurrent use.
type Controller struct {
	store      *store
	exec       *transport.Executor
	log        Logger
	hooks      Hooks
	locks      *keyLocks
	batchLimit int

	closed  atomic.Bool
	qmu     sync.Mutex
	qseq    uint64
	queries map[uint64]func()
}

func New(opts Options) (*Controller, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("rescache: provider is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("rescache: namespace is required")
	}
	if opts.EntryTTL < 0 || opts.BatchConcurrency < 0 {
		return nil, fmt.Errorf("rescache: negative EntryTTL or BatchConcurrency")
	}

	log := withNamespace(coalesce[Logger](opts.Logger, NopLogger{}), opts.Namespace)
	hooks := coalesce[Hooks](opts.Hooks, NopHooks{})

	g := opts.GenStore
	if g == nil {
		// default to in-process generations with periodic cleanup
		g = gen.NewLocal(
			coalesce(opts.CleanupInterval, defaultSweep),
			coalesce(opts.GenRetention, defaultGenRetention),
		)
		if sp, ok := opts.Provider.(pr.Shared); ok && sp.Shared() {
			hooks.LocalGenWithSharedProvider()
			log.Warn("shared provider with local genstore; other replicas will not see invalidations", nil)
		}
	}

	cost := opts.ComputeSetCost
	if cost == nil {
		cost = byteCost
	}
	exec := opts.Transport
	if exec == nil {
		exec = transport.New()
	}

	c := &Controller{
		store: &store{
			ns:       opts.Namespace,
			provider: opts.Provider,
			codec:    coalesce[codec.Codec](opts.Codec, codec.JSON{}),
			gen:      g,
			log:      log,
			hooks:    hooks,
			ttl:      coalesce(opts.EntryTTL, defaultEntryTTL),
			cost:     cost,
			now:      time.Now,
			flights:  make(map[string]flight),
			known:    make(map[string]struct{}),
			watchers: make(map[string]map[chan struct{}]struct{}),
			writing:  make(map[string]int),
		},
		exec:       exec,
		log:        log,
		hooks:      hooks,
		locks:      newKeyLocks(),
		batchLimit: coalesce(opts.BatchConcurrency, defaultBatchConcurrency),
		queries:    make(map[uint64]func()),
	}
	return c, nil
}

// Close stops every Query, cancels fetches in flight and closes the
// GenStore and Provider. Calls after the first return ErrClosed.
func (c *Controller) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	c.qmu.Lock()
	stops := make([]func(), 0, len(c.queries))
	for _, stop := range c.queries {
		stops = append(stops, stop)
	}
	c.qmu.Unlock()
	for _, stop := range stops {
		stop()
	}
	return c.store.close(ctx)
}

// Invalidate marks key as needing a refetch. With exact=false every key
// starting with key is invalidated, e.g. "product:/products" reaches the list
// and every detail of that resource. Watching queries refetch in the
// background.
func (c *Controller) Invalidate(ctx context.Context, key string, exact bool) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if exact {
		return c.store.invalidate(ctx, key)
	}
	return c.store.invalidatePrefix(ctx, key)
}

// InvalidateRequest invalidates the key req renders for p. With nil params
// and exact=false it reaches every key of the resource.
func InvalidateRequest[T any](ctx context.Context, c *Controller, req resource.Request[T], p resource.Params, exact bool) error {
	key, err := req.Key(p)
	if err != nil {
		return err
	}
	return c.Invalidate(ctx, key, exact)
}

func (c *Controller) trackQuery(stop func()) (untrack func()) {
	c.qmu.Lock()
	c.qseq++
	id := c.qseq
	c.queries[id] = stop
	c.qmu.Unlock()
	return func() {
		c.qmu.Lock()
		delete(c.queries, id)
		c.qmu.Unlock()
	}
}

func (c *Controller) checkOpen() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}
