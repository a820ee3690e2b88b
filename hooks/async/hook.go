// Package asynchook moves hook delivery off the hot path: events are queued
// and handed to the inner Hooks by a fixed worker pool. When the queue is
// full, events are dropped.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	ctl, _ := rescache.New(rescache.Options{
//	    Namespace: "shop:prod",
//	    Provider:  memory.New(),
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/rescache"
)

type Hooks struct {
	inner   rescache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against concurrent enqueue
	closed  bool
	dropped atomic.Uint64
}

var _ rescache.Hooks = (*Hooks)(nil)

func New(inner rescache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are
// dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the queue was full
// or the hooks were closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) ReadCoalesced(k string)     { h.try(func() { h.inner.ReadCoalesced(k) }) }
func (h *Hooks) StaleReadDropped(k string)  { h.try(func() { h.inner.StaleReadDropped(k) }) }
func (h *Hooks) OptimisticApplied(k string) { h.try(func() { h.inner.OptimisticApplied(k) }) }
func (h *Hooks) RolledBack(k string, cause error) {
	h.try(func() { h.inner.RolledBack(k, cause) })
}
func (h *Hooks) SettleFailed(k string, err error) { h.try(func() { h.inner.SettleFailed(k, err) }) }
func (h *Hooks) SelfHeal(k, r string)             { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string)     { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) GenBumpError(k string, err error) { h.try(func() { h.inner.GenBumpError(k, err) }) }
func (h *Hooks) GenSnapshotError(n int, err error) {
	h.try(func() { h.inner.GenSnapshotError(n, err) })
}
func (h *Hooks) InvalidateOutage(k string, be, de error) {
	h.try(func() { h.inner.InvalidateOutage(k, be, de) })
}
func (h *Hooks) LocalGenWithSharedProvider() {
	h.try(func() { h.inner.LocalGenWithSharedProvider() })
}
