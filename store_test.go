package rescache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unkn0wn-root/rescache/internal/wire"
	"github.com/unkn0wn-root/rescache/provider/memory"
)

// TestStoreGenerationGuardsWrites verifies that a write is cached only under
// the generation it observed and that invalidation keeps the entry as stale.
func TestStoreGenerationGuardsWrites(t *testing.T) {
	ctx := context.Background()
	h := newRecHooks()
	c, _ := newTestController(t, func(o *Options) { o.Hooks = h })
	s := c.store

	k := "product:/p/1"
	obs, err := s.snapshotGen(ctx, k)
	if err != nil || obs != 0 {
		t.Fatalf("snapshotGen: got %d err=%v, want 0", obs, err)
	}
	if ok, err := s.put(ctx, k, []byte(`{"id":"1"}`), obs, 0, time.Now()); err != nil || !ok {
		t.Fatalf("put: ok=%v err=%v", ok, err)
	}
	e, ok, err := s.peek(ctx, k)
	if err != nil || !ok || !e.current || string(e.payload) != `{"id":"1"}` {
		t.Fatalf("peek after put: ok=%v err=%v entry=%+v", ok, err, e)
	}

	if err := s.invalidate(ctx, k); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	e, ok, err = s.peek(ctx, k)
	if err != nil || !ok {
		t.Fatalf("invalidated entry should stay readable, ok=%v err=%v", ok, err)
	}
	if e.current {
		t.Fatalf("invalidated entry must not be current")
	}

	// A load that observed gen 0 finishes after the invalidation.
	if ok, err := s.put(ctx, k, []byte(`{"id":"old"}`), obs, 0, time.Now()); err != nil || ok {
		t.Fatalf("stale put should be dropped, ok=%v err=%v", ok, err)
	}
	if got := h.count("stale_dropped"); got != 1 {
		t.Fatalf("StaleReadDropped calls = %d, want 1", got)
	}
	if e, _, _ := s.peek(ctx, k); string(e.payload) != `{"id":"1"}` {
		t.Fatalf("stale put overwrote the entry: %s", e.payload)
	}

	cur, _ := s.snapshotGen(ctx, k)
	if ok, err := s.put(ctx, k, []byte(`{"id":"new"}`), cur, 0, time.Now()); err != nil || !ok {
		t.Fatalf("put with current gen: ok=%v err=%v", ok, err)
	}
	if e, _, _ := s.peek(ctx, k); !e.current || string(e.payload) != `{"id":"new"}` {
		t.Fatalf("entry after fresh put: %+v", e)
	}
}

func TestEntryFreshness(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name   string
		e      entry
		maxAge time.Duration
		want   bool
	}{
		{"young", entry{current: true, fetchedAt: now.Add(-time.Second)}, time.Minute, true},
		{"old", entry{current: true, fetchedAt: now.Add(-2 * time.Minute)}, time.Minute, false},
		{"zero max age", entry{current: true, fetchedAt: now}, 0, false},
		{"invalidated", entry{fetchedAt: now}, time.Minute, false},
		{"optimistic", entry{current: true, optimistic: true, fetchedAt: now.Add(-time.Hour)}, time.Minute, true},
		{"optimistic settled", entry{optimistic: true, fetchedAt: now}, time.Minute, false},
	}
	for _, tc := range cases {
		if got := tc.e.fresh(now, tc.maxAge); got != tc.want {
			t.Errorf("%s: fresh=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestStoreSelfHealsCorruptEntry(t *testing.T) {
	ctx := context.Background()
	h := newRecHooks()
	c, mp := newTestController(t, func(o *Options) { o.Hooks = h })
	s := c.store

	sk := s.storageKey("bad")
	if ok, err := mp.Set(ctx, sk, []byte("not-wire-format"), 1, time.Minute); err != nil || !ok {
		t.Fatalf("inject corrupt: ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.peek(ctx, "bad"); err != nil || ok {
		t.Fatalf("peek on corrupt should miss, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := mp.Get(ctx, sk); ok {
		t.Fatalf("corrupt entry was not deleted by self-heal")
	}
	if got := h.count("self_heal:corrupt"); got != 1 {
		t.Fatalf("SelfHeal(corrupt) calls = %d, want 1", got)
	}
}

func TestInvalidateBothFailReturnsError(t *testing.T) {
	ctx := context.Background()
	delErr := errors.New("del failed")
	bumpErr := errors.New("bump failed")
	h := newRecHooks()

	c, _ := newTestController(t, func(o *Options) {
		o.Provider = &delErrProvider{Provider: memory.New(), err: delErr}
		o.GenStore = &failingGenStore{bumpErr: bumpErr}
		o.Hooks = h
	})

	err := c.Invalidate(ctx, "k1", true)
	var ie *InvalidateError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InvalidateError, got %T: %v", err, err)
	}
	if ie.Key != "k1" || !errors.Is(err, delErr) || !errors.Is(err, bumpErr) {
		t.Fatalf("unexpected InvalidateError: %+v", ie)
	}
	if got := h.count("outage"); got != 1 {
		t.Fatalf("InvalidateOutage calls = %d, want 1", got)
	}
}

func TestInvalidateBumpFailDeleteOKNoError(t *testing.T) {
	ctx := context.Background()
	c, mp := newTestController(t, func(o *Options) {
		o.GenStore = &failingGenStore{bumpErr: errBoom}
	})
	s := c.store

	if ok, err := s.put(ctx, "k2", []byte(`1`), 0, 0, time.Now()); err != nil || !ok {
		t.Fatalf("put: ok=%v err=%v", ok, err)
	}
	if err := c.Invalidate(ctx, "k2", true); err != nil {
		t.Fatalf("expected no error when bump fails but delete succeeds; got %v", err)
	}
	if _, ok, _ := mp.Get(ctx, s.storageKey("k2")); ok {
		t.Fatalf("entry should be deleted when its generation cannot be bumped")
	}
}

func TestInvalidatePrefixOutageJoinsErrors(t *testing.T) {
	ctx := context.Background()
	delErr := errors.New("del failed")
	c, _ := newTestController(t, func(o *Options) {
		o.Provider = &delErrProvider{Provider: memory.New(), err: delErr}
		o.GenStore = &failingGenStore{bumpErr: errBoom}
	})
	s := c.store
	for _, k := range []string{"a:1", "a:2", "b:1"} {
		if ok, err := s.put(ctx, k, []byte(`1`), 0, 0, time.Now()); err != nil || !ok {
			t.Fatalf("put %s: ok=%v err=%v", k, ok, err)
		}
	}

	err := c.Invalidate(ctx, "a:", false)
	if !errors.Is(err, delErr) {
		t.Fatalf("expected joined delete errors, got %v", err)
	}
	var ie *InvalidateError
	if !errors.As(err, &ie) || (ie.Key != "a:1" && ie.Key != "a:2") {
		t.Fatalf("expected InvalidateError for an a: key, got %v", err)
	}
}

func TestInvalidatePrefixReachesKnownKeys(t *testing.T) {
	ctx := context.Background()
	c, mp := newTestController(t, nil)
	s := c.store
	for _, k := range []string{"a:1", "a:2", "b:1"} {
		if ok, err := s.put(ctx, k, []byte(`1`), 0, 0, time.Now()); err != nil || !ok {
			t.Fatalf("put %s: ok=%v err=%v", k, ok, err)
		}
	}
	// a:2 was evicted behind the controller's back.
	_ = mp.Del(ctx, s.storageKey("a:2"))

	if err := c.Invalidate(ctx, "a:", false); err != nil {
		t.Fatalf("Invalidate prefix: %v", err)
	}
	if e, ok, _ := s.peek(ctx, "a:1"); !ok || e.current {
		t.Fatalf("a:1 should be stale, ok=%v current=%v", ok, e.current)
	}
	if e, ok, _ := s.peek(ctx, "b:1"); !ok || !e.current {
		t.Fatalf("b:1 should be untouched, ok=%v current=%v", ok, e.current)
	}

	s.mu.Lock()
	_, keptA1 := s.known["a:1"]
	_, keptA2 := s.known["a:2"]
	s.mu.Unlock()
	if !keptA1 || keptA2 {
		t.Fatalf("known keys after prune: a:1=%v a:2=%v", keptA1, keptA2)
	}
}

func TestStoreCancelAbortsFlight(t *testing.T) {
	ctx := context.Background()
	c, mp := newTestController(t, nil)
	s := c.store

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := s.fetch(ctx, "k", time.Minute, false, func(ctx context.Context) ([]byte, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		done <- err
	}()
	<-started

	if err := s.cancel(ctx, "k"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, ErrFetchCanceled) || !errors.Is(err, context.Canceled) {
			t.Fatalf("expected ErrFetchCanceled wrapping context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cancelled fetch did not return")
	}
	if mp.Len() != 0 {
		t.Fatalf("cancelled fetch must not be cached")
	}
	if g, _ := s.snapshotGen(ctx, "k"); g != 1 {
		t.Fatalf("cancel should bump the generation, got %d", g)
	}
}

func TestStoreWatchersAreSignalled(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, nil)
	s := c.store

	ch, stop := s.watch("a:1")
	other, stopOther := s.watch("b:1")
	defer stopOther()

	if err := s.invalidate(ctx, "a:1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	select {
	case <-ch:
	default:
		t.Fatalf("watcher not signalled on invalidate")
	}

	// Watched keys are reached by prefix even when nothing is cached.
	if err := s.invalidatePrefix(ctx, "a:"); err != nil {
		t.Fatalf("invalidatePrefix: %v", err)
	}
	select {
	case <-ch:
	default:
		t.Fatalf("watcher not signalled on prefix invalidation")
	}
	select {
	case <-other:
		t.Fatalf("unrelated watcher was signalled")
	default:
	}

	stop()
	s.mu.Lock()
	_, still := s.watchers["a:1"]
	s.mu.Unlock()
	if still {
		t.Fatalf("stop should remove the watcher set")
	}
}

type sharedProvider struct{ *memory.Provider }

func (sharedProvider) Shared() bool { return true }

func TestNewWarnsOnSharedProviderWithLocalGens(t *testing.T) {
	h := newRecHooks()
	newTestController(t, func(o *Options) {
		o.Provider = sharedProvider{memory.New()}
		o.Hooks = h
	})
	if got := h.count("local_gen_shared"); got != 1 {
		t.Fatalf("LocalGenWithSharedProvider calls = %d, want 1", got)
	}

	h2 := newRecHooks()
	newTestController(t, func(o *Options) {
		o.Provider = sharedProvider{memory.New()}
		o.GenStore = &failingGenStore{}
		o.Hooks = h2
	})
	if got := h2.count("local_gen_shared"); got != 0 {
		t.Fatalf("explicit GenStore should not warn, got %d calls", got)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{Namespace: "x"}); err == nil {
		t.Fatalf("expected error without provider")
	}
	if _, err := New(Options{Provider: memory.New()}); err == nil {
		t.Fatalf("expected error without namespace")
	}
	if _, err := New(Options{Namespace: "x", Provider: memory.New(), EntryTTL: -time.Second}); err == nil {
		t.Fatalf("expected error for negative EntryTTL")
	}
}

func TestHasKeyPrefixMatchesWholeElements(t *testing.T) {
	cases := []struct {
		key, prefix string
		want        bool
	}{
		{"product:/products/1", "product:/products/1", true},
		{"product:/products/1/reviews", "product:/products/1", true},
		{"product:/products/1?expand=all", "product:/products/1", true},
		{"product:/products/10", "product:/products/1", false},
		{"product:/products/100", "product:/products/1", false},
		{"product:/products", "product:", true},
		{"product:/products/2", "product:/products/", true},
		{"production:/x", "product", false},
		{"a:1", "", true},
	}
	for _, tc := range cases {
		if got := hasKeyPrefix(tc.key, tc.prefix); got != tc.want {
			t.Errorf("hasKeyPrefix(%q, %q) = %v, want %v", tc.key, tc.prefix, got, tc.want)
		}
	}
}

func TestInvalidatePrefixSkipsSiblingIDs(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, nil)
	s := c.store
	keys := []string{"product:/products/1", "product:/products/1?v=2", "product:/products/10", "product:/products/100"}
	for _, k := range keys {
		if ok, err := s.put(ctx, k, []byte(`1`), 0, 0, time.Now()); err != nil || !ok {
			t.Fatalf("put %s: ok=%v err=%v", k, ok, err)
		}
	}

	if err := c.Invalidate(ctx, "product:/products/1", false); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	for _, k := range keys {
		e, ok, _ := s.peek(ctx, k)
		wantStale := k == "product:/products/1" || k == "product:/products/1?v=2"
		if !ok || e.current == wantStale {
			t.Fatalf("%s: ok=%v current=%v, want stale=%v", k, ok, e.current, wantStale)
		}
	}
}

func TestPutSkipsPlainWritesWhileKeyIsWritten(t *testing.T) {
	ctx := context.Background()
	h := newRecHooks()
	c, _ := newTestController(t, func(o *Options) { o.Hooks = h })
	s := c.store
	k := "product:/p/1"

	done := s.beginWrite(k)
	if ok, err := s.put(ctx, k, []byte(`1`), 0, 0, time.Now()); err != nil || ok {
		t.Fatalf("plain put during a write: ok=%v err=%v, want skipped", ok, err)
	}
	if ok, err := s.put(ctx, k, []byte(`2`), 0, wire.FlagOptimistic, time.Now()); err != nil || !ok {
		t.Fatalf("optimistic put during a write: ok=%v err=%v", ok, err)
	}
	done()
	if ok, err := s.put(ctx, k, []byte(`3`), 0, 0, time.Now()); err != nil || !ok {
		t.Fatalf("plain put after the write: ok=%v err=%v", ok, err)
	}
	if got := h.count("stale_dropped"); got != 1 {
		t.Fatalf("stale_dropped = %d, want 1", got)
	}
	s.mu.Lock()
	left := len(s.writing)
	s.mu.Unlock()
	if left != 0 {
		t.Fatalf("write marks left behind: %d", left)
	}
}
