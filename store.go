package rescache

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/rescache/codec"
	gen "github.com/unkn0wn-root/rescache/genstore"
	"github.com/unkn0wn-root/rescache/internal/util"
	"github.com/unkn0wn-root/rescache/internal/wire"
	pr "github.com/unkn0wn-root/rescache/provider"
)

// entry is a decoded cache record as seen by one read.
type entry struct {
	payload    []byte
	gen        uint64
	fetchedAt  time.Time
	optimistic bool
	current    bool // gen equals the key's generation at read time
}

// fresh reports whether e may be served without a fetch. An optimistic entry
// stays fresh until its write settles and bumps the generation.
func (e entry) fresh(now time.Time, maxAge time.Duration) bool {
	if !e.current {
		return false
	}
	if e.optimistic {
		return true
	}
	return maxAge > 0 && now.Sub(e.fetchedAt) <= maxAge
}

type fetched struct {
	payload    []byte
	fetchedAt  time.Time
	optimistic bool
	cached     bool // served from the provider without a load
}

type loadFunc func(ctx context.Context) ([]byte, error)

type flight struct {
	id     uint64
	cancel context.CancelFunc
}

// store owns the provider keyspace of one controller: wire framing,
// generation checks, read coalescing, in-flight cancellation and
// invalidation fan-out to watchers.
type store struct {
	ns       string
	provider pr.Provider
	codec    codec.Codec
	gen      gen.GenStore
	log      Logger
	hooks    Hooks
	ttl      time.Duration
	cost     SetCostFunc
	now      func() time.Time

	sf singleflight.Group

	// putLocks order the generation check and provider write of puts to one
	// key, so a load cannot land between an optimistic write's check and set.
	putLocks [putStripes]sync.Mutex

	mu       sync.Mutex
	seq      uint64
	flights  map[string]flight
	known    map[string]struct{} // keys written by this process, for prefix invalidation
	watchers map[string]map[chan struct{}]struct{}
	writing  map[string]int // keys with a write between begin and settle
}

const putStripes = 64

func (s *store) putLock(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.putLocks[h.Sum32()%putStripes]
}

// beginWrite marks key as being written until the returned func is called.
// Loads that complete meanwhile are not cached.
func (s *store) beginWrite(key string) func() {
	s.mu.Lock()
	s.writing[key]++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		if s.writing[key]--; s.writing[key] <= 0 {
			delete(s.writing, key)
		}
		s.mu.Unlock()
	}
}

func (s *store) inWrite(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writing[key] > 0
}

func (s *store) storageKey(key string) string { return util.StorageKey(s.ns, key) }

// peek returns the entry for key whatever its generation or age.
func (s *store) peek(ctx context.Context, key string) (entry, bool, error) {
	sk := s.storageKey(key)
	raw, ok, err := s.provider.Get(ctx, sk)
	if err != nil || !ok {
		return entry{}, false, err
	}
	w, err := wire.Decode(raw)
	if err != nil {
		s.heal(ctx, sk, "corrupt")
		return entry{}, false, nil
	}
	e := entry{
		payload:    w.Payload,
		gen:        w.Gen,
		fetchedAt:  time.Unix(0, w.FetchedAt),
		optimistic: w.Optimistic(),
	}
	if cur, err := s.snapshotGen(ctx, key); err == nil {
		e.current = cur == w.Gen
	}
	return e, true, nil
}

// raw returns a copy of the stored bytes for key, for snapshot and restore.
func (s *store) raw(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok, err := s.provider.Get(ctx, s.storageKey(key))
	if err != nil || !ok {
		return nil, false, err
	}
	return append([]byte(nil), b...), true, nil
}

// restore puts back bytes captured by raw, or removes the entry when there
// were none.
func (s *store) restore(ctx context.Context, key string, b []byte, had bool) error {
	sk := s.storageKey(key)
	if !had {
		return s.provider.Del(ctx, sk)
	}
	ok, err := s.provider.Set(ctx, sk, b, s.cost(sk, b), s.ttl)
	if err != nil {
		return err
	}
	if !ok {
		s.hooks.ProviderSetRejected(sk)
		// a rejected restore must not leave the optimistic value behind
		return s.provider.Del(ctx, sk)
	}
	return nil
}

// heal deletes an entry the controller cannot use.
func (s *store) heal(ctx context.Context, sk, reason string) {
	_ = s.provider.Del(ctx, sk)
	s.hooks.SelfHeal(sk, reason)
	s.log.Debug("self-healed entry", Fields{"key": sk, "reason": reason})
}

func (s *store) discard(ctx context.Context, key, reason string) {
	s.heal(ctx, s.storageKey(key), reason)
}

func (s *store) snapshotGen(ctx context.Context, key string) (uint64, error) {
	g, err := s.gen.Snapshot(ctx, s.storageKey(key))
	if err != nil {
		s.hooks.GenSnapshotError(1, err)
		s.log.Warn("generation snapshot failed", Fields{"key": key, "err": err})
	}
	return g, err
}

func (s *store) bump(ctx context.Context, key string) (uint64, error) {
	sk := s.storageKey(key)
	g, err := s.gen.Bump(ctx, sk)
	if err != nil {
		s.hooks.GenBumpError(sk, err)
		s.log.Warn("generation bump failed", Fields{"key": key, "err": err})
	}
	return g, err
}

// put stores payload iff the key's generation still equals obs. Plain
// (non-optimistic) payloads are also dropped while a write to key is open.
func (s *store) put(ctx context.Context, key string, payload []byte, obs uint64, flags byte, at time.Time) (bool, error) {
	sk := s.storageKey(key)
	mu := s.putLock(key)
	mu.Lock()
	defer mu.Unlock()

	if flags&wire.FlagOptimistic == 0 && s.inWrite(key) {
		s.hooks.StaleReadDropped(key)
		s.log.Debug("cache write skipped (write in progress)", Fields{"key": key})
		return false, nil
	}
	cur, err := s.snapshotGen(ctx, key)
	if err != nil {
		return false, err
	}
	if cur != obs {
		s.hooks.StaleReadDropped(key)
		s.log.Debug("cache write skipped (gen mismatch)", Fields{"key": key, "obs": obs, "gen": cur})
		return false, nil
	}
	b := wire.Encode(wire.Entry{Gen: obs, FetchedAt: at.UnixNano(), Flags: flags, Payload: payload})
	ok, err := s.provider.Set(ctx, sk, b, s.cost(sk, b), s.ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		s.hooks.ProviderSetRejected(sk)
		s.log.Debug("cache write rejected by provider (pressure)", Fields{"key": key})
		return false, nil
	}
	s.mu.Lock()
	s.known[key] = struct{}{}
	s.mu.Unlock()
	return true, nil
}

// fetch serves a fresh entry or runs load, coalescing concurrent loads of one
// key. The load result is cached under the generation observed before the
// request went out. A caller whose ctx ends stops waiting; the shared load
// keeps running for the others.
func (s *store) fetch(ctx context.Context, key string, maxAge time.Duration, force bool, load loadFunc) (fetched, error) {
	if !force {
		e, ok, err := s.peek(ctx, key)
		if err != nil {
			s.log.Warn("cache read failed; fetching", Fields{"key": key, "err": err})
		} else if ok && e.fresh(s.now(), maxAge) {
			return fetched{payload: e.payload, fetchedAt: e.fetchedAt, optimistic: e.optimistic, cached: true}, nil
		}
	}

	leader := false
	ch := s.sf.DoChan(key, func() (any, error) {
		leader = true
		return s.load(context.WithoutCancel(ctx), key, load)
	})
	select {
	case res := <-ch:
		// the leader's write to leader happens before its result is sent
		if res.Shared && !leader {
			s.hooks.ReadCoalesced(key)
		}
		if res.Err != nil {
			return fetched{}, res.Err
		}
		return res.Val.(fetched), nil
	case <-ctx.Done():
		return fetched{}, ctx.Err()
	}
}

func (s *store) load(ctx context.Context, key string, load loadFunc) (fetched, error) {
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	id := s.register(key, cancel)
	defer s.unregister(key, id)

	obs, genErr := s.snapshotGen(ctx, key)

	payload, err := load(fctx)
	if fctx.Err() != nil {
		if err == nil {
			err = fctx.Err()
		}
		return fetched{}, fmt.Errorf("%w: %w", ErrFetchCanceled, err)
	}
	if err != nil {
		return fetched{}, err
	}

	out := fetched{payload: payload, fetchedAt: s.now()}
	if genErr == nil {
		if _, err := s.put(ctx, key, payload, obs, 0, out.fetchedAt); err != nil {
			s.log.Warn("cache write failed", Fields{"key": key, "err": err})
		}
	}
	return out, nil
}

func (s *store) register(key string, cancel context.CancelFunc) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.flights[key] = flight{id: s.seq, cancel: cancel}
	return s.seq
}

func (s *store) unregister(key string, id uint64) {
	s.mu.Lock()
	if f, ok := s.flights[key]; ok && f.id == id {
		delete(s.flights, key)
	}
	s.mu.Unlock()
}

// cancel aborts the fetch in flight for key, if any, and bumps the key's
// generation so a result that still arrives is not cached.
func (s *store) cancel(ctx context.Context, key string) error {
	s.mu.Lock()
	f, ok := s.flights[key]
	delete(s.flights, key)
	s.mu.Unlock()
	if ok {
		f.cancel()
	}
	s.sf.Forget(key)
	_, err := s.bump(ctx, key)
	return err
}

// invalidate marks key as needing a refetch. The entry stays readable as
// stale data. If the generation cannot be bumped the entry is deleted
// instead.
func (s *store) invalidate(ctx context.Context, key string) error {
	defer s.notify(key)
	s.sf.Forget(key)

	_, bumpErr := s.bump(ctx, key)
	if bumpErr == nil {
		s.log.Debug("invalidated key", Fields{"key": key})
		return nil
	}
	delErr := s.provider.Del(ctx, s.storageKey(key))
	if delErr == nil {
		return nil
	}
	s.hooks.InvalidateOutage(key, bumpErr, delErr)
	return &InvalidateError{Key: key, BumpErr: bumpErr, DelErr: delErr}
}

// invalidatePrefix invalidates every key this process knows of (cached,
// in flight or watched) that starts with prefix.
func (s *store) invalidatePrefix(ctx context.Context, prefix string) error {
	keys := s.matching(prefix)
	defer s.notifyPrefix(prefix)
	if len(keys) == 0 {
		return nil
	}

	byStorage := make(map[string]string, len(keys))
	sks := make([]string, 0, len(keys))
	for _, k := range keys {
		s.sf.Forget(k)
		sk := s.storageKey(k)
		byStorage[sk] = k
		sks = append(sks, sk)
	}

	var errs []error
	failed, bumpErr := s.gen.BumpMany(ctx, sks)
	for _, sk := range failed {
		s.hooks.GenBumpError(sk, bumpErr)
		if delErr := s.provider.Del(ctx, sk); delErr != nil {
			key := byStorage[sk]
			s.hooks.InvalidateOutage(key, bumpErr, delErr)
			errs = append(errs, &InvalidateError{Key: key, BumpErr: bumpErr, DelErr: delErr})
		}
	}
	s.log.Debug("invalidated prefix", Fields{"prefix": prefix, "keys": len(keys), "failed": len(failed)})
	s.prune(ctx, keys)
	return errors.Join(errs...)
}

// hasKeyPrefix matches whole key elements: "product:/products/1" reaches
// "/products/1/reviews" and "/products/1?x=1" but not "/products/10".
func hasKeyPrefix(key, prefix string) bool {
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	if len(key) == len(prefix) || prefix == "" {
		return true
	}
	if strings.ContainsAny(prefix[len(prefix)-1:], ":/?&") {
		return true
	}
	switch key[len(prefix)] {
	case '/', '?':
		return true
	}
	return false
}

func (s *store) matching(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	add := func(k string) {
		if _, dup := seen[k]; dup || !hasKeyPrefix(k, prefix) {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for k := range s.known {
		add(k)
	}
	for k := range s.flights {
		add(k)
	}
	for k := range s.watchers {
		add(k)
	}
	return out
}

// prune forgets known keys whose entries the provider has already dropped.
func (s *store) prune(ctx context.Context, keys []string) {
	for _, k := range keys {
		if _, ok, err := s.provider.Get(ctx, s.storageKey(k)); err != nil || ok {
			continue
		}
		s.mu.Lock()
		delete(s.known, k)
		s.mu.Unlock()
	}
}

// watch returns a channel signalled (coalesced, never blocking) whenever key
// is invalidated or given an optimistic value.
func (s *store) watch(key string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	set := s.watchers[key]
	if set == nil {
		set = make(map[chan struct{}]struct{})
		s.watchers[key] = set
	}
	set[ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		if set := s.watchers[key]; set != nil {
			delete(set, ch)
			if len(set) == 0 {
				delete(s.watchers, key)
			}
		}
		s.mu.Unlock()
	}
}

func (s *store) notify(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.watchers[key] {
		signal(ch)
	}
}

func (s *store) notifyPrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, set := range s.watchers {
		if !hasKeyPrefix(k, prefix) {
			continue
		}
		for ch := range set {
			signal(ch)
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *store) close(ctx context.Context) error {
	s.mu.Lock()
	for k, f := range s.flights {
		f.cancel()
		delete(s.flights, k)
	}
	s.mu.Unlock()

	// Close gen store first (best effort)
	genErr := s.gen.Close(ctx)
	return errors.Join(genErr, s.provider.Close(ctx))
}
