package rescache

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	gen "github.com/unkn0wn-root/rescache/genstore"
	pr "github.com/unkn0wn-root/rescache/provider"
	"github.com/unkn0wn-root/rescache/provider/memory"
	"github.com/unkn0wn-root/rescache/resource"
)

type product struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
}

// productAPI is a small REST backend for /products with per-route hit
// counters, injectable failures and gates that hold a route until opened.
type productAPI struct {
	t   *testing.T
	srv *httptest.Server

	mu    sync.Mutex
	items map[string]product
	next  int
	hits  map[string]int // "METHOD /path"
	fail  map[string]int
	gates map[string]*gate
}

type gate struct {
	arrived chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gate) open() { g.once.Do(func() { close(g.release) }) }

// wait blocks until a request reached the gate.
func (g *gate) wait(t *testing.T) {
	t.Helper()
	select {
	case <-g.arrived:
	case <-time.After(2 * time.Second):
		t.Fatalf("no request reached the gate")
	}
}

func newProductAPI(t *testing.T) *productAPI {
	t.Helper()
	a := &productAPI{
		t: t,
		items: map[string]product{
			"1": {ID: "1", Title: "Lamp", Price: 20},
			"2": {ID: "2", Title: "Desk", Price: 150},
		},
		hits:  make(map[string]int),
		fail:  make(map[string]int),
		gates: make(map[string]*gate),
	}
	a.srv = httptest.NewServer(http.HandlerFunc(a.serve))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *productAPI) products() resource.Descriptor {
	return resource.MustNew("product", a.srv.URL+"/products")
}

func (a *productAPI) count(route string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits[route]
}

func (a *productAPI) failWith(route string, status int) {
	a.mu.Lock()
	a.fail[route] = status
	a.mu.Unlock()
}

func (a *productAPI) set(p product) {
	a.mu.Lock()
	a.items[p.ID] = p
	a.mu.Unlock()
}

// hold gates route until the returned gate is opened. Test cleanup opens it.
func (a *productAPI) hold(route string) *gate {
	g := &gate{arrived: make(chan struct{}, 16), release: make(chan struct{})}
	a.mu.Lock()
	a.gates[route] = g
	a.mu.Unlock()
	a.t.Cleanup(g.open)
	return g
}

func (a *productAPI) serve(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + r.URL.Path
	a.mu.Lock()
	a.hits[route]++
	status := a.fail[route]
	g := a.gates[route]
	a.mu.Unlock()

	if g != nil {
		select {
		case g.arrived <- struct{}{}:
		default:
		}
		select {
		case <-g.release:
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		http.Error(w, `{"error":"boom"}`, status)
		return
	}

	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/products"), "/")

	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case r.Method == http.MethodGet && id == "":
		out := make([]product, 0, len(a.items))
		for _, p := range a.items {
			out = append(out, p)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		writeJSON(w, http.StatusOK, out)
	case r.Method == http.MethodPost && id == "":
		var p product
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		a.next++
		p.ID = "p" + strconv.Itoa(a.next)
		a.items[p.ID] = p
		writeJSON(w, http.StatusCreated, p)
	case id == "":
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	default:
		p, ok := a.items[id]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, p)
		case http.MethodPut, http.MethodPatch:
			if r.Method == http.MethodPut {
				p = product{}
			}
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			p.ID = id
			a.items[id] = p
			writeJSON(w, http.StatusOK, p)
		case http.MethodDelete:
			delete(a.items, id)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestController(t *testing.T, optsOpt func(*Options)) (*Controller, *memory.Provider) {
	t.Helper()
	mp := memory.New()
	opts := Options{Namespace: "test", Provider: mp}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, mp
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recHooks counts hook calls by name.
type recHooks struct {
	NopHooks
	mu sync.Mutex
	n  map[string]int
}

func newRecHooks() *recHooks { return &recHooks{n: make(map[string]int)} }

func (h *recHooks) inc(name string) {
	h.mu.Lock()
	h.n[name]++
	h.mu.Unlock()
}

func (h *recHooks) count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n[name]
}

func (h *recHooks) ReadCoalesced(string)                  { h.inc("coalesced") }
func (h *recHooks) StaleReadDropped(string)               { h.inc("stale_dropped") }
func (h *recHooks) OptimisticApplied(string)              { h.inc("optimistic") }
func (h *recHooks) RolledBack(string, error)              { h.inc("rolled_back") }
func (h *recHooks) SettleFailed(string, error)            { h.inc("settle_failed") }
func (h *recHooks) SelfHeal(_, reason string)             { h.inc("self_heal:" + reason) }
func (h *recHooks) InvalidateOutage(string, error, error) { h.inc("outage") }
func (h *recHooks) LocalGenWithSharedProvider()           { h.inc("local_gen_shared") }

type failingGenStore struct{ bumpErr error }

var _ gen.GenStore = (*failingGenStore)(nil)

func (s *failingGenStore) Snapshot(context.Context, string) (uint64, error) { return 0, nil }
func (s *failingGenStore) SnapshotMany(context.Context, []string) (map[string]uint64, error) {
	return map[string]uint64{}, nil
}
func (s *failingGenStore) Bump(context.Context, string) (uint64, error) { return 0, s.bumpErr }
func (s *failingGenStore) BumpMany(_ context.Context, keys []string) ([]string, error) {
	return keys, s.bumpErr
}
func (s *failingGenStore) Cleanup(time.Duration)       {}
func (s *failingGenStore) Close(context.Context) error { return nil }

type delErrProvider struct {
	*memory.Provider
	err error
}

var _ pr.Provider = (*delErrProvider)(nil)

func (p *delErrProvider) Del(context.Context, string) error { return p.err }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func mustKey[T any](t *testing.T, req resource.Request[T], p resource.Params) string {
	t.Helper()
	k, err := req.Key(p)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	return k
}

var errBoom = errors.New("boom")
