package rescache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/unkn0wn-root/rescache/resource"
)

// State is a snapshot of a Query.
type State[T any] struct {
	Data       T
	Loaded     bool
	Loading    bool
	Stale      bool
	Disabled   bool
	Optimistic bool
	FetchedAt  time.Time
	Err        error
}

// Query keeps the result of one read current: it fetches once, refetches
// every PollInterval when the request sets one, and refetches whenever its
// key is invalidated. Optimistic values written to the key show up without a
// fetch.
type Query[T any] struct {
	c      *Controller
	req    resource.Request[T]
	params resource.Params
	key    string

	mu      sync.RWMutex
	state   State[T]
	changes chan struct{}

	cancel  context.CancelFunc
	done    chan struct{}
	untrack func()
}

// Watch starts a Query for req and p. It runs until ctx ends, Close is
// called or the controller is closed.
func Watch[T any](ctx context.Context, c *Controller, req resource.Request[T], p resource.Params) *Query[T] {
	qctx, cancel := context.WithCancel(ctx)
	q := &Query[T]{
		c:       c,
		req:     req,
		params:  p,
		changes: make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	key, err := req.Key(p)
	if err == nil {
		err = c.checkOpen()
	}
	if err != nil {
		q.state.Err = err
		close(q.done)
		return q
	}
	q.key = key
	q.state.Loading = p != nil

	q.untrack = c.trackQuery(q.Close)
	ch, stop := c.store.watch(key)
	go q.run(qctx, ch, stop)
	return q
}

func (q *Query[T]) run(ctx context.Context, invalidated <-chan struct{}, stop func()) {
	defer close(q.done)
	defer q.untrack()
	defer stop()

	q.refresh(ctx, false)

	var tick <-chan time.Time
	if poll := q.req.PollInterval(); poll > 0 && q.params != nil {
		t := time.NewTicker(poll)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			q.refresh(ctx, true)
		case <-invalidated:
			if !q.showOptimistic(ctx) {
				q.refresh(ctx, false)
			}
		}
	}
}

// showOptimistic publishes a current optimistic entry without fetching.
func (q *Query[T]) showOptimistic(ctx context.Context) bool {
	e, ok, err := q.c.store.peek(ctx, q.key)
	if err != nil || !ok || !e.current || !e.optimistic {
		return false
	}
	var v T
	if err := q.c.store.codec.Decode(e.payload, &v); err != nil {
		return false
	}
	q.update(func(s *State[T]) {
		s.Data = v
		s.Loaded = true
		s.Optimistic = true
		s.Stale = false
		s.FetchedAt = e.fetchedAt
		s.Err = nil
	})
	return true
}

func (q *Query[T]) refresh(ctx context.Context, force bool) error {
	if q.params != nil {
		q.update(func(s *State[T]) { s.Loading = true })
	}
	res, err := read(ctx, q.c, q.req, q.params, force)
	q.update(func(s *State[T]) {
		s.Loading = false
		s.Disabled = res.Disabled
		if errors.Is(err, ErrFetchCanceled) || (err != nil && ctx.Err() != nil) {
			// a write took over the key or the query stopped; settle
			// will signal again
			return
		}
		if res.Loaded {
			s.Data = res.Data
			s.Loaded = true
			s.FetchedAt = res.FetchedAt
		}
		s.Stale = res.Stale
		s.Optimistic = res.Optimistic
		s.Err = err
	})
	return err
}

func (q *Query[T]) update(fn func(*State[T])) {
	q.mu.Lock()
	fn(&q.state)
	q.mu.Unlock()
	signal(q.changes)
}

// State returns the current state.
func (q *Query[T]) State() State[T] {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.state
}

// Changes is signalled after every state change. Signals coalesce: a
// receiver sees at least one signal after the last change.
func (q *Query[T]) Changes() <-chan struct{} { return q.changes }

// Reload refetches now, ignoring the cached entry's age.
func (q *Query[T]) Reload(ctx context.Context) error {
	if q.key == "" {
		return q.State().Err
	}
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	return q.refresh(ctx, true)
}

// Close stops the query and waits for its goroutine to exit.
func (q *Query[T]) Close() {
	q.cancel()
	<-q.done
	if q.untrack != nil {
		q.untrack()
	}
}
