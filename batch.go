package rescache

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/rescache/resource"
)

// BatchItem is one read of a ReadBatch. Build it with Item.
type BatchItem interface {
	read(ctx context.Context, c *Controller) Result[any]
	watch(ctx context.Context, c *Controller) watched
}

type batchItem[T any] struct {
	req    resource.Request[T]
	params resource.Params
}

// Item pairs a request with its parameters for ReadBatch.
func Item[T any](req resource.Request[T], p resource.Params) BatchItem {
	return batchItem[T]{req: req, params: p}
}

func (b batchItem[T]) read(ctx context.Context, c *Controller) Result[any] {
	r, _ := Read(ctx, c, b.req, b.params)
	out := Result[any]{
		Loaded:     r.Loaded,
		Stale:      r.Stale,
		Disabled:   r.Disabled,
		Optimistic: r.Optimistic,
		FetchedAt:  r.FetchedAt,
		Err:        r.Err,
	}
	if r.Loaded {
		out.Data = r.Data
	}
	return out
}

func (b batchItem[T]) watch(ctx context.Context, c *Controller) watched {
	return erasedQuery[T]{Watch(ctx, c, b.req, b.params)}
}

// watched is a Query with its value type erased.
type watched interface {
	State() State[any]
	Changes() <-chan struct{}
	Reload(ctx context.Context) error
	Close()
	stopped() <-chan struct{}
}

type erasedQuery[T any] struct{ q *Query[T] }

func (e erasedQuery[T]) State() State[any] {
	s := e.q.State()
	out := State[any]{
		Loaded:     s.Loaded,
		Loading:    s.Loading,
		Stale:      s.Stale,
		Disabled:   s.Disabled,
		Optimistic: s.Optimistic,
		FetchedAt:  s.FetchedAt,
		Err:        s.Err,
	}
	if s.Loaded {
		out.Data = s.Data
	}
	return out
}

func (e erasedQuery[T]) Changes() <-chan struct{}         { return e.q.Changes() }
func (e erasedQuery[T]) Reload(ctx context.Context) error { return e.q.Reload(ctx) }
func (e erasedQuery[T]) Close()                           { e.q.Close() }
func (e erasedQuery[T]) stopped() <-chan struct{}         { return e.q.done }

// ReadBatch reads every item concurrently (at most Options.BatchConcurrency
// at a time) and returns their results in item order. Each result carries
// its own error; one failure does not cancel the others.
func ReadBatch(ctx context.Context, c *Controller, items ...BatchItem) []Result[any] {
	out := make([]Result[any], len(items))
	var g errgroup.Group
	g.SetLimit(c.batchLimit)
	for i, it := range items {
		g.Go(func() error {
			out[i] = it.read(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// As converts a batch result back to its typed form. ok is false when the
// result holds data of another type.
func As[T any](r Result[any]) (res Result[T], ok bool) {
	res = Result[T]{
		Loaded:     r.Loaded,
		Stale:      r.Stale,
		Disabled:   r.Disabled,
		Optimistic: r.Optimistic,
		FetchedAt:  r.FetchedAt,
		Err:        r.Err,
	}
	if r.Data == nil {
		return res, true
	}
	res.Data, ok = r.Data.(T)
	return res, ok
}

// BatchQuery keeps several reads current at once. Each item is an
// independent Query with its own poll interval and invalidation.
type BatchQuery struct {
	items   []watched
	limit   int
	changes chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// WatchBatch starts a Query per item. It runs until ctx ends, Close is
// called or the controller is closed.
func WatchBatch(ctx context.Context, c *Controller, items ...BatchItem) *BatchQuery {
	bctx, cancel := context.WithCancel(ctx)
	b := &BatchQuery{
		items:   make([]watched, len(items)),
		limit:   c.batchLimit,
		changes: make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for i, it := range items {
		b.items[i] = it.watch(bctx, c)
	}
	go b.forward(bctx)
	return b
}

// forward turns every item's change signal into one batch signal.
func (b *BatchQuery) forward(ctx context.Context) {
	defer close(b.done)
	var wg sync.WaitGroup
	for _, it := range b.items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-it.stopped():
					return
				case <-it.Changes():
					signal(b.changes)
				}
			}
		}()
	}
	wg.Wait()
}

// States returns every item's state in item order.
func (b *BatchQuery) States() []State[any] {
	out := make([]State[any], len(b.items))
	for i, it := range b.items {
		out[i] = it.State()
	}
	return out
}

// Changes is signalled after any item changes.
func (b *BatchQuery) Changes() <-chan struct{} { return b.changes }

// Reload refetches every item and joins their errors.
func (b *BatchQuery) Reload(ctx context.Context) error {
	errs := make([]error, len(b.items))
	var g errgroup.Group
	g.SetLimit(b.limit)
	for i, it := range b.items {
		g.Go(func() error {
			errs[i] = it.Reload(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Close stops every item and waits for them to exit.
func (b *BatchQuery) Close() {
	b.cancel()
	for _, it := range b.items {
		it.Close()
	}
	<-b.done
}
