package rescache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/rescache/resource"
	"github.com/unkn0wn-root/rescache/transport"
)

// Result is the outcome of a read.
type Result[T any] struct {
	Data T
	// Loaded reports that Data holds a value (fetched or cached).
	Loaded bool
	// Stale reports that Data is a previously cached value that is expired,
	// invalidated, or being shown because the fetch failed.
	Stale bool
	// Disabled reports that the read was skipped because its parameters are
	// not available yet (nil Params or an empty URL).
	Disabled bool
	// Optimistic reports that Data was written by a write still in progress.
	Optimistic bool
	FetchedAt  time.Time
	Err        error
}

// Read returns the value of req for p, from the cache when fresh or from the
// network otherwise. Concurrent reads of one key share a single request.
// On failure the returned Result still carries the last cached value.
func Read[T any](ctx context.Context, c *Controller, req resource.Request[T], p resource.Params) (Result[T], error) {
	return read(ctx, c, req, p, false)
}

// Cached returns whatever the cache holds for req and p without fetching.
func Cached[T any](ctx context.Context, c *Controller, req resource.Request[T], p resource.Params) (Result[T], error) {
	if err := c.checkOpen(); err != nil {
		return Result[T]{Err: err}, err
	}
	key, err := req.Key(p)
	if err != nil {
		return Result[T]{Err: err}, err
	}
	var res Result[T]
	if err := cachedInto(ctx, c, key, req.MaxAge(), &res); err != nil {
		res.Err = err
		return res, err
	}
	return res, nil
}

func read[T any](ctx context.Context, c *Controller, req resource.Request[T], p resource.Params, force bool) (Result[T], error) {
	fail := func(res Result[T], err error) (Result[T], error) {
		res.Err = err
		return res, err
	}
	if err := c.checkOpen(); err != nil {
		return fail(Result[T]{}, err)
	}
	key, err := req.Key(p)
	if err != nil {
		return fail(Result[T]{}, err)
	}
	url, err := req.URL(p)
	if err != nil {
		return fail(Result[T]{}, err)
	}
	if url == "" {
		res := Result[T]{Disabled: true}
		if p != nil {
			_ = cachedInto(ctx, c, key, req.MaxAge(), &res)
		}
		return res, nil
	}

	call := transport.Call{
		URL:          url,
		Method:       req.Method(),
		Header:       req.HTTPHeader(),
		ResponseType: req.ResponseType(),
	}
	if req.ResponseType() == resource.Stream {
		v, err := transport.Execute[T](ctx, c.exec, call)
		if err != nil {
			return fail(Result[T]{}, err)
		}
		return Result[T]{Data: v, Loaded: true, FetchedAt: c.store.now()}, nil
	}

	load := func(ctx context.Context) ([]byte, error) {
		v, err := transport.Execute[T](ctx, c.exec, call)
		if err != nil {
			return nil, err
		}
		return c.store.codec.Encode(v)
	}
	for {
		f, err := c.store.fetch(ctx, key, req.MaxAge(), force, load)
		if err != nil {
			var res Result[T]
			if cerr := cachedInto(ctx, c, key, req.MaxAge(), &res); cerr == nil && res.Loaded {
				res.Stale = true
			}
			return fail(res, err)
		}

		var v T
		if err := c.store.codec.Decode(f.payload, &v); err != nil {
			if f.cached && !force {
				// written by a request of another shape; drop it and refetch
				c.store.discard(ctx, key, "value_decode")
				force = true
				continue
			}
			return fail(Result[T]{}, err)
		}
		return Result[T]{Data: v, Loaded: true, Optimistic: f.optimistic, FetchedAt: f.fetchedAt}, nil
	}
}

// cachedInto fills res from the cached entry for key, if any.
func cachedInto[T any](ctx context.Context, c *Controller, key string, maxAge time.Duration, res *Result[T]) error {
	e, ok, err := c.store.peek(ctx, key)
	if err != nil || !ok {
		return err
	}
	var v T
	if err := c.store.codec.Decode(e.payload, &v); err != nil {
		return nil
	}
	res.Data = v
	res.Loaded = true
	res.Optimistic = e.optimistic
	res.FetchedAt = e.fetchedAt
	res.Stale = !e.fresh(c.store.now(), maxAge)
	return nil
}
