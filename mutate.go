package rescache

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/rescache/internal/wire"
	"github.com/unkn0wn-root/rescache/resource"
	"github.com/unkn0wn-root/rescache/transport"
)

type writeOptions struct {
	keys     []string
	prefixes []string
}

// WriteOption adds work to the settle phase of a write.
type WriteOption func(*writeOptions)

// Invalidates also invalidates keys (exactly) when the write settles.
func Invalidates(keys ...string) WriteOption {
	return func(o *writeOptions) { o.keys = append(o.keys, keys...) }
}

// InvalidatesPrefix also invalidates every key starting with one of
// prefixes when the write settles.
func InvalidatesPrefix(prefixes ...string) WriteOption {
	return func(o *writeOptions) { o.prefixes = append(o.prefixes, prefixes...) }
}

// InvalidatesResource invalidates every key of the given resources, e.g. the
// list a created item belongs to.
func InvalidatesResource(ds ...resource.Descriptor) WriteOption {
	return func(o *writeOptions) {
		for _, d := range ds {
			o.prefixes = append(o.prefixes, d.Prefix())
		}
	}
}

// Fetch runs req: GET requests go through Read and honor the cache, any
// other method through Mutate.
func Fetch[T any](ctx context.Context, c *Controller, req resource.Request[T], p resource.Params, body any, opts ...WriteOption) (T, error) {
	if req.Method() == resource.MethodGet {
		res, err := Read(ctx, c, req, p)
		return res.Data, err
	}
	return Mutate(ctx, c, req, p, body, opts...)
}

// Mutate performs a write against the key req renders for p. Writes to one
// key are serialized within the process and run these phases in order:
//
//	begin      cancel reads in flight for the key
//	snapshot   capture the cached bytes
//	optimistic if req declares one, cache its value (flagged optimistic)
//	execute    send the request; on failure restore the snapshot
//	settle     invalidate the key and any keys named by opts
//
// Settle runs on every path once begin has run. Its failures are logged and
// reported through Hooks.SettleFailed, never returned. The response is not
// cached; the next read refetches.
func Mutate[T any](ctx context.Context, c *Controller, req resource.Request[T], p resource.Params, body any, opts ...WriteOption) (out T, err error) {
	if err := c.checkOpen(); err != nil {
		return out, err
	}
	if req.Method() == resource.MethodGet {
		return out, &resource.ValidationError{Kind: resource.KindGetAsWrite, Field: "method",
			Reason: "GET requests are reads; use Read or Fetch"}
	}
	if p == nil {
		p = resource.Params{}
	}
	key, err := req.Key(p)
	if err != nil {
		return out, err
	}
	url, err := req.URL(p)
	if err != nil {
		return out, err
	}
	var wo writeOptions
	for _, o := range opts {
		o(&wo)
	}

	unlock, err := c.locks.lock(ctx, key)
	if err != nil {
		return out, err
	}
	defer unlock()

	defer c.store.beginWrite(key)()

	// begin
	if err := c.store.cancel(ctx, key); err != nil {
		c.log.Warn("cancel in-flight reads failed", Fields{"key": key, "err": err})
	}
	defer c.settle(ctx, key, wo)

	// snapshot
	snap, had, snapErr := c.store.raw(ctx, key)
	if snapErr != nil {
		c.log.Warn("snapshot failed; skipping optimistic update", Fields{"key": key, "err": snapErr})
	}

	// optimistic
	applied := false
	if fn := req.Optimistic(); fn != nil && snapErr == nil {
		applied, err = applyOptimistic(ctx, c, key, fn, snap, had, body)
		if err != nil {
			return out, err
		}
	}

	// execute
	out, err = transport.Execute[T](ctx, c.exec, transport.Call{
		URL:          url,
		Method:       req.Method(),
		Header:       req.HTTPHeader(),
		ResponseType: req.ResponseType(),
		Body:         body,
	})
	if err != nil {
		if snapErr == nil {
			if rerr := c.store.restore(context.WithoutCancel(ctx), key, snap, had); rerr != nil {
				c.log.Error("restore snapshot failed", Fields{"key": key, "err": rerr})
			}
		}
		if applied {
			c.hooks.RolledBack(key, err)
			c.log.Info("rolled back optimistic update", Fields{"key": key, "err": err})
		}
		return out, err
	}
	return out, nil
}

func applyOptimistic[T any](ctx context.Context, c *Controller, key string, fn resource.OptimisticFunc[T], snap []byte, had bool, body any) (bool, error) {
	var prev T
	if had {
		if e, err := wire.Decode(snap); err == nil {
			if err := c.store.codec.Decode(e.Payload, &prev); err != nil {
				var zero T
				prev = zero
			}
		}
	}
	next, err := fn(prev, body)
	if err != nil {
		return false, &OptimisticError{Key: key, Err: err}
	}
	payload, err := c.store.codec.Encode(next)
	if err != nil {
		return false, &OptimisticError{Key: key, Err: err}
	}
	// A read that started after begin observed the begin generation; moving
	// past it drops that read's result, on other replicas too.
	g, err := c.store.bump(ctx, key)
	if err != nil {
		return false, nil
	}
	ok, err := c.store.put(ctx, key, payload, g, wire.FlagOptimistic, c.store.now())
	if err != nil {
		c.log.Warn("optimistic write failed", Fields{"key": key, "err": err})
		return false, nil
	}
	if ok {
		c.hooks.OptimisticApplied(key)
		c.store.notify(key)
	}
	return ok, nil
}

// settle invalidates the written key and every related key. It outlives the
// caller's context.
func (c *Controller) settle(ctx context.Context, key string, wo writeOptions) {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	if err := c.store.invalidate(ctx, key); err != nil {
		errs = append(errs, err)
	}
	for _, k := range wo.keys {
		if err := c.store.invalidate(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	for _, pfx := range wo.prefixes {
		if err := c.store.invalidatePrefix(ctx, pfx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		c.hooks.SettleFailed(key, err)
		c.log.Error("settle failed", Fields{"key": key, "err": err})
	}
}
