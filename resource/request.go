package resource

import (
	"maps"
	"net/http"
	"time"
)

// URLFunc renders the address of a request from its parameters.
type URLFunc func(Params) (string, error)

// KeyFunc renders the cache key of a request from its parameters.
type KeyFunc func(Params) (string, error)

// OptimisticFunc derives the value a write should place in the cache before
// the network call resolves. cached is the zero value when nothing is cached.
type OptimisticFunc[T any] func(cached T, body any) (T, error)

// settings holds every field of a Request that does not depend on its value type.
type settings struct {
	method       Method
	url          URLFunc
	key          KeyFunc // nil => derived from url
	headers      map[string]string
	responseType ResponseType
	cacheExpiry  time.Duration
	pollInterval time.Duration
	err          error // first invalid option; surfaced by URL and Key
}

// Option overrides one field of a Request. See Request.Extend.
type Option func(*settings)

// Request describes one HTTP operation against one resource and decodes into T.
// It is a value: Extend and WithOptimistic return modified copies and never
// touch the receiver, so a base request can be shared by many call sites.
type Request[T any] struct {
	settings
	res        Descriptor
	optimistic OptimisticFunc[T]
}

func newRequest[T any](d Descriptor, m Method, u URLFunc) Request[T] {
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range d.headers {
		h[http.CanonicalHeaderKey(k)] = v
	}
	return Request[T]{
		res: d,
		settings: settings{
			method:       m,
			url:          u,
			headers:      h,
			responseType: JSON,
			cacheExpiry:  d.expiry,
			pollInterval: d.poll,
		},
	}
}

func (r Request[T]) Resource() Descriptor        { return r.res }
func (r Request[T]) Method() Method              { return r.method }
func (r Request[T]) ResponseType() ResponseType  { return r.responseType }
func (r Request[T]) CacheExpiry() time.Duration  { return r.cacheExpiry }
func (r Request[T]) PollInterval() time.Duration { return r.pollInterval }
func (r Request[T]) Optimistic() OptimisticFunc[T] {
	return r.optimistic
}

// Headers returns a copy of the static headers.
func (r Request[T]) Headers() map[string]string { return maps.Clone(r.headers) }

// HTTPHeader returns the static headers as an http.Header.
func (r Request[T]) HTTPHeader() http.Header {
	h := make(http.Header, len(r.headers))
	for k, v := range r.headers {
		h.Set(k, v)
	}
	return h
}

// MaxAge is the freshness bound a read applies: the poll interval when one
// is set, the cache expiry otherwise.
func (r Request[T]) MaxAge() time.Duration {
	if r.pollInterval > 0 {
		return r.pollInterval
	}
	return r.cacheExpiry
}

// Err reports the first invalid option applied to this request, if any.
func (r Request[T]) Err() error { return r.err }

// URL renders the request address. A nil Params renders the empty string,
// which callers treat as "disabled".
func (r Request[T]) URL(p Params) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if r.url == nil {
		return "", invalid(KindInvalidDescriptor, "url", "request has no URL builder (zero Request?)")
	}
	if p == nil {
		return "", nil
	}
	return r.url(p)
}

// Key renders the cache key. Unless overridden with WithKey it is the
// resource namespace joined with URL(p), so every request addressing the same
// instance shares one key regardless of its method.
func (r Request[T]) Key(p Params) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if r.key != nil {
		return r.key(p)
	}
	if p == nil {
		return r.res.KeyFor(r.res.root), nil
	}
	u, err := r.URL(p)
	if err != nil {
		return "", err
	}
	return r.res.KeyFor(u), nil
}

// Extend returns a copy of r with opts applied. r is left untouched.
func (r Request[T]) Extend(opts ...Option) Request[T] {
	out := r
	out.headers = maps.Clone(r.headers)
	for _, o := range opts {
		o(&out.settings)
	}
	return out
}

// WithOptimistic returns a copy of r that applies fn to the cached value
// before a write is sent. Ignored for GET.
func (r Request[T]) WithOptimistic(fn OptimisticFunc[T]) Request[T] {
	out := r.Extend()
	out.optimistic = fn
	return out
}

func fail(s *settings, err error) {
	if s.err == nil {
		s.err = err
	}
}

func WithMethod(m Method) Option {
	return func(s *settings) {
		if !m.Valid() {
			fail(s, invalid(KindInvalidMethod, "method", "unsupported method %q", string(m)))
			return
		}
		s.method = m
	}
}

func WithHeader(name, value string) Option {
	return func(s *settings) {
		if s.headers == nil {
			s.headers = make(map[string]string)
		}
		s.headers[http.CanonicalHeaderKey(name)] = value
	}
}

// WithHeaders merges h over the existing headers.
func WithHeaders(h map[string]string) Option {
	return func(s *settings) {
		for k, v := range h {
			WithHeader(k, v)(s)
		}
	}
}

func WithoutHeader(name string) Option {
	return func(s *settings) { delete(s.headers, http.CanonicalHeaderKey(name)) }
}

func WithResponseType(rt ResponseType) Option {
	return func(s *settings) {
		if !rt.Valid() {
			fail(s, invalid(KindInvalidOption, "responseType", "unknown response type %d", rt))
			return
		}
		s.responseType = rt
	}
}

// WithCacheExpiry sets how long a read result stays fresh. Zero means every
// read refetches.
func WithCacheExpiry(d time.Duration) Option {
	return func(s *settings) {
		if d < 0 {
			fail(s, invalid(KindInvalidOption, "cacheExpiry", "negative duration %s", d))
			return
		}
		s.cacheExpiry = d
	}
}

// WithPollInterval makes watched reads refetch every d and replaces the cache
// expiry as the freshness bound. Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) {
		if d < 0 {
			fail(s, invalid(KindInvalidOption, "pollInterval", "negative duration %s", d))
			return
		}
		s.pollInterval = d
	}
}

func WithURL(fn URLFunc) Option {
	return func(s *settings) {
		if fn == nil {
			fail(s, invalid(KindInvalidOption, "url", "nil URL builder"))
			return
		}
		s.url = fn
	}
}

// WithKey replaces the derived cache key. Use with care: two requests for
// the same instance must still agree on the key.
func WithKey(fn KeyFunc) Option {
	return func(s *settings) { s.key = fn }
}
