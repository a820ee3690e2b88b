// Package resource declares REST endpoints as data and derives URLs, cache
// keys and immutable request descriptors from them.
//
// A Descriptor names one entity kind and its collection address:
//
//	products := resource.MustNew("product", "https://api.example.com/products")
//
//	products.URL(resource.Params{"id": "e671"})  // https://api.example.com/products/e671
//	products.Key(resource.Params{"id": "e671"})  // product:https://api.example.com/products/e671
//
// Request descriptors are built with List, Detail, Create, Update,
// PartialUpdate and Delete and are specialized with Extend, which always
// returns a copy.
package resource

import (
	"net/url"
	"strings"
	"time"
)

// DefaultCacheExpiry bounds how long a read result is served without a refetch.
const DefaultCacheExpiry = time.Minute

// Descriptor is the static identity of one entity kind: a cache-key namespace
// and the base address of its collection. The zero value is not usable.
type Descriptor struct {
	name    string
	root    string
	expiry  time.Duration
	poll    time.Duration
	headers map[string]string
}

// DescriptorOption tunes per-resource defaults inherited by every request
// built from the descriptor.
type DescriptorOption func(*Descriptor)

// WithDefaultCacheExpiry overrides DefaultCacheExpiry for this resource.
func WithDefaultCacheExpiry(d time.Duration) DescriptorOption {
	return func(r *Descriptor) { r.expiry = d }
}

// WithDefaultPollInterval makes reads of this resource poll at d.
func WithDefaultPollInterval(d time.Duration) DescriptorOption {
	return func(r *Descriptor) { r.poll = d }
}

// WithDefaultHeader adds a static header to every request of this resource.
func WithDefaultHeader(name, value string) DescriptorOption {
	return func(r *Descriptor) {
		if r.headers == nil {
			r.headers = make(map[string]string)
		}
		r.headers[name] = value
	}
}

// New validates and returns a Descriptor. A trailing slash on root is dropped
// so that ids join with exactly one separator.
func New(name, root string, opts ...DescriptorOption) (Descriptor, error) {
	if strings.TrimSpace(name) == "" {
		return Descriptor{}, invalid(KindInvalidDescriptor, "name", "must not be empty")
	}
	if strings.Contains(name, ":") {
		return Descriptor{}, invalid(KindInvalidDescriptor, "name", "must not contain ':' (%q)", name)
	}
	root = strings.TrimRight(root, "/")
	if root == "" {
		return Descriptor{}, invalid(KindInvalidDescriptor, "root", "must not be empty")
	}
	d := Descriptor{name: name, root: root, expiry: DefaultCacheExpiry}
	for _, o := range opts {
		o(&d)
	}
	if d.expiry < 0 {
		return Descriptor{}, invalid(KindInvalidDescriptor, "cacheExpiry", "negative duration %s", d.expiry)
	}
	if d.poll < 0 {
		return Descriptor{}, invalid(KindInvalidDescriptor, "pollInterval", "negative duration %s", d.poll)
	}
	return d, nil
}

// MustNew is like New but panics on error. Meant for package-level declarations.
func MustNew(name, root string, opts ...DescriptorOption) Descriptor {
	d, err := New(name, root, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Descriptor) Name() string { return d.name }
func (d Descriptor) Root() string { return d.root }

// URL renders root, then "/<id>" when params carry an id, then the remaining
// parameters as a sorted query string.
func (d Descriptor) URL(p Params) (string, error) {
	id, hasID, err := p.ID()
	if err != nil {
		return "", err
	}
	return d.render(p, id, hasID)
}

// Key is the cache key for p: "<name>:<URL(p)>".
func (d Descriptor) Key(p Params) (string, error) {
	u, err := d.URL(p)
	if err != nil {
		return "", err
	}
	return d.KeyFor(u), nil
}

// KeyFor namespaces an already rendered URL.
func (d Descriptor) KeyFor(u string) string { return d.name + ":" + u }

// Prefix is the key prefix shared by every key of this resource; useful for
// non-exact invalidation.
func (d Descriptor) Prefix() string { return d.name + ":" + d.root }

func (d Descriptor) render(p Params, id string, withID bool) (string, error) {
	qs, err := p.Query()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(d.root) + len(id) + len(qs) + 2)
	b.WriteString(d.root)
	if withID {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(id))
	}
	if qs != "" {
		if strings.Contains(d.root, "?") {
			b.WriteByte('&')
		} else {
			b.WriteByte('?')
		}
		b.WriteString(qs)
	}
	return b.String(), nil
}
