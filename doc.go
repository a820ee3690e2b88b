// Package rescache turns typed REST resource declarations into cache-keyed
// HTTP requests and coordinates reads, writes, optimistic updates and
// invalidation against a provider-agnostic cache.
//
// Components:
//   - resource: descriptors, parameters and typed request builders. A request
//     renders a URL and a cache key; every request for one instance shares a key.
//   - transport: the HTTP exchange (body encoding, response decoding, errors).
//   - Controller: the cache coordinator (Read, Mutate, Fetch, Invalidate,
//     ReadBatch, Watch).
//   - Provider: byte store with TTL (memory, Ristretto, BigCache, Redis).
//   - Codec: (de)serializes values <-> []byte.
//   - GenStore: generation counter per key. Local (in-process) by default,
//     optional Redis implementation shared by replicas.
//
// Keys:
//
//	entry:<ns>:<name>:<url>  - one entry per cache key
//
// Every entry records the generation it was fetched under. A write or an
// invalidation bumps the generation, so a read still in flight cannot
// overwrite newer state:
//
//	obs := gen(k)           // before the request
//	v   := GET(url)
//	put(k, v) iff gen(k) == obs
//
// A write runs five phases for its key: begin (cancel in-flight reads),
// snapshot, optimistic apply, execute (restore the snapshot on failure) and
// settle (invalidate the key and any related keys). Invalidated entries stay
// readable as stale data until the provider expires them.
package rescache
