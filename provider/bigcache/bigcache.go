// Package bigcache stores entries in an allegro/bigcache shard set.
//
// BigCache evicts by a single LifeWindow. Shorter per-entry TTLs are honored
// by framing each value as an 8-byte big-endian expiry (unix nanoseconds,
// 0 = none) followed by the caller's bytes; Get strips the frame, so the
// provider stays byte-transparent.
package bigcache

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/rescache/provider"
)

const (
	defaultLifeWindow = 10 * time.Minute
	expiryLen         = 8
)

// ErrShortEntry reports a stored value without an expiry frame.
var ErrShortEntry = errors.New("bigcache provider: entry shorter than expiry frame")

type Provider struct {
	c   *bc.BigCache
	now func() time.Time
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	// LifeWindow bounds every entry; 0 => 10m. Per-entry TTLs longer than
	// the window are cut to it by BigCache itself.
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	Shards             int // power of two; 0 => BigCache default (1024)
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Provider, error) {
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = defaultLifeWindow
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	conf.Verbose = false
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize + expiryLen
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, now: time.Now}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(b) < expiryLen {
		_ = p.c.Delete(key)
		return nil, false, ErrShortEntry
	}
	if exp := int64(binary.BigEndian.Uint64(b[:expiryLen])); exp > 0 && p.now().UnixNano() >= exp {
		_ = p.c.Delete(key)
		return nil, false, nil
	}
	// BigCache hands out a copy; the payload slice is ours.
	return b[expiryLen:], true, nil
}

// Set stores value until ttl elapses or the LifeWindow ends, whichever is
// first. A non-positive ttl relies on the LifeWindow alone.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	buf := make([]byte, expiryLen+len(value))
	var exp int64
	if ttl > 0 {
		exp = p.now().Add(ttl).UnixNano()
	}
	binary.BigEndian.PutUint64(buf[:expiryLen], uint64(exp))
	copy(buf[expiryLen:], value)
	if err := p.c.Set(key, buf); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (p *Provider) Len() int { return p.c.Len() }

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
