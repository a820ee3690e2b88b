// Package memory is a map-backed provider with per-entry TTLs. It has no
// eviction beyond expiry and suits tests, the CLI and small processes.
package memory

import (
	"context"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/rescache/provider"
)

type entry struct {
	value    []byte
	deadline time.Time // zero => no expiry
}

type Provider struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

var _ pr.Provider = (*Provider)(nil)

func New() *Provider {
	return &Provider{entries: make(map[string]entry), now: time.Now}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	e, ok := p.entries[key]
	p.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.deadline.IsZero() && !p.now().Before(e.deadline) {
		p.mu.Lock()
		if cur, ok := p.entries[key]; ok && cur.deadline.Equal(e.deadline) {
			delete(p.entries, key)
		}
		p.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores a copy of value. A non-positive ttl never expires.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.deadline = p.now().Add(ttl)
	}
	p.mu.Lock()
	p.entries[key] = e
	p.mu.Unlock()
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.entries, key)
	p.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

func (p *Provider) Close(context.Context) error {
	p.mu.Lock()
	p.entries = make(map[string]entry)
	p.mu.Unlock()
	return nil
}
