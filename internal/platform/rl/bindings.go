package rl

import (
	"context"
	"sync"
	"time"
)

// Binding remembers the decision made for a patient so that feedback
// arriving later can be credited to the right (state, action) pair.
type Binding struct {
	State      string
	Action     Action
	Risk       string
	Confidence float64
	AdmittedAt time.Time
}

// Bindings is a TTL-bounded map of patient id to Binding.
type Bindings struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]Binding
}

func NewBindings(ttl time.Duration) *Bindings {
	return &Bindings{
		ttl:   ttl,
		items: make(map[string]Binding),
	}
}

// Put records or replaces the binding for id.
func (b *Bindings) Put(id string, bind Binding) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[id] = bind
}

// Take removes and returns the binding for id. Expired bindings are dropped
// and reported as missing.
func (b *Bindings) Take(id string, now time.Time) (Binding, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bind, ok := b.items[id]
	if !ok {
		return Binding{}, false
	}
	delete(b.items, id)
	if b.expired(bind, now) {
		return Binding{}, false
	}
	return bind, true
}

// Peek returns the binding without consuming it.
func (b *Bindings) Peek(id string) (Binding, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bind, ok := b.items[id]
	return bind, ok
}

func (b *Bindings) Evict(ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		delete(b.items, id)
	}
}

// Sweep drops every expired binding and returns how many were removed.
func (b *Bindings) Sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for id, bind := range b.items {
		if b.expired(bind, now) {
			delete(b.items, id)
			n++
		}
	}
	return n
}

func (b *Bindings) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *Bindings) expired(bind Binding, now time.Time) bool {
	return b.ttl > 0 && now.Sub(bind.AdmittedAt) > b.ttl
}

// Run sweeps on every tick until ctx is cancelled.
func (b *Bindings) Run(ctx context.Context, interval time.Duration, now func() time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Sweep(now())
		}
	}
}
