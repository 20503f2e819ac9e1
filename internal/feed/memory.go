package feed

import (
	"context"
	"sync"
)

// MemoryBus delivers events synchronously to in-process subscribers. It is
// the bus used in tests and in single-process deployments.
type MemoryBus struct {
	mu   sync.RWMutex
	subs []Subscriber
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs...)
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(ctx, ev)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, fn Subscriber) error {
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()

	<-ctx.Done()
	return ctx.Err()
}

// Attach registers fn without blocking, for callers that manage their own
// lifecycle (tests, mostly).
func (b *MemoryBus) Attach(fn Subscriber) {
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
}
