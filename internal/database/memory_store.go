package database

import (
	"context"
	"sync"

	"github.com/life-stream-dev/afk-bridge/internal/notify"
)

// MemoryEventStore keeps the newest events in a fixed-size ring. Used when
// database.enabled is false.
type MemoryEventStore struct {
	mu     sync.RWMutex
	ring   []notify.Event
	next   int
	filled bool
}

func NewMemoryEventStore(capacity int) *MemoryEventStore {
	if capacity <= 0 {
		capacity = MaxRecentLimit
	}
	return &MemoryEventStore{ring: make([]notify.Event, capacity)}
}

func (ms *MemoryEventStore) Name() string { return "memory" }

func (ms *MemoryEventStore) Deliver(_ context.Context, ev notify.Event) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.ring[ms.next] = ev
	ms.next = (ms.next + 1) % len(ms.ring)
	if ms.next == 0 {
		ms.filled = true
	}
	return nil
}

func (ms *MemoryEventStore) Recent(ctx context.Context, operator string, limit int) ([]notify.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	size := ms.next
	if ms.filled {
		size = len(ms.ring)
	}
	out := make([]notify.Event, 0)
	for i := 0; i < size && len(out) < limit; i++ {
		idx := (ms.next - 1 - i + len(ms.ring)) % len(ms.ring)
		if ev := ms.ring[idx]; operator == "" || ev.Operator == operator {
			out = append(out, ev)
		}
	}
	return out, nil
}
