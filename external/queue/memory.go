package queue

import (
	"context"
	"sync"

	"github.com/scribelab/scribed/internal/dispatch"
)

// MemoryQueue is the fallback when no redis is configured. Pending deliveries
// do not survive a restart.
type MemoryQueue struct {
	mu    sync.Mutex
	items []dispatch.Pending
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, item dispatch.Pending) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *MemoryQueue) Dequeue(_ context.Context, max int) ([]dispatch.Pending, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max <= 0 {
		max = 1
	}
	if max > len(q.items) {
		max = len(q.items)
	}
	out := append([]dispatch.Pending(nil), q.items[:max]...)
	q.items = q.items[max:]
	return out, nil
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
