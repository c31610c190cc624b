package transport

import (
	"context"
	"sync"
	"time"
)

const memoryCapacity = 4096

// MemoryTransport is the in-process signal queue used when no Redis
// address is configured, and by tests. A full queue drops the signal:
// polling picks the job up on the next tick.
type MemoryTransport struct {
	mu      sync.Mutex
	closed  bool
	signals chan string
	pending map[string]struct{}
}

func NewMemory() *MemoryTransport {
	return &MemoryTransport{
		signals: make(chan string, memoryCapacity),
		pending: make(map[string]struct{}),
	}
}

func (t *MemoryTransport) Enqueue(ctx context.Context, jobID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	select {
	case t.signals <- jobID:
	default:
	}
	return nil
}

func (t *MemoryTransport) Dequeue(ctx context.Context, block time.Duration) (Delivery, error) {
	timer := time.NewTimer(block)
	defer timer.Stop()

	select {
	case id, ok := <-t.signals:
		if !ok {
			return Delivery{}, ErrEmpty
		}
		t.mu.Lock()
		t.pending[id] = struct{}{}
		t.mu.Unlock()
		return Delivery{JobID: id}, nil
	case <-timer.C:
		return Delivery{}, ErrEmpty
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	}
}

func (t *MemoryTransport) Ack(ctx context.Context, d Delivery) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, d.JobID)
	return nil
}

func (t *MemoryTransport) Nack(ctx context.Context, d Delivery) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, d.JobID)
	if t.closed {
		return nil
	}
	select {
	case t.signals <- d.JobID:
	default:
	}
	return nil
}

func (t *MemoryTransport) Depth(ctx context.Context) (int64, error) {
	return int64(len(t.signals)), nil
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.signals)
	}
	return nil
}
