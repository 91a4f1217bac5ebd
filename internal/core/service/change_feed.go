package service

import (
	"sync"
	"sync/atomic"

	"github.com/rl1809/slot-inventory/internal/core/domain"
)

// ChangeFeed queues events for committed mutations until a publisher drains them.
type ChangeFeed struct {
	mu      sync.RWMutex
	closed  bool
	queue   chan domain.InventoryEvent
	dropped atomic.Uint64
}

func NewChangeFeed(queueSize int) *ChangeFeed {
	return &ChangeFeed{queue: make(chan domain.InventoryEvent, queueSize)}
}

// emit never waits: when the queue is full or the feed is closed the event is
// dropped and counted. The mutation it describes is already committed either way.
func (f *ChangeFeed) emit(event domain.InventoryEvent) bool {
	if f == nil {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		f.dropped.Add(1)
		return false
	}
	select {
	case f.queue <- event:
		return true
	default:
		f.dropped.Add(1)
		return false
	}
}

func (f *ChangeFeed) Events() <-chan domain.InventoryEvent {
	return f.queue
}

// Dropped reports how many events were discarded because the queue was full or closed.
func (f *ChangeFeed) Dropped() uint64 {
	return f.dropped.Load()
}

func (f *ChangeFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.queue)
}
