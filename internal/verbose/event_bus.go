package verbose

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/zero-day-ai/crucible/internal/types"
)

// ErrCodeBusClosed is returned by Emit after Close.
const ErrCodeBusClosed types.ErrorCode = "VERBOSE_BUS_CLOSED"

const defaultBufferSize = 256

// Emitter is the producer side of the feed. The attack orchestrator only
// needs this.
type Emitter interface {
	// Emit publishes an event without blocking on slow subscribers.
	Emit(ctx context.Context, event VerboseEvent) error
}

// VerboseEventBus fans attack events out to any number of subscribers.
type VerboseEventBus interface {
	Emitter

	// Subscribe returns the event channel and the function that ends the
	// subscription. The channel is closed when either runs.
	Subscribe(ctx context.Context) (<-chan VerboseEvent, func())

	Close() error
}

// DefaultVerboseEventBus delivers over buffered channels. A subscriber whose
// buffer is full misses the event; the attack is never held up by a slow
// terminal.
type DefaultVerboseEventBus struct {
	bufferSize int
	dropped    atomic.Uint64

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]chan VerboseEvent
	closed bool
}

// VerboseEventBusOption configures a DefaultVerboseEventBus.
type VerboseEventBusOption func(*DefaultVerboseEventBus)

// WithBufferSize sets the per-subscriber buffer.
func WithBufferSize(size int) VerboseEventBusOption {
	return func(b *DefaultVerboseEventBus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// NewDefaultVerboseEventBus returns an open bus with no subscribers.
func NewDefaultVerboseEventBus(opts ...VerboseEventBusOption) *DefaultVerboseEventBus {
	b := &DefaultVerboseEventBus{
		bufferSize: defaultBufferSize,
		subs:       map[uint64]chan VerboseEvent{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *DefaultVerboseEventBus) Emit(ctx context.Context, event VerboseEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return types.NewError(ErrCodeBusClosed, "verbose event bus is closed")
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

func (b *DefaultVerboseEventBus) Subscribe(ctx context.Context) (<-chan VerboseEvent, func()) {
	ch := make(chan VerboseEvent, b.bufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() { b.unsubscribe(id) }
}

func (b *DefaultVerboseEventBus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Close ends every subscription. Later calls are no-ops.
func (b *DefaultVerboseEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	return nil
}

// SubscriberCount reports the live subscriptions.
func (b *DefaultVerboseEventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped counts deliveries skipped because a subscriber was full.
func (b *DefaultVerboseEventBus) Dropped() uint64 {
	return b.dropped.Load()
}

var _ VerboseEventBus = (*DefaultVerboseEventBus)(nil)
