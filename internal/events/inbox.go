package events

import (
	"log/slog"
	"sync"

	"github.com/reflowd/reflowd/internal/metrics"
)

// Inbox is the buffered, non-blocking queue feeding the event router.
// Producers (transport callbacks, stats collectors) publish from any
// goroutine; the router is the single consumer, which serializes all store
// mutations. If the buffer is full the event is dropped with a warning —
// the next periodic round re-derives any state a dropped event carried.
type Inbox struct {
	ch     chan Event
	logger *slog.Logger

	mu     sync.Mutex
	drops  uint64
	closed bool
}

// NewInbox creates an inbox with the given buffer size.
func NewInbox(bufferSize int, logger *slog.Logger) *Inbox {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Inbox{
		ch:     make(chan Event, bufferSize),
		logger: logger,
	}
}

// Publish enqueues an event. Non-blocking; drops when the buffer is full.
func (in *Inbox) Publish(evt Event) {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	// The send happens under the lock so Close cannot slip between the
	// closed check and the send.
	var drops uint64
	select {
	case in.ch <- evt:
		in.mu.Unlock()
		return
	default:
		in.drops++
		drops = in.drops
	}
	in.mu.Unlock()

	metrics.EventBufferDrops.Inc()
	in.logger.Warn("event inbox full, dropping event",
		"event_kind", evt.Kind(),
		"total_drops", drops)
}

// C returns the receive side for the router.
func (in *Inbox) C() <-chan Event {
	return in.ch
}

// Close stops the inbox. Publish becomes a no-op; the channel is closed so
// the router drains remaining events and returns.
func (in *Inbox) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return
	}
	in.closed = true
	close(in.ch)
}

// Drops returns the number of dropped events.
func (in *Inbox) Drops() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.drops
}
