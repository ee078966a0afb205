package base

import (
	"sync"
	"sync/atomic"

	"github.com/pyisolate/guard/pkg/domain"
	"go.uber.org/zap"
)

// EventChannel is the bounded queue between resource samplers and the single
// user-space reader. Sends never wait: a full channel drops the event and
// counts it. Events from one producer are delivered in the order sent.
type EventChannel struct {
	mu      sync.RWMutex
	channel chan domain.ResourceEvent
	closed  atomic.Bool
	sent    atomic.Uint64
	dropped atomic.Uint64
	logger  *zap.Logger
	name    string
}

// NewEventChannel creates a channel holding at most capacity events.
func NewEventChannel(capacity int, name string, logger *zap.Logger) *EventChannel {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventChannel{
		channel: make(chan domain.ResourceEvent, capacity),
		logger:  logger,
		name:    name,
	}
}

// TrySend enqueues event without blocking. It returns false if the event was
// dropped because the channel is full or closed.
func (c *EventChannel) TrySend(event domain.ResourceEvent) bool {
	if c.closed.Load() {
		c.dropped.Add(1)
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	// Close holds the write lock, so the channel cannot be closed under us.
	if c.closed.Load() {
		c.dropped.Add(1)
		return false
	}

	select {
	case c.channel <- event:
		c.sent.Add(1)
		return true
	default:
		if n := c.dropped.Add(1); n%1000 == 1 {
			c.logger.Debug("Event channel full, dropping event",
				zap.String("channel", c.name),
				zap.Uint64("cgroup_id", event.CgroupID),
				zap.Uint64("dropped_total", n))
		}
		return false
	}
}

// DropReason reports why a failed TrySend dropped its event.
func (c *EventChannel) DropReason() DropReason {
	if c.closed.Load() {
		return DropClosed
	}
	return DropChannelFull
}

// Events returns the receive side. It is closed by Close.
func (c *EventChannel) Events() <-chan domain.ResourceEvent {
	return c.channel
}

// Drain removes up to max queued events without waiting.
func (c *EventChannel) Drain(max int) []domain.ResourceEvent {
	if max <= 0 {
		return nil
	}
	events := make([]domain.ResourceEvent, 0, max)
	for len(events) < max {
		select {
		case event, ok := <-c.channel:
			if !ok {
				return events
			}
			events = append(events, event)
		default:
			return events
		}
	}
	return events
}

// Close closes the channel. Queued events stay readable.
func (c *EventChannel) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	close(c.channel)
}

// Len returns the number of queued events.
func (c *EventChannel) Len() int {
	return len(c.channel)
}

// Cap returns the channel capacity.
func (c *EventChannel) Cap() int {
	return cap(c.channel)
}

// Sent returns the number of events accepted.
func (c *EventChannel) Sent() uint64 {
	return c.sent.Load()
}

// Dropped returns the number of events rejected.
func (c *EventChannel) Dropped() uint64 {
	return c.dropped.Load()
}

// Utilization returns the fill level in percent.
func (c *EventChannel) Utilization() float64 {
	return float64(len(c.channel)) / float64(cap(c.channel)) * 100
}
