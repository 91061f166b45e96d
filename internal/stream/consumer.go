package stream

import (
	"context"
	"sync"
)

// Consumer is an independent pull handle on a Stream. Values pushed while the
// consumer is not reading accumulate in its backlog.
type Consumer[T any] struct {
	stream *Stream[T]
	notify chan struct{}

	mu      sync.Mutex
	backlog []T
	stopped bool
	closed  bool
}

// Next returns the oldest undelivered value. It blocks until a value arrives,
// the stream stops, the consumer is closed, or ctx ends. Values queued before
// a stop are still returned before ErrStopped.
func (c *Consumer[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return zero, ErrClosed
		}
		if len(c.backlog) > 0 {
			v := c.backlog[0]
			c.backlog[0] = zero
			c.backlog = c.backlog[1:]
			c.mu.Unlock()
			return v, nil
		}
		if c.stopped {
			c.mu.Unlock()
			return zero, ErrStopped
		}
		c.mu.Unlock()

		select {
		case <-c.notify:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryNext returns the oldest undelivered value without blocking.
func (c *Consumer[T]) TryNext() (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.backlog) == 0 {
		return zero, false
	}
	v := c.backlog[0]
	c.backlog[0] = zero
	c.backlog = c.backlog[1:]
	return v, true
}

// Pending returns the number of buffered values.
func (c *Consumer[T]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.backlog)
}

// Close detaches the consumer from its stream and releases a parked reader.
func (c *Consumer[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.backlog = nil
	c.mu.Unlock()
	c.stream.detach(c)
	c.wake()
}

// deliver is called with the stream lock held.
func (c *Consumer[T]) deliver(v T) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.backlog = append(c.backlog, v)
	c.mu.Unlock()
	c.wake()
}

func (c *Consumer[T]) markStopped() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.wake()
}

func (c *Consumer[T]) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}
