package pubsub

import (
	"sync"
)

type Sender[T any] interface {
	Send(T) bool
}

type Receiver[T any] interface {
	Receive() <-chan T
}

type Closer interface {
	Close()
	// Closed returns a channel that is closed once Close has been called.
	Closed() <-chan struct{}
}

type SenderCloser[T any] interface {
	Sender[T]
	Closer
}

type ReceiverCloser[T any] interface {
	Receiver[T]
	Closer
}

type Channel[T any] interface {
	Sender[T]
	Receiver[T]
	Closer
}

// channel wraps a primitive `chan` in some concurrency-safe state management.
type channel[T any] struct {
	mu      sync.RWMutex
	ch      chan T
	done    chan struct{}
	closed  bool
	waiting sync.WaitGroup
}

// NewChannel creates a new channel of the specified type and buffer size.
func NewChannel[T any](bufSize int) Channel[T] {
	return &channel[T]{
		ch:   make(chan T, bufSize),
		done: make(chan struct{}),
	}
}

// Receive returns a channel receiver for awaiting the next message.
func (c *channel[T]) Receive() <-chan T {
	return c.ch
}

// Send will attempt to send a message on the channel, returning true if successful, or false if the channel is closed.
func (c *channel[T]) Send(msg T) bool {
	// Either the send is never attempted, or Close() waits until it has finished
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	c.waiting.Add(1)
	defer c.waiting.Done()
	c.mu.RUnlock()

	select {
	case c.ch <- msg:
		return true
	case <-c.done:
		return false
	}
}

// Close idempotently ends the channel so that all current and future Send calls will fail.
func (c *channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	c.waiting.Wait()
	close(c.ch)
}

func (c *channel[T]) Closed() <-chan struct{} {
	return c.done
}
