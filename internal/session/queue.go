package session

import (
	"sync/atomic"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/internal/pubsub"
)

type sentinel int

const (
	itemMessage sentinel = iota
	holdMessage
	releaseMessage
	endMessage
)

func (s sentinel) String() string {
	switch s {
	case holdMessage:
		return "HOLD"
	case releaseMessage:
		return "RELEASE"
	case endMessage:
		return "END"
	default:
		return "ITEM"
	}
}

type message[T any] struct {
	kind  sentinel
	value T
}

// stage is the input side of a pipeline stage. pending counts messages enqueued but not yet fully processed, so a
// holding stage with nothing pending is idle.
type stage[T any] struct {
	queue   pubsub.Channel[message[T]]
	pending atomic.Int64
	holding atomic.Bool
}

func newStage[T any](queueSize int) *stage[T] {
	return &stage[T]{queue: pubsub.NewChannel[message[T]](queueSize)}
}

func (s *stage[T]) enqueue(m message[T]) bool {
	s.pending.Add(1)
	if !s.queue.Send(m) {
		s.pending.Add(-1)
		return false
	}
	return true
}

func (s *stage[T]) push(value T) bool {
	return s.enqueue(message[T]{kind: itemMessage, value: value})
}

func (s *stage[T]) signal(kind sentinel) bool {
	return s.enqueue(message[T]{kind: kind})
}

func (s *stage[T]) done() {
	s.pending.Add(-1)
}

func (s *stage[T]) idle() bool {
	return s.holding.Load() && s.pending.Load() == 0
}
