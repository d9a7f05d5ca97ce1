package pubsub

import (
	"errors"
	"sync"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/internal/sync_"
)

const (
	DefaultPublisherBufSize  = 16
	DefaultSubscriberBufSize = 64
)

var (
	ErrPublisherClosed = errors.New("publisher closed")
)

type Publisher[T any] interface {
	SenderCloser[T]
	// AddSubscriber attaches an existing sender; if closeOnClose is true it is closed along with the publisher.
	AddSubscriber(s SenderCloser[T], closeOnClose bool) error
	Subscribe() (ReceiverCloser[T], error)
	SubscribeBufSize(int) (ReceiverCloser[T], error)
	// Flush blocks until every message sent so far has been offered to all subscribers.
	Flush()
}

type subscriberSet[T any] map[SenderCloser[T]]bool

type publisher[T any] struct {
	mu          sync.Mutex
	ch          Channel[T]
	running     sync.WaitGroup
	pending     sync.WaitGroup
	subscribers *sync_.Mutexed[subscriberSet[T]]
	closed      bool
}

func NewPublisher[T any]() Publisher[T] {
	return NewPublisherBufSize[T](DefaultPublisherBufSize)
}

func NewPublisherBufSize[T any](bufSize int) Publisher[T] {
	p := &publisher[T]{
		ch:          NewChannel[T](bufSize),
		subscribers: sync_.NewMutexed(make(subscriberSet[T])),
	}
	p.running.Add(1)
	go func() {
		defer p.running.Done()
		for v := range p.ch.Receive() {
			// Snapshot subscribers so a slow subscriber doesn't hold the lock
			for _, s := range p.snapshot() {
				if ok := s.Send(v); !ok {
					p.unsubscribe(s)
				}
			}
			p.pending.Done()
		}
	}()
	return p
}

// Send will publish the value to all subscribers.
func (p *publisher[T]) Send(msg T) bool {
	p.pending.Add(1)
	if ok := p.ch.Send(msg); !ok {
		p.pending.Done()
		return false
	}
	return true
}

func (p *publisher[T]) Subscribe() (ReceiverCloser[T], error) {
	return p.SubscribeBufSize(DefaultSubscriberBufSize)
}

func (p *publisher[T]) SubscribeBufSize(bufSize int) (ReceiverCloser[T], error) {
	s := NewChannel[T](bufSize)
	if err := p.AddSubscriber(s, true); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *publisher[T]) AddSubscriber(s SenderCloser[T], closeOnClose bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	return p.subscribers.Locked(func(subscribers *subscriberSet[T]) error {
		(*subscribers)[s] = closeOnClose
		return nil
	})
}

func (p *publisher[T]) Flush() {
	p.pending.Wait()
}

func (p *publisher[T]) snapshot() []SenderCloser[T] {
	var list []SenderCloser[T]
	_ = p.subscribers.Locked(func(subscribers *subscriberSet[T]) error {
		list = make([]SenderCloser[T], 0, len(*subscribers))
		for s := range *subscribers {
			list = append(list, s)
		}
		return nil
	})
	return list
}

func (p *publisher[T]) unsubscribe(s SenderCloser[T]) {
	_ = p.subscribers.Locked(func(subscribers *subscriberSet[T]) error {
		delete(*subscribers, s)
		return nil
	})
}

// Close idempotently shuts down the publisher, closing subscribers that asked for it.
func (p *publisher[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.ch.Close()
	p.pending.Wait()
	p.running.Wait()
	subscribers := p.subscribers.Swap(make(subscriberSet[T]))
	for s, closeOnClose := range subscribers {
		if closeOnClose {
			s.Close()
		}
	}
	p.closed = true
}

func (p *publisher[T]) Closed() <-chan struct{} {
	return p.ch.Closed()
}
