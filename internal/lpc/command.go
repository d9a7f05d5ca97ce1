// Package lpc stands for "Local Procedure Call". It's a typed RPC-like mechanism implemented over Go channels, intended
// for communication with long-running goroutines such as the session orchestrator.
package lpc

import (
	"context"
	"errors"
	"sync"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/generic"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/internal/sync_"
)

var (
	ErrClosed     = errors.New("command response already sent")
	ErrNoResponse = errors.New("no response")
)

type Command[Arg any, Response any] struct {
	mu       sync.Mutex
	arg      Arg
	response generic.Result[Response]
	done     sync_.Event
}

func New[Arg any, Response any](arg Arg) *Command[Arg, Response] {
	return &Command[Arg, Response]{
		arg:      arg,
		response: generic.Err[Response](ErrNoResponse), // Default error if closed with no response
	}
}

func (c *Command[Arg, Response]) Arg() Arg {
	return c.arg
}

func (c *Command[Arg, Response]) Respond(response Response) error {
	return c.respond(generic.Ok(response))
}

func (c *Command[Arg, Response]) RespondError(err error) error {
	return c.respond(generic.Err[Response](err))
}

func (c *Command[Arg, Response]) respond(r generic.Result[Response]) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done.IsSet() {
		return ErrClosed
	}
	c.response = r
	c.done.Set()
	return nil
}

// Wait blocks until a response is sent, the command is closed, or ctx is done.
func (c *Command[Arg, Response]) Wait(ctx context.Context) (Response, error) {
	select {
	case <-c.done.Wait():
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.response.Parts()
	case <-ctx.Done():
		var zero Response
		return zero, ctx.Err()
	}
}

// Close ends the command without a response; Wait will return ErrNoResponse.
func (c *Command[Arg, Response]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done.Set()
}

// Send delivers the command on ch, giving up if ctx is done first.
func Send[Arg any, Response any](ctx context.Context, ch chan<- *Command[Arg, Response], c *Command[Arg, Response]) error {
	select {
	case ch <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
