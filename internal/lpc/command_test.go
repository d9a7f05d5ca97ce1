package lpc

import (
	"context"
	"errors"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
)

type injectCommand = Command[uint, int]

func TestCommand_Close(t *testing.T) {
	assert := assert_.New(t)

	// If command is prematurely closed, then the response is an error
	c := New[uint, int](1)
	c.Close()
	_, err := c.Wait(context.Background())
	assert.ErrorIs(err, ErrNoResponse)
	assert.ErrorIs(c.Respond(2), ErrClosed)
}

func TestCommand_Respond(t *testing.T) {
	assert := assert_.New(t)
	exampleError := errors.New("unknown target")

	a := New[uint, int](7)
	assert.Equal(uint(7), a.Arg())
	assert.Nil(a.Respond(3))
	v, err := a.Wait(context.Background())
	assert.Nil(err)
	assert.Equal(3, v)
	assert.ErrorIs(a.Respond(4), ErrClosed)
	assert.ErrorIs(a.RespondError(exampleError), ErrClosed)

	b := New[uint, int](8)
	assert.Nil(b.RespondError(exampleError))
	_, err = b.Wait(context.Background())
	assert.ErrorIs(err, exampleError)
}

func TestCommand_WaitContext(t *testing.T) {
	assert := assert_.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	c := New[uint, int](1)
	_, err := c.Wait(ctx)
	assert.ErrorIs(err, context.DeadlineExceeded)
}

func TestSend(t *testing.T) {
	assert := assert_.New(t)
	commands := make(chan *injectCommand)
	go func() {
		for c := range commands {
			_ = c.Respond(int(c.Arg()) * 2)
		}
	}()
	defer close(commands)

	c := New[uint, int](21)
	assert.Nil(Send(context.Background(), commands, c))
	v, err := c.Wait(context.Background())
	assert.Nil(err)
	assert.Equal(42, v)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := make(chan *injectCommand)
	assert.ErrorIs(Send(ctx, blocked, New[uint, int](1)), context.Canceled)
}

func BenchmarkCommand_Respond_Wait(b *testing.B) {
	commands := make(chan *injectCommand, 1)
	go func() {
		for c := range commands {
			_ = c.Respond(int(c.Arg()))
		}
	}()
	for i := 0; i < b.N; i++ {
		c := New[uint, int](uint(i))
		commands <- c
		_, _ = c.Wait(context.Background())
	}
	close(commands)
}
