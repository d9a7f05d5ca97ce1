package download

import (
	"context"
	"io"
)

// A context-aware io.Reader wrapper.
type readerContext struct {
	ctx context.Context
	r   io.Reader
}

func NewContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &readerContext{ctx: ctx, r: r}
}

func (r *readerContext) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// countingWriter reports every successful write to a callback, for progress tracking via io.MultiWriter.
type countingWriter struct {
	add func(n int)
}

func (w countingWriter) Write(p []byte) (int, error) {
	if w.add != nil {
		w.add(len(p))
	}
	return len(p), nil
}
