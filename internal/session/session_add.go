package session

import (
	"context"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/database"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/internal/lpc"
)

// Inject asks a running session to enumerate another target once it is holding, returning the number of submissions
// queued. It blocks until the orchestrator has handled the request, ctx is done, or the run finishes.
func (s *Session) Inject(ctx context.Context, targetID database.RowID) (int, error) {
	if !s.started.IsSet() || s.finished.IsSet() {
		return 0, ErrNotRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.finished.Wait():
			cancel()
		case <-ctx.Done():
		}
	}()

	cmd := lpc.New[database.RowID, int](targetID)
	if err := lpc.Send(ctx, s.inject, cmd); err != nil {
		if s.finished.IsSet() {
			return 0, ErrNotRunning
		}
		return 0, err
	}
	queued, err := cmd.Wait(ctx)
	if err != nil && ctx.Err() != nil && s.finished.IsSet() {
		return 0, ErrNotRunning
	}
	return queued, err
}
