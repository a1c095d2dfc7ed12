// Package interrupt turns the first SIGINT or SIGTERM into a context
// cancellation. A second signal gets the default disposition and kills
// the process.
package interrupt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// ErrInterrupted is the cancellation cause after a signal.
var ErrInterrupted = errors.New("interrupted")

// ExitCode is the conventional status for a process stopped by SIGINT.
const ExitCode = 130

// NotifyContext returns a context canceled, with cause ErrInterrupted, on
// the first SIGINT or SIGTERM. stop releases the signal handler.
func NotifyContext(parent context.Context, log *slog.Logger) (ctx context.Context, stop func()) {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancelCause(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			// Restore the default so the next signal terminates.
			signal.Stop(ch)
			log.Warn("caught signal, finishing in-flight work; signal again to abort",
				"signal", sig.String())
			cancel(fmt.Errorf("%w by %v", ErrInterrupted, sig))
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(ch)
		close(done)
		cancel(nil)
	}
}

// Interrupted reports whether ctx was canceled by a signal.
func Interrupted(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrInterrupted)
}
