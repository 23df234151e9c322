package director

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WatchSignals cancels ctx's derived context on the first SIGINT/SIGTERM
// (spec.md §5 "first signal requests cooperative cancellation"), and calls
// escalate on a second signal for an immediate, non-cooperative stop (spec.md
// §5 "second signal escalates to killing in-flight containers directly").
// It returns the derived context and a stop function the caller must defer
// to release the signal channel.
func WatchSignals(parent context.Context, escalate func()) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-done:
			return
		}
		select {
		case <-sigCh:
			if escalate != nil {
				escalate()
			}
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		close(done)
		cancel()
	}
}
