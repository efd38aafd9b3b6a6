//go:build unix

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/cadence/internal/connectivity"
)

// forwardVisibility turns SIGUSR1 into a visibility event.
func forwardVisibility(ctx context.Context, status *connectivity.Status) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			status.NotifyVisible()
		}
	}
}
