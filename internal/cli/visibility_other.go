//go:build !unix

package cli

import (
	"context"

	"github.com/roach88/cadence/internal/connectivity"
)

// forwardVisibility has no signal to listen for on this platform.
func forwardVisibility(ctx context.Context, _ *connectivity.Status) error {
	<-ctx.Done()
	return nil
}
