package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/cadence/internal/model"
)

var (
	// ErrSyncInProgress is returned by SyncNow while another run is in flight.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrOffline is returned by SyncNow when the device is offline.
	ErrOffline = errors.New("offline")

	// ErrPendingEntity marks an update or delete whose target was never
	// confirmed by the remote service. It fails without a network call.
	ErrPendingEntity = errors.New("entity has no server id")
)

// QueueExhaustedError records a queue item dropped at the retry ceiling.
//
// It is logged, counted and listed in Report.Dropped. A run never returns it.
type QueueExhaustedError struct {
	// Item is the dropped item with its final retry count.
	Item model.QueueItem

	// Err is the failure of the last attempt.
	Err error
}

func (e *QueueExhaustedError) Error() string {
	return fmt.Sprintf("QUEUE_EXHAUSTED: %s %s %s dropped after %d attempts: %v",
		e.Item.Action, e.Item.Store, e.Item.EntityID, e.Item.Retries, e.Err)
}

func (e *QueueExhaustedError) Unwrap() error { return e.Err }

// IsQueueExhausted returns true if err is a QueueExhaustedError.
// Uses errors.As to handle wrapped errors.
func IsQueueExhausted(err error) bool {
	var qe *QueueExhaustedError
	return errors.As(err, &qe)
}

// RunFailedError is attached to an error Signal when items failed.
type RunFailedError struct {
	Failed        int
	RitualsFailed int
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("sync run finished with %d failed items and %d failed rituals", e.Failed, e.RitualsFailed)
}
