package engine

import (
	"slices"
	"sync"
)

// Reason says why a run was requested.
type Reason string

const (
	ReasonManual   Reason = "manual"
	ReasonOnline   Reason = "online"
	ReasonVisible  Reason = "visible"
	ReasonInterval Reason = "interval"
	ReasonQueued   Reason = "queued"
	ReasonStartup  Reason = "startup"
)

// triggerQueue coalesces run requests.
//
// Any number of Push calls between two Take calls collapse into one wakeup.
// The reasons are kept only for logging and the run report.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type triggerQueue struct {
	mu      sync.Mutex
	reasons map[Reason]struct{}
	signal  chan struct{} // buffered, size 1
}

func newTriggerQueue() *triggerQueue {
	return &triggerQueue{
		reasons: make(map[Reason]struct{}),
		signal:  make(chan struct{}, 1),
	}
}

// Push records a reason and signals the consumer.
// Thread-safe: may be called from any goroutine.
func (q *triggerQueue) Push(r Reason) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.reasons[r] = struct{}{}

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Take returns the pending reasons, sorted, and clears them.
// Returns nil when nothing is pending.
func (q *triggerQueue) Take() []Reason {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.reasons) == 0 {
		return nil
	}
	out := make([]Reason, 0, len(q.reasons))
	for r := range q.reasons {
		out = append(out, r)
	}
	clear(q.reasons)
	slices.Sort(out)
	return out
}

// Wait returns a channel that signals when reasons may be pending.
func (q *triggerQueue) Wait() <-chan struct{} {
	return q.signal
}
