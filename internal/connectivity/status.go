// Package connectivity tracks whether the remote service is reachable and
// fans out the events that trigger a sync run.
package connectivity

import "sync"

// Event is a connectivity notification.
type Event int

const (
	// EventOnline fires on an offline to online transition.
	EventOnline Event = iota + 1
	// EventVisible fires when the user returns to the application.
	EventVisible
)

func (e Event) String() string {
	switch e {
	case EventOnline:
		return "online"
	case EventVisible:
		return "visible"
	default:
		return "unknown"
	}
}

// subscriberBuffer is how many undelivered events a slow subscriber may hold
// before further events are dropped for it.
const subscriberBuffer = 8

// Status is the shared "is the device online" signal.
// Safe for concurrent use.
type Status struct {
	mu     sync.Mutex
	online bool
	subs   map[int]chan Event
	nextID int
}

// NewStatus creates a signal with an initial value.
func NewStatus(online bool) *Status {
	return &Status{
		online: online,
		subs:   make(map[int]chan Event),
	}
}

// Online reports the current value.
func (s *Status) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Set updates the signal. Subscribers see EventOnline only when the value
// goes from false to true.
func (s *Status) Set(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	was := s.online
	s.online = online
	if online && !was {
		s.broadcast(EventOnline)
	}
}

// NotifyVisible publishes EventVisible regardless of the online value.
// Subscribers decide whether to act on it.
func (s *Status) NotifyVisible() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcast(EventVisible)
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (s *Status) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Event, subscriberBuffer)
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// broadcast must be called with mu held. Sends never block.
func (s *Status) broadcast(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
