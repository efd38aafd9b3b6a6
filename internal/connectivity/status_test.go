package connectivity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(ch <-chan Event) []Event {
	var got []Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, ev)
		default:
			return got
		}
	}
}

func TestStatus_OnlineOnlyOnTransition(t *testing.T) {
	s := NewStatus(false)
	ch, cancel := s.Subscribe()
	defer cancel()

	s.Set(false)
	s.Set(true)
	s.Set(true)
	s.Set(false)
	s.Set(true)

	assert.Equal(t, []Event{EventOnline, EventOnline}, drain(ch))
	assert.True(t, s.Online())
}

func TestStatus_NotifyVisible(t *testing.T) {
	s := NewStatus(true)
	ch, cancel := s.Subscribe()
	defer cancel()

	s.NotifyVisible()

	assert.Equal(t, []Event{EventVisible}, drain(ch))
}

func TestStatus_FanOut(t *testing.T) {
	s := NewStatus(false)
	a, cancelA := s.Subscribe()
	b, cancelB := s.Subscribe()
	defer cancelA()
	defer cancelB()

	s.Set(true)

	assert.Equal(t, []Event{EventOnline}, drain(a))
	assert.Equal(t, []Event{EventOnline}, drain(b))
}

func TestStatus_SlowSubscriberDoesNotBlock(t *testing.T) {
	s := NewStatus(true)
	ch, cancel := s.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer*3; i++ {
		s.NotifyVisible()
	}

	assert.Len(t, drain(ch), subscriberBuffer)
}

func TestStatus_CancelClosesChannel(t *testing.T) {
	s := NewStatus(false)
	ch, cancel := s.Subscribe()

	cancel()
	cancel()

	_, ok := <-ch
	require.False(t, ok, "channel should be closed")

	s.Set(true) // must not panic on a closed subscriber
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "online", EventOnline.String())
	assert.Equal(t, "visible", EventVisible.String())
	assert.Equal(t, "unknown", Event(0).String())
}
