package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_StrictlyIncreasing(t *testing.T) {
	c := NewClock(time.Time{}, 0)

	first := c.Now()
	second := c.Now()

	assert.Equal(t, DefaultClockStart.Add(time.Millisecond), first)
	assert.True(t, second.After(first))
}

func TestClock_Advance(t *testing.T) {
	c := NewClock(DefaultClockStart, time.Second)

	c.Advance(time.Hour)

	assert.Equal(t, DefaultClockStart.Add(time.Hour), c.Current())
	assert.Equal(t, DefaultClockStart.Add(time.Hour+time.Second), c.Now())
}

func TestClock_ConcurrentUse(t *testing.T) {
	c := NewClock(time.Time{}, time.Millisecond)

	const n = 100
	seen := make(chan time.Time, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- c.Now()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[time.Time]bool)
	for ts := range seen {
		unique[ts] = true
	}
	assert.Len(t, unique, n)
	assert.Equal(t, DefaultClockStart.Add(n*time.Millisecond), c.Current())
}
