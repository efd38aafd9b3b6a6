package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadence/internal/remote"
)

type fakeChecker struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeChecker) Health(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeChecker) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeChecker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestProbe_UpdatesStatus(t *testing.T) {
	status := NewStatus(false)
	checker := &fakeChecker{}
	p := NewProber(status, checker)

	assert.True(t, p.Probe(context.Background()))
	assert.True(t, status.Online())

	checker.set(&remote.Error{Kind: remote.NetworkFailure, Op: "GET /health"})
	assert.False(t, p.Probe(context.Background()))
	assert.False(t, status.Online())
}

func TestProbe_RejectionMeansReachable(t *testing.T) {
	status := NewStatus(false)
	checker := &fakeChecker{err: &remote.Error{Kind: remote.RemoteRejected, StatusCode: 404}}
	p := NewProber(status, checker)

	assert.True(t, p.Probe(context.Background()))
}

func TestProbe_PlainErrorMeansOffline(t *testing.T) {
	status := NewStatus(true)
	p := NewProber(status, &fakeChecker{err: errors.New("boom")})

	assert.False(t, p.Probe(context.Background()))
	assert.False(t, status.Online())
}

func TestRun_EmitsOnlineWhenServiceRecovers(t *testing.T) {
	status := NewStatus(false)
	events, cancelSub := status.Subscribe()
	defer cancelSub()

	checker := &fakeChecker{err: errors.New("down")}
	p := NewProber(status, checker, WithProbeInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return checker.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	checker.set(nil)

	select {
	case ev := <-events:
		assert.Equal(t, EventOnline, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("no online event")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
