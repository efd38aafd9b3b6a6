package engine

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadence/internal/connectivity"
	"github.com/roach88/cadence/internal/model"
	"github.com/roach88/cadence/internal/remote"
	"github.com/roach88/cadence/internal/store"
	cadencetest "github.com/roach88/cadence/internal/testutil"
)

const testToken = "test-token"

type fixture struct {
	engine *Engine
	store  *store.Store
	api    *cadencetest.FakeAPI
	status *connectivity.Status
}

func newFixture(t *testing.T, online bool, opts ...Option) *fixture {
	t.Helper()
	clock := cadencetest.NewClock(time.Time{}, time.Millisecond)

	s, err := store.Open(filepath.Join(t.TempDir(), "cadence.db"), store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	api := cadencetest.NewFakeAPI(t, testToken)
	client, err := remote.New(api.URL(), remote.StaticToken(testToken))
	require.NoError(t, err)

	status := connectivity.NewStatus(online)
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return &fixture{
		engine: New(s, client, status, opts...),
		store:  s,
		api:    api,
		status: status,
	}
}

// queueCreate writes a pending record and its create item, the way the
// offline client does when the network is unavailable.
func (f *fixture) queueCreate(t *testing.T, entity model.Entity) model.ID {
	t.Helper()
	ctx := context.Background()
	id := model.NewPendingID()
	_, err := f.store.Put(ctx, model.Record{ID: id, Entity: entity})
	require.NoError(t, err)
	_, err = f.store.AddToSyncQueue(ctx, model.QueueItem{
		Action:   model.ActionCreate,
		Store:    entity.Kind(),
		EntityID: id,
		Payload:  entity,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) queue(t *testing.T) []model.QueueItem {
	t.Helper()
	items, err := f.store.GetSyncQueue(context.Background())
	require.NoError(t, err)
	return items
}

func TestSyncNow_Offline(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.engine.SyncNow(context.Background())
	assert.ErrorIs(t, err, ErrOffline)
	assert.False(t, f.engine.Running())
}

func TestSyncNow_ConfirmsOfflineCreate(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	pending := f.queueCreate(t, model.Win{Title: "Shipped v1"})

	report, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Zero(t, report.Failed)

	wins, err := f.store.GetAll(ctx, model.KindWins)
	require.NoError(t, err)
	require.Len(t, wins, 1, "pending and confirmed records must never coexist")
	assert.False(t, wins[0].ID.IsPending())
	assert.False(t, strings.HasPrefix(wins[0].ID.String(), model.PendingPrefix))
	assert.True(t, wins[0].Synced)
	assert.Equal(t, "Shipped v1", wins[0].Entity.(model.Win).Title)

	_, ok, err := f.store.Get(ctx, model.KindWins, pending)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.queue(t))
}

func TestSyncNow_SecondRunIsNoOp(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.queueCreate(t, model.Goal{Title: "Read"})

	_, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)
	before := len(f.api.Requests())

	report, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.Equal(t, before, len(f.api.Requests()), "idle run must not call the service")
	assert.Equal(t, []string{"101"}, f.api.IDs(model.KindGoals))
}

func TestSyncNow_RetriesThenDrops(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	pending := f.queueCreate(t, model.Goal{Title: "Never confirmed"})
	f.api.FailNext(http.MethodPost, model.KindGoals, http.StatusInternalServerError, 3)

	droppedBefore := testutil.ToFloat64(itemsTotal.WithLabelValues(string(model.KindGoals), "dropped"))

	for run := 1; run <= 2; run++ {
		report, err := f.engine.SyncNow(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Failed)
		assert.Empty(t, report.Dropped)

		items := f.queue(t)
		require.Len(t, items, 1, "run %d", run)
		assert.Equal(t, run, items[0].Retries, "retries grow by exactly one per run")
		assert.Contains(t, items[0].Error, "500")
	}

	report, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)
	require.Len(t, report.Dropped, 1)
	assert.Equal(t, model.MaxRetries, report.Dropped[0].Retries)
	assert.Empty(t, f.queue(t), "item removed when retries reach the ceiling")

	droppedAfter := testutil.ToFloat64(itemsTotal.WithLabelValues(string(model.KindGoals), "dropped"))
	assert.Equal(t, 1.0, droppedAfter-droppedBefore)

	// The optimistic record stays behind, never confirmed.
	rec, ok, err := f.store.Get(ctx, model.KindGoals, pending)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, rec.Synced)
	assert.Equal(t, 3, f.api.RequestCount(http.MethodPost, model.KindGoals))
}

func TestSyncNow_RejectedItemsFollowRetryPolicy(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.queueCreate(t, model.Goal{Title: ""})
	f.api.FailNext(http.MethodPost, model.KindGoals, http.StatusUnprocessableEntity, 3)

	for i := 0; i < 3; i++ {
		_, err := f.engine.SyncNow(ctx)
		require.NoError(t, err)
	}
	assert.Empty(t, f.queue(t))
}

func TestSyncNow_PendingEntityFailsWithoutNetwork(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	orphan := model.NewPendingID()
	_, err := f.store.AddToSyncQueue(ctx, model.QueueItem{
		Action:   model.ActionUpdate,
		Store:    model.KindGoals,
		EntityID: orphan,
		Payload:  model.Goal{Title: "orphan"},
	})
	require.NoError(t, err)

	report, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, f.api.RequestCount(http.MethodPut, model.KindGoals))

	items := f.queue(t)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Error, ErrPendingEntity.Error())
}

func TestSyncNow_LaterItemsFollowConfirmedID(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	pending := f.queueCreate(t, model.Goal{Title: "Draft"})

	// An edit queued separately after the create.
	_, err := f.store.Put(ctx, model.Record{ID: pending, Entity: model.Goal{Title: "Final", Progress: 10}})
	require.NoError(t, err)
	_, err = f.store.AddToSyncQueue(ctx, model.QueueItem{
		Action:   model.ActionUpdate,
		Store:    model.KindGoals,
		EntityID: pending,
		Payload:  model.Goal{Title: "Final", Progress: 10},
	})
	require.NoError(t, err)

	report, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Empty(t, f.queue(t))

	title, _ := f.api.Field(model.KindGoals, "101", "title")
	assert.Equal(t, "Final", title)

	goals, err := f.store.GetAll(ctx, model.KindGoals)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, "101", goals[0].ID.String())
	assert.True(t, goals[0].Synced)
	assert.Equal(t, "Final", goals[0].Entity.(model.Goal).Title)
}

func TestSyncNow_DeleteOfMissingRemoteRecordSucceeds(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.store.AddToSyncQueue(ctx, model.QueueItem{
		Action:   model.ActionDelete,
		Store:    model.KindWins,
		EntityID: model.ConfirmedID("77"),
	})
	require.NoError(t, err)

	report, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Empty(t, f.queue(t))
}

func TestSyncNow_DrainsInTimestampOrder(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.api.Seed("1", model.Win{Title: "a"})
	f.api.Seed("2", model.Win{Title: "b"})

	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"2", "1"} {
		_, err := f.store.AddToSyncQueue(ctx, model.QueueItem{
			Action:    model.ActionDelete,
			Store:     model.KindWins,
			EntityID:  model.ConfirmedID(id),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	_, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)

	var deletes []string
	for _, r := range f.api.Requests() {
		if strings.HasPrefix(r, http.MethodDelete) {
			deletes = append(deletes, r)
		}
	}
	assert.Equal(t, []string{"DELETE /wins/2", "DELETE /wins/1"}, deletes)
}

func TestSyncNow_PushesUnsyncedRituals(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.store.SaveRitual(ctx, "morning", "2024-01-01", map[string]any{"gratitude": "coffee"}, false)
	require.NoError(t, err)
	_, err = f.store.SaveRitual(ctx, "evening", "2024-01-01", nil, true)
	require.NoError(t, err)

	report, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RitualsSynced)
	assert.Equal(t, 1, f.api.RequestCount(http.MethodPost, model.KindRituals))

	unsynced, err := f.store.GetUnsyncedRituals(ctx)
	require.NoError(t, err)
	assert.Empty(t, unsynced)
}

func TestSyncNow_FailedRitualStaysUnsynced(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.store.SaveRitual(ctx, "morning", "2024-01-01", nil, false)
	require.NoError(t, err)
	f.api.FailNext(http.MethodPost, model.KindRituals, http.StatusBadGateway, 5)

	for i := 0; i < 4; i++ {
		report, err := f.engine.SyncNow(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.RitualsFailed)
	}

	unsynced, err := f.store.GetUnsyncedRituals(ctx)
	require.NoError(t, err)
	assert.Len(t, unsynced, 1, "rituals have no retry ceiling")
	assert.Empty(t, f.queue(t))
}

func TestSyncNow_RejectedRitualIsNotResent(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.store.SaveRitual(ctx, "morning", "2024-01-01", nil, false)
	require.NoError(t, err)
	f.api.FailNext(http.MethodPost, model.KindRituals, http.StatusUnprocessableEntity, 1)

	report, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RitualsFailed)

	report, err = f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.RitualsFailed)
	assert.Zero(t, report.RitualsSynced)
	assert.Equal(t, 1, f.api.RequestCount(http.MethodPost, model.KindRituals))
}

// cancellingRemote cancels the run's context while a create is in flight.
type cancellingRemote struct {
	Remote
	cancel context.CancelFunc
}

func (r cancellingRemote) Create(ctx context.Context, kind model.Kind, entity model.Entity) (model.Record, error) {
	r.cancel()
	return r.Remote.Create(ctx, kind, entity)
}

func TestSyncNow_ShutdownDoesNotSpendRetries(t *testing.T) {
	f := newFixture(t, true)
	f.queueCreate(t, model.Goal{Title: "interrupted"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.engine.remote = cancellingRemote{Remote: f.engine.remote, cancel: cancel}

	report, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Failed)
	assert.Empty(t, report.Dropped)

	items := f.queue(t)
	require.Len(t, items, 1)
	assert.Zero(t, items[0].Retries)
	assert.Empty(t, items[0].Error)
}

func TestSyncNow_PersistsLastSync(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.queueCreate(t, model.Win{Title: "x"})

	report, err := f.engine.SyncNow(ctx)
	require.NoError(t, err)

	var last Report
	ok, err := f.store.GetSetting(ctx, SettingLastSync, &last)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, report.Run, last.Run)
	assert.Equal(t, 1, last.Succeeded)
	assert.True(t, last.Finished.After(last.Started))
}

func TestSyncNow_StorageUnavailable(t *testing.T) {
	api := cadencetest.NewFakeAPI(t, "")
	client, err := remote.New(api.URL(), nil)
	require.NoError(t, err)
	e := New(store.Unavailable(), client, connectivity.NewStatus(true))

	_, err = e.SyncNow(context.Background())
	assert.ErrorIs(t, err, store.ErrStorageUnavailable)
	assert.False(t, e.Running(), "engine returns to idle after a failed run")
}

// blockingRemote holds Create until released.
type blockingRemote struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRemote) Create(_ context.Context, _ model.Kind, entity model.Entity) (model.Record, error) {
	b.entered <- struct{}{}
	<-b.release
	return model.Record{ID: model.ConfirmedID("9"), Entity: entity, Synced: true}, nil
}

func (b *blockingRemote) Update(context.Context, model.Kind, model.ID, model.Entity) (model.Record, error) {
	return model.Record{}, errors.New("unexpected update")
}

func (b *blockingRemote) Delete(context.Context, model.Kind, model.ID) error {
	return errors.New("unexpected delete")
}

func TestSingleFlight(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.queueCreate(t, model.Win{Title: "slow"})

	br := &blockingRemote{entered: make(chan struct{}), release: make(chan struct{})}
	f.engine.remote = br

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.SyncNow(ctx)
		done <- err
	}()
	<-br.entered

	assert.True(t, f.engine.Running())
	_, err := f.engine.SyncNow(ctx)
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.False(t, f.engine.Trigger(ReasonManual), "trigger while running is dropped")
	assert.Nil(t, f.engine.triggers.Take())

	close(br.release)
	require.NoError(t, <-done)
	assert.False(t, f.engine.Running())
	assert.True(t, f.engine.Trigger(ReasonManual))
}

func TestRun_OnlineEventDrainsQueue(t *testing.T) {
	f := newFixture(t, false)
	f.queueCreate(t, model.Win{Title: "queued offline"})

	signals, unsubscribe := f.engine.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	// Run subscribes asynchronously; keep flipping until a run starts.
	require.Eventually(t, func() bool {
		f.status.Set(false)
		f.status.Set(true)
		select {
		case sig := <-signals:
			return sig.Type == SignalStart
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 3*time.Second, time.Millisecond)

	select {
	case sig := <-signals:
		assert.Equal(t, SignalComplete, sig.Type)
		assert.Equal(t, 1, sig.Report.Succeeded)
		assert.Contains(t, sig.Report.Reasons, ReasonOnline)
	case <-time.After(3 * time.Second):
		t.Fatal("no completion signal")
	}

	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, f.queue(t))
}

func TestRun_StartsWhileAlreadyOnline(t *testing.T) {
	f := newFixture(t, false)
	f.queueCreate(t, model.Win{Title: "queued offline"})
	f.status.Set(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(f.queue(t)) == 0
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	var last Report
	ok, err := f.store.GetSetting(context.Background(), SettingLastSync, &last)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, last.Reasons, ReasonStartup)
}

func TestRun_VisibleWhileOfflineIsIgnored(t *testing.T) {
	f := newFixture(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	f.status.NotifyVisible()
	time.Sleep(50 * time.Millisecond)
	assert.Nil(t, f.engine.triggers.Take())

	cancel()
	require.NoError(t, <-done)
}

func TestRun_FailedItemsPublishErrorSignal(t *testing.T) {
	f := newFixture(t, true)
	f.queueCreate(t, model.Goal{Title: "x"})
	f.api.FailNext(http.MethodPost, model.KindGoals, http.StatusInternalServerError, 1)

	signals, unsubscribe := f.engine.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	f.engine.NotifyQueued()

	var got []SignalType
	var last Signal
	require.Eventually(t, func() bool {
		select {
		case sig := <-signals:
			got = append(got, sig.Type)
			last = sig
		default:
		}
		return len(got) == 2
	}, 3*time.Second, time.Millisecond)

	assert.Equal(t, []SignalType{SignalStart, SignalError}, got)
	var rf *RunFailedError
	require.ErrorAs(t, last.Err, &rf)
	assert.Equal(t, 1, rf.Failed)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_IntervalTriggersRuns(t *testing.T) {
	f := newFixture(t, true, WithInterval(10*time.Millisecond))
	f.queueCreate(t, model.Win{Title: "periodic"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(f.queue(t)) == 0
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestSubscribe_Cancel(t *testing.T) {
	f := newFixture(t, true)
	ch, cancel := f.engine.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	_, err := f.engine.SyncNow(context.Background())
	require.NoError(t, err, "publishing after unsubscribe must not panic")
}

func TestQueueExhaustedError(t *testing.T) {
	cause := errors.New("boom")
	err := error(&QueueExhaustedError{
		Item: model.QueueItem{Action: model.ActionCreate, Store: model.KindGoals, EntityID: model.ConfirmedID("1"), Retries: 3},
		Err:  cause,
	})

	assert.True(t, IsQueueExhausted(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "QUEUE_EXHAUSTED")
	assert.False(t, IsQueueExhausted(cause))
}
