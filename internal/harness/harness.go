package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/cadence/internal/connectivity"
	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/logging"
	"github.com/roach88/cadence/internal/model"
	"github.com/roach88/cadence/internal/offline"
	"github.com/roach88/cadence/internal/remote"
	"github.com/roach88/cadence/internal/store"
	"github.com/roach88/cadence/internal/testutil"
)

const harnessToken = "harness-token"

// Harness holds the wired components of one scenario run.
type Harness struct {
	store  *store.Store
	api    *testutil.FakeAPI
	status *connectivity.Status
	engine *engine.Engine
	client *offline.Client

	// refs maps `as` names to the id the create returned.
	refs map[string]model.ID
}

// Run executes a scenario against a fresh store and fake service.
//
// The fake service and the database live until t finishes.
func Run(t testing.TB, scenario *Scenario) (*Result, error) {
	t.Helper()
	clock := testutil.NewClock(testutil.DefaultClockStart, 0)
	logger := logging.Discard()

	st, err := store.Open(filepath.Join(t.TempDir(), "harness.db"),
		store.WithClock(clock.Now),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	t.Cleanup(func() { st.Close() })

	api := testutil.NewFakeAPI(t, harnessToken)
	rc, err := remote.New(api.URL(), remote.StaticToken(harnessToken), remote.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	status := connectivity.NewStatus(scenario.Online)
	eng := engine.New(st, rc, status, engine.WithClock(clock.Now), engine.WithLogger(logger))

	h := &Harness{
		store:  st,
		api:    api,
		status: status,
		engine: eng,
		client: offline.New(st, rc, status, eng, offline.WithLogger(logger)),
		refs:   make(map[string]model.ID),
	}

	for _, seed := range scenario.Seed {
		_, entity, err := decodeValue(seed.Store, seed.Value)
		if err != nil {
			return nil, fmt.Errorf("seed %s/%s: %w", seed.Store, seed.ID, err)
		}
		api.Seed(seed.ID, entity)
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
	}
	if reqs := api.Requests(); reqs != nil {
		result.Requests = reqs
	}

	for _, msg := range EvaluateAssertions(ctx, h, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// execute runs one step. Unexpected operation errors are recorded on the
// result; only harness faults are returned.
func (h *Harness) execute(ctx context.Context, n int, step Step, result *Result) error {
	var (
		id      string
		outcome string
		opErr   error
	)

	switch step.Op {
	case OpGoOnline, OpGoOffline:
		h.status.Set(step.Op == OpGoOnline)
		outcome = "ok"

	case OpFail:
		kind, err := model.ParseKind(step.Store)
		if err != nil {
			return err
		}
		h.api.FailNext(strings.ToUpper(step.Method), kind, step.Status, step.Times)
		outcome = "ok"

	case OpSync:
		report, err := h.engine.SyncNow(ctx)
		opErr = err
		outcome = fmt.Sprintf("succeeded=%d failed=%d dropped=%d rituals=%d",
			report.Succeeded, report.Failed, len(report.Dropped), report.RitualsSynced)

	case OpSaveRitual:
		rec, err := h.client.Rituals.Save(ctx, step.RitualType, step.Date, step.Value)
		opErr = err
		id = rec.ID.String()
		outcome = syncOutcome(rec.Synced)

	default:
		ops, err := h.resource(step.Store)
		if err != nil {
			return err
		}
		id, outcome, opErr, err = h.executeResource(ctx, ops, step)
		if err != nil {
			return err
		}
	}

	if code, unexpected := classify(opErr); opErr != nil || step.ExpectError != "" {
		switch {
		case opErr == nil:
			result.AddError(fmt.Sprintf("step %d (%s): expected error %s, got none", n, step.Op, step.ExpectError))
		case code != step.ExpectError:
			result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", n, step.Op, unexpected))
		default:
			outcome = "error=" + code
		}
	}

	storeName := step.Store
	if step.Op == OpSaveRitual {
		storeName = string(model.KindRituals)
	}
	result.addTrace(n, step.Op, storeName, id, outcome)
	return nil
}

func (h *Harness) executeResource(ctx context.Context, ops resourceOps, step Step) (id, outcome string, opErr, fault error) {
	switch step.Op {
	case OpCreate:
		entity, err := ops.decode(step.Value)
		if err != nil {
			return "", "", nil, err
		}
		created, synced, err := ops.create(ctx, entity)
		if err != nil {
			return "", "", err, nil
		}
		if step.As != "" {
			h.refs[step.As] = created
		}
		return h.display(created), syncOutcome(synced), nil, nil

	case OpUpdate:
		entity, err := ops.decode(step.Value)
		if err != nil {
			return "", "", nil, err
		}
		target := h.refs[step.Ref]
		synced, err := ops.update(ctx, target, entity)
		if err != nil {
			return h.display(target), "", err, nil
		}
		return h.display(target), syncOutcome(synced), nil, nil

	case OpDelete:
		target := h.refs[step.Ref]
		return h.display(target), "ok", ops.delete(ctx, target), nil

	case OpList:
		n, err := ops.list(ctx)
		return "", fmt.Sprintf("count=%d", n), err, nil
	}
	return "", "", nil, fmt.Errorf("unsupported op %q", step.Op)
}

// display renders an id for the trace; pending ids use their `as` name.
func (h *Harness) display(id model.ID) string {
	if !id.IsPending() {
		return id.String()
	}
	for name, ref := range h.refs {
		if ref == id {
			return model.PendingPrefix + name
		}
	}
	return model.PendingPrefix + "?"
}

func syncOutcome(synced bool) string {
	if synced {
		return "synced"
	}
	return "queued"
}

// classify maps an operation error to an expect_error code.
func classify(err error) (string, error) {
	switch {
	case err == nil:
		return "", nil
	case errors.Is(err, offline.ErrNoCachedData):
		return ErrCodeNoCachedData, err
	case remote.IsRejected(err):
		return ErrCodeRejected, err
	case errors.Is(err, engine.ErrOffline):
		return ErrCodeOffline, err
	case errors.Is(err, store.ErrStorageUnavailable):
		return ErrCodeStorageUnavailable, err
	default:
		return "", err
	}
}

// decodeValue turns a YAML mapping into the entity for store.
func decodeValue(storeName string, value map[string]any) (model.Kind, model.Entity, error) {
	kind, err := model.ParseKind(storeName)
	if err != nil {
		return "", nil, err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", nil, err
	}
	entity, err := model.DecodeEntity(kind, data)
	if err != nil {
		return "", nil, err
	}
	return kind, entity, nil
}
