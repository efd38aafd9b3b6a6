package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

func TestRun_OfflineCreateConfirmed(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/offline_win_confirmed.yaml")
	require.NoError(t, err)

	result, err := Run(t, s)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, len(s.Steps))
	assert.Equal(t, "temp_w", result.Trace[0].ID)
	assert.Equal(t, "queued", result.Trace[0].Outcome)
}

func TestRun_SeededListIsCached(t *testing.T) {
	s := mustParse(t, `
name: seeded
description: a list caches what the service holds
online: true
seed:
  - store: goals
    id: "7"
    value: { title: From server, progress: 40 }
steps:
  - op: list
    store: goals
  - op: go_offline
  - op: list
    store: goals
assertions:
  - type: local_state
    store: goals
    where: { title: From server }
    expect: { id: "7", progress: 40, synced: true }
  - type: request_count
    method: get
    store: goals
    count: 1
`)
	result, err := Run(t, s)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "count=1", result.Trace[0].Outcome)
	assert.Equal(t, "count=1", result.Trace[2].Outcome)
	assert.Equal(t, []string{"GET /goals"}, result.Requests)
}

func TestRun_FailedAssertionIsReported(t *testing.T) {
	s := mustParse(t, `
name: wrong
description: the assertion is deliberately wrong
online: false
steps:
  - op: create
    store: wins
    value: { title: Queued }
assertions:
  - type: queue_count
    count: 5
  - type: local_state
    store: wins
    where: { title: Queued }
    expect: { synced: true }
`)
	result, err := Run(t, s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "queue_count")
	assert.Contains(t, result.Errors[1], "wins.synced")
}

func TestRun_UnexpectedErrorIsReported(t *testing.T) {
	s := mustParse(t, `
name: surprise
description: an offline read of an empty store fails without expect_error
online: false
steps:
  - op: list
    store: focusSessions
`)
	result, err := Run(t, s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
}

func TestRun_MissingExpectedError(t *testing.T) {
	s := mustParse(t, `
name: no_error
description: expect_error on a step that succeeds
online: false
steps:
  - op: create
    store: wins
    value: { title: Fine }
    expect_error: rejected
`)
	result, err := Run(t, s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected error rejected, got none")
}

func TestRun_SyncWhileOfflineIsAnError(t *testing.T) {
	s := mustParse(t, `
name: offline_sync
description: a sync needs connectivity
online: false
steps:
  - op: sync
    expect_error: offline
`)
	result, err := Run(t, s)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "error=offline", result.Trace[0].Outcome)
	assert.Empty(t, result.Requests)
}

func TestRun_RitualsHaveNoResource(t *testing.T) {
	s := mustParse(t, `
name: bad_store
description: rituals go through save_ritual
online: false
steps:
  - op: list
    store: rituals
`)
	_, err := Run(t, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save_ritual")
}

func TestMarshalSnapshot(t *testing.T) {
	result := NewResult()
	result.addTrace(1, OpSync, "", "", "succeeded=0 failed=0 dropped=0 rituals=0")

	data, err := MarshalSnapshot("empty", result)
	require.NoError(t, err)

	want := `{
  "scenario_name": "empty",
  "trace": [
    {
      "step": 1,
      "op": "sync",
      "outcome": "succeeded=0 failed=0 dropped=0 rituals=0"
    }
  ],
  "requests": []
}
`
	assert.Equal(t, want, string(data))
}
