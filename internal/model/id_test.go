package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_PendingRoundTrip(t *testing.T) {
	id := NewPendingID()

	assert.True(t, id.IsPending())
	assert.True(t, strings.HasPrefix(id.String(), PendingPrefix))
	assert.Empty(t, id.ServerID())

	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestID_Confirmed(t *testing.T) {
	id := ConfirmedID("42")

	assert.False(t, id.IsPending())
	assert.Equal(t, "42", id.String())
	assert.Equal(t, "42", id.ServerID())
	assert.Empty(t, id.Token())
}

func TestID_PendingTokensAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewPendingID()
		require.False(t, seen[id.String()], "duplicate token %s", id)
		seen[id.String()] = true
	}
}

func TestParseID_Invalid(t *testing.T) {
	_, err := ParseID("")
	assert.Error(t, err)

	_, err = ParseID(PendingPrefix)
	assert.Error(t, err)
}

func TestID_UnmarshalJSON_AcceptsNumbers(t *testing.T) {
	var body struct {
		ID ID `json:"id"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"id": 1234}`), &body))
	assert.Equal(t, ConfirmedID("1234"), body.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id": "g-7"}`), &body))
	assert.Equal(t, ConfirmedID("g-7"), body.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id": "temp_abc"}`), &body))
	assert.Equal(t, PendingID("abc"), body.ID)
}

func TestID_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(PendingID("abc"))
	require.NoError(t, err)
	assert.Equal(t, `"temp_abc"`, string(data))
}
