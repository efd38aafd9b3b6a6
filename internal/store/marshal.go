package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/cadence/internal/model"
)

// timeLayout is fixed-width so TEXT comparison orders the same as time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// marshalEntity converts an entity to JSON TEXT for storage.
// A nil entity is stored as the empty string.
func marshalEntity(e model.Entity) (string, error) {
	if e == nil {
		return "", nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", e.Kind(), err)
	}
	return string(data), nil
}

// unmarshalEntity parses JSON TEXT back into the variant for kind.
func unmarshalEntity(kind model.Kind, data string) (model.Entity, error) {
	if data == "" {
		return nil, nil
	}
	return model.DecodeEntity(kind, []byte(data))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
