package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/cadence/internal/model"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("Assertion failed: %s\n  Expected: %s\n  Actual: %s", e.Type, e.Expected, e.Actual)
}

// fieldSource reads one record's fields.
type fieldSource func(field string) (any, bool)

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(ctx context.Context, h *Harness, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(ctx, h, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(ctx context.Context, h *Harness, a Assertion) error {
	switch a.Type {
	case AssertQueueCount:
		return assertQueueCount(ctx, h, a)
	case AssertRequestCount:
		kind, err := model.ParseKind(a.Store)
		if err != nil {
			return err
		}
		return expectCount(a, h.api.RequestCount(strings.ToUpper(a.Method), kind))
	case AssertLocalCount, AssertLocalState:
		records, err := localRecords(ctx, h, a.Store)
		if err != nil {
			return err
		}
		return assertRecords(a, records)
	case AssertRemoteCount, AssertRemoteState:
		records, err := remoteRecords(h, a.Store)
		if err != nil {
			return err
		}
		return assertRecords(a, records)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertQueueCount(ctx context.Context, h *Harness, a Assertion) error {
	items, err := h.store.GetSyncQueue(ctx)
	if err != nil {
		return err
	}
	n := 0
	for _, item := range items {
		if a.Store == "" || string(item.Store) == a.Store {
			n++
		}
	}
	return expectCount(a, n)
}

func expectCount(a Assertion, actual int) error {
	if actual == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d %s", a.Count, describe(a)),
		Actual:   fmt.Sprintf("%d", actual),
	}
}

func describe(a Assertion) string {
	parts := []string{}
	if a.Method != "" {
		parts = append(parts, strings.ToUpper(a.Method))
	}
	if a.Store != "" {
		parts = append(parts, a.Store)
	}
	if len(a.Where) > 0 {
		parts = append(parts, fmt.Sprintf("where %v", a.Where))
	}
	return strings.Join(parts, " ")
}

// assertRecords applies a count or state assertion to records.
func assertRecords(a Assertion, records []fieldSource) error {
	var matched []fieldSource
	for _, rec := range records {
		if matchFields(rec, a.Where) {
			matched = append(matched, rec)
		}
	}

	if a.Type == AssertLocalCount || a.Type == AssertRemoteCount {
		return expectCount(a, len(matched))
	}

	if len(matched) != 1 {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("exactly one %s record where %v", a.Store, a.Where),
			Actual:   fmt.Sprintf("%d records", len(matched)),
		}
	}
	rec := matched[0]
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		got, ok := rec(k)
		if !ok || !valuesEqual(got, a.Expect[k]) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s.%s = %v", a.Store, k, a.Expect[k]),
				Actual:   fmt.Sprintf("%v (present=%t)", got, ok),
			}
		}
	}
	return nil
}

// matchFields checks where against rec (subset semantics).
func matchFields(rec fieldSource, where map[string]any) bool {
	for k, want := range where {
		got, ok := rec(k)
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares values by their JSON encoding, so YAML ints match
// JSON float64s and nested maps compare structurally.
func valuesEqual(actual, expected any) bool {
	a, errA := json.Marshal(actual)
	b, errB := json.Marshal(expected)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// localRecords exposes stored records with their entity fields plus id,
// synced and pending.
func localRecords(ctx context.Context, h *Harness, storeName string) ([]fieldSource, error) {
	kind, err := model.ParseKind(storeName)
	if err != nil {
		return nil, err
	}
	recs, err := h.store.GetAll(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]fieldSource, 0, len(recs))
	for _, rec := range recs {
		fields, err := entityFields(rec.Entity)
		if err != nil {
			return nil, err
		}
		fields["id"] = rec.ID.String()
		fields["synced"] = rec.Synced
		fields["pending"] = rec.ID.IsPending()
		out = append(out, mapSource(fields))
	}
	return out, nil
}

func remoteRecords(h *Harness, storeName string) ([]fieldSource, error) {
	kind, err := model.ParseKind(storeName)
	if err != nil {
		return nil, err
	}
	ids := h.api.IDs(kind)
	out := make([]fieldSource, 0, len(ids))
	for _, id := range ids {
		out = append(out, func(field string) (any, bool) {
			if field == "id" {
				return id, true
			}
			return h.api.Field(kind, id, field)
		})
	}
	return out, nil
}

func entityFields(e model.Entity) (map[string]any, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func mapSource(m map[string]any) fieldSource {
	return func(field string) (any, bool) {
		v, ok := m[field]
		return v, ok
	}
}
