package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/model"
	"github.com/roach88/cadence/internal/offline"
)

// statusView renders offline.Status.
type statusView offline.Status

func (v statusView) MarshalJSON() ([]byte, error) {
	return json.Marshal(offline.Status(v))
}

func (v statusView) WriteText(w io.Writer) error {
	online := "no"
	if v.Online {
		online = "yes"
	}
	fmt.Fprintf(w, "%-18s%s\n", "online:", online)
	fmt.Fprintf(w, "%-18s%d\n", "pending:", v.Pending)
	for _, kind := range model.EntityKinds {
		if n := v.PendingByStore[kind]; n > 0 {
			fmt.Fprintf(w, "  %-16s%d\n", kind.String()+":", n)
		}
	}
	fmt.Fprintf(w, "%-18s%d\n", "unsynced rituals:", v.UnsyncedRituals)
	if v.LastSync == nil {
		_, err := fmt.Fprintf(w, "%-18s%s\n", "last sync:", "never")
		return err
	}
	r := v.LastSync
	_, err := fmt.Fprintf(w, "%-18s%s (run %d, %d ok, %d failed, %d dropped)\n",
		"last sync:", r.Finished.UTC().Format(time.RFC3339), r.Run, r.Succeeded, r.Failed, len(r.Dropped))
	return err
}

// reportView renders one sync run.
type reportView engine.Report

func (v reportView) MarshalJSON() ([]byte, error) {
	return json.Marshal(engine.Report(v))
}

func (v reportView) WriteText(w io.Writer) error {
	r := engine.Report(v)
	reasons := make([]string, len(r.Reasons))
	for i, reason := range r.Reasons {
		reasons[i] = string(reason)
	}
	fmt.Fprintf(w, "run %d (%s): %d ok, %d failed, %d dropped; rituals %d synced, %d failed; %s\n",
		r.Run, strings.Join(reasons, ","), r.Succeeded, r.Failed, len(r.Dropped),
		r.RitualsSynced, r.RitualsFailed, r.Duration())
	for _, item := range r.Dropped {
		fmt.Fprintf(w, "dropped: %s %s %s after %d attempts: %s\n",
			item.Action, item.Store, item.EntityID, item.Retries, item.Error)
	}
	return nil
}

// queueView renders the sync queue in replay order.
type queueView []model.QueueItem

func (v queueView) MarshalJSON() ([]byte, error) {
	return json.Marshal([]model.QueueItem(v))
}

func (v queueView) WriteText(w io.Writer) error {
	if len(v) == 0 {
		_, err := fmt.Fprintln(w, "queue is empty")
		return err
	}
	writeRow := func(cols ...string) {
		fmt.Fprintln(w, strings.TrimRight(fmt.Sprintf("%-20s  %-6s  %-13s  %-24s  %-7s  %s", toAny(cols)...), " "))
	}
	writeRow("QUEUED", "ACTION", "STORE", "ENTITY", "RETRIES", "ERROR")
	for _, item := range v {
		writeRow(
			item.Timestamp.UTC().Format(time.RFC3339),
			string(item.Action),
			item.Store.String(),
			item.EntityID.String(),
			fmt.Sprint(item.Retries),
			item.Error,
		)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// itemsView renders typed records as id, sync state and the JSON value.
type itemsView[T model.Entity] []offline.Item[T]

func (v itemsView[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal([]offline.Item[T](v))
}

func (v itemsView[T]) WriteText(w io.Writer) error {
	if len(v) == 0 {
		_, err := fmt.Fprintln(w, "no records")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYNCED\tVALUE")
	for _, it := range v {
		value, err := json.Marshal(it.Value)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", it.ID, yesNo(it.Synced), value)
	}
	return tw.Flush()
}

// ritualJSON is a ritual record with its payload inlined.
type ritualJSON struct {
	ID        model.ID       `json:"id"`
	Date      string         `json:"date"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Synced    bool           `json:"synced"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ritualsView renders ritual records.
type ritualsView []model.Record

func (v ritualsView) rows() []ritualJSON {
	out := make([]ritualJSON, 0, len(v))
	for _, rec := range v {
		ritual, _ := rec.Entity.(model.Ritual)
		out = append(out, ritualJSON{
			ID:        rec.ID,
			Date:      ritual.Date,
			Type:      ritual.Type,
			Data:      ritual.Data,
			Synced:    rec.Synced,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	return out
}

func (v ritualsView) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.rows())
}

func (v ritualsView) WriteText(w io.Writer) error {
	if len(v) == 0 {
		_, err := fmt.Fprintln(w, "no rituals")
		return err
	}
	for _, r := range v.rows() {
		data, err := json.Marshal(r.Data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %-10s synced=%s %s\n", r.Date, r.Type, yesNo(r.Synced), data)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
