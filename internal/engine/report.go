package engine

import (
	"time"

	"github.com/roach88/cadence/internal/model"
)

// SettingLastSync is the settings key holding the last run's Report.
const SettingLastSync = "lastSync"

// Report summarises one run.
type Report struct {
	Run           int64             `json:"run"`
	Reasons       []Reason          `json:"reasons,omitempty"`
	Succeeded     int               `json:"succeeded"`
	Failed        int               `json:"failed"`
	Dropped       []model.QueueItem `json:"dropped,omitempty"`
	RitualsSynced int               `json:"rituals_synced"`
	RitualsFailed int               `json:"rituals_failed"`
	Started       time.Time         `json:"started"`
	Finished      time.Time         `json:"finished"`
}

// OK reports whether nothing failed.
func (r Report) OK() bool {
	return r.Failed == 0 && r.RitualsFailed == 0
}

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// SignalType is the lifecycle stage of a run.
type SignalType string

const (
	SignalStart    SignalType = "start"
	SignalComplete SignalType = "complete"
	SignalError    SignalType = "error"
)

// Signal is published to subscribers at the start and end of every run.
// Report is empty for SignalStart.
type Signal struct {
	Type   SignalType
	Report Report
	Err    error
}
