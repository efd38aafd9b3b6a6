package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entity is the closed set of domain payloads that live in a store.
//
// The unexported method seals the interface: only this package can add
// variants, which keeps every Kind switch exhaustive.
type Entity interface {
	Kind() Kind
	entity()
}

// Ritual is one day's answers for a ritual type (morning, evening, ...).
// At most one ritual exists per (Date, Type).
type Ritual struct {
	Date string         `json:"date"` // YYYY-MM-DD
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Goal is a tracked objective.
type Goal struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	TargetDate  string `json:"target_date,omitempty"`
	Status      string `json:"status,omitempty"`
	Progress    int    `json:"progress"`
}

// Win is a logged accomplishment.
type Win struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date,omitempty"`
	Category    string `json:"category,omitempty"`
}

// FocusSession is a timed block of deep work.
type FocusSession struct {
	Date            string    `json:"date"`
	StartedAt       time.Time `json:"started_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Task            string    `json:"task,omitempty"`
	Completed       bool      `json:"completed"`
}

// WeeklyReview is the end-of-week reflection.
type WeeklyReview struct {
	WeekStart     string   `json:"week_start"` // Monday, YYYY-MM-DD
	Highlights    []string `json:"highlights,omitempty"`
	Challenges    []string `json:"challenges,omitempty"`
	Lessons       string   `json:"lessons,omitempty"`
	NextWeekFocus string   `json:"next_week_focus,omitempty"`
	Rating        int      `json:"rating"`
}

func (Ritual) Kind() Kind       { return KindRituals }
func (Goal) Kind() Kind         { return KindGoals }
func (Win) Kind() Kind          { return KindWins }
func (FocusSession) Kind() Kind { return KindFocusSessions }
func (WeeklyReview) Kind() Kind { return KindWeeklyData }

func (Ritual) entity()       {}
func (Goal) entity()         {}
func (Win) entity()          {}
func (FocusSession) entity() {}
func (WeeklyReview) entity() {}

// RitualKey composes the natural key of a ritual record.
func RitualKey(date, ritualType string) string {
	return date + "_" + ritualType
}

// DecodeEntity parses a JSON payload into the variant for kind.
func DecodeEntity(kind Kind, data []byte) (Entity, error) {
	switch kind {
	case KindRituals:
		return decodeAs[Ritual](kind, data)
	case KindGoals:
		return decodeAs[Goal](kind, data)
	case KindWins:
		return decodeAs[Win](kind, data)
	case KindFocusSessions:
		return decodeAs[FocusSession](kind, data)
	case KindWeeklyData:
		return decodeAs[WeeklyReview](kind, data)
	case KindSyncQueue, KindSettings:
		return nil, fmt.Errorf("store %q holds no entities", kind)
	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}
}

func decodeAs[T Entity](kind Kind, data []byte) (Entity, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return v, nil
}
