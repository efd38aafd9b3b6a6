package model

import "fmt"

// Kind names a logical store in the local database.
type Kind string

const (
	KindRituals       Kind = "rituals"
	KindGoals         Kind = "goals"
	KindWins          Kind = "wins"
	KindFocusSessions Kind = "focusSessions"
	KindWeeklyData    Kind = "weeklyData"
	KindSyncQueue     Kind = "syncQueue"
	KindSettings      Kind = "settings"
)

// EntityKinds lists every kind that holds domain records, in schema order.
var EntityKinds = []Kind{
	KindRituals,
	KindGoals,
	KindWins,
	KindFocusSessions,
	KindWeeklyData,
}

// AllKinds lists every store, including the queue and settings.
var AllKinds = append(append([]Kind{}, EntityKinds...), KindSyncQueue, KindSettings)

// ParseKind validates a store name.
func ParseKind(s string) (Kind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown store %q", s)
}

// Endpoint returns the REST collection path for a syncable kind.
func (k Kind) Endpoint() (string, error) {
	switch k {
	case KindRituals:
		return "/rituals", nil
	case KindGoals:
		return "/goals", nil
	case KindWins:
		return "/wins", nil
	case KindFocusSessions:
		return "/focus-sessions", nil
	case KindWeeklyData:
		return "/weekly-data", nil
	case KindSyncQueue, KindSettings:
		return "", fmt.Errorf("store %q is local-only", k)
	default:
		return "", fmt.Errorf("unknown store %q", k)
	}
}

// Syncable reports whether records of this kind are mirrored remotely.
func (k Kind) Syncable() bool {
	_, err := k.Endpoint()
	return err == nil
}

func (k Kind) String() string {
	return string(k)
}
