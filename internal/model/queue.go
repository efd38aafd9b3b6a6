package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxRetries is the number of failed attempts after which a queue item is
// dropped. There is no dead-letter store.
const MaxRetries = 3

// Action is the mutation a queue item replays.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionCreate, ActionUpdate, ActionDelete:
		return Action(s), nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// QueueItem is a mutation awaiting remote confirmation.
//
// Items replay in Timestamp order. Retries only grows until the item is
// removed, either on success or on reaching MaxRetries.
type QueueItem struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	Store     Kind      `json:"store"`
	EntityID  ID        `json:"entity_id"`
	Payload   Entity    `json:"-"` // nil for deletes
	Timestamp time.Time `json:"timestamp"`
	Retries   int       `json:"retries"`
	Error     string    `json:"error,omitempty"`
}

// NewQueueItem builds an item with a time-ordered id.
func NewQueueItem(action Action, store Kind, entityID ID, payload Entity, now time.Time) QueueItem {
	return QueueItem{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Action:    action,
		Store:     store,
		EntityID:  entityID,
		Payload:   payload,
		Timestamp: now,
	}
}

// Exhausted reports whether the item reached the retry ceiling.
func (q QueueItem) Exhausted() bool {
	return q.Retries >= MaxRetries
}
