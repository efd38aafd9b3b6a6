package model

import "time"

// Record is an entity stored under an id, with its sync bookkeeping.
type Record struct {
	ID        ID        `json:"id"`
	Entity    Entity    `json:"-"`
	Synced    bool      `json:"synced"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Kind returns the store the record belongs to.
func (r Record) Kind() Kind {
	if r.Entity == nil {
		return ""
	}
	return r.Entity.Kind()
}
