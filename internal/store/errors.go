package store

import "errors"

var (
	// ErrStorageUnavailable is returned by every operation when the database
	// could not be opened or has been closed.
	ErrStorageUnavailable = errors.New("local storage unavailable")

	// ErrNotFound is returned by read-modify-write helpers when the target
	// record does not exist. Plain reads report absence with ok=false instead.
	ErrNotFound = errors.New("record not found")

	// ErrUnknownIndex is returned for an index the store does not define.
	ErrUnknownIndex = errors.New("unknown index")
)
