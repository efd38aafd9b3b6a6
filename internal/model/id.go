package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PendingPrefix marks client-generated identifiers in their string form.
const PendingPrefix = "temp_"

// ID identifies a record within a store.
//
// An ID is either Pending (a client token minted for an optimistic create)
// or Confirmed (assigned by the remote service, or a natural key such as a
// ritual's date_type). The zero ID is invalid.
type ID struct {
	value   string
	pending bool
}

// PendingID wraps a client token.
func PendingID(token string) ID {
	return ID{value: token, pending: true}
}

// ConfirmedID wraps a server-assigned (or natural) identifier.
func ConfirmedID(serverID string) ID {
	return ID{value: serverID}
}

// NewPendingID mints a fresh pending identifier.
//
// Tokens are UUIDv7 strings, so they sort by creation time.
func NewPendingID() ID {
	return PendingID(uuid.Must(uuid.NewV7()).String())
}

// ParseID reads the string form produced by ID.String.
func ParseID(s string) (ID, error) {
	if s == "" {
		return ID{}, errors.New("empty id")
	}
	if token, ok := strings.CutPrefix(s, PendingPrefix); ok {
		if token == "" {
			return ID{}, fmt.Errorf("pending id %q has no token", s)
		}
		return PendingID(token), nil
	}
	return ConfirmedID(s), nil
}

// MustParseID is ParseID for tests and constants.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IsPending reports whether the id is a client placeholder.
func (id ID) IsPending() bool { return id.pending }

// IsZero reports whether the id was never set.
func (id ID) IsZero() bool { return id.value == "" }

// Token returns the client token of a pending id, or "".
func (id ID) Token() string {
	if !id.pending {
		return ""
	}
	return id.value
}

// ServerID returns the remote identifier of a confirmed id, or "".
func (id ID) ServerID() string {
	if id.pending {
		return ""
	}
	return id.value
}

// String renders the storage key: "temp_<token>" or the server id.
func (id ID) String() string {
	if id.pending {
		return PendingPrefix + id.value
	}
	return id.value
}

// MarshalJSON encodes the id as its storage key.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON accepts a JSON string or number.
// Remote services are free to hand out numeric ids.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ID{}
		return nil
	}
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		s = n.String()
	}
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
