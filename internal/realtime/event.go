// Package realtime carries row-change notifications from PostgreSQL to
// caches and connected clients. Events only signal that something changed;
// consumers re-fetch the row instead of trusting the payload.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Channel is the PostgreSQL NOTIFY channel used for change events.
const Channel = "nikahprep_changes"

// Op is the kind of change.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
	// OpResync tells consumers that events may have been missed and every
	// cached row should be dropped.
	OpResync Op = "resync"
)

// Event describes a change to one user-owned row.
type Event struct {
	Table  string    `json:"table"`
	UserID string    `json:"user_id"`
	Key    string    `json:"key,omitempty"`
	Op     Op        `json:"op"`
	At     time.Time `json:"at"`
	// Origin identifies the writer that published the event, so it can
	// skip its own changes.
	Origin string `json:"origin,omitempty"`
}

// Decode parses a NOTIFY payload.
func Decode(payload string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.Op == "" || (e.Op != OpResync && (e.Table == "" || e.UserID == "")) {
		return Event{}, fmt.Errorf("decode event: incomplete payload %q", payload)
	}
	return e, nil
}
