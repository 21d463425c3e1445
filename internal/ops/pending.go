package ops

import (
	"database/sql"

	"github.com/danpires/tally/internal/db"
	"github.com/danpires/tally/internal/entry"
)

// PendingEntry is a queued entry joined with its retry state, if any.
type PendingEntry struct {
	Entry       entry.TimeEntry `json:"entry"`
	Attempts    int             `json:"attempts,omitempty"`
	LastError   *string         `json:"last_error,omitempty"`
	NextRetryAt int64           `json:"next_retry_at,omitempty"`
}

// PendingOutput is the sync queue in the order it will drain.
type PendingOutput struct {
	Entries []PendingEntry `json:"entries"`
	Count   int            `json:"count"`
}

// Pending lists every entry waiting to sync, oldest first, with any recorded
// failure state alongside.
func Pending(database *sql.DB) (*PendingOutput, error) {
	entries, err := db.ListPending(database)
	if err != nil {
		return nil, err
	}

	out := &PendingOutput{Entries: make([]PendingEntry, 0, len(entries)), Count: len(entries)}
	for _, e := range entries {
		pe := PendingEntry{Entry: e}
		rec, err := db.GetSyncRecord(database, e.ID)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			pe.Attempts = rec.Attempts
			pe.LastError = rec.LastError
			pe.NextRetryAt = rec.NextRetryAt
		}
		out.Entries = append(out.Entries, pe)
	}
	return out, nil
}
