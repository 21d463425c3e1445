package ops

import (
	"database/sql"

	"github.com/danpires/tally/internal/db"
	"github.com/danpires/tally/internal/errors"
)

// CancelInput names the entry to withdraw.
type CancelInput struct {
	ID string `json:"id"`
}

// CancelOutput confirms the withdrawal.
type CancelOutput struct {
	ID        string `json:"id"`
	Cancelled bool   `json:"cancelled"`
}

// Cancel removes a not-yet-synced entry from the queue. Entries already
// applied remotely (synced or conflict) cannot be withdrawn locally.
func Cancel(database *sql.DB, in CancelInput) (*CancelOutput, error) {
	if in.ID == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	e, err := db.GetEntry(database, in.ID)
	if err != nil {
		return nil, err
	}

	deleted, err := db.DeleteEntryIfCancellable(database, in.ID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, errors.NewInvalidRequest("entry is already " + string(e.SyncStatus) + "; only pending or failed entries can be cancelled")
	}
	if err := db.DeleteSyncRecord(database, in.ID); err != nil {
		return nil, err
	}
	return &CancelOutput{ID: in.ID, Cancelled: true}, nil
}
