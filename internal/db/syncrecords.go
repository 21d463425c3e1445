package db

import (
	"database/sql"
	"time"

	"github.com/danpires/tally/internal/entry"
	"github.com/danpires/tally/internal/errors"
)

// SyncRecord is the inspectable retry state for an entry that is still
// pending or failed. It is discarded once the entry syncs.
type SyncRecord struct {
	EntryID     string  `json:"entry_id"`
	Attempts    int     `json:"attempts"`
	LastError   *string `json:"last_error,omitempty"`
	NextRetryAt int64   `json:"next_retry_at"`
}

// GetSyncRecord returns the retry state for an entry, or nil if none exists.
func GetSyncRecord(db *sql.DB, entryID string) (*SyncRecord, error) {
	row := db.QueryRow(
		"SELECT entry_id, attempts, last_error, next_retry_at FROM sync_records WHERE entry_id = ?",
		entryID,
	)

	var (
		r       SyncRecord
		lastErr sql.NullString
	)
	err := row.Scan(&r.EntryID, &r.Attempts, &lastErr, &r.NextRetryAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	r.LastError = fromNullString(lastErr)
	return &r, nil
}

// RecordSyncFailure bumps the attempt count for an entry and schedules the
// next retry. Returns the new attempt count.
func RecordSyncFailure(db *sql.DB, entryID, lastError string, nextRetryAt int64) (int, error) {
	_, err := db.Exec(`
		INSERT INTO sync_records (entry_id, attempts, last_error, next_retry_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET
			attempts = attempts + 1,
			last_error = excluded.last_error,
			next_retry_at = excluded.next_retry_at`,
		entryID, lastError, nextRetryAt,
	)
	if err != nil {
		return 0, errors.NewInternal(err)
	}

	var attempts int
	if err := db.QueryRow(
		"SELECT attempts FROM sync_records WHERE entry_id = ?", entryID,
	).Scan(&attempts); err != nil {
		return 0, errors.NewInternal(err)
	}
	return attempts, nil
}

// DeleteSyncRecord drops the retry state for an entry.
func DeleteSyncRecord(db *sql.DB, entryID string) error {
	if _, err := db.Exec("DELETE FROM sync_records WHERE entry_id = ?", entryID); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ApplySyncOutcome records the result of a sync attempt atomically: the entry's
// new status (with any clamped overshoot), the refreshed work item snapshot,
// invalidation of search pages that mention the item, and disposal of the retry
// record when the entry reached a synced or conflict state.
func ApplySyncOutcome(db *sql.DB, entryID string, status entry.SyncStatus, clampedHours *float64, item *entry.WorkItem) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"UPDATE entries SET sync_status = ?, clamped_hours = ?, last_modified_at = ? WHERE id = ?",
		string(status), toNullFloat(clampedHours), time.Now().Unix(), entryID,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(entryID)
	}

	if item != nil {
		_, err = tx.Exec(`
			INSERT INTO work_items (id, title, item_type, completed_work, remaining_work, last_synced_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				item_type = excluded.item_type,
				completed_work = excluded.completed_work,
				remaining_work = excluded.remaining_work,
				last_synced_at = excluded.last_synced_at`,
			item.ID, item.Title, string(item.Type),
			item.CompletedWork, item.RemainingWork, item.LastSyncedAt,
		)
		if err != nil {
			return errors.NewInternal(err)
		}
		if err := invalidateCacheForItemTx(tx, item.ID); err != nil {
			return err
		}
	}

	if status == entry.StatusSynced || status == entry.StatusConflict {
		if _, err := tx.Exec("DELETE FROM sync_records WHERE entry_id = ?", entryID); err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}
