package db

import (
	"database/sql"
	"time"

	"github.com/danpires/tally/internal/entry"
	"github.com/danpires/tally/internal/errors"
)

// InsertEntry stores a new time entry. The INSERT is a single statement, so a
// crash mid-write leaves either the whole record or nothing.
func InsertEntry(db *sql.DB, e *entry.TimeEntry) error {
	comment := toNullString(e.Comment)
	clamped := toNullFloat(e.ClampedHours)

	query := `
		INSERT INTO entries (
			id, owner, work_item_id, entry_date, duration_minutes,
			comment, sync_status, clamped_hours, created_at, last_modified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		e.ID, e.Owner, e.WorkItemID, e.Date, e.DurationMinutes,
		comment, string(e.SyncStatus), clamped, e.CreatedAt, e.LastModifiedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetEntry retrieves a time entry by ID.
func GetEntry(db *sql.DB, id string) (*entry.TimeEntry, error) {
	row := db.QueryRow(selectEntryColumns+" FROM entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// ListPending returns all pending entries in creation order (oldest first).
// Creation order per work item is what keeps remote effort deltas deterministic.
func ListPending(db *sql.DB) ([]entry.TimeEntry, error) {
	rows, err := db.Query(
		selectEntryColumns+" FROM entries WHERE sync_status = ? ORDER BY created_at ASC, id ASC",
		string(entry.StatusPending),
	)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListByDateRange returns an owner's entries with entry_date in [start, end],
// ordered by date then creation time. Dates are YYYY-MM-DD strings, so string
// comparison matches chronological comparison.
func ListByDateRange(db *sql.DB, owner, start, end string) ([]entry.TimeEntry, error) {
	rows, err := db.Query(
		selectEntryColumns+` FROM entries
		 WHERE owner = ? AND entry_date >= ? AND entry_date <= ?
		 ORDER BY entry_date ASC, created_at ASC`,
		owner, start, end,
	)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListForDay returns an owner's entries for a single date.
func ListForDay(db *sql.DB, owner, date string) ([]entry.TimeEntry, error) {
	return ListByDateRange(db, owner, date, date)
}

// UpdateEntryStatus sets the sync status of an entry and bumps last_modified_at.
func UpdateEntryStatus(db *sql.DB, id string, status entry.SyncStatus) error {
	result, err := db.Exec(
		"UPDATE entries SET sync_status = ?, last_modified_at = ? WHERE id = ?",
		string(status), time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// DeleteEntryIfCancellable removes an entry only while it is still pending or
// terminally failed. Returns false if the entry exists but is not cancellable.
func DeleteEntryIfCancellable(db *sql.DB, id string) (bool, error) {
	result, err := db.Exec(
		"DELETE FROM entries WHERE id = ? AND sync_status IN (?, ?)",
		id, string(entry.StatusPending), string(entry.StatusFailed),
	)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}

const selectEntryColumns = `SELECT id, owner, work_item_id, entry_date, duration_minutes,
	comment, sync_status, clamped_hours, created_at, last_modified_at`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry scans a single row into a TimeEntry.
func scanEntry(row rowScanner) (*entry.TimeEntry, error) {
	var (
		e       entry.TimeEntry
		comment sql.NullString
		status  string
		clamped sql.NullFloat64
	)
	err := row.Scan(
		&e.ID, &e.Owner, &e.WorkItemID, &e.Date, &e.DurationMinutes,
		&comment, &status, &clamped, &e.CreatedAt, &e.LastModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Comment = fromNullString(comment)
	e.SyncStatus = entry.SyncStatus(status)
	if clamped.Valid {
		e.ClampedHours = &clamped.Float64
	}
	return &e, nil
}

func collectEntries(rows *sql.Rows) ([]entry.TimeEntry, error) {
	entries := []entry.TimeEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return entries, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// toNullFloat converts a *float64 to sql.NullFloat64.
func toNullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
