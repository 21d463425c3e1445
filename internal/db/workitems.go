package db

import (
	"database/sql"
	"strconv"

	"github.com/danpires/tally/internal/entry"
	"github.com/danpires/tally/internal/errors"
)

// UpsertWorkItem inserts or replaces a cached work item snapshot.
func UpsertWorkItem(db *sql.DB, item *entry.WorkItem) error {
	query := `
		INSERT INTO work_items (id, title, item_type, completed_work, remaining_work, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			item_type = excluded.item_type,
			completed_work = excluded.completed_work,
			remaining_work = excluded.remaining_work,
			last_synced_at = excluded.last_synced_at
	`
	_, err := db.Exec(query,
		item.ID, item.Title, string(item.Type),
		item.CompletedWork, item.RemainingWork, item.LastSyncedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetWorkItem retrieves a cached work item snapshot by ID.
func GetWorkItem(db *sql.DB, id int) (*entry.WorkItem, error) {
	row := db.QueryRow(
		"SELECT id, title, item_type, completed_work, remaining_work, last_synced_at FROM work_items WHERE id = ?",
		id,
	)

	var (
		item     entry.WorkItem
		itemType string
	)
	err := row.Scan(&item.ID, &item.Title, &itemType, &item.CompletedWork, &item.RemainingWork, &item.LastSyncedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("work item " + strconv.Itoa(id))
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	item.Type = entry.WorkItemType(itemType)
	return &item, nil
}
