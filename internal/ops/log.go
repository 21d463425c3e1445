package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/danpires/tally/internal/config"
	"github.com/danpires/tally/internal/db"
	"github.com/danpires/tally/internal/entry"
	"github.com/danpires/tally/internal/errors"
)

// LogTimeInput captures one unit of work against a work item.
type LogTimeInput struct {
	Owner           string `json:"owner,omitempty"`
	WorkItemID      int    `json:"work_item_id"`
	Date            string `json:"date"` // YYYY-MM-DD
	DurationMinutes int    `json:"duration_minutes"`
	Comment         string `json:"comment,omitempty"`
}

// LogTimeOutput is the persisted entry plus the work item it was validated
// against.
type LogTimeOutput struct {
	Entry    *entry.TimeEntry `json:"entry"`
	WorkItem *entry.WorkItem  `json:"work_item"`
}

// LogTime validates and persists a new pending time entry.
//
// The work item snapshot is resolved locally first; on a miss the tracker is
// asked once and the result cached. An item that cannot be resolved either
// way is treated as unknown and rejected, so capture still works offline for
// any item seen before.
func LogTime(ctx context.Context, database *sql.DB, remote Remote, cfg *config.Config, in LogTimeInput) (*LogTimeOutput, error) {
	if in.WorkItemID <= 0 {
		return nil, errors.NewInvalidRequest("work_item_id is required")
	}
	if _, err := parseDate(in.Date); err != nil {
		return nil, err
	}
	cfg = effectiveConfig(cfg)
	owner := resolveOwner(cfg, in.Owner)

	item, err := db.GetWorkItem(database, in.WorkItemID)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}
	if item == nil && remote != nil {
		fetched, ferr := remote.GetWorkItem(ctx, in.WorkItemID)
		if ferr == nil {
			item = fetched
			if uerr := db.UpsertWorkItem(database, item); uerr != nil {
				return nil, uerr
			}
		}
		// Any fetch failure leaves item nil; validation rejects unknown items.
	}

	existing, err := db.ListForDay(database, owner, in.Date)
	if err != nil {
		return nil, err
	}

	var comment *string
	if in.Comment != "" {
		comment = &in.Comment
	}
	candidate := entry.Candidate{
		Owner:           owner,
		WorkItemID:      in.WorkItemID,
		Date:            in.Date,
		DurationMinutes: in.DurationMinutes,
		Comment:         comment,
	}
	rules := entry.Rules{
		DailyLimitMinutes: cfg.DailyLimitMinutes,
		CommentMaxChars:   cfg.CommentMaxChars,
	}
	if err := entry.Validate(candidate, item, existing, rules); err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	e := &entry.TimeEntry{
		ID:              newEntryID(),
		Owner:           owner,
		WorkItemID:      in.WorkItemID,
		Date:            in.Date,
		DurationMinutes: in.DurationMinutes,
		Comment:         comment,
		SyncStatus:      entry.StatusPending,
		CreatedAt:       now,
		LastModifiedAt:  now,
	}
	if err := db.InsertEntry(database, e); err != nil {
		return nil, err
	}
	return &LogTimeOutput{Entry: e, WorkItem: item}, nil
}
