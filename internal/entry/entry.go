package entry

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// SyncStatus tracks where a time entry sits in its sync lifecycle.
type SyncStatus string

const (
	StatusPending  SyncStatus = "pending"
	StatusSynced   SyncStatus = "synced"
	StatusConflict SyncStatus = "conflict"
	StatusFailed   SyncStatus = "failed"
)

// WorkItemType is the remote tracker's work item type.
// Only Task and Bug can receive time entries; everything else is filtered out.
type WorkItemType string

const (
	TypeTask  WorkItemType = "Task"
	TypeBug   WorkItemType = "Bug"
	TypeOther WorkItemType = "Other"
)

// ParseWorkItemType maps a raw remote type string onto a WorkItemType.
func ParseWorkItemType(s string) WorkItemType {
	switch s {
	case "Task":
		return TypeTask
	case "Bug":
		return TypeBug
	default:
		return TypeOther
	}
}

// Loggable reports whether time may be logged against the given type.
func (t WorkItemType) Loggable() bool {
	return t == TypeTask || t == TypeBug
}

// TimeEntry is a locally captured record of worked time against a work item.
type TimeEntry struct {
	ID              string     `json:"id"`
	Owner           string     `json:"owner"`
	WorkItemID      int        `json:"work_item_id"`
	Date            string     `json:"date"` // YYYY-MM-DD
	DurationMinutes int        `json:"duration_minutes"`
	Comment         *string    `json:"comment,omitempty"`
	SyncStatus      SyncStatus `json:"sync_status"`
	// ClampedHours is set when a sync had to clamp remaining work to zero;
	// it records the overshoot in hours for audit.
	ClampedHours   *float64 `json:"clamped_hours,omitempty"`
	CreatedAt      int64    `json:"created_at"`
	LastModifiedAt int64    `json:"last_modified_at"`
}

// WorkItem is a locally cached snapshot of a remote work item.
type WorkItem struct {
	ID            int          `json:"id"`
	Title         string       `json:"title"`
	Type          WorkItemType `json:"type"`
	CompletedWork float64      `json:"completed_work"`
	RemainingWork float64      `json:"remaining_work"`
	LastSyncedAt  int64        `json:"last_synced_at"`
}

// WorkItemSummary is the slim shape returned by search.
type WorkItemSummary struct {
	ID    int          `json:"id"`
	Title string       `json:"title"`
	Type  WorkItemType `json:"type"`
}

// whitespaceRegex matches one or more whitespace characters.
var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeQuery normalizes a search query for cache keying:
// trim, case-fold, collapse internal whitespace.
func NormalizeQuery(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return s
}

// CommentLength returns the comment length in runes (not bytes).
func CommentLength(comment string) int {
	return utf8.RuneCountInString(comment)
}

// HoursFromMinutes converts a duration in minutes to decimal hours,
// the unit the remote tracker stores effort in.
func HoursFromMinutes(minutes int) float64 {
	return float64(minutes) / 60.0
}
