package entry

import (
	"github.com/danpires/tally/internal/errors"
)

// Validation limits. Config may override both; these are the defaults.
const (
	DefaultDailyLimitMinutes = 1440 // 24h
	DefaultCommentMaxChars   = 500
)

// Candidate is a not-yet-persisted time entry under validation.
type Candidate struct {
	Owner           string
	WorkItemID      int
	Date            string // YYYY-MM-DD
	DurationMinutes int
	Comment         *string
}

// Rules carries the tunable validation limits.
type Rules struct {
	DailyLimitMinutes int
	CommentMaxChars   int
}

// DefaultRules returns the default validation limits.
func DefaultRules() Rules {
	return Rules{
		DailyLimitMinutes: DefaultDailyLimitMinutes,
		CommentMaxChars:   DefaultCommentMaxChars,
	}
}

// Validate applies the business rules to a candidate entry, in order, first
// failure wins:
//
//  1. the referenced work item must be a known Task or Bug
//  2. duration must be strictly positive
//  3. comment must not exceed the limit
//  4. the (owner, date) total over pending+synced entries must stay within the daily limit
//
// item is the cached snapshot for the candidate's work item (nil if unknown).
// existing are the owner's entries for the candidate's date. Pure and
// deterministic; no I/O, safe to call repeatedly.
func Validate(candidate Candidate, item *WorkItem, existing []TimeEntry, rules Rules) error {
	if rules.DailyLimitMinutes <= 0 {
		rules.DailyLimitMinutes = DefaultDailyLimitMinutes
	}
	if rules.CommentMaxChars <= 0 {
		rules.CommentMaxChars = DefaultCommentMaxChars
	}

	if item == nil || item.ID != candidate.WorkItemID || !item.Type.Loggable() {
		return errors.NewInvalidWorkItem(candidate.WorkItemID)
	}

	if candidate.DurationMinutes <= 0 {
		return errors.NewNonPositiveDuration(candidate.DurationMinutes)
	}

	if candidate.Comment != nil {
		if n := CommentLength(*candidate.Comment); n > rules.CommentMaxChars {
			return errors.NewCommentTooLong(rules.CommentMaxChars, n)
		}
	}

	total := candidate.DurationMinutes
	for _, e := range existing {
		if e.Owner != candidate.Owner || e.Date != candidate.Date {
			continue
		}
		// Terminal failures and conflicts do not count toward the daily total;
		// pending and synced entries do.
		if e.SyncStatus == StatusPending || e.SyncStatus == StatusSynced {
			total += e.DurationMinutes
		}
	}
	if total > rules.DailyLimitMinutes {
		return errors.NewDailyLimitExceeded(rules.DailyLimitMinutes, total)
	}

	return nil
}
