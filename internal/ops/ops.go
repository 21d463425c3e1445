// Package ops implements the engine's operations: logging, cancelling,
// aggregating, listing and exporting time entries. Each operation is a
// package-level function taking the open database plus an input struct and
// returning an output struct, so the CLI, MCP and web surfaces stay thin.
package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/danpires/tally/internal/config"
	"github.com/danpires/tally/internal/entry"
	"github.com/danpires/tally/internal/errors"
)

// Remote is the slice of the tracker client the operations need.
type Remote interface {
	GetWorkItem(ctx context.Context, id int) (*entry.WorkItem, error)
}

// newEntryID returns a fresh ULID. Lexicographic order follows creation
// order, and the ID doubles as the sync idempotency token.
func newEntryID() string {
	return ulid.Make().String()
}

// effectiveConfig substitutes defaults for a nil config, so callers that
// never load one (tests, embedded use) still get the documented limits.
func effectiveConfig(cfg *config.Config) *config.Config {
	if cfg == nil {
		return config.DefaultConfig()
	}
	return cfg
}

// resolveOwner falls back to the configured default owner.
func resolveOwner(cfg *config.Config, owner string) string {
	if owner != "" {
		return owner
	}
	if cfg != nil && cfg.DefaultOwner != "" {
		return cfg.DefaultOwner
	}
	return "default"
}

// parseDate validates a YYYY-MM-DD date string.
func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.NewInvalidRequest("date must be YYYY-MM-DD")
	}
	return t, nil
}

// mondayOf returns the Monday of the week containing t.
func mondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

// formatMinutes renders minutes as H:MM.
func formatMinutes(m int) string {
	if m < 0 {
		m = 0
	}
	return fmt.Sprintf("%d:%02d", m/60, m%60)
}
