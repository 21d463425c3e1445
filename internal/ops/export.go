package ops

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danpires/tally/internal/config"
	"github.com/danpires/tally/internal/db"
	"github.com/danpires/tally/internal/errors"
)

// ExportInput selects the entries to export. Start and End are inclusive
// YYYY-MM-DD dates.
type ExportInput struct {
	Owner string `json:"owner,omitempty"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// ExportOutput points at the written file.
type ExportOutput struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Export writes one JSON line per entry in the range into the exports
// directory under baseDir. The file is written whole or not at all: a partial
// file left by a failed write is removed.
func Export(database *sql.DB, cfg *config.Config, baseDir string, in ExportInput) (*ExportOutput, error) {
	startDate, err := parseDate(in.Start)
	if err != nil {
		return nil, err
	}
	endDate, err := parseDate(in.End)
	if err != nil {
		return nil, err
	}
	if endDate.Before(startDate) {
		return nil, errors.NewInvalidRequest("end date is before start date")
	}
	owner := resolveOwner(cfg, in.Owner)

	entries, err := db.ListByDateRange(database, owner, in.Start, in.End)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("entries-%s-%s-%s.jsonl", owner, in.Start, in.End)
	path := filepath.Join(baseDir, "exports", name)
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("creating export file: %w", err))
	}

	enc := json.NewEncoder(f)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			f.Close()
			os.Remove(path)
			return nil, errors.NewInternal(fmt.Errorf("writing export: %w", err))
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, errors.NewInternal(fmt.Errorf("closing export: %w", err))
	}
	return &ExportOutput{Path: path, Count: len(entries)}, nil
}
