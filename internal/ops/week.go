package ops

import (
	"database/sql"
	"time"

	"github.com/danpires/tally/internal/config"
	"github.com/danpires/tally/internal/db"
	"github.com/danpires/tally/internal/entry"
)

// WeekInput selects a week by any date inside it. An empty date means the
// current week.
type WeekInput struct {
	Owner string `json:"owner,omitempty"`
	Date  string `json:"date,omitempty"` // YYYY-MM-DD
}

// DayTotal is one day's aggregate.
type DayTotal struct {
	Date       string `json:"date"`
	Minutes    int    `json:"minutes"`
	Formatted  string `json:"formatted"` // H:MM
	Entries    int    `json:"entries"`
	Overloaded bool   `json:"overloaded"`
}

// WeekOutput is the Monday-to-Sunday aggregate for one owner.
type WeekOutput struct {
	Owner          string     `json:"owner"`
	WeekStart      string     `json:"week_start"` // Monday
	WeekEnd        string     `json:"week_end"`   // Sunday
	Days           [7]DayTotal `json:"days"`
	TotalMinutes   int        `json:"total_minutes"`
	TotalFormatted string     `json:"total_formatted"`
	Overloaded     bool       `json:"overloaded"`
}

// WeeklyTotals recomputes a week's per-day totals from the store. Pending,
// synced and conflicted entries all count: a conflicted entry's hours were
// applied to the tracker, only clamped. Failed entries never reached it and
// are excluded. The week runs Monday through Sunday.
func WeeklyTotals(database *sql.DB, cfg *config.Config, in WeekInput) (*WeekOutput, error) {
	cfg = effectiveConfig(cfg)
	owner := resolveOwner(cfg, in.Owner)

	anchor := time.Now()
	if in.Date != "" {
		parsed, err := parseDate(in.Date)
		if err != nil {
			return nil, err
		}
		anchor = parsed
	}
	start := mondayOf(anchor)
	end := start.AddDate(0, 0, 6)
	startStr := start.Format("2006-01-02")
	endStr := end.Format("2006-01-02")

	entries, err := db.ListByDateRange(database, owner, startStr, endStr)
	if err != nil {
		return nil, err
	}

	out := &WeekOutput{Owner: owner, WeekStart: startStr, WeekEnd: endStr}
	index := make(map[string]int, 7)
	for i := 0; i < 7; i++ {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		out.Days[i] = DayTotal{Date: date, Formatted: formatMinutes(0)}
		index[date] = i
	}

	limit := cfg.DailyLimitMinutes
	for _, e := range entries {
		if e.SyncStatus == entry.StatusFailed {
			continue
		}
		i, ok := index[e.Date]
		if !ok {
			continue
		}
		out.Days[i].Minutes += e.DurationMinutes
		out.Days[i].Entries++
	}
	for i := range out.Days {
		out.Days[i].Formatted = formatMinutes(out.Days[i].Minutes)
		out.Days[i].Overloaded = out.Days[i].Minutes > limit
		if out.Days[i].Overloaded {
			out.Overloaded = true
		}
		out.TotalMinutes += out.Days[i].Minutes
	}
	out.TotalFormatted = formatMinutes(out.TotalMinutes)
	return out, nil
}
