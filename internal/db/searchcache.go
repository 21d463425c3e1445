package db

import (
	"database/sql"
	"encoding/json"

	"github.com/danpires/tally/internal/entry"
	"github.com/danpires/tally/internal/errors"
)

// CachedPage is one cached search result page.
type CachedPage struct {
	QueryNorm string
	Page      int
	Items     []entry.WorkItemSummary
	HasMore   bool
	ExpiresAt int64
}

// GetCachedPage returns a non-expired cached page, or nil on a miss.
func GetCachedPage(db *sql.DB, queryNorm string, page int, now int64) (*CachedPage, error) {
	cached, err := getPage(db, queryNorm, page)
	if err != nil || cached == nil {
		return nil, err
	}
	if cached.ExpiresAt <= now {
		return nil, nil
	}
	return cached, nil
}

// GetStalePage returns the last cached page for a key regardless of expiry.
// Used as the degraded result when the remote lookup fails.
func GetStalePage(db *sql.DB, queryNorm string, page int) (*CachedPage, error) {
	return getPage(db, queryNorm, page)
}

func getPage(db *sql.DB, queryNorm string, page int) (*CachedPage, error) {
	row := db.QueryRow(
		"SELECT results_json, has_more, expires_at FROM search_cache WHERE query_norm = ? AND page = ?",
		queryNorm, page,
	)

	var (
		resultsJSON string
		hasMore     int
		expiresAt   int64
	)
	err := row.Scan(&resultsJSON, &hasMore, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	items := []entry.WorkItemSummary{}
	if err := json.Unmarshal([]byte(resultsJSON), &items); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &CachedPage{
		QueryNorm: queryNorm,
		Page:      page,
		Items:     items,
		HasMore:   hasMore != 0,
		ExpiresAt: expiresAt,
	}, nil
}

// PutCachedPage stores a result page and its item links in one transaction.
// The link rows let a work item update invalidate every page that mentions it.
func PutCachedPage(db *sql.DB, p *CachedPage) error {
	data, err := json.Marshal(p.Items)
	if err != nil {
		return errors.NewInternal(err)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	hasMore := 0
	if p.HasMore {
		hasMore = 1
	}
	_, err = tx.Exec(`
		INSERT INTO search_cache (query_norm, page, results_json, has_more, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(query_norm, page) DO UPDATE SET
			results_json = excluded.results_json,
			has_more = excluded.has_more,
			expires_at = excluded.expires_at`,
		p.QueryNorm, p.Page, string(data), hasMore, p.ExpiresAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	if _, err := tx.Exec(
		"DELETE FROM search_cache_items WHERE query_norm = ? AND page = ?",
		p.QueryNorm, p.Page,
	); err != nil {
		return errors.NewInternal(err)
	}
	for _, item := range p.Items {
		if _, err := tx.Exec(
			"INSERT INTO search_cache_items (query_norm, page, work_item_id) VALUES (?, ?, ?)",
			p.QueryNorm, p.Page, item.ID,
		); err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// InvalidateCacheForItem drops every cached page that references the work item.
func InvalidateCacheForItem(db *sql.DB, workItemID int) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	if err := invalidateCacheForItemTx(tx, workItemID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func invalidateCacheForItemTx(tx *sql.Tx, workItemID int) error {
	_, err := tx.Exec(`
		DELETE FROM search_cache WHERE (query_norm, page) IN (
			SELECT query_norm, page FROM search_cache_items WHERE work_item_id = ?
		)`, workItemID)
	if err != nil {
		return errors.NewInternal(err)
	}
	if _, err := tx.Exec(
		"DELETE FROM search_cache_items WHERE work_item_id = ?", workItemID,
	); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// PruneExpiredCache removes pages whose TTL has elapsed.
func PruneExpiredCache(db *sql.DB, now int64) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM search_cache_items WHERE (query_norm, page) IN (
			SELECT query_norm, page FROM search_cache WHERE expires_at <= ?
		)`, now); err != nil {
		return errors.NewInternal(err)
	}
	if _, err := tx.Exec("DELETE FROM search_cache WHERE expires_at <= ?", now); err != nil {
		return errors.NewInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}
