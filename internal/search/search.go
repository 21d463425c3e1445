// Package search implements the debounced, cached work item lookup.
//
// Queries are normalized and cached per (query, page) in the local store so a
// repeat lookup costs no network call while its TTL holds. Rapid successive
// queries collapse to the latest one: only the query still current when the
// quiet window elapses reaches the remote tracker, and a late response for a
// superseded query is discarded (last-submitted-query-wins).
package search

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/danpires/tally/internal/config"
	"github.com/danpires/tally/internal/db"
	"github.com/danpires/tally/internal/entry"
	"github.com/danpires/tally/internal/errors"
)

// MinQueryLength is the minimum normalized query length that triggers a lookup.
const MinQueryLength = 2

// Remote is the slice of the tracker client the index needs.
type Remote interface {
	SearchWorkItems(ctx context.Context, query string, page, pageSize int) ([]entry.WorkItemSummary, bool, error)
}

// Result is one resolved search page.
type Result struct {
	Query   string                  `json:"query"`
	Page    int                     `json:"page"`
	Items   []entry.WorkItemSummary `json:"items"`
	HasMore bool                    `json:"has_more"`
	// Stale marks a degraded result served from an expired cache page after a
	// remote failure.
	Stale bool `json:"stale,omitempty"`
}

// Index is the task search index.
type Index struct {
	database *sql.DB
	remote   Remote

	pageSize int
	ttl      time.Duration
	emptyTTL time.Duration
	debounce time.Duration

	mu         sync.Mutex
	generation uint64
	pendingQ   string
	pendingPg  int
	timer      *time.Timer
	cancel     context.CancelFunc
}

// NewIndex creates a search index over the local store and remote client.
func NewIndex(database *sql.DB, remote Remote, cfg *config.Config) *Index {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Index{
		database: database,
		remote:   remote,
		pageSize: cfg.SearchPageSize,
		ttl:      time.Duration(cfg.SearchTTLSeconds) * time.Second,
		emptyTTL: time.Duration(cfg.SearchEmptyTTLSeconds) * time.Second,
		debounce: time.Duration(cfg.DebounceMillis) * time.Millisecond,
	}
}

// Lookup resolves a search page immediately (no debounce): cache hit if fresh,
// otherwise a remote call filtered to Task/Bug and cached. On remote failure
// it returns a SEARCH_UNAVAILABLE error together with the last good cached
// page if one exists (empty result otherwise).
func (s *Index) Lookup(ctx context.Context, query string, page int) (*Result, error) {
	norm := entry.NormalizeQuery(query)
	if page < 1 {
		page = 1
	}
	result := &Result{Query: norm, Page: page, Items: []entry.WorkItemSummary{}}

	if len(norm) < MinQueryLength {
		return result, nil
	}

	now := time.Now().Unix()
	cached, err := db.GetCachedPage(s.database, norm, page, now)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		result.Items = cached.Items
		result.HasMore = cached.HasMore
		return result, nil
	}

	items, hasMore, err := s.remote.SearchWorkItems(ctx, norm, page, s.pageSize)
	if err != nil {
		// Degrade to the last good page rather than failing the interaction.
		stale, staleErr := db.GetStalePage(s.database, norm, page)
		if staleErr == nil && stale != nil {
			result.Items = stale.Items
			result.HasMore = stale.HasMore
			result.Stale = true
		}
		return result, errors.NewSearchUnavailable(err)
	}

	filtered := make([]entry.WorkItemSummary, 0, len(items))
	for _, item := range items {
		if item.Type.Loggable() {
			filtered = append(filtered, item)
		}
	}

	ttl := s.ttl
	if len(filtered) == 0 {
		// Known-empty queries are cached too, just not for as long.
		ttl = s.emptyTTL
	}
	if err := db.PutCachedPage(s.database, &db.CachedPage{
		QueryNorm: norm,
		Page:      page,
		Items:     filtered,
		HasMore:   hasMore,
		ExpiresAt: now + int64(ttl/time.Second),
	}); err != nil {
		return nil, err
	}

	result.Items = filtered
	result.HasMore = hasMore
	return result, nil
}

// Submit schedules a debounced lookup. Successive calls within the quiet
// window supersede each other; only the last query fires, and only its result
// is delivered. A superseded in-flight lookup is cancelled and its late
// result dropped.
func (s *Index) Submit(query string, page int, deliver func(*Result, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.pendingQ = query
	s.pendingPg = page

	// Supersede any in-flight lookup right away.
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.fire(deliver)
	})
}

// fire runs the lookup for the query that survived the quiet window.
func (s *Index) fire(deliver func(*Result, error)) {
	s.mu.Lock()
	gen := s.generation
	query, page := s.pendingQ, s.pendingPg
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		result, err := s.Lookup(ctx, query, page)

		s.mu.Lock()
		current := s.generation == gen
		s.mu.Unlock()
		if !current {
			// A newer query superseded this one while it was in flight.
			return
		}
		deliver(result, err)
	}()
}

// Close stops any pending debounce timer and cancels an in-flight lookup.
func (s *Index) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
}
