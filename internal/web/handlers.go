package web

import (
	"database/sql"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danpires/tally/internal/config"
	"github.com/danpires/tally/internal/db"
	"github.com/danpires/tally/internal/errors"
	"github.com/danpires/tally/internal/ops"
	"github.com/danpires/tally/internal/search"
	"github.com/danpires/tally/internal/sync"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db          *sql.DB
	cfg         *config.Config
	renderer    *Renderer
	index       *search.Index
	coordinator *sync.Coordinator
}

// HandleWeek handles GET /week — the weekly grid.
func (h *Handlers) HandleWeek(w http.ResponseWriter, r *http.Request) {
	input := ops.WeekInput{
		Owner: r.URL.Query().Get("owner"),
		Date:  r.URL.Query().Get("date"),
	}

	result, err := ops.WeeklyTotals(h.db, h.cfg, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	start, _ := time.Parse("2006-01-02", result.WeekStart)

	h.renderer.renderPage(w, r, "week", WeekPageData{
		PageData: PageData{
			Title:   "Week of " + result.WeekStart,
			Version: h.renderer.version,
			Nav:     "week",
		},
		Week:     result,
		PrevDate: start.AddDate(0, 0, -7).Format("2006-01-02"),
		NextDate: start.AddDate(0, 0, 7).Format("2006-01-02"),
	})
}

// HandlePending handles GET /pending — the sync queue.
func (h *Handlers) HandlePending(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Pending(h.db)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "pending", PendingPageData{
		PageData: PageData{
			Title:   "Pending",
			Version: h.renderer.version,
			Nav:     "pending",
		},
		Queue: result,
	})
}

// HandleSearch handles GET /search — work item lookup.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	page := parseIntParam(r, "page", 1)

	data := SearchPageData{
		PageData: PageData{
			Title:   "Search",
			Version: h.renderer.version,
			Nav:     "search",
		},
		Query:    query,
		Page:     page,
		HasQuery: query != "",
	}

	if query == "" {
		h.renderer.renderPage(w, r, "search", data)
		return
	}
	if h.index == nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("remote tracker is not configured"))
		return
	}

	result, err := h.index.Lookup(r.Context(), query, page)
	if err != nil {
		// A stale cached page still renders, flagged as degraded.
		if result == nil || !result.Stale {
			h.renderer.renderError(w, r, err)
			return
		}
		data.Degraded = true
	}
	data.Result = result

	h.renderer.renderPage(w, r, "search", data)
}

// HandleDetail handles GET /entries/{id} — view a single entry.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("entry ID is required"))
		return
	}

	e, err := db.GetEntry(h.db, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	view := &ops.PendingEntry{Entry: *e}
	if rec, err := db.GetSyncRecord(h.db, id); err == nil && rec != nil {
		view.Attempts = rec.Attempts
		view.LastError = rec.LastError
		view.NextRetryAt = rec.NextRetryAt
	}

	var item *workItemView
	if snap, err := db.GetWorkItem(h.db, e.WorkItemID); err == nil {
		item = &workItemView{
			ID:            snap.ID,
			Title:         snap.Title,
			Type:          string(snap.Type),
			CompletedWork: snap.CompletedWork,
			RemainingWork: snap.RemainingWork,
		}
	}

	var commentHTML template.HTML
	if e.Comment != nil {
		commentHTML = renderMarkdown(*e.Comment)
	}

	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData: PageData{
			Title:   "Entry " + id,
			Version: h.renderer.version,
			Nav:     "pending",
		},
		Entry:       view,
		WorkItem:    item,
		CommentHTML: commentHTML,
	})
}

// HandleCancel handles DELETE /entries/{id} — withdraw a queued entry.
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("entry ID is required"))
		return
	}

	result, err := ops.Cancel(h.db, ops.CancelInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// HTMX request: redirect via HX-Redirect header
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/pending")
		w.WriteHeader(http.StatusOK)
		return
	}

	// JSON request
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, result)
		return
	}

	// Default: redirect
	http.Redirect(w, r, "/pending", http.StatusFound)
}

// HandleDrain handles POST /drain — push the queue to the tracker.
func (h *Handlers) HandleDrain(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	online := r.FormValue("online") != "false"

	if h.coordinator == nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("remote tracker is not configured"))
		return
	}
	result, err := h.coordinator.Drain(r.Context(), sync.DrainInput{Online: online})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// JSON request
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, result)
		return
	}

	// Default: back to the queue
	http.Redirect(w, r, "/pending", http.StatusFound)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
