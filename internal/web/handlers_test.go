package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danpires/tally/internal/config"
	"github.com/danpires/tally/internal/db"
	"github.com/danpires/tally/internal/entry"
	"github.com/danpires/tally/internal/errors"
	"github.com/danpires/tally/internal/ops"
	"github.com/danpires/tally/internal/search"
	"github.com/danpires/tally/internal/sync"
)

type fakeTracker struct {
	items map[int]*entry.WorkItem
}

func (f *fakeTracker) GetWorkItem(ctx context.Context, id int) (*entry.WorkItem, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, errors.NewNotFound("work item")
	}
	cp := *item
	return &cp, nil
}

func (f *fakeTracker) UpdateWork(ctx context.Context, id int, completed, remaining float64, token string) error {
	if item, ok := f.items[id]; ok {
		item.CompletedWork = completed
		item.RemainingWork = remaining
		return nil
	}
	return errors.NewNotFound("work item")
}

func (f *fakeTracker) SearchWorkItems(ctx context.Context, query string, page, pageSize int) ([]entry.WorkItemSummary, bool, error) {
	items := make([]entry.WorkItemSummary, 0)
	for _, it := range f.items {
		items = append(items, entry.WorkItemSummary{ID: it.ID, Title: it.Title, Type: it.Type})
	}
	return items, false, nil
}

func testServer(t *testing.T) (*httptest.Server, *sql.DB) {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	tracker := &fakeTracker{items: map[int]*entry.WorkItem{
		4: {ID: 4, Title: "implement parser", Type: entry.TypeTask, CompletedWork: 2, RemainingWork: 5},
	}}
	index := search.NewIndex(database, tracker, cfg)
	t.Cleanup(index.Close)
	coordinator := sync.NewCoordinator(database, tracker, cfg)

	srv := NewServer(database, cfg, index, coordinator, "test", "127.0.0.1", 0)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts, database
}

func logEntry(t *testing.T, database *sql.DB, owner, date string, minutes int, comment string) *entry.TimeEntry {
	t.Helper()
	if err := db.UpsertWorkItem(database, &entry.WorkItem{
		ID: 4, Title: "implement parser", Type: entry.TypeTask, CompletedWork: 2, RemainingWork: 5,
	}); err != nil {
		t.Fatalf("UpsertWorkItem failed: %v", err)
	}
	out, err := ops.LogTime(context.Background(), database, nil, config.DefaultConfig(), ops.LogTimeInput{
		Owner: owner, WorkItemID: 4, Date: date, DurationMinutes: minutes, Comment: comment,
	})
	if err != nil {
		t.Fatalf("LogTime failed: %v", err)
	}
	return out.Entry
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestRootRedirectsToWeek(t *testing.T) {
	ts, _ := testServer(t)

	client := &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/week" {
		t.Errorf("Location = %q, want /week", loc)
	}
}

func TestWeekPage(t *testing.T) {
	ts, database := testServer(t)
	logEntry(t, database, "ana", "2026-01-19", 90, "")

	status, body := getBody(t, ts.URL+"/week?owner=ana&date=2026-01-22")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if !strings.Contains(body, "2026-01-19") {
		t.Error("week page should show the Monday date")
	}
	if !strings.Contains(body, "1:30") {
		t.Error("week page should show the formatted daily total")
	}
}

func TestPendingPageAndDetail(t *testing.T) {
	ts, database := testServer(t)
	e := logEntry(t, database, "ana", "2026-01-19", 60, "fixed the *tokenizer*")

	status, body := getBody(t, ts.URL+"/pending")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if !strings.Contains(body, e.ID) {
		t.Error("pending page should list the queued entry")
	}

	status, body = getBody(t, ts.URL+"/entries/"+e.ID)
	if status != http.StatusOK {
		t.Fatalf("detail status = %d, want 200", status)
	}
	if !strings.Contains(body, "<em>tokenizer</em>") {
		t.Error("detail page should render the markdown comment")
	}
	if !strings.Contains(body, "implement parser") {
		t.Error("detail page should show the work item snapshot")
	}
}

func TestSearchPage(t *testing.T) {
	ts, _ := testServer(t)

	status, body := getBody(t, ts.URL+"/search?q=parser")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if !strings.Contains(body, "implement parser") {
		t.Error("search page should list the matching work item")
	}
}

func TestCancelEntryJSON(t *testing.T) {
	ts, database := testServer(t)
	e := logEntry(t, database, "ana", "2026-01-19", 60, "")

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/entries/"+e.ID, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out ops.CancelOutput
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Cancelled {
		t.Error("cancelled = false, want true")
	}

	if _, err := db.GetEntry(database, e.ID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("entry should be gone, got %v", err)
	}
}

func TestDrainEndpoint(t *testing.T) {
	ts, database := testServer(t)
	logEntry(t, database, "ana", "2026-01-19", 60, "")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/drain", strings.NewReader("online=true"))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /drain failed: %v", err)
	}
	defer resp.Body.Close()

	var out sync.DrainOutput
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Synced != 1 {
		t.Errorf("synced = %d, want 1", out.Synced)
	}
}

func TestMissingEntryErrorJSON(t *testing.T) {
	ts, _ := testServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/entries/nope", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	errObj, ok := payload["error"].(map[string]any)
	if !ok || errObj["code"] != "NOT_FOUND" {
		t.Errorf("payload = %v, want NOT_FOUND error", payload)
	}
}

func TestSecurityHeaders(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/week")
	if err != nil {
		t.Fatalf("GET /week failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options header")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options header")
	}
	if resp.Header.Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy header")
	}
}
