package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/danpires/tally/internal/config"
	"github.com/danpires/tally/internal/db"
	"github.com/danpires/tally/internal/entry"
	"github.com/danpires/tally/internal/errors"
	"github.com/danpires/tally/internal/search"
	"github.com/danpires/tally/internal/sync"
)

// fakeTracker is a minimal in-memory tracker for handler tests.
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

// testSetup creates a temporary database and handlers over a fake tracker.
func testSetup(t *testing.T) (*Handlers, *sql.DB, *fakeTracker) {
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

	return NewHandlers(database, cfg, tracker, index, coordinator), database, tracker
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// resultJSON decodes the first text content of a result.
func resultJSON(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return payload
}

func errorCode(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	payload := resultJSON(t, res)
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatalf("payload has no error object: %v", payload)
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestHandleLog_Success(t *testing.T) {
	h, _, _ := testSetup(t)

	res, err := h.HandleLog(context.Background(), makeRequest(map[string]any{
		"owner":            "ana",
		"work_item_id":     4,
		"date":             "2026-01-19",
		"duration_minutes": 90,
		"comment":          "tokenizer work",
	}))
	if err != nil {
		t.Fatalf("HandleLog returned error: %v", err)
	}
	if res.IsError {
		t.Fatalf("HandleLog result is error: %v", resultJSON(t, res))
	}

	payload := resultJSON(t, res)
	entryObj, ok := payload["entry"].(map[string]any)
	if !ok {
		t.Fatalf("payload missing entry: %v", payload)
	}
	if entryObj["sync_status"] != "pending" {
		t.Errorf("sync_status = %v, want pending", entryObj["sync_status"])
	}
}

func TestHandleLog_ValidationError(t *testing.T) {
	h, _, _ := testSetup(t)

	res, err := h.HandleLog(context.Background(), makeRequest(map[string]any{
		"owner":            "ana",
		"work_item_id":     4,
		"date":             "2026-01-19",
		"duration_minutes": -60,
	}))
	if err != nil {
		t.Fatalf("HandleLog returned error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result")
	}
	if code := errorCode(t, res); code != "NON_POSITIVE_DURATION" {
		t.Errorf("code = %q, want NON_POSITIVE_DURATION", code)
	}
}

func TestHandleCancel_RoundTrip(t *testing.T) {
	h, _, _ := testSetup(t)

	res, err := h.HandleLog(context.Background(), makeRequest(map[string]any{
		"owner": "ana", "work_item_id": 4, "date": "2026-01-19", "duration_minutes": 60,
	}))
	if err != nil || res.IsError {
		t.Fatalf("HandleLog failed: %v %v", err, res)
	}
	entryObj := resultJSON(t, res)["entry"].(map[string]any)
	id := entryObj["id"].(string)

	res, err = h.HandleCancel(context.Background(), makeRequest(map[string]any{"id": id}))
	if err != nil {
		t.Fatalf("HandleCancel returned error: %v", err)
	}
	if res.IsError {
		t.Fatalf("HandleCancel result is error: %v", resultJSON(t, res))
	}

	res, err = h.HandleCancel(context.Background(), makeRequest(map[string]any{"id": id}))
	if err != nil {
		t.Fatalf("HandleCancel returned error: %v", err)
	}
	if code := errorCode(t, res); code != "NOT_FOUND" {
		t.Errorf("second cancel code = %q, want NOT_FOUND", code)
	}
}

func TestHandleWeek(t *testing.T) {
	h, _, _ := testSetup(t)

	res, err := h.HandleLog(context.Background(), makeRequest(map[string]any{
		"owner": "ana", "work_item_id": 4, "date": "2026-01-19", "duration_minutes": 90,
	}))
	if err != nil || res.IsError {
		t.Fatalf("HandleLog failed: %v", err)
	}

	res, err = h.HandleWeek(context.Background(), makeRequest(map[string]any{
		"owner": "ana", "date": "2026-01-22",
	}))
	if err != nil {
		t.Fatalf("HandleWeek returned error: %v", err)
	}
	payload := resultJSON(t, res)
	if payload["week_start"] != "2026-01-19" {
		t.Errorf("week_start = %v, want 2026-01-19", payload["week_start"])
	}
	if payload["total_minutes"].(float64) != 90 {
		t.Errorf("total_minutes = %v, want 90", payload["total_minutes"])
	}
}

func TestHandleDrain_PushesPending(t *testing.T) {
	h, _, tracker := testSetup(t)

	res, err := h.HandleLog(context.Background(), makeRequest(map[string]any{
		"owner": "ana", "work_item_id": 4, "date": "2026-01-19", "duration_minutes": 60,
	}))
	if err != nil || res.IsError {
		t.Fatalf("HandleLog failed: %v", err)
	}

	res, err = h.HandleDrain(context.Background(), makeRequest(map[string]any{"online": true}))
	if err != nil {
		t.Fatalf("HandleDrain returned error: %v", err)
	}
	payload := resultJSON(t, res)
	if payload["synced"].(float64) != 1 {
		t.Errorf("synced = %v, want 1", payload["synced"])
	}
	if tracker.items[4].CompletedWork != 3 {
		t.Errorf("tracker completed = %v, want 3", tracker.items[4].CompletedWork)
	}
}

func TestHandleDrain_OfflineDefers(t *testing.T) {
	h, _, _ := testSetup(t)

	res, err := h.HandleLog(context.Background(), makeRequest(map[string]any{
		"owner": "ana", "work_item_id": 4, "date": "2026-01-19", "duration_minutes": 60,
	}))
	if err != nil || res.IsError {
		t.Fatalf("HandleLog failed: %v", err)
	}

	res, err = h.HandleDrain(context.Background(), makeRequest(map[string]any{"online": false}))
	if err != nil {
		t.Fatalf("HandleDrain returned error: %v", err)
	}
	payload := resultJSON(t, res)
	if payload["deferred"].(float64) != 1 {
		t.Errorf("deferred = %v, want 1", payload["deferred"])
	}
}

func TestHandleSearch(t *testing.T) {
	h, _, _ := testSetup(t)

	res, err := h.HandleSearch(context.Background(), makeRequest(map[string]any{
		"query": "parser",
	}))
	if err != nil {
		t.Fatalf("HandleSearch returned error: %v", err)
	}
	payload := resultJSON(t, res)
	items, ok := payload["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("items = %v, want one match", payload["items"])
	}
}

func TestHandlersWithoutTracker(t *testing.T) {
	// MCP is the default mode; without remote_base_url it runs with nil
	// index and coordinator, and the tracker-backed tools must answer with
	// an error result, not crash the stdio server.
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	h := NewHandlers(database, config.DefaultConfig(), nil, nil, nil)

	res, err := h.HandleDrain(context.Background(), makeRequest(map[string]any{"online": true}))
	if err != nil {
		t.Fatalf("HandleDrain returned error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result from drain without a tracker")
	}
	if code := errorCode(t, res); code != "INVALID_REQUEST" {
		t.Errorf("drain code = %q, want INVALID_REQUEST", code)
	}

	res, err = h.HandleSearch(context.Background(), makeRequest(map[string]any{"query": "parser"}))
	if err != nil {
		t.Fatalf("HandleSearch returned error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result from search without a tracker")
	}
	if code := errorCode(t, res); code != "INVALID_REQUEST" {
		t.Errorf("search code = %q, want INVALID_REQUEST", code)
	}

	// Local capture keeps working for items seen before.
	if uerr := db.UpsertWorkItem(database, &entry.WorkItem{
		ID: 4, Title: "implement parser", Type: entry.TypeTask, RemainingWork: 5,
	}); uerr != nil {
		t.Fatalf("UpsertWorkItem failed: %v", uerr)
	}
	res, err = h.HandleLog(context.Background(), makeRequest(map[string]any{
		"owner": "ana", "work_item_id": 4, "date": "2026-01-19", "duration_minutes": 60,
	}))
	if err != nil {
		t.Fatalf("HandleLog returned error: %v", err)
	}
	if res.IsError {
		t.Fatalf("offline capture failed: %v", resultJSON(t, res))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	unknown := ValidateDisabledTools([]string{"time_log", "bogus_tool"})
	if len(unknown) != 1 || unknown[0] != "bogus_tool" {
		t.Errorf("unknown = %v, want [bogus_tool]", unknown)
	}
}

func TestNewServer_SkipsDisabledTools(t *testing.T) {
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	defer database.Close()

	cfg := config.DefaultConfig()
	cfg.DisabledTools = []string{"time_drain"}

	s := NewServer(database, cfg, nil, nil, nil, "test")
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
}
