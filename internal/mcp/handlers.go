package mcp

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/danpires/tally/internal/config"
	"github.com/danpires/tally/internal/errors"
	"github.com/danpires/tally/internal/ops"
	"github.com/danpires/tally/internal/search"
	"github.com/danpires/tally/internal/sync"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db          *sql.DB
	cfg         *config.Config
	remote      ops.Remote
	index       *search.Index
	coordinator *sync.Coordinator
}

// NewHandlers creates a new Handlers instance. remote may be nil when no
// tracker is configured; capture then works for locally known items only.
func NewHandlers(db *sql.DB, cfg *config.Config, remote ops.Remote, index *search.Index, coordinator *sync.Coordinator) *Handlers {
	return &Handlers{db: db, cfg: cfg, remote: remote, index: index, coordinator: coordinator}
}

// Request types for each tool

// LogRequest represents the arguments for time_log.
type LogRequest struct {
	Owner           string `json:"owner,omitempty"`
	WorkItemID      int    `json:"work_item_id"`
	Date            string `json:"date"`
	DurationMinutes int    `json:"duration_minutes"`
	Comment         string `json:"comment,omitempty"`
}

// CancelRequest represents the arguments for time_cancel.
type CancelRequest struct {
	ID string `json:"id"`
}

// WeekRequest represents the arguments for time_week.
type WeekRequest struct {
	Owner string `json:"owner,omitempty"`
	Date  string `json:"date,omitempty"`
}

// DrainRequest represents the arguments for time_drain.
type DrainRequest struct {
	Online *bool `json:"online,omitempty"`
}

// SearchRequest represents the arguments for workitem_search.
type SearchRequest struct {
	Query string `json:"query"`
	Page  int    `json:"page,omitempty"`
}

// Handler implementations

// HandleLog handles the time_log tool call.
func (h *Handlers) HandleLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LogRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.LogTime(ctx, h.db, h.remote, h.cfg, ops.LogTimeInput{
		Owner:           input.Owner,
		WorkItemID:      input.WorkItemID,
		Date:            input.Date,
		DurationMinutes: input.DurationMinutes,
		Comment:         input.Comment,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleCancel handles the time_cancel tool call.
func (h *Handlers) HandleCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CancelRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Cancel(h.db, ops.CancelInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleWeek handles the time_week tool call.
func (h *Handlers) HandleWeek(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WeekRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.WeeklyTotals(h.db, h.cfg, ops.WeekInput{Owner: input.Owner, Date: input.Date})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePending handles the time_pending tool call.
func (h *Handlers) HandlePending(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Pending(h.db)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDrain handles the time_drain tool call.
func (h *Handlers) HandleDrain(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DrainRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	online := true
	if input.Online != nil {
		online = *input.Online
	}

	if h.coordinator == nil {
		return errorResult(errors.NewInvalidRequest("remote tracker is not configured")), nil
	}
	result, err := h.coordinator.Drain(ctx, sync.DrainInput{Online: online})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSearch handles the workitem_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if h.index == nil {
		return errorResult(errors.NewInvalidRequest("remote tracker is not configured")), nil
	}

	// One-shot calls bypass the debounce; that only matters for keystroke
	// streams.
	result, err := h.index.Lookup(ctx, input.Query, input.Page)
	if err != nil {
		// A stale page is still a usable answer when the tracker is down.
		if result != nil && result.Stale {
			return successResult(result)
		}
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if tallyErr, ok := err.(*errors.TallyError); ok {
		errorObj := map[string]any{
			"code":    tallyErr.Code,
			"message": tallyErr.Message,
			"status":  tallyErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if tallyErr.Code != errors.ErrInternal && tallyErr.Details != nil {
			errorObj["details"] = tallyErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
