package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var logToolDef = mcp.NewTool("time_log",
	mcp.WithDescription("Log time against a work item. The entry is captured locally as pending and pushed to the tracker on the next drain."),
	mcp.WithNumber("work_item_id",
		mcp.Required(),
		mcp.Description("Numeric work item ID (Task or Bug)"),
	),
	mcp.WithString("date",
		mcp.Required(),
		mcp.Description("Entry date, YYYY-MM-DD"),
	),
	mcp.WithNumber("duration_minutes",
		mcp.Required(),
		mcp.Description("Duration in minutes, must be positive"),
	),
	mcp.WithString("comment",
		mcp.Description("Optional comment, up to 500 characters"),
	),
	mcp.WithString("owner",
		mcp.Description("Owner of the entry; defaults to the configured owner"),
	),
)

var cancelToolDef = mcp.NewTool("time_cancel",
	mcp.WithDescription("Cancel a pending or failed time entry before it reaches the tracker."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Entry ID"),
	),
)

var weekToolDef = mcp.NewTool("time_week",
	mcp.WithDescription("Weekly totals per day (Monday through Sunday) for an owner, with overload flags."),
	mcp.WithString("date",
		mcp.Description("Any date inside the week, YYYY-MM-DD; defaults to the current week"),
	),
	mcp.WithString("owner",
		mcp.Description("Owner; defaults to the configured owner"),
	),
)

var pendingToolDef = mcp.NewTool("time_pending",
	mcp.WithDescription("List entries waiting to sync, oldest first, with retry state."),
)

var drainToolDef = mcp.NewTool("time_drain",
	mcp.WithDescription("Push pending entries to the tracker. Set online=false to report the queue without touching the network."),
	mcp.WithBoolean("online",
		mcp.Description("Connectivity verdict; defaults to true"),
	),
)

var searchToolDef = mcp.NewTool("workitem_search",
	mcp.WithDescription("Search loggable work items (Task/Bug) by ID or title. Results are cached locally."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Search text, at least 2 characters"),
	),
	mcp.WithNumber("page",
		mcp.Description("1-based page number"),
	),
)
