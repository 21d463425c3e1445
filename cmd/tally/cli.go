package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/danpires/tally/internal/errors"
	"github.com/danpires/tally/internal/ops"
	"github.com/danpires/tally/internal/sync"
	"github.com/danpires/tally/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(e *env) *cli.App {
	app := &cli.App{
		Name:    "tally",
		Usage:   "Time entry capture & work item sync",
		Version: Version,
		Commands: []*cli.Command{
			logCmd(e),
			cancelCmd(e),
			weekCmd(e),
			pendingCmd(e),
			searchCmd(e),
			drainCmd(e),
			exportCmd(e),
			serveCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// logCmd creates the log command.
func logCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "log",
		Usage: "Log time against a work item (captured locally, synced on drain)",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "item", Aliases: []string{"i"}, Required: true, Usage: "Work item ID"},
			&cli.IntFlag{Name: "minutes", Aliases: []string{"m"}, Required: true, Usage: "Duration in minutes"},
			&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Entry date YYYY-MM-DD (default: today)"},
			&cli.StringFlag{Name: "comment", Aliases: []string{"c"}, Usage: "Comment, up to 500 characters"},
			&cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Usage: "Owner (default: configured owner)"},
		},
		Action: func(c *cli.Context) error {
			date := c.String("date")
			if date == "" {
				date = time.Now().Format("2006-01-02")
			}

			output, err := ops.LogTime(c.Context, e.db, e.remote, e.cfg, ops.LogTimeInput{
				Owner:           c.String("owner"),
				WorkItemID:      c.Int("item"),
				Date:            date,
				DurationMinutes: c.Int("minutes"),
				Comment:         c.String("comment"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// cancelCmd creates the cancel command.
func cancelCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel a pending or failed entry before it reaches the tracker",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("entry ID is required"))
			}

			output, err := ops.Cancel(e.db, ops.CancelInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// weekCmd creates the week command.
func weekCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "week",
		Usage: "Show weekly totals per day (Monday through Sunday)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Any date inside the week (default: current week)"},
			&cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Usage: "Owner (default: configured owner)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.WeeklyTotals(e.db, e.cfg, ops.WeekInput{
				Owner: c.String("owner"),
				Date:  c.String("date"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// pendingCmd creates the pending command.
func pendingCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "pending",
		Usage: "List entries waiting to sync, oldest first",
		Action: func(c *cli.Context) error {
			output, err := ops.Pending(e.db)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// searchCmd creates the search command.
func searchCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search loggable work items by ID or title",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Value: 1, Usage: "1-based page number"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("search query is required"))
			}
			if e.index == nil {
				return outputError(errors.NewInvalidRequest("remote_base_url is not configured"))
			}

			output, err := e.index.Lookup(c.Context, c.Args().First(), c.Int("page"))
			if err != nil {
				// A stale cached page is still worth printing.
				if output == nil || !output.Stale {
					return outputError(err)
				}
				fmt.Fprintln(os.Stderr, "warning: tracker unreachable, showing cached results")
			}

			return outputJSON(output)
		},
	}
}

// drainCmd creates the drain command.
func drainCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "drain",
		Usage: "Push pending entries to the tracker",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "offline", Usage: "Report the queue without touching the network"},
		},
		Action: func(c *cli.Context) error {
			offline := c.Bool("offline")
			if e.coordinator == nil {
				if !offline {
					return outputError(errors.NewInvalidRequest("remote_base_url is not configured"))
				}
				// An offline drain needs no tracker; report the queue directly.
				output, err := ops.Pending(e.db)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(output)
			}

			output, err := e.coordinator.Drain(c.Context, sync.DrainInput{Online: !offline})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export entries for a date range to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "start", Required: true, Usage: "Start date YYYY-MM-DD (inclusive)"},
			&cli.StringFlag{Name: "end", Required: true, Usage: "End date YYYY-MM-DD (inclusive)"},
			&cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Usage: "Owner (default: configured owner)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(e.db, e.cfg, e.baseDir, ops.ExportInput{
				Owner: c.String("owner"),
				Start: c.String("start"),
				End:   c.String("end"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the read-only web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Bind address"},
			&cli.IntFlag{Name: "port", Value: 8484, Usage: "Port"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(e.db, e.cfg, e.index, e.coordinator, Version, c.String("bind"), c.Int("port"))
			return web.Run(srv)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if tallyErr, ok := err.(*errors.TallyError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", tallyErr.Code, tallyErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
