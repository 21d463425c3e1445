package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danpires/tally/internal/config"
	"github.com/danpires/tally/internal/db"
	"github.com/danpires/tally/internal/devops"
	"github.com/danpires/tally/internal/mcp"
	"github.com/danpires/tally/internal/ops"
	"github.com/danpires/tally/internal/search"
	"github.com/danpires/tally/internal/sync"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"log": true, "cancel": true, "week": true, "pending": true,
	"search": true, "drain": true, "export": true, "serve": true,
	"help": true,
}

// env bundles everything the commands need.
type env struct {
	db          *sql.DB
	cfg         *config.Config
	baseDir     string
	client      *devops.Client // nil when no tracker is configured
	remote      ops.Remote     // nil when no tracker is configured
	index       *search.Index
	coordinator *sync.Coordinator
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// --help or --version → CLI
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _        _ _
  | |_ __ _| | |_   _
  | __/ _` + "`" + ` | | | | | |
  | || (_| | | | |_| |
   \__\__,_|_|_|\__, |
                |___/

  Time entry capture & work item sync

  Usage: tally <command> [options]
         tally --help

  MCP server mode requires piped input.`)
}

// newEnv wires the tracker client, search index and sync coordinator.
func newEnv(database *sql.DB, cfg *config.Config, baseDir string) *env {
	e := &env{db: database, cfg: cfg, baseDir: baseDir}

	if cfg.RemoteBaseURL != "" {
		timeout := time.Duration(cfg.RemoteTimeoutSeconds) * time.Second
		e.client = devops.NewClient(context.Background(), cfg.RemoteBaseURL, cfg.RemoteProject, config.RemoteToken(), timeout)
		e.remote = e.client
		e.index = search.NewIndex(database, e.client, cfg)
		e.coordinator = sync.NewCoordinator(database, e.client, cfg)
	}
	return e
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}

	baseDir := filepath.Join(homeDir, ".tally")

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	db.ConfigurePool(database, cfg)

	e := newEnv(database, cfg, baseDir)
	defer func() {
		if e.index != nil {
			e.index.Close()
		}
	}()

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(e)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'tally --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(database, cfg, e.remote, e.index, e.coordinator, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
