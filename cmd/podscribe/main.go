package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/podscribe/internal/cache"
	"github.com/hpungsan/podscribe/internal/config"
	"github.com/hpungsan/podscribe/internal/db"
	"github.com/hpungsan/podscribe/internal/logging"
	"github.com/hpungsan/podscribe/internal/mcp"
	"github.com/hpungsan/podscribe/internal/pipeline"
	"github.com/hpungsan/podscribe/internal/store"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/term"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"process": true, "lookup": true, "key": true, "render": true,
	"list": true, "forget": true, "stats": true,
	"export": true, "import": true,
	"serve": true, "mcp": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal reports whether stdin is an interactive terminal rather than
// an MCP client pipe.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// printBanner displays a banner when run interactively without args.
func printBanner() {
	fmt.Println(`
                 _                  _ _
  _ __   ___   __| |___  ___ _ __(_) |__   ___
 | '_ \ / _ \ / _' / __|/ __| '__| | '_ \ / _ \
 | |_) | (_) | (_| \__ \ (__| |  | | |_) |  __/
 | .__/ \___/ \__,_|___/\___|_|  |_|_.__/ \___|
 |_|

  Transcript cache for video and podcast URLs

  Usage: podscribe <command> [options]
         podscribe --help

  MCP server mode requires piped input.`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// --help/--version need no database
	if isHelpOrVersion(os.Args) {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fatal("%v", err)
		}
		return
	}

	homeDir, err := homedir.Dir()
	if err != nil {
		fatal("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, ".podscribe")

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fatal("failed to load config: %v", err)
	}
	logger := logging.New(cfg.LogLevel)

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		fatal("unknown tools in disabled_tools: %s (valid: %s)",
			strings.Join(unknown, ", "), strings.Join(mcp.AllToolNames(), ", "))
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fatal("failed to initialize database: %v", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	env := &appEnv{
		db:  database,
		cfg: cfg,
		svc: cache.New(store.NewSQLite(database),
			cache.WithLogger(logger),
			cache.WithCollapse(cfg.CollapseDuplicateComputes),
		),
		pipe:   pipeline.FromConfig(cfg, logger),
		logger: logger,
	}

	if isCLIMode(os.Args) {
		app := newCLIApp(env)
		if err := app.Run(os.Args); err != nil {
			database.Close()
			fatal("%v", err)
		}
		return
	}

	// Unknown argument + terminal: don't start the MCP server
	if len(os.Args) >= 2 && isTerminal() {
		database.Close()
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'podscribe --help' for usage.\n")
		os.Exit(1)
	}

	if err := mcp.Run(env.db, env.svc, env.cfg, env.pipe, Version); err != nil {
		database.Close()
		fatal("%v", err)
	}
}
