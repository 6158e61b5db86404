package main

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/podscribe/internal/cache"
	"github.com/hpungsan/podscribe/internal/cachekey"
	"github.com/hpungsan/podscribe/internal/config"
	"github.com/hpungsan/podscribe/internal/errors"
	"github.com/hpungsan/podscribe/internal/mcp"
	"github.com/hpungsan/podscribe/internal/ops"
	"github.com/hpungsan/podscribe/internal/store"
	"github.com/hpungsan/podscribe/internal/web"
)

// computer builds the compute step for a URL.
type computer interface {
	Compute(url string) cache.ComputeFunc
}

// appEnv holds the dependencies shared by all commands.
type appEnv struct {
	db     *sql.DB
	cfg    *config.Config
	svc    *cache.Service
	pipe   computer
	logger *log.Logger

	// stdout receives command output. Defaults to os.Stdout.
	stdout io.Writer
}

func (e *appEnv) out() io.Writer {
	if e.stdout != nil {
		return e.stdout
	}
	return os.Stdout
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "podscribe",
		Usage:   "Transcript cache for video and podcast URLs",
		Version: Version,
		Commands: []*cli.Command{
			processCmd(env),
			lookupCmd(env),
			keyCmd(env),
			renderCmd(env),
			listCmd(env),
			forgetCmd(env),
			statsCmd(env),
			exportCmd(env),
			importCmd(env),
			serveCmd(env),
			mcpCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// processCmd creates the process command.
func processCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "process",
		Usage:     "Return the transcript for a URL, transcribing it on a cache miss",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "ephemeral", Usage: "Use an in-memory cache; nothing is read from or written to disk"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("exactly one url is required"))
			}
			url := c.Args().First()

			svc := env.svc
			if c.Bool("ephemeral") {
				svc = cache.New(store.NewMemory(), cache.WithLogger(env.logger))
			}

			var compute cache.ComputeFunc
			if env.pipe != nil {
				compute = env.pipe.Compute(url)
			}

			output, err := ops.Process(c.Context, svc, ops.ProcessInput{URL: url, Compute: compute})
			if err != nil {
				return outputError(err)
			}
			if output.Warning != "" && env.logger != nil {
				env.logger.Warn("transcript not cached", "url", url, "reason", output.Warning)
			}
			return env.outputJSON(output)
		},
	}
}

// addressFlags are shared by commands that take a url argument or --key.
func addressFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Usage: "Cache key instead of a url"},
	}
}

// addressArgs returns the url argument and --key flag.
func addressArgs(c *cli.Context) (string, string, error) {
	if c.NArg() > 1 {
		return "", "", errors.NewInvalidRequest("at most one url is allowed")
	}
	return c.Args().First(), c.String("key"), nil
}

// lookupCmd creates the lookup command.
func lookupCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "lookup",
		Usage:     "Show a cached transcript without transcribing",
		ArgsUsage: "[url]",
		Flags: append(addressFlags(),
			&cli.BoolFlag{Name: "analytics", Usage: "Include speaker and entity statistics"},
		),
		Action: func(c *cli.Context) error {
			url, key, err := addressArgs(c)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Lookup(c.Context, env.svc, ops.LookupInput{URL: url, Key: key, Analytics: c.Bool("analytics")})
			if err != nil {
				return outputError(err)
			}
			return env.outputJSON(output)
		},
	}
}

// keyCmd creates the key command.
func keyCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "key",
		Usage:     "Print the cache key for a URL",
		ArgsUsage: "<url>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("exactly one url is required"))
			}
			url := c.Args().First()
			return env.outputJSON(map[string]string{
				"url": url,
				"key": cachekey.Derive(url).String(),
			})
		},
	}
}

// renderCmd creates the render command.
func renderCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Write a cached transcript as txt, md, html or json",
		ArgsUsage: "[url]",
		Flags: append(addressFlags(),
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "txt", Usage: "Output format: txt|md|html|json"},
		),
		Action: func(c *cli.Context) error {
			url, key, err := addressArgs(c)
			if err != nil {
				return outputError(err)
			}
			format, err := ops.ParseFormat(c.String("format"))
			if err != nil {
				return outputError(err)
			}

			found, err := ops.Lookup(c.Context, env.svc, ops.LookupInput{URL: url, Key: key})
			if err != nil {
				return outputError(err)
			}
			body, err := ops.RenderTranscript(found.Record, format)
			if err != nil {
				return outputError(err)
			}
			_, err = env.out().Write(body)
			return err
		},
	}
}

// listCmd creates the list command.
func listCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List cached transcripts, most recent first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, env.db, ops.ListInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return env.outputJSON(output)
		},
	}
}

// forgetCmd creates the forget command.
func forgetCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "forget",
		Usage:     "Remove a cached transcript so it is transcribed again",
		ArgsUsage: "[url]",
		Flags:     addressFlags(),
		Action: func(c *cli.Context) error {
			url, key, err := addressArgs(c)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Forget(c.Context, env.db, ops.ForgetInput{URL: url, Key: key})
			if err != nil {
				return outputError(err)
			}
			return env.outputJSON(output)
		},
	}
}

// statsCmd creates the stats command.
func statsCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show cache size",
		Action: func(c *cli.Context) error {
			output, err := ops.Stats(c.Context, env.db, env.svc)
			if err != nil {
				return outputError(err)
			}
			return env.outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export cached transcripts to JSONL",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.podscribe/exports/transcripts-<timestamp>.jsonl)"},
			&cli.BoolFlag{Name: "compress", Aliases: []string{"z"}, Usage: "Write the default path as .jsonl.zst"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, env.db, env.cfg, ops.ExportInput{
				Path:     c.String("path"),
				Compress: c.Bool("compress"),
			})
			if err != nil {
				return outputError(err)
			}
			return env.outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import transcripts from a JSONL export",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path (.jsonl or .jsonl.zst)"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: string(ops.ImportModeReplace), Usage: "Existing entries: replace|skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(c.Context, env.db, env.cfg, ops.ImportInput{
				Path: c.String("path"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return env.outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the transcript HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8484, Usage: "Port to listen on"},
			&cli.StringSliceFlag{Name: "cors-origin", Usage: "Allowed cross-origin caller (repeatable; default none)"},
		},
		Action: func(c *cli.Context) error {
			port := c.Int("port")
			if port <= 0 || port > 65535 {
				return outputError(errors.NewInvalidRequest("port must be between 1 and 65535"))
			}
			srv := web.NewServer(env.db, env.svc, env.pipe, web.Options{
				Bind:           c.String("bind"),
				Port:           port,
				AllowedOrigins: c.StringSlice("cors-origin"),
				Logger:         env.logger,
			})
			if err := web.Run(srv, env.logger); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP tool server on stdio",
		Action: func(c *cli.Context) error {
			return mcp.Run(env.db, env.svc, env.cfg, env.pipe, Version)
		},
	}
}

// outputJSON writes v to stdout as indented JSON.
func (e *appEnv) outputJSON(v any) error {
	enc := json.NewEncoder(e.out())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return cli.Exit(fmt.Sprintf("[%s] %s", e.Code, e.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
