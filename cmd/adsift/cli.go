package main

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/adsift/internal/config"
	"github.com/hpungsan/adsift/internal/errors"
	"github.com/hpungsan/adsift/internal/ops"
	"github.com/hpungsan/adsift/internal/web"
)

// appEnv carries what every command needs.
type appEnv struct {
	db      *sql.DB
	cfg     *config.Config
	log     zerolog.Logger
	baseDir string // config location for watch_config; empty disables watching
}

// ctx returns the command context with the logger attached.
func (e *appEnv) ctx(c *cli.Context) context.Context {
	return e.log.WithContext(c.Context)
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "adsift",
		Usage:   "Telegram ad filter",
		Version: Version,
		Commands: []*cli.Command{
			keywordsCmd(env),
			checkCmd(env),
			filterCmd(env),
			watchCmd(env),
			historyCmd(env),
			runCmd(env),
			purgeCmd(env),
			serveCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func sourceFlag() cli.Flag {
	return &cli.StringSliceFlag{Name: "source", Aliases: []string{"s"}, Usage: "Blacklist URL (repeatable; default: config list_urls)"}
}

func modeFlag() cli.Flag {
	return &cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "Fetch failure policy: tolerant|strict (default: config fetch_mode)"}
}

// keywordsCmd creates the keywords command.
func keywordsCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "keywords",
		Usage: "Fetch the blacklists and print the keyword set",
		Flags: []cli.Flag{sourceFlag(), modeFlag()},
		Action: func(c *cli.Context) error {
			output, err := ops.BuildKeywords(env.ctx(c), env.db, env.cfg, ops.BuildKeywordsInput{
				Sources: c.StringSlice("source"),
				Mode:    c.String("mode"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// checkCmd creates the check command.
func checkCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Validate blacklist sources without fetching them",
		Flags: []cli.Flag{sourceFlag()},
		Action: func(c *cli.Context) error {
			output := ops.CheckSources(env.cfg, ops.CheckSourcesInput{Sources: c.StringSlice("source")})
			return outputJSON(c.App.Writer, output)
		},
	}
}

// filterCmd creates the filter command.
func filterCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "filter",
		Usage:     "Classify the messages of a chat page (reads the page from a file or stdin)",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base-url", Usage: "URL relative links are resolved against"},
			&cli.StringSliceFlag{Name: "keyword", Aliases: []string{"k"}, Usage: "Use this keyword instead of fetching lists (repeatable)"},
			sourceFlag(),
			modeFlag(),
			&cli.BoolFlag{Name: "html", Usage: "Print only the filtered page"},
		},
		Action: func(c *cli.Context) error {
			page, err := readInput(c)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Filter(env.ctx(c), env.db, env.cfg, ops.FilterInput{
				HTML:     page,
				BaseURL:  c.String("base-url"),
				Keywords: c.StringSlice("keyword"),
				Sources:  c.StringSlice("source"),
				Mode:     c.String("mode"),
			})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("html") {
				_, err := io.WriteString(c.App.Writer, output.HTML)
				return err
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// watchCmd creates the watch command.
func watchCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Run a live session: JSON-lines commands on stdin, JSON-lines events on stdout",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "page", Usage: "File with the initial page (default: an empty document)"},
			&cli.StringFlag{Name: "root", Usage: "Selector of the observed container", Value: "body"},
			&cli.StringFlag{Name: "base-url", Usage: "URL relative links are resolved against"},
			&cli.StringSliceFlag{Name: "keyword", Aliases: []string{"k"}, Usage: "Use this keyword instead of fetching lists (repeatable)"},
			sourceFlag(),
			modeFlag(),
		},
		Action: func(c *cli.Context) error {
			ctx := env.ctx(c)

			var page string
			if path := c.String("page"); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return outputError(errors.NewInvalidRequest(fmt.Sprintf("read page: %v", err)))
				}
				page = string(data)
			}

			input := ops.WatchInput{
				Page:     page,
				Root:     c.String("root"),
				BaseURL:  c.String("base-url"),
				Keywords: c.StringSlice("keyword"),
				Sources:  c.StringSlice("source"),
				Mode:     c.String("mode"),
				In:       c.App.Reader,
				Out:      c.App.Writer,
			}
			if env.cfg.WatchConfig && env.baseDir != "" {
				input.Reconfigure = watchConfig(ctx, env)
			}

			if err := ops.Watch(ctx, env.db, env.cfg, input); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// historyCmd creates the history command.
func historyCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded keyword builds, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Usage: "Filter by outcome: ok|failed"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultHistoryLimit, Usage: "Max items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.History(env.ctx(c), env.db, ops.HistoryInput{
				Status: c.String("status"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// runCmd creates the run command.
func runCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Show one recorded keyword build with its per-source reports",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "latest", Usage: "Show the most recent run"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.FetchRun(env.ctx(c), env.db, ops.FetchRunInput{
				ID:     c.Args().First(),
				Latest: c.Bool("latest"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Delete recorded keyword builds older than a number of days",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Required: true, Usage: "Age threshold in days (e.g., 30d)"},
		},
		Action: func(c *cli.Context) error {
			days, err := parseDuration(c.String("older-than"))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			output, err := ops.PurgeHistory(env.ctx(c), env.db, ops.PurgeHistoryInput{OlderThanDays: days})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the status UI, the filter API and metrics over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8484, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			port := c.Int("port")
			if port <= 0 || port > 65535 {
				return outputError(errors.NewInvalidRequest("port must be between 1 and 65535"))
			}
			ctx := env.ctx(c)

			loader := ops.NewLoader(env.db, env.cfg, env.log)
			handlers := web.NewHandlers(env.db, env.cfg, loader, env.log, Version)

			go func() {
				// Failures are logged by the loader; the empty set is published regardless.
				_, _ = ops.ReloadKeywords(ctx, loader, env.cfg)
			}()
			if env.cfg.WatchConfig && env.baseDir != "" {
				changes := watchConfig(ctx, env)
				go func() {
					for next := range changes {
						handlers.UpdateConfig(next)
						_, _ = ops.ReloadKeywords(ctx, loader, next)
					}
				}()
			}

			return web.Run(ctx, web.NewServer(handlers, c.String("bind"), port), env.log)
		},
	}
}

// watchConfig streams every successfully reloaded config until ctx ends.
func watchConfig(ctx context.Context, env *appEnv) <-chan *config.Config {
	ch := make(chan *config.Config, 1)
	go func() {
		defer close(ch)
		err := config.Watch(ctx, env.baseDir, env.log, func(next *config.Config) {
			select {
			case ch <- next:
			case <-ctx.Done():
			}
		})
		if err != nil {
			env.log.Warn().Err(err).Msg("config watch stopped")
		}
	}()
	return ch
}

// Helper functions

// outputJSON marshals result to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var sErr *errors.SiftError
	if stderrors.As(err, &sErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readInput returns the page from the file argument, or from the app reader when
// no file is given.
func readInput(c *cli.Context) (string, error) {
	var (
		data []byte
		err  error
	)
	if path := c.Args().First(); path != "" && path != "-" {
		data, err = os.ReadFile(path)
	} else {
		if f, ok := c.App.Reader.(*os.File); ok && isTerminal(f) {
			return "", errors.NewInvalidRequest("page must be given as a file or piped via stdin")
		}
		data, err = io.ReadAll(io.LimitReader(c.App.Reader, ops.MaxFilterBytes+1))
	}
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("read page: %v", err))
	}
	page := strings.TrimSpace(string(data))
	if page == "" {
		return "", errors.NewInvalidRequest("page must be given as a file or piped via stdin")
	}
	return page, nil
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days <= 0 {
			return 0, fmt.Errorf("duration must be positive")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 30d")
}
