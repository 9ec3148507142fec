// Command scrape is the projections scraper CLI.
//
// Usage:
//
//	scoracle-scrape run
//	scoracle-scrape run --source stokastic --sport nfl --stat-type passing
//	scoracle-scrape run --no-publish --headless=false
//	scoracle-scrape targets
//	scoracle-scrape normalize dimers nba ~/Downloads/projections.csv
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/scoracle-projections/internal/browser"
	"github.com/albapepper/scoracle-projections/internal/config"
	"github.com/albapepper/scoracle-projections/internal/db"
	"github.com/albapepper/scoracle-projections/internal/download"
	"github.com/albapepper/scoracle-projections/internal/export"
	"github.com/albapepper/scoracle-projections/internal/history"
	"github.com/albapepper/scoracle-projections/internal/normalize"
	"github.com/albapepper/scoracle-projections/internal/orchestrator"
	"github.com/albapepper/scoracle-projections/internal/publish"
	"github.com/albapepper/scoracle-projections/internal/source"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "scoracle-scrape",
		Short: "Scrape DFS projection dashboards into canonical CSVs",
	}

	root.AddCommand(runCmd())
	root.AddCommand(targetsCmd())
	root.AddCommand(normalizeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// run command
// --------------------------------------------------------------------------

func runCmd() *cobra.Command {
	var (
		sources   []string
		sports    []string
		statTypes []string
		noPublish bool
		headless  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scrape every configured target, write snapshots and publish changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, adapters, err := setup(sources, sports, statTypes)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("headless") {
				cfg.Headless = headless
			}

			for _, dir := range cfg.DownloadDirs {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					logger.Warn("Could not create download dir", "dir", dir, "error", err)
				}
			}

			opts := orchestrator.Options{
				Open: func(ctx context.Context) (browser.Driver, error) {
					d, err := browser.LaunchRod(ctx, browser.RodConfig{
						RemoteURL:       cfg.ChromeURL,
						Headless:        cfg.Headless,
						DownloadDir:     cfg.DownloadDirs[0],
						DiagnosticsDir:  cfg.DiagnosticsDir,
						NavigateTimeout: cfg.NavigateTimeout,
						Logger:          logger,
					})
					if err != nil {
						return nil, err
					}
					return d, nil
				},
				Credentials: config.EnvCredentials{},
				Watcher: download.NewWatcher(download.Config{
					Dirs:            cfg.DownloadDirs,
					PollInterval:    cfg.DownloadPoll,
					Timeout:         cfg.DownloadTimeout,
					FreshnessWindow: cfg.FreshnessWindow,
				}, logger),
				Fetcher: export.NewHTTPFetcher(30*time.Second, cfg.FetchRequestsPerM, logger),
				Store:   history.NewStore(cfg.DataDir, logger),
				Logger:  logger,
			}
			if cfg.PublishEnabled && !noPublish {
				opts.Publisher = &publish.GitPublisher{
					Dir:         cfg.RepoDir,
					Remote:      cfg.GitRemote,
					Branch:      cfg.GitBranch,
					AuthorName:  cfg.GitAuthorName,
					AuthorEmail: cfg.GitAuthorEmail,
					Logger:      logger,
				}
			}

			if cfg.DatabaseURL != "" {
				pool, err := db.New(ctx, cfg)
				if err != nil {
					logger.Warn("Run ledger unavailable, continuing without it", "error", err)
				} else {
					defer pool.Close()
					if err := pool.Migrate(ctx); err != nil {
						logger.Warn("Run ledger migration failed, continuing without it", "error", err)
					} else {
						opts.Recorder = db.NewLedger(pool, logger)
					}
				}
			}

			res := orchestrator.New(opts).Run(ctx, uuid.NewString(), adapters)
			printRun(res)
			for _, e := range res.Errors {
				logger.Error("run error", "error", e)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&sources, "source", nil, "Sources to run (default: all enabled)")
	cmd.Flags().StringSliceVar(&sports, "sport", nil, "Restrict to sports (nba, nfl, nhl)")
	cmd.Flags().StringSliceVar(&statTypes, "stat-type", nil, "Restrict stat-typed targets (passing, rushing, ...)")
	cmd.Flags().BoolVar(&noPublish, "no-publish", false, "Write snapshots but do not commit or push")
	cmd.Flags().BoolVar(&headless, "headless", true, "Run Chrome headless (default from HEADLESS)")
	return cmd
}

func printRun(res *orchestrator.RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Target", "Status", "Records", "Duration", "Reason"})
	for _, tr := range res.Targets {
		t.AppendRow(table.Row{tr.Key, tr.Outcome.Status, tr.Outcome.Records, tr.Outcome.Duration.Round(time.Millisecond), tr.Outcome.Reason})
	}
	t.AppendFooter(table.Row{"publish", res.Publish.Status, res.Records(), res.Duration.Round(time.Second), res.Publish.Reason})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// --------------------------------------------------------------------------
// targets command
// --------------------------------------------------------------------------

func targetsCmd() *cobra.Command {
	var (
		sources []string
		sports  []string
	)
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "List the configured scrape targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, adapters, err := setup(sources, sports, nil)
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Target", "Source", "Sport", "Stat Type", "Acquire", "Page"})
			for _, a := range adapters {
				for _, tg := range a.Targets {
					t.AppendRow(table.Row{tg.Key(), a.Name, tg.Sport, tg.StatType, tg.Acquire, tg.Page.URL})
				}
			}
			t.SetStyle(table.StyleRounded)
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&sources, "source", nil, "Sources to list (default: all enabled)")
	cmd.Flags().StringSliceVar(&sports, "sport", nil, "Restrict to sports")
	return cmd
}

// --------------------------------------------------------------------------
// normalize command
// --------------------------------------------------------------------------

func normalizeCmd() *cobra.Command {
	var (
		statType string
		write    bool
	)
	cmd := &cobra.Command{
		Use:   "normalize <source> <sport> <file>",
		Short: "Normalize an existing export file into the canonical schema",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceID, sport, path := strings.ToLower(args[0]), strings.ToLower(args[1]), args[2]
			if _, ok := source.Lookup(sourceID); !ok {
				return fmt.Errorf("unknown source %q (known: %s)", sourceID, strings.Join(source.IDs(), ", "))
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read export: %w", err)
			}
			schema, err := normalize.SchemaFor(sport)
			if err != nil {
				return err
			}
			records, err := normalize.Normalize(sport, raw)
			if err != nil {
				return fmt.Errorf("normalize %s: %w", path, err)
			}

			if !write {
				out, err := normalize.EncodeCSV(schema, records)
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(out)
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			files, err := history.NewStore(cfg.DataDir, logger).Write(history.Snapshot{
				SourceID:  sourceID,
				Sport:     sport,
				StatType:  statType,
				Timestamp: time.Now(),
				Schema:    schema,
				Records:   records,
			})
			if err != nil {
				return err
			}
			logger.Info("Normalized export written", "records", len(records), "current", files.Current, "history", files.History)
			return nil
		},
	}
	cmd.Flags().StringVar(&statType, "stat-type", "", "Stat type of the export (e.g. passing)")
	cmd.Flags().BoolVar(&write, "write", false, "Write current and history files instead of printing")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// setup loads configuration and resolves the adapters to run.
func setup(sources, sports, statTypes []string) (*config.Config, []source.Adapter, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	sf, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load sources: %w", err)
	}
	cfg.Apply(sf)

	adapters, err := cfg.Adapters(sf, sources)
	if err != nil {
		return nil, nil, err
	}
	for i := range adapters {
		adapters[i] = adapters[i].Select(sports, statTypes)
	}
	if len(cfg.DownloadDirs) == 0 {
		return nil, nil, fmt.Errorf("no download directory configured")
	}
	return cfg, adapters, nil
}
