// cmd/tools/orphan-reaper/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"affiliate-signup/internal/common/config"
	"affiliate-signup/internal/common/database"
	"affiliate-signup/internal/common/logger"
	"affiliate-signup/internal/common/tapfiliate"
	"affiliate-signup/internal/ledger"
	"affiliate-signup/internal/notify"
	"affiliate-signup/internal/reaper"
)

func main() {
	app := &cli.App{
		Name:  "orphan-reaper",
		Usage: "Find and clean up affiliates that were staged but never finalized",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file (defaults to configs/config.yaml discovery)",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply ledger migrations",
				Action: migrate,
			},
			{
				Name:  "list",
				Usage: "List pending affiliates older than a threshold",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "older-than", Usage: "Minimum age (defaults to reaper.orphan_after)"},
					&cli.IntFlag{Name: "limit", Value: 100, Usage: "Maximum rows"},
				},
				Action: list,
			},
			{
				Name:  "sweep",
				Usage: "Flag stale affiliates, optionally deleting them upstream",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "older-than", Usage: "Minimum age (defaults to reaper.orphan_after)"},
					&cli.BoolFlag{Name: "delete", Usage: "Delete the affiliates from Tapfiliate"},
					&cli.BoolFlag{Name: "dry-run", Usage: "Report what would be done without changing anything"},
					&cli.IntFlag{Name: "concurrency", Usage: "Parallel upstream calls (defaults to reaper.concurrency)"},
				},
				Action: sweep,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "orphan-reaper: %v\n", err)
		os.Exit(1)
	}
}

type env struct {
	cfg    *config.Config
	log    logger.Logger
	pg     *database.PostgresClient
	ledger *ledger.Ledger
}

func setup(c *cli.Context) (*env, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !cfg.Database.Postgres.Enabled {
		return nil, fmt.Errorf("database.postgres must be enabled to use the ledger")
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format).
		WithFields(map[string]interface{}{"tool": "orphan-reaper"})

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return nil, err
	}
	if err := pg.Ping(c.Context); err != nil {
		pg.Close()
		return nil, err
	}
	l, err := ledger.New(pg.GetDB())
	if err != nil {
		pg.Close()
		return nil, err
	}
	return &env{cfg: cfg, log: log, pg: pg, ledger: l}, nil
}

func (e *env) olderThan(c *cli.Context) time.Duration {
	if d := c.Duration("older-than"); d > 0 {
		return d
	}
	return config.GetDuration(e.cfg.Reaper.OrphanAfter)
}

func migrate(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.pg.Close()

	if err := e.ledger.Migrate(c.Context); err != nil {
		return err
	}
	e.log.Info("Ledger migrations applied", nil)
	return nil
}

func list(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.pg.Close()

	entries, err := e.ledger.ListStale(c.Context, e.olderThan(c), c.Int("limit"))
	if err != nil {
		return err
	}

	now := time.Now()
	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AFFILIATE\tEMAIL\tPARENT\tAGE")
	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entry.AffiliateID, entry.Email, entry.ParentID, entry.Age(now).Truncate(time.Minute))
	}
	return w.Flush()
}

func sweep(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.pg.Close()

	cfg := reaper.Config{
		OrphanAfter:    e.olderThan(c),
		BatchSize:      e.cfg.Reaper.BatchSize,
		Concurrency:    e.cfg.Reaper.Concurrency,
		DeleteUpstream: c.Bool("delete") || e.cfg.Reaper.DeleteUpstream,
		DryRun:         c.Bool("dry-run"),
	}
	if n := c.Int("concurrency"); n > 0 {
		cfg.Concurrency = n
	}

	var deleter reaper.Deleter
	if cfg.DeleteUpstream {
		client, err := tapfiliate.NewClient(tapfiliate.Options{
			BaseURL: e.cfg.Tapfiliate.BaseURL,
			APIKey:  e.cfg.Tapfiliate.APIKey,
			Timeout: config.GetDuration(e.cfg.Tapfiliate.Timeout),
			Logger:  e.log,
		})
		if err != nil {
			return err
		}
		deleter = client
	}

	var notifier reaper.Notifier
	n, err := notify.NewFromConfig(c.Context, e.cfg.Notifications, e.log)
	if err != nil {
		return err
	}
	if n != nil {
		notifier = n
	}

	r, err := reaper.New(e.ledger, deleter, notifier, cfg, e.log)
	if err != nil {
		return err
	}
	report, err := r.Run(c.Context)
	if report != nil {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			return encErr
		}
	}
	return err
}
