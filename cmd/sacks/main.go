// Command sacks is the CLI surface over the Orchestrator, exposing
// `process`, `validate-config`, `watch`, and `report` per spec.md §6 plus
// SPEC_FULL.md's ops-helper `watch` addition. Adapted from the teacher's
// cmd/seed/main.go urfave/cli App/Command/Flag shape (db-url flag with
// EnvVars); each command's Action opens and closes its own connections.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/thestrul/sacks/internal/config"
	"github.com/thestrul/sacks/internal/gridreader"
	"github.com/thestrul/sacks/internal/matcher"
	"github.com/thestrul/sacks/internal/orchestrator"
	"github.com/thestrul/sacks/internal/reporting"
	"github.com/thestrul/sacks/internal/store/postgres"
	"github.com/thestrul/sacks/pkg/logger"
)

func newConfigDirFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config-dir",
		Usage:   "Directory containing supplier format JSON documents",
		Value:   "./config/suppliers",
		EnvVars: []string{"SACKS_CONFIG_DIR"},
	}
}

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "db-url",
		Usage:   "Postgres connection string",
		EnvVars: []string{"DATABASE_URL"},
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: could not load .env file: %v", err)
	}

	app := &cli.App{
		Name:  "sacks",
		Usage: "Ingest supplier spreadsheets into the normalized catalog",
		Commands: []*cli.Command{
			processCommand(),
			validateConfigCommand(),
			watchCommand(),
			reportCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func processCommand() *cli.Command {
	return &cli.Command{
		Name:      "process",
		Usage:     "Process one or more supplier files into the catalog",
		ArgsUsage: "<path> [path...]",
		Flags: []cli.Flag{
			newConfigDirFlag(),
			newDBURLFlag(),
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Number of files to process in parallel",
				Value:   4,
				EnvVars: []string{"SACKS_CONCURRENCY"},
			},
			&cli.BoolFlag{
				Name:  "trace",
				Usage: "Record per-action traces on each row's PropertyBag",
			},
		},
		Action: runProcess,
	}
}

func runProcess(c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) == 0 {
		return cli.Exit("process requires at least one file path", 1)
	}

	appLog := logger.Log.With().Str("component", "sacks-cli").Logger()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := config.NewStore(c.String("config-dir"), appLog)
	if err != nil {
		return fmt.Errorf("load supplier configuration: %w", err)
	}

	dsn := c.String("db-url")
	if dsn == "" {
		dsn = config.Load().Database.DSN()
	}
	pg, err := postgres.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pg.Close()

	m := matcher.New(store)
	reader := gridreader.NewReader()
	orch := orchestrator.New(reader, m, pg, c.Bool("trace"), appLog)

	results, err := orch.ProcessFiles(ctx, paths, c.Int("concurrency"))
	if err != nil {
		return fmt.Errorf("process files: %w", err)
	}

	failed := 0
	for _, r := range results {
		appLog.Info().
			Str("path", r.FilePath).
			Str("status", string(r.Status)).
			Int("rows_read", r.RowsRead).
			Int("rows_parsed", r.RowsParsed).
			Int("products_created", r.ProductsCreated).
			Int("products_updated", r.ProductsUpdated).
			Int("offer_lines_created", r.OfferLinesCreated).
			Dur("duration", r.Duration).
			Msg("file processed")
		for _, w := range r.Warnings {
			appLog.Warn().Str("path", r.FilePath).Msg(w)
		}
		if r.Status != orchestrator.StatusOk {
			failed++
			for _, e := range r.Errors {
				appLog.Error().Str("path", r.FilePath).Msg(e)
			}
		}
	}

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d files failed", failed, len(results)), 1)
	}
	return nil
}

func validateConfigCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate-config",
		Usage:     "Load and validate the supplier format configuration directory",
		ArgsUsage: "<dir>",
		Action: func(c *cli.Context) error {
			dir := c.Args().First()
			if dir == "" {
				dir = c.String("config-dir")
			}
			if dir == "" {
				return cli.Exit("validate-config requires a directory argument", 1)
			}

			appLog := logger.Log.With().Str("component", "sacks-cli").Logger()
			store, err := config.NewStore(dir, appLog)
			if err != nil {
				return cli.Exit(fmt.Sprintf("configuration invalid: %v", err), 1)
			}

			suppliers := store.Suppliers()
			fmt.Printf("ok: %d supplier(s) loaded from %s\n", len(suppliers), dir)
			for _, s := range suppliers {
				fmt.Printf("  - %s\n", s.Name)
			}
			return nil
		},
		Flags: []cli.Flag{newConfigDirFlag()},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Run the configuration hot-reload loop standalone, for ops",
		ArgsUsage: "<dir>",
		Flags:     []cli.Flag{newConfigDirFlag()},
		Action: func(c *cli.Context) error {
			dir := c.Args().First()
			if dir == "" {
				dir = c.String("config-dir")
			}
			if dir == "" {
				return cli.Exit("watch requires a directory argument", 1)
			}

			appLog := logger.Log.With().Str("component", "sacks-cli").Logger()
			store, err := config.NewStore(dir, appLog)
			if err != nil {
				return fmt.Errorf("load supplier configuration: %w", err)
			}

			stop := make(chan struct{})
			if err := store.Watch(stop); err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			defer close(stop)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			appLog.Info().Str("dir", dir).Msg("watching supplier configuration for changes")
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-store.Reloaded():
					appLog.Info().Int("suppliers", len(store.Suppliers())).Msg("configuration reloaded")
				}
			}
		},
	}
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Print a post-run catalog summary (per-supplier and per-brand counts)",
		Flags: []cli.Flag{newDBURLFlag()},
		Action: func(c *cli.Context) error {
			dsn := c.String("db-url")
			if dsn == "" {
				dsn = config.Load().Database.DSN()
			}

			rep, err := reporting.Open(dsn)
			if err != nil {
				return fmt.Errorf("connect reporting db: %w", err)
			}
			defer rep.Close()

			ctx := context.Background()
			suppliers, err := rep.SummarizeSuppliers(ctx)
			if err != nil {
				return fmt.Errorf("summarize suppliers: %w", err)
			}
			fmt.Println("suppliers:")
			for _, s := range suppliers {
				fmt.Printf("  %-30s offers=%-6d product_offers=%d\n", s.SupplierName, s.OfferCount, s.ProductOfferCount)
			}

			brands, err := rep.SummarizeBrands(ctx)
			if err != nil {
				return fmt.Errorf("summarize brands: %w", err)
			}
			fmt.Println("brands:")
			for _, b := range brands {
				fmt.Printf("  %-30s product_offers=%d\n", b.Brand, b.Count)
			}
			return nil
		},
	}
}
