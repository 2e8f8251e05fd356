package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"patchsage/internal/ingest"
	"patchsage/internal/util"
	"patchsage/pkg/dictionary"
	"patchsage/pkg/fetch"
	"patchsage/pkg/leaselock"
	"patchsage/pkg/logger"
	"patchsage/pkg/logger/console"
	storepgx "patchsage/pkg/store/pgx"
)

func main() {
	util.LoadEnv()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
	})
	logger.Init(consoleLogger)

	var params ingest.Params
	var skipMigrations bool
	flag.StringVar(&params.TagURL, "tag-url", fetch.DefaultTagURL, "Patch-notes tag page to discover the current patch from.")
	flag.StringVar(&params.ArticleURL, "url", "", "Ingest this article URL instead of discovering the current patch.")
	flag.StringVar(&params.HTMLFile, "html-file", "", "Ingest a local HTML file instead of fetching.")
	flag.StringVar(&params.AgentsFile, "agents-json", "", "Load the agents feed from a local JSON artifact.")
	flag.BoolVar(&params.SkipAgents, "skip-agents", false, "Skip the agents feed; ingest without entity mentions.")
	flag.StringVar(&params.OutputDir, "output-dir", "data", "Directory for fetched JSON artifacts.")
	flag.BoolVar(&params.Wipe, "wipe", false, "Delete all existing graph data before loading.")
	flag.Float64Var(&params.LinkOpts.FuzzyThreshold, "fuzzy-threshold", 0, "Override the fuzzy match threshold (0 keeps the default).")
	flag.BoolVar(&params.LinkOpts.DisableFuzzy, "no-fuzzy", false, "Disable fuzzy entity matching.")
	flag.BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply schema migrations on startup.")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	databaseURL := util.GetEnv("DATABASE_URL")
	if !skipMigrations {
		if err := storepgx.RunMigrations(databaseURL, util.GetEnvString("MIGRATIONS_PATH", "migrations")); err != nil {
			logger.Fatal("failed to apply migrations", "err", err)
		}
	}

	st, err := storepgx.New(ctx, databaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", "err", err)
	}
	defer st.Close()

	pipeline := &ingest.Pipeline{
		Fetcher:  fetch.NewFetcher(),
		Feed:     dictionary.NewClient(util.GetEnvString("AGENTS_FEED_URL", "")),
		Store:    st,
		Locks:    leaselock.New(st.Pool()),
		LeaseTTL: 2 * time.Minute,
	}

	stats, err := pipeline.Run(ctx, params)
	if err != nil {
		logger.Fatal("ingestion failed", "err", err)
	}
	logger.Info("pipeline complete",
		"patch", stats.PatchID,
		"sections", stats.Sections,
		"changes", stats.Changes,
		"agents", stats.Agents,
		"mentions", stats.Mentions,
		"degraded", stats.Degraded)
}
