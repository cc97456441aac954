package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/claude/repguide/internal/config"
	"github.com/claude/repguide/internal/importer"
	"github.com/claude/repguide/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	routinesPath := flag.String("path", "", "directory of routine YAML files (required)")
	dryRun := flag.Bool("dry-run", false, "validate and report without writing to the database")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *routinesPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: repguide-import -config config.yaml -path /path/to/routines [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	info, err := os.Stat(*routinesPath)
	if err != nil || !info.IsDir() {
		log.Error("routines path does not exist or is not a directory", "path", *routinesPath)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	dsn := cfg.Database.DSN()
	if err := storage.RunMigrations(dsn, "migrations"); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	ctx := context.Background()

	if *dryRun {
		log.Info("DRY RUN mode: no data will be written to the database")
	}

	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	imp := importer.New(db, log, *dryRun)
	stats, err := imp.Import(ctx, *routinesPath)
	if err != nil {
		log.Error("import failed", "error", err)
		printStats(log, stats)
		os.Exit(1)
	}

	printStats(log, stats)
	log.Info("import complete")
}

func printStats(log *slog.Logger, stats *importer.Stats) {
	log.Info("import stats",
		"files_processed", stats.FilesProcessed,
		"files_skipped", stats.FilesSkipped,
		"files_errored", stats.FilesErrored,
		"routines_imported", stats.RoutinesImported,
		"slots_imported", stats.SlotsImported,
	)
	if len(stats.NotGuidable) > 0 {
		log.Info("slots missing guided targets", "slots", stats.NotGuidable)
	}
}
