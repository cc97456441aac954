package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/claude/repguide/internal/api"
	"github.com/claude/repguide/internal/config"
	"github.com/claude/repguide/internal/outbox"
	"github.com/claude/repguide/internal/targetweight"
	"github.com/claude/repguide/internal/workout"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	serverURL   string
	apiKey      string
	stateDir    string
	weightStep  float64
	statusClear time.Duration
	bandLabel   string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:     "repguide-run",
	Short:   "Guided workout client for a RepGuide server",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if serverURL == "" {
			return fmt.Errorf("--server is required (or set REPGUIDE_SERVER)")
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// A .env next to the binary may carry the server URL and key.
	_ = godotenv.Load()

	guided := config.DefaultGuided()
	home, _ := os.UserHomeDir()

	f := rootCmd.PersistentFlags()
	f.StringVar(&serverURL, "server", os.Getenv("REPGUIDE_SERVER"), "RepGuide server URL (e.g. https://repguide.tail1234.ts.net)")
	f.StringVar(&apiKey, "api-key", os.Getenv("REPGUIDE_API_KEY"), "API key for write endpoints")
	f.StringVar(&stateDir, "state-dir", filepath.Join(home, ".repguide-run"), "directory for the offline outbox")
	f.Float64Var(&weightStep, "weight-step", guided.WeightStep, "target weight increment")
	f.DurationVar(&statusClear, "status-clear", guided.StatusClearDelay, "how long saved/failed weight statuses stay visible")
	f.StringVar(&bandLabel, "band", guided.DefaultBandLabel, "band label logged when a band exercise has none")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// deps is everything a command needs to talk to the server.
type deps struct {
	log     *slog.Logger
	outbox  *outbox.Outbox
	client  *api.Client
	weights *targetweight.Queue
	guide   *workout.Guide
}

func openDeps() (*deps, error) {
	log := newLogger()
	ob, err := outbox.Open(stateDir)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	client := api.NewClient(serverURL, apiKey, ob, log)
	weights := targetweight.New(client, weightStep, statusClear, log)
	guide := workout.New(client, weights, workout.Options{DefaultBandLabel: bandLabel}, log)
	return &deps{log: log, outbox: ob, client: client, weights: weights, guide: guide}, nil
}

// Close waits for in-flight weight writes before releasing resources.
func (d *deps) Close() {
	d.guide.Close()
	d.weights.Wait()
	d.weights.Close()
	if err := d.outbox.Close(); err != nil {
		d.log.Warn("closing outbox", "error", err)
	}
}
