package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/claude/repguide/internal/api"
	"github.com/claude/repguide/internal/models"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Deliver target weights saved while offline",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps()
		if err != nil {
			return err
		}
		defer d.Close()

		n, err := d.flush(cmd.Context())
		if err != nil {
			return fmt.Errorf("sync: %w (%d delivered)", err, n)
		}
		fmt.Printf("Delivered %d queued target weight(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

// flush replays the outbox and refreshes the guide afterwards. Writes the
// server rejects outright are dropped so they cannot block the queue.
func (d *deps) flush(ctx context.Context) (int, error) {
	send := func(ctx context.Context, u models.TargetUpdate) (*models.TargetResult, error) {
		res, err := d.client.SendTarget(ctx, u)
		var se *api.StatusError
		if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
			d.log.Warn("queued target weight rejected, dropping",
				"routine", u.RoutineID, "exercise", u.ExerciseID, "status", se.Code)
			return &models.TargetResult{TargetUpdate: u}, nil
		}
		return res, err
	}
	return d.outbox.Flush(ctx, send, d.guide.SyncComplete)
}

const (
	flushInterval   = 30 * time.Second
	maxFlushBackoff = 5 * time.Minute
)

// runFlusher retries the outbox until ctx is done. While the server stays
// unreachable the wait doubles up to maxFlushBackoff.
func (d *deps) runFlusher(ctx context.Context) error {
	wait := flushInterval
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		n, err := d.flush(ctx)
		switch {
		case err == nil:
			if n > 0 {
				d.log.Info("outbox delivered", "count", n)
			}
			wait = flushInterval
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, api.ErrOffline):
			wait = min(wait*2, maxFlushBackoff)
			d.log.Debug("outbox still offline", "retry_in", wait)
		default:
			d.log.Warn("outbox flush failed", "error", err)
			wait = flushInterval
		}
	}
}
