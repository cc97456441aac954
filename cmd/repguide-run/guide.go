package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/claude/repguide/internal/models"
	"github.com/claude/repguide/internal/workout"
)

var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Run the active workout interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps()
		if err != nil {
			return err
		}
		defer d.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		if err := d.guide.Refresh(ctx); err != nil {
			return err
		}

		eg, egCtx := errgroup.WithContext(ctx)
		eg.Go(func() error { return d.runFlusher(egCtx) })

		sh := &shell{d: d, out: cmd.OutOrStdout()}
		renderSnapshot(sh.out, d.guide.Snapshot())
		sh.run(egCtx, cmd.InOrStdin())

		stop()
		return eg.Wait()
	},
}

func init() {
	rootCmd.AddCommand(guideCmd)
}

const shellHelp = `commands:
  show | refresh            print or reload the workout
  guided                    start guided mode
  warmup start|done         record the warmup
  select <n>                focus step n
  check <n> | uncheck <n>   toggle set n of the current exercise
  finish | skip             finish or skip the current exercise
  next | prev               move to the adjacent exercise
  weight +[n] | -[n] | <kg> adjust the next-session target weight
  sync                      deliver offline target weights now
  end                       end the workout
  quit`

var errQuit = errors.New("quit")

type shell struct {
	d   *deps
	out io.Writer
}

func (sh *shell) run(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(sh.out, "> ")
		if !scanner.Scan() || ctx.Err() != nil {
			return
		}
		err := sh.exec(ctx, scanner.Text())
		switch {
		case errors.Is(err, errQuit):
			return
		case errors.Is(err, workout.ErrBusy):
			fmt.Fprintln(sh.out, yellow("busy, try again in a moment"))
		case err != nil:
			fmt.Fprintln(sh.out, red(err.Error()))
		}
	}
}

// exec runs one shell line.
func (sh *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	g := sh.d.guide
	cmd, args := fields[0], fields[1:]

	var err error
	switch cmd {
	case "help", "?":
		fmt.Fprintln(sh.out, shellHelp)
		return nil
	case "quit", "exit", "q":
		return errQuit
	case "show":
	case "refresh":
		err = g.Refresh(ctx)
	case "guided":
		err = g.StartGuided(ctx)
	case "warmup":
		switch arg(args, 0) {
		case "start":
			err = g.StartWarmup(ctx)
		case "done":
			err = g.CompleteWarmup(ctx)
		default:
			return fmt.Errorf("usage: warmup start|done")
		}
	case "select":
		var key models.ExerciseKey
		if key, err = stepKey(g.Snapshot(), arg(args, 0)); err == nil {
			err = g.Select(key)
		}
	case "check", "uncheck":
		n, perr := strconv.Atoi(arg(args, 0))
		if perr != nil || n < 1 {
			return fmt.Errorf("usage: %s <set number>", cmd)
		}
		err = g.ToggleSet(ctx, n, cmd == "check")
	case "finish":
		err = g.FinishExercise(ctx)
	case "skip":
		err = g.SkipExercise(ctx)
	case "next":
		err = g.Next(ctx)
	case "prev":
		err = g.Previous(ctx)
	case "weight":
		err = sh.weight(g.Snapshot(), arg(args, 0))
	case "sync":
		var n int
		if n, err = sh.d.flush(ctx); err == nil {
			fmt.Fprintf(sh.out, "delivered %d queued target weight(s)\n", n)
		}
	case "end":
		if err = sh.d.client.EndSession(ctx); err == nil {
			err = g.Refresh(ctx)
		}
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	if err != nil {
		return err
	}
	renderSnapshot(sh.out, g.Snapshot())
	return nil
}

func (sh *shell) weight(snap workout.Snapshot, arg string) error {
	if snap.Current.IsZero() {
		return workout.ErrNoExercise
	}
	g := sh.d.guide
	if arg == "" {
		return fmt.Errorf("usage: weight +[n] | -[n] | <kg>")
	}
	if n, ok := parseSteps(arg); ok {
		_, err := g.AdjustTargetWeight(snap.Current, n)
		return err
	}
	_, err := g.CommitTargetWeight(snap.Current, arg)
	return err
}

// parseSteps reads "+", "-", "+3" or "-2" as a signed step count.
func parseSteps(s string) (int, bool) {
	if s == "" || (s[0] != '+' && s[0] != '-') {
		return 0, false
	}
	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	if len(s) == 1 {
		return sign, true
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n <= 0 {
		return 0, false
	}
	return sign * n, true
}

// stepKey resolves a 1-based step number, or a composite key, against the
// rendered step list.
func stepKey(snap workout.Snapshot, s string) (models.ExerciseKey, error) {
	if s == "" {
		return models.ExerciseKey{}, fmt.Errorf("usage: select <n>")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > len(snap.Steps) {
			return models.ExerciseKey{}, fmt.Errorf("no step %d", n)
		}
		return snap.Steps[n-1].Key, nil
	}
	key := models.ParseExerciseKey(s)
	for _, v := range snap.Steps {
		if v.Key == key {
			return key, nil
		}
	}
	return models.ExerciseKey{}, fmt.Errorf("no step %q", s)
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
