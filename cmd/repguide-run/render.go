package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/claude/repguide/internal/models"
	"github.com/claude/repguide/internal/targetweight"
	"github.com/claude/repguide/internal/workout"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func renderSnapshot(w io.Writer, snap workout.Snapshot) {
	if snap.SessionID == "" {
		fmt.Fprintln(w, "No active workout.")
		return
	}
	mode := "free"
	if snap.Guided {
		mode = "guided"
	}
	fmt.Fprintf(w, "%s %s  routine %s  (%s)\n", cyan("Session"), snap.SessionID, snap.RoutineID, mode)
	if snap.Notice != "" {
		fmt.Fprintf(w, "%s %s\n", yellow("!"), snap.Notice)
	}
	renderSteps(w, snap.Steps)
}

func renderSession(w io.Writer, sess workout.Session) {
	fmt.Fprintf(w, "%s %s  routine %s\n", cyan("Session"), sess.ID, sess.RoutineID)
	renderSteps(w, workout.BuildStepViews(workout.State{Session: sess}))
}

func renderSteps(w io.Writer, steps []workout.StepView) {
	for i, v := range steps {
		marker := "  "
		if v.Current {
			marker = green("> ")
		}
		line := fmt.Sprintf("%s%2d. %s %s", marker, i+1, v.Name, statusLabel(v.Status))
		if v.Partner != nil {
			line += faint(" [superset with " + v.Partner.ExerciseID + "]")
		}
		if v.TargetWeight != nil {
			line += " " + weightLabel(*v.TargetWeight)
		}
		fmt.Fprintln(w, line)
		if !v.Current {
			continue
		}
		for _, row := range v.Rows {
			fmt.Fprintf(w, "      %s\n", rowLabel(v, row))
		}
	}
}

func statusLabel(s models.ExerciseStatus) string {
	switch s {
	case models.StatusCompleted:
		return green("done")
	case models.StatusSkipped:
		return faint("skipped")
	case models.StatusInProgress:
		return yellow("in progress")
	}
	return faint("pending")
}

func weightLabel(v targetweight.View) string {
	text := "target " + formatWeight(v.Value)
	switch v.Status {
	case targetweight.StatusSaving:
		text += yellow(" (saving)")
	case targetweight.StatusSaved:
		text += green(" (saved)")
	case targetweight.StatusFailed:
		text += red(" (failed)")
	case targetweight.StatusQueued:
		text += yellow(" (queued offline)")
	}
	return text
}

func rowLabel(v workout.StepView, row workout.ChecklistRow) string {
	box := "[ ]"
	if row.Checked {
		box = "[x]"
	}
	reps, weight, band := targetsLine(v)
	if row.Set != nil {
		reps = strconv.Itoa(row.Set.Reps)
		if row.Set.Weight != nil {
			weight = formatWeight(*row.Set.Weight)
		}
		if row.Set.BandLabel != "" {
			band = row.Set.BandLabel
		}
	}
	parts := []string{box, fmt.Sprintf("set %d", row.SetIndex), reps + " reps"}
	switch {
	case band != "":
		parts = append(parts, "band "+band)
	case weight != "":
		parts = append(parts, "@ "+weight)
	}
	if row.Locked {
		parts = append(parts, faint("(logged)"))
	}
	return strings.Join(parts, " ")
}

func targetsLine(v workout.StepView) (reps, weight, band string) {
	reps = "?"
	if n, ok := workout.ResolveTargetReps(v.Targets); ok {
		reps = strconv.Itoa(n)
	}
	if v.Equipment.IsBand() {
		band = v.Targets.BandLabel
	} else if !v.Equipment.IsBodyweight() && v.Targets.Weight != nil {
		weight = formatWeight(*v.Targets.Weight)
	}
	return reps, weight, band
}

func formatWeight(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
