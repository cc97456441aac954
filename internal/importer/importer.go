// Package importer seeds routine templates from YAML files.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/claude/repguide/internal/models"
	"github.com/claude/repguide/internal/workout"
)

// Stats tracks import progress.
type Stats struct {
	FilesProcessed int
	FilesSkipped   int
	FilesErrored   int

	RoutinesImported int
	SlotsImported    int

	// NotGuidable lists "routine/slot" entries whose targets would refuse
	// guided mode.
	NotGuidable []string
}

// RoutineStore persists routine templates. *storage.DB implements it.
type RoutineStore interface {
	UpsertRoutine(ctx context.Context, r models.Routine) error
}

// File is the on-disk layout of a routine file.
type File struct {
	Routines []models.Routine `yaml:"routines"`
}

// Importer reads routine files from a directory and upserts them.
type Importer struct {
	store  RoutineStore
	log    *slog.Logger
	dryRun bool
	stats  Stats
}

// New creates a new Importer.
func New(store RoutineStore, log *slog.Logger, dryRun bool) *Importer {
	return &Importer{store: store, log: log, dryRun: dryRun}
}

// Import processes every .yaml/.yml file in dir, in name order. Files that
// fail to parse or validate are counted and skipped; store errors abort.
func (imp *Importer) Import(ctx context.Context, dir string) (*Stats, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return &imp.stats, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	for _, f := range files {
		routines, err := ParseFile(f)
		if err != nil {
			imp.log.Warn("parse failed", "file", f, "error", err)
			imp.stats.FilesErrored++
			continue
		}
		if len(routines) == 0 {
			imp.stats.FilesSkipped++
			continue
		}

		imp.stats.FilesProcessed++
		for _, r := range routines {
			imp.checkGuidable(r)
			if !imp.dryRun {
				if err := imp.store.UpsertRoutine(ctx, r); err != nil {
					return &imp.stats, fmt.Errorf("importing %s from %s: %w", r.ID, filepath.Base(f), err)
				}
			}
			imp.stats.RoutinesImported++
			imp.stats.SlotsImported += len(r.Exercises)
		}
	}
	return &imp.stats, nil
}

func (imp *Importer) checkGuidable(r models.Routine) {
	for _, slot := range r.Exercises {
		ex := models.SessionExercise{
			ExerciseID: slot.ExerciseID, RoutineExerciseID: slot.ID, Name: slot.Name,
			Equipment: slot.Equipment, Targets: slot.Targets,
		}
		if missing := workout.MissingTargets(ex); len(missing) > 0 {
			imp.log.Info("slot not ready for guided mode", "routine", r.ID, "slot", slot.ID, "missing", missing)
			imp.stats.NotGuidable = append(imp.stats.NotGuidable, r.ID+"/"+slot.ID)
		}
	}
}

// ParseFile reads and validates one routine file.
func ParseFile(path string) ([]models.Routine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	for i := range file.Routines {
		if err := Prepare(&file.Routines[i]); err != nil {
			return nil, err
		}
	}
	return file.Routines, nil
}

// Prepare validates r and fills defaults: positions follow file order when
// unset, and slots without an id get "<exercise_id>-<position>".
func Prepare(r *models.Routine) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("routine without id")
	}
	if r.Type == "" {
		r.Type = models.RoutineStrength
	}
	seen := make(map[string]bool, len(r.Exercises))
	for i := range r.Exercises {
		slot := &r.Exercises[i]
		if strings.TrimSpace(slot.ExerciseID) == "" {
			return fmt.Errorf("routine %s: slot %d without exercise_id", r.ID, i+1)
		}
		if slot.Position <= 0 {
			slot.Position = i + 1
		}
		if slot.ID == "" {
			slot.ID = fmt.Sprintf("%s-%d", slot.ExerciseID, slot.Position)
		}
		if seen[slot.ID] {
			return fmt.Errorf("routine %s: duplicate slot id %s", r.ID, slot.ID)
		}
		seen[slot.ID] = true
	}
	return nil
}
