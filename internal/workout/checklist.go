package workout

import (
	"time"

	"github.com/claude/repguide/internal/models"
)

// ChecklistRow is the derived, never persisted, state of one target set.
type ChecklistRow struct {
	SetIndex  int         `json:"set_index"`
	Checked   bool        `json:"checked"`
	Locked    bool        `json:"locked"`
	CheckedAt *time.Time  `json:"checked_at,omitempty"`
	Set       *models.Set `json:"set,omitempty"`
}

// Overrides are transient local edits to one exercise's checklist.
// Checks holds local check instants by set index. Unchecked force-unchecks
// rows that are backed by a persisted set.
type Overrides struct {
	Checks    map[int]time.Time
	Unchecked map[int]bool
}

// Empty reports whether there is nothing to reconcile.
func (o Overrides) Empty() bool {
	return len(o.Checks) == 0 && len(o.Unchecked) == 0
}

func (o Overrides) clone() Overrides {
	c := Overrides{
		Checks:    make(map[int]time.Time, len(o.Checks)),
		Unchecked: make(map[int]bool, len(o.Unchecked)),
	}
	for k, v := range o.Checks {
		c.Checks[k] = v
	}
	for k, v := range o.Unchecked {
		c.Unchecked[k] = v
	}
	return c
}

// BuildChecklistRows derives one row per target set index (1-based).
func BuildChecklistRows(ex models.SessionExercise, o Overrides) []ChecklistRow {
	n := ex.SetCount()
	rows := make([]ChecklistRow, 0, n)
	for idx := 1; idx <= n; idx++ {
		row := ChecklistRow{SetIndex: idx}
		local, hasLocal := o.Checks[idx]
		forcedOff := o.Unchecked[idx]

		if set, ok := ex.PersistedSet(idx); ok {
			set := set
			row.Locked = true
			row.Set = &set
			if !forcedOff {
				row.Checked = true
				row.CheckedAt = persistedCheckTime(set)
			}
		}
		if hasLocal {
			row.Checked = true
			if row.CheckedAt == nil {
				t := local
				row.CheckedAt = &t
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func persistedCheckTime(s models.Set) *time.Time {
	switch {
	case s.CompletedAt != nil:
		return s.CompletedAt
	case s.CreatedAt != nil:
		return s.CreatedAt
	default:
		return s.StartedAt
	}
}

// AllChecked reports whether there is at least one row and every row is checked.
func AllChecked(rows []ChecklistRow) bool {
	if len(rows) == 0 {
		return false
	}
	for _, r := range rows {
		if !r.Checked {
			return false
		}
	}
	return true
}
