package workout

import "github.com/claude/repguide/internal/models"

// Pairings maps an exercise key to its superset partner.
type Pairings map[models.ExerciseKey]models.ExerciseKey

// Partner returns the superset partner of key.
func (p Pairings) Partner(key models.ExerciseKey) (models.ExerciseKey, bool) {
	k, ok := p[key]
	return k, ok
}

// BuildSupersetPairings pairs exercises that share a non-empty superset group.
// A pair exists only when exactly two exercises carry the token and they are
// adjacent in sequence; any other grouping yields no partner for anyone.
func BuildSupersetPairings(steps []models.Step) Pairings {
	type member struct {
		key models.ExerciseKey
		seq int
	}
	groups := make(map[string][]member)
	seq := 0
	for _, st := range steps {
		ex, ok := st.(models.SessionExercise)
		if !ok {
			continue
		}
		if ex.SupersetGroup != "" {
			groups[ex.SupersetGroup] = append(groups[ex.SupersetGroup], member{key: ex.Key(), seq: seq})
		}
		seq++
	}

	pairs := make(Pairings)
	for _, members := range groups {
		if len(members) != 2 {
			continue
		}
		a, b := members[0], members[1]
		if b.seq-a.seq != 1 && a.seq-b.seq != 1 {
			continue
		}
		pairs[a.key] = b.key
		pairs[b.key] = a.key
	}
	return pairs
}
