/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planning

import (
	"math"
	"math/rand"

	"github.com/rs/zerolog"
)

// OptimizerConfig tunes the annealing search.
type OptimizerConfig struct {
	MaxIterations      int
	MaxNoImprovement   int
	InitialTemperature float64
	CoolingRate        float64
}

// DefaultOptimizerConfig returns the standard search budget.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		MaxIterations:      100,
		MaxNoImprovement:   20,
		InitialTemperature: 100,
		CoolingRate:        0.95,
	}
}

// Optimizer improves a greedy placement by local search with simulated
// annealing.
type Optimizer struct {
	scorer *Scorer
	config OptimizerConfig
	logger zerolog.Logger
}

// NewOptimizer creates an optimizer. Zero config fields take defaults.
func NewOptimizer(scorer *Scorer, config OptimizerConfig, logger zerolog.Logger) *Optimizer {
	def := DefaultOptimizerConfig()
	if config.MaxIterations <= 0 {
		config.MaxIterations = def.MaxIterations
	}
	if config.MaxNoImprovement <= 0 {
		config.MaxNoImprovement = def.MaxNoImprovement
	}
	if config.InitialTemperature <= 0 {
		config.InitialTemperature = def.InitialTemperature
	}
	if config.CoolingRate <= 0 || config.CoolingRate >= 1 {
		config.CoolingRate = def.CoolingRate
	}
	return &Optimizer{
		scorer: scorer,
		config: config,
		logger: logger.With().Str("component", "local_search").Logger(),
	}
}

// OptimizeRequest is the input of one search.
type OptimizeRequest struct {
	Schedule    Schedule
	Assignments []Assignment
	Tasks       []Task
	Slots       map[int64][]TimeSlot
	Seed        int64
}

// OptimizeResult is the outcome of one search.
type OptimizeResult struct {
	Assignments  []Assignment
	InitialScore int
	FinalScore   int
	Iterations   int
	Accepted     int
	Improved     bool
}

// Optimize searches for a better assignment set. The input is returned
// unchanged unless a strictly better set was found.
func (o *Optimizer) Optimize(req OptimizeRequest) OptimizeResult {
	rng := rand.New(rand.NewSource(req.Seed))

	initial := o.scorer.Score(req.Assignments, req.Tasks, req.Slots)
	result := OptimizeResult{
		Assignments:  req.Assignments,
		InitialScore: initial,
		FinalScore:   initial,
	}

	movable := 0
	for _, a := range req.Assignments {
		if a.TaskBacked() {
			movable++
		}
	}
	if movable == 0 {
		return result
	}

	tasks := make(map[int64]Task, len(req.Tasks))
	for _, t := range req.Tasks {
		tasks[t.ID] = t
	}
	m := mover{rng: rng, tasks: tasks, slots: req.Slots, indexes: make(map[int64]slotIndex)}

	current := cloneAssignments(req.Assignments)
	currentScore := initial
	best := current
	bestScore := initial

	temperature := o.config.InitialTemperature
	stale := 0
	for result.Iterations < o.config.MaxIterations && stale < o.config.MaxNoImprovement {
		result.Iterations++

		var candidate []Assignment
		if rng.Intn(2) == 0 {
			candidate = m.swap(current)
		} else {
			candidate = m.move(current)
		}

		if candidate != nil {
			score := o.scorer.Score(candidate, req.Tasks, req.Slots)
			improved := score > currentScore
			if improved || rng.Float64() < math.Exp(float64(score-currentScore)/temperature) {
				current, currentScore = candidate, score
				result.Accepted++
			}
			if improved {
				stale = 0
			} else {
				stale++
			}
			if currentScore > bestScore {
				best, bestScore = cloneAssignments(current), currentScore
			}
		} else {
			stale++
		}

		temperature *= o.config.CoolingRate
	}

	o.logger.Debug().
		Int64("schedule_id", req.Schedule.ID).
		Int("initial_score", initial).
		Int("best_score", bestScore).
		Int("iterations", result.Iterations).
		Int("accepted", result.Accepted).
		Msg("local search finished")

	if bestScore > initial {
		result.Assignments = best
		result.FinalScore = bestScore
		result.Improved = true
	}
	return result
}

// mover produces perturbed copies of an assignment set.
type mover struct {
	rng     *rand.Rand
	tasks   map[int64]Task
	slots   map[int64][]TimeSlot
	indexes map[int64]slotIndex
}

func (m *mover) index(user int64) slotIndex {
	idx, ok := m.indexes[user]
	if !ok {
		idx = indexSlots(m.slots[user])
		m.indexes[user] = idx
	}
	return idx
}

func taskBackedPositions(assignments []Assignment) []int {
	out := make([]int, 0, len(assignments))
	for i, a := range assignments {
		if a.TaskBacked() {
			out = append(out, i)
		}
	}
	return out
}

// swap exchanges the time ranges of two task-backed assignments. The
// candidate is dropped when either new range overlaps any third assignment.
func (m *mover) swap(current []Assignment) []Assignment {
	positions := taskBackedPositions(current)
	if len(positions) < 2 {
		return nil
	}
	i := positions[m.rng.Intn(len(positions))]
	j := positions[m.rng.Intn(len(positions))]
	if i == j {
		return nil
	}

	next := cloneAssignments(current)
	a, b := &next[i], &next[j]
	a.StartsAt, b.StartsAt = b.StartsAt, a.StartsAt
	a.EndsAt, b.EndsAt = b.EndsAt, a.EndsAt
	a.SlotIndex, b.SlotIndex = b.SlotIndex, a.SlotIndex
	if a.Meta != nil && b.Meta != nil {
		a.Meta.Slots, b.Meta.Slots = b.Meta.Slots, a.Meta.Slots
	}

	if overlapsOthers(next, i, j) || overlapsOthers(next, j, i) {
		return nil
	}
	return next
}

// move relocates one task-backed assignment to a random run of its owner's
// slots.
func (m *mover) move(current []Assignment) []Assignment {
	positions := taskBackedPositions(current)
	if len(positions) == 0 {
		return nil
	}
	i := positions[m.rng.Intn(len(positions))]
	target := current[i]

	owner, ok := target.Owner()
	if !ok {
		return nil
	}
	userSlots := m.slots[owner]
	if len(userSlots) == 0 {
		return nil
	}

	need := fragmentSlots(target)
	if task, ok := m.tasks[*target.TaskID]; ok && (target.Meta == nil || !target.Meta.Split) {
		need = task.SlotsNeeded()
	}
	if need <= 0 {
		return nil
	}

	first := userSlots[m.rng.Intn(len(userSlots))]
	run, ok := m.index(owner).chain(first, need)
	if !ok {
		return nil
	}

	next := cloneAssignments(current)
	moved := &next[i]
	moved.StartsAt = run[0].Start
	moved.EndsAt = run[len(run)-1].End
	idx := run[0].Index
	moved.SlotIndex = &idx
	if moved.Meta != nil {
		moved.Meta.Slots = len(run)
	}

	if ownerConflict(next, i) {
		return nil
	}
	return next
}

func fragmentSlots(a Assignment) int {
	if a.Meta != nil && a.Meta.Slots > 0 {
		return a.Meta.Slots
	}
	return int((a.EndsAt.Sub(a.StartsAt) + SlotDuration - 1) / SlotDuration)
}

// overlapsOthers reports whether assignment i overlaps any assignment
// other than itself and its swap partner, whoever owns it.
func overlapsOthers(assignments []Assignment, i, partner int) bool {
	a := assignments[i]
	for k, other := range assignments {
		if k == i || k == partner {
			continue
		}
		if a.Overlaps(other) {
			return true
		}
	}
	return false
}

// ownerConflict reports whether assignment i overlaps another assignment on
// the same user's calendar.
func ownerConflict(assignments []Assignment, i int) bool {
	a := assignments[i]
	owner, hasOwner := a.Owner()
	for k, other := range assignments {
		if k == i {
			continue
		}
		if hasOwner {
			if o, ok := other.Owner(); ok && o != owner {
				continue
			}
		}
		if a.Overlaps(other) {
			return true
		}
	}
	return false
}
