/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planning

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Score weights.
const (
	BaseScore        = 1000
	DeadlineWeight   = 50
	PriorityWeight   = 30
	SplitPenalty     = 20
	ContinuityBonus  = 10
	earlyGraceDays   = 7
	deadlineSlack    = 24 * time.Hour
	lateMultiplier   = 10
	earlyDayFraction = 0.1
)

// Breakdown itemizes a score.
type Breakdown struct {
	Violation       string `json:"violation,omitempty"`
	DeadlinePenalty int    `json:"deadlinePenalty"`
	PriorityPenalty int    `json:"priorityPenalty"`
	SplitPenalty    int    `json:"splitPenalty"`
	ContinuityBonus int    `json:"continuityBonus"`
	Total           int    `json:"total"`
}

// Scorer evaluates assignment sets. Higher is better; zero means a hard
// constraint is broken.
type Scorer struct {
	logger zerolog.Logger
}

// NewScorer creates a score calculator.
func NewScorer(logger zerolog.Logger) *Scorer {
	return &Scorer{logger: logger.With().Str("component", "score_calculator").Logger()}
}

// Score returns the total score of the assignments.
func (s *Scorer) Score(assignments []Assignment, tasks []Task, slots map[int64][]TimeSlot) int {
	return s.Breakdown(assignments, tasks, slots).Total
}

// Breakdown scores the assignments and reports each adjustment.
func (s *Scorer) Breakdown(assignments []Assignment, tasks []Task, slots map[int64][]TimeSlot) Breakdown {
	byID := make(map[int64]Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	if v := hardViolation(assignments, byID, slots); v != "" {
		s.logger.Debug().Str("violation", v).Msg("hard constraint violated")
		return Breakdown{Violation: v}
	}

	b := Breakdown{
		DeadlinePenalty: deadlinePenalty(assignments, byID),
		PriorityPenalty: priorityPenalty(assignments, byID),
		SplitPenalty:    splitPenalty(assignments),
		ContinuityBonus: continuityBonus(assignments),
	}
	b.Total = BaseScore - b.DeadlinePenalty - b.PriorityPenalty - b.SplitPenalty + b.ContinuityBonus
	if b.Total < 0 {
		b.Total = 0
	}
	return b
}

func hardViolation(assignments []Assignment, tasks map[int64]Task, slots map[int64][]TimeSlot) string {
	indexes := make(map[int64]slotIndex, len(slots))
	for _, a := range assignments {
		if !a.TaskBacked() {
			continue
		}
		task, ok := tasks[*a.TaskID]
		if !ok {
			continue
		}
		if task.DueAt != nil && a.EndsAt.After(*task.DueAt) {
			return "deadline"
		}

		owner, ok := a.Owner()
		if !ok {
			continue
		}
		idx, ok := indexes[owner]
		if !ok {
			idx = indexSlots(slots[owner])
			indexes[owner] = idx
		}
		if !idx.covers(owner, a.StartsAt, a.EndsAt) {
			return "availability"
		}
	}
	return ""
}

func deadlinePenalty(assignments []Assignment, tasks map[int64]Task) int {
	penalty := 0
	for _, a := range assignments {
		if !a.TaskBacked() {
			continue
		}
		task, ok := tasks[*a.TaskID]
		if !ok || task.DueAt == nil {
			continue
		}
		slack := task.DueAt.Sub(a.EndsAt)
		switch {
		case slack < 0:
			penalty += DeadlineWeight * lateMultiplier
		case slack < deadlineSlack:
		default:
			// Every day of slack past the first week costs points.
			days := int(slack / deadlineSlack)
			if days > earlyGraceDays {
				penalty += int(float64(DeadlineWeight*(days-earlyGraceDays)) * earlyDayFraction)
			}
		}
	}
	return penalty
}

func priorityPenalty(assignments []Assignment, tasks map[int64]Task) int {
	earliest := make(map[int]time.Time)
	for _, a := range assignments {
		if !a.TaskBacked() {
			continue
		}
		task, ok := tasks[*a.TaskID]
		if !ok {
			continue
		}
		if cur, seen := earliest[task.Priority]; !seen || a.StartsAt.Before(cur) {
			earliest[task.Priority] = a.StartsAt
		}
	}

	priorities := make([]int, 0, len(earliest))
	for p := range earliest {
		priorities = append(priorities, p)
	}
	sort.Ints(priorities)

	penalty := 0
	for i, high := range priorities {
		for _, low := range priorities[i+1:] {
			gap := earliest[high].Sub(earliest[low])
			if gap <= 0 {
				continue
			}
			hours := int(gap / time.Hour)
			penalty += int(float64(PriorityWeight*hours) / 24.0)
		}
	}
	return penalty
}

func fragmentsByTask(assignments []Assignment) map[int64][]Assignment {
	out := make(map[int64][]Assignment)
	for _, a := range assignments {
		if !a.TaskBacked() {
			continue
		}
		out[*a.TaskID] = append(out[*a.TaskID], a)
	}
	return out
}

func splitPenalty(assignments []Assignment) int {
	penalty := 0
	for _, frags := range fragmentsByTask(assignments) {
		if len(frags) > 1 {
			penalty += SplitPenalty * (len(frags) - 1)
		}
	}
	return penalty
}

func continuityBonus(assignments []Assignment) int {
	bonus := 0
	for _, frags := range fragmentsByTask(assignments) {
		if len(frags) < 2 {
			continue
		}
		sort.Slice(frags, func(i, j int) bool { return frags[i].StartsAt.Before(frags[j].StartsAt) })
		groups := 1
		for i := 1; i < len(frags); i++ {
			if !frags[i].StartsAt.Equal(frags[i-1].EndsAt) {
				groups++
			}
		}
		bonus += ContinuityBonus * (len(frags) - groups)
	}
	return bonus
}
