/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planning

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func twoWeekPlan(t *testing.T) ([]Task, map[int64][]TimeSlot, []Assignment) {
	t.Helper()
	g := NewGenerator(zerolog.Nop())
	rules := []WorkHourRule{
		{TeamID: 1, DayOfWeek: 1, StartMin: 540, EndMin: 1080},
		{TeamID: 1, DayOfWeek: 2, StartMin: 540, EndMin: 1080},
		{TeamID: 1, DayOfWeek: 4, StartMin: 600, EndMin: 960},
	}
	slots := g.Generate(rules, nil, monday, monday.AddDate(0, 0, 13), []int64{1, 2})

	due := at(monday.AddDate(0, 0, 9), 17, 0)
	tasks := []Task{
		{ID: 1, Title: "plan", DurationMin: 90, Priority: 1},
		{ID: 2, Title: "review", DurationMin: 60, Priority: 2, Splittable: true},
		{ID: 3, Title: "ship", DurationMin: 120, Priority: 3, DueAt: &due},
		{ID: 4, Title: "notes", DurationMin: 30, Priority: 5, AssigneeID: int64Ptr(2)},
		{ID: 5, Title: "triage", DurationMin: 150, Priority: 4, Splittable: true},
	}
	res := newTestPacker().Pack(tasks, slots, Schedule{ID: 1, TeamID: 1})
	return tasks, slots, res.Assignments
}

func TestOptimize_NeverWorseThanInput(t *testing.T) {
	tasks, slots, greedy := twoWeekPlan(t)
	scorer := NewScorer(zerolog.Nop())
	opt := NewOptimizer(scorer, DefaultOptimizerConfig(), zerolog.Nop())

	for seed := int64(1); seed <= 25; seed++ {
		res := opt.Optimize(OptimizeRequest{
			Schedule:    Schedule{ID: 1},
			Assignments: greedy,
			Tasks:       tasks,
			Slots:       slots,
			Seed:        seed,
		})
		if res.FinalScore < res.InitialScore {
			t.Fatalf("seed %d: final %d below initial %d", seed, res.FinalScore, res.InitialScore)
		}
		if got := scorer.Score(res.Assignments, tasks, slots); got != res.FinalScore {
			t.Fatalf("seed %d: returned set scores %d, result says %d", seed, got, res.FinalScore)
		}
		if res.Iterations > DefaultOptimizerConfig().MaxIterations {
			t.Fatalf("seed %d: ran %d iterations", seed, res.Iterations)
		}
		if !res.Improved && !reflect.DeepEqual(res.Assignments, greedy) {
			t.Fatalf("seed %d: input must be returned unchanged when nothing improved", seed)
		}
		checkAssignmentInvariants(t, res.Assignments, tasks)
	}
}

func TestOptimize_Reproducible(t *testing.T) {
	tasks, slots, greedy := twoWeekPlan(t)
	opt := NewOptimizer(NewScorer(zerolog.Nop()), OptimizerConfig{}, zerolog.Nop())
	req := OptimizeRequest{Assignments: greedy, Tasks: tasks, Slots: slots, Seed: 99}

	first := opt.Optimize(req)
	second := opt.Optimize(req)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same seed produced different results")
	}
}

func TestOptimize_DoesNotMutateInput(t *testing.T) {
	tasks, slots, greedy := twoWeekPlan(t)
	snapshot := cloneAssignments(greedy)
	opt := NewOptimizer(NewScorer(zerolog.Nop()), OptimizerConfig{}, zerolog.Nop())
	opt.Optimize(OptimizeRequest{Assignments: greedy, Tasks: tasks, Slots: slots, Seed: 3})
	if !reflect.DeepEqual(greedy, snapshot) {
		t.Fatalf("Optimize() mutated its input")
	}
}

func TestOptimize_FixesPriorityInversion(t *testing.T) {
	slots := mondaySlots(1)
	nextMonday := monday.AddDate(0, 0, 7)
	tasks := []Task{
		{ID: 1, DurationMin: 30, Priority: 5},
		{ID: 2, DurationMin: 30, Priority: 1},
	}
	input := []Assignment{
		taskAssignment(1, 1, at(monday, 9, 0), at(monday, 9, 30)),
		taskAssignment(2, 1, at(nextMonday, 9, 0), at(nextMonday, 9, 30)),
	}
	opt := NewOptimizer(NewScorer(zerolog.Nop()), DefaultOptimizerConfig(), zerolog.Nop())

	improved := false
	for seed := int64(1); seed <= 10; seed++ {
		res := opt.Optimize(OptimizeRequest{Assignments: input, Tasks: tasks, Slots: slots, Seed: seed})
		if res.InitialScore != BaseScore-210 {
			t.Fatalf("initial score = %d, want %d", res.InitialScore, BaseScore-210)
		}
		if res.Improved {
			improved = true
			if res.FinalScore <= res.InitialScore {
				t.Fatalf("seed %d: improved result must score higher", seed)
			}
		}
	}
	if !improved {
		t.Fatalf("expected at least one seed to fix the inversion")
	}
}

func TestOptimize_NothingToMove(t *testing.T) {
	event := Assignment{Title: "holiday", StartsAt: at(monday, 9, 0), EndsAt: at(monday, 17, 0), Source: SourceEvent}
	opt := NewOptimizer(NewScorer(zerolog.Nop()), DefaultOptimizerConfig(), zerolog.Nop())
	res := opt.Optimize(OptimizeRequest{Assignments: []Assignment{event}, Seed: 1})
	if res.Iterations != 0 || res.Improved {
		t.Fatalf("result = %+v, want no search", res)
	}
	if res.FinalScore != BaseScore {
		t.Fatalf("final score = %d, want %d", res.FinalScore, BaseScore)
	}
}

func TestSwapRejectsOverlap(t *testing.T) {
	m := mover{slots: mondaySlots(1), indexes: make(map[int64]slotIndex)}
	current := []Assignment{
		taskAssignment(1, 1, at(monday, 9, 0), at(monday, 11, 0)),
		taskAssignment(2, 1, at(monday, 13, 0), at(monday, 13, 30)),
		taskAssignment(3, 1, at(monday, 13, 30), at(monday, 14, 0)),
	}
	// Moving the two-hour block to 13:00 would run into task 3.
	for _, seed := range []int64{1, 2, 3, 4, 5, 6, 7, 8} {
		m.rng = newRand(seed)
		next := m.swap(current)
		if next == nil {
			continue
		}
		for i := range next {
			for j := i + 1; j < len(next); j++ {
				if next[i].Overlaps(next[j]) {
					t.Fatalf("seed %d: swap produced overlap between %d and %d", seed, i, j)
				}
			}
		}
	}
}

func TestSwapExchangesRanges(t *testing.T) {
	m := mover{slots: mondaySlots(1), indexes: make(map[int64]slotIndex)}
	current := []Assignment{
		taskAssignment(1, 1, at(monday, 9, 0), at(monday, 10, 0)),
		taskAssignment(2, 1, at(monday, 14, 0), at(monday, 14, 30)),
	}
	swapped := false
	for seed := int64(1); seed <= 20 && !swapped; seed++ {
		m.rng = newRand(seed)
		next := m.swap(current)
		if next == nil {
			continue
		}
		swapped = true
		if !next[0].StartsAt.Equal(at(monday, 14, 0)) || !next[0].EndsAt.Equal(at(monday, 14, 30)) {
			t.Fatalf("task 1 range = %v-%v, want 14:00-14:30", next[0].StartsAt, next[0].EndsAt)
		}
		if !next[1].StartsAt.Equal(at(monday, 9, 0)) || !next[1].EndsAt.Equal(at(monday, 10, 0)) {
			t.Fatalf("task 2 range = %v-%v, want 09:00-10:00", next[1].StartsAt, next[1].EndsAt)
		}
		if next[0].Meta.Slots != 1 || next[1].Meta.Slots != 2 {
			t.Fatalf("slot counts = %d/%d, want 1/2", next[0].Meta.Slots, next[1].Meta.Slots)
		}
	}
	if !swapped {
		t.Fatal("no seed produced a swap")
	}
}

func TestSwapRejectsOverlapWithOtherUsersAssignment(t *testing.T) {
	m := mover{slots: mondaySlots(1), indexes: make(map[int64]slotIndex)}
	standup := Assignment{
		ScheduleID: 1,
		Title:      "standup",
		StartsAt:   at(monday, 14, 0),
		EndsAt:     at(monday, 15, 0),
		Source:     SourceEvent,
		Meta:       &AssignmentMeta{UserID: 2},
	}
	current := []Assignment{
		taskAssignment(1, 1, at(monday, 9, 0), at(monday, 10, 0)),
		taskAssignment(2, 1, at(monday, 14, 0), at(monday, 14, 30)),
		standup,
	}
	// Task 1 would take 14:00-14:30, which the other user's event covers.
	for seed := int64(1); seed <= 20; seed++ {
		m.rng = newRand(seed)
		if next := m.swap(current); next != nil {
			t.Fatalf("seed %d: swap accepted: task 1 %v-%v", seed, next[0].StartsAt, next[0].EndsAt)
		}
	}
}

func TestMoveKeepsDuration(t *testing.T) {
	m := mover{slots: mondaySlots(1), tasks: map[int64]Task{1: {ID: 1, DurationMin: 60}}, indexes: make(map[int64]slotIndex)}
	current := []Assignment{taskAssignment(1, 1, at(monday, 9, 0), at(monday, 10, 0))}
	for seed := int64(1); seed <= 20; seed++ {
		m.rng = newRand(seed)
		next := m.move(current)
		if next == nil {
			continue
		}
		if got := next[0].EndsAt.Sub(next[0].StartsAt); got != time.Hour {
			t.Fatalf("seed %d: moved duration = %v, want 1h", seed, got)
		}
		if next[0].StartsAt.Hour() < 9 || next[0].EndsAt.After(at(next[0].StartsAt.Truncate(24*time.Hour), 18, 0)) {
			t.Fatalf("seed %d: moved outside work hours: %v", seed, next[0].StartsAt)
		}
	}
}
