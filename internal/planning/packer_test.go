/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planning

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// packNow is well before the test week.
var packNow = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func newTestPacker() *Packer {
	return NewPacker(zerolog.Nop(), WithClock(func() time.Time { return packNow }))
}

func slotAt(user int64, start time.Time) TimeSlot {
	day := dateOf(start)
	return TimeSlot{
		Date:       day,
		Index:      int(start.Sub(day) / SlotDuration),
		Start:      start,
		End:        start.Add(SlotDuration),
		Available:  true,
		UserID:     user,
		Preference: slotPreference(start),
	}
}

func checkAssignmentInvariants(t *testing.T, assignments []Assignment, tasks []Task) {
	t.Helper()
	byID := make(map[int64]Task)
	for _, task := range tasks {
		byID[task.ID] = task
	}
	for i, a := range assignments {
		if !a.StartsAt.Before(a.EndsAt) {
			t.Errorf("assignment %d: start %v not before end %v", i, a.StartsAt, a.EndsAt)
		}
		if a.TaskID == nil {
			continue
		}
		if task := byID[*a.TaskID]; task.DueAt != nil && a.EndsAt.After(*task.DueAt) {
			t.Errorf("assignment %d: ends %v after deadline %v", i, a.EndsAt, *task.DueAt)
		}
	}
}

func TestPack_SixtyMinuteTaskInWorkWeek(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	slots := g.Generate([]WorkHourRule{mondayRule(1)}, nil, monday, monday.AddDate(0, 0, 6), []int64{1})

	tasks := []Task{{ID: 1, TeamID: 1, Title: "write report", DurationMin: 60, Priority: 3}}
	res := newTestPacker().Pack(tasks, slots, Schedule{ID: 42, TeamID: 1})

	if len(res.Unassigned) != 0 {
		t.Fatalf("unexpected unassigned: %+v", res.Unassigned)
	}
	if len(res.Assignments) != 1 {
		t.Fatalf("got %d assignments, want 1", len(res.Assignments))
	}
	a := res.Assignments[0]
	if got := a.EndsAt.Sub(a.StartsAt); got != time.Hour {
		t.Errorf("duration = %v, want 1h", got)
	}
	if a.StartsAt.Before(at(monday, 9, 0)) || a.EndsAt.After(at(monday, 18, 0)) {
		t.Errorf("assignment %v-%v outside Monday work hours", a.StartsAt, a.EndsAt)
	}
	if a.ScheduleID != 42 || a.Source != SourceTask {
		t.Errorf("assignment = %+v, want schedule 42 and TASK source", a)
	}
	if a.Meta == nil || a.Meta.UserID != 1 || a.Meta.Slots != 2 || a.Meta.Split {
		t.Errorf("meta = %+v, want user 1, 2 slots, not split", a.Meta)
	}
	if a.SlotIndex == nil || *a.SlotIndex != 18 {
		t.Errorf("slot index = %v, want 18", a.SlotIndex)
	}
	if !Consecutive(slotAt(1, a.StartsAt), slotAt(1, a.StartsAt.Add(SlotDuration))) {
		t.Errorf("assignment does not cover a slot pair")
	}
	checkAssignmentInvariants(t, res.Assignments, tasks)
}

func TestPack_ContentionLeavesOneUnassigned(t *testing.T) {
	slots := map[int64][]TimeSlot{1: {slotAt(1, at(monday, 10, 0))}}
	tasks := []Task{
		{ID: 1, AssigneeID: int64Ptr(1), Title: "a", DurationMin: 30, Priority: 2},
		{ID: 2, AssigneeID: int64Ptr(1), Title: "b", DurationMin: 30, Priority: 2},
	}
	res := newTestPacker().Pack(tasks, slots, Schedule{ID: 1})

	if len(res.Assignments) != 1 {
		t.Fatalf("got %d assignments, want 1", len(res.Assignments))
	}
	if len(res.Unassigned) != 1 {
		t.Fatalf("got %d unassigned, want 1", len(res.Unassigned))
	}
	if res.Unassigned[0].Reason != ReasonInsufficientTime {
		t.Errorf("reason = %q, want %q", res.Unassigned[0].Reason, ReasonInsufficientTime)
	}
	if *res.Assignments[0].TaskID == res.Unassigned[0].TaskID {
		t.Errorf("same task both placed and unassigned")
	}
}

func TestPack_SplittableAcrossDisjointSlots(t *testing.T) {
	slots := map[int64][]TimeSlot{1: {
		slotAt(1, at(monday, 9, 0)),
		slotAt(1, at(monday, 11, 0)),
		slotAt(1, at(monday, 14, 0)),
	}}
	tasks := []Task{{ID: 5, Title: "review", DurationMin: 90, Priority: 3, Splittable: true}}
	res := newTestPacker().Pack(tasks, slots, Schedule{ID: 1})

	if len(res.Assignments) != 3 {
		t.Fatalf("got %d assignments, want 3", len(res.Assignments))
	}
	for i, a := range res.Assignments {
		if got := a.EndsAt.Sub(a.StartsAt); got != SlotDuration {
			t.Errorf("fragment %d duration = %v, want 30m", i, got)
		}
		if a.Meta == nil || !a.Meta.Split || a.Meta.SplitIndex != i || a.Meta.TotalGroups != 3 {
			t.Errorf("fragment %d meta = %+v, want split index %d of 3", i, a.Meta, i)
		}
	}
	checkAssignmentInvariants(t, res.Assignments, tasks)
}

func TestPack_NonSplittableNeedsContiguousRun(t *testing.T) {
	slots := map[int64][]TimeSlot{1: {
		slotAt(1, at(monday, 9, 0)),
		slotAt(1, at(monday, 11, 0)),
	}}
	tasks := []Task{{ID: 5, Title: "deep work", DurationMin: 60, Priority: 3}}
	res := newTestPacker().Pack(tasks, slots, Schedule{ID: 1})

	if len(res.Assignments) != 0 {
		t.Fatalf("got %d assignments, want 0", len(res.Assignments))
	}
	if len(res.Unassigned) != 1 || res.Unassigned[0].Reason != ReasonInsufficientTime {
		t.Fatalf("unassigned = %+v, want insufficient time", res.Unassigned)
	}
}

func TestPack_DeadlineOrderingAndFeasibility(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	slots := g.Generate([]WorkHourRule{mondayRule(1)}, nil, monday, monday.AddDate(0, 0, 6), []int64{1})

	due := at(monday, 10, 0)
	tasks := []Task{
		{ID: 1, Title: "no deadline", DurationMin: 30, Priority: 1},
		{ID: 2, Title: "due 10:00", DurationMin: 30, Priority: 5, DueAt: &due, Splittable: true},
	}
	res := newTestPacker().Pack(tasks, slots, Schedule{ID: 1})
	if len(res.Assignments) != 2 {
		t.Fatalf("got %d assignments, want 2", len(res.Assignments))
	}

	var dueFirst Assignment
	for _, a := range res.Assignments {
		if *a.TaskID == 2 {
			dueFirst = a
		}
	}
	if !dueFirst.StartsAt.Equal(at(monday, 9, 0)) {
		t.Errorf("deadline task starts %v, want 09:00", dueFirst.StartsAt)
	}
	checkAssignmentInvariants(t, res.Assignments, tasks)
}

func TestPack_NonSplittableEndsStrictlyBeforeDeadline(t *testing.T) {
	slots := map[int64][]TimeSlot{1: {
		slotAt(1, at(monday, 9, 0)),
		slotAt(1, at(monday, 9, 30)),
	}}
	due := at(monday, 10, 0)
	tasks := []Task{{ID: 1, Title: "tight", DurationMin: 60, Priority: 3, DueAt: &due}}
	res := newTestPacker().Pack(tasks, slots, Schedule{ID: 1})

	if len(res.Assignments) != 0 {
		t.Fatalf("run ending at the deadline must not be used, got %+v", res.Assignments)
	}
	if res.Unassigned[0].Reason != ReasonBeforeDeadline {
		t.Errorf("reason = %q, want %q", res.Unassigned[0].Reason, ReasonBeforeDeadline)
	}
}

func TestPack_UnassignedReasons(t *testing.T) {
	past := packNow.Add(-time.Hour)
	tests := []struct {
		name  string
		slots map[int64][]TimeSlot
		task  Task
		want  UnassignedReason
	}{
		{
			name:  "no slots for assignee",
			slots: map[int64][]TimeSlot{1: {slotAt(1, at(monday, 9, 0))}},
			task:  Task{ID: 1, AssigneeID: int64Ptr(9), DurationMin: 30},
			want:  ReasonNoSlots,
		},
		{
			name:  "no slots at all",
			slots: map[int64][]TimeSlot{},
			task:  Task{ID: 1, DurationMin: 30},
			want:  ReasonNoSlots,
		},
		{
			name:  "deadline passed",
			slots: map[int64][]TimeSlot{1: {slotAt(1, at(monday, 9, 0))}},
			task:  Task{ID: 1, DurationMin: 30, DueAt: &past},
			want:  ReasonDeadlinePassed,
		},
		{
			name:  "invalid duration",
			slots: map[int64][]TimeSlot{1: {slotAt(1, at(monday, 9, 0))}},
			task:  Task{ID: 1, DurationMin: 0},
			want:  ReasonInvalidDuration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestPacker().Pack([]Task{tt.task}, tt.slots, Schedule{ID: 1})
			if len(res.Unassigned) != 1 {
				t.Fatalf("got %d unassigned, want 1", len(res.Unassigned))
			}
			if res.Unassigned[0].Reason != tt.want {
				t.Errorf("reason = %q, want %q", res.Unassigned[0].Reason, tt.want)
			}
		})
	}
}

func TestPack_SkipsUnusableSlots(t *testing.T) {
	slots := map[int64][]TimeSlot{1: {
		slotAt(1, at(monday, 6, 0)),
		slotAt(1, at(monday, 14, 0)),
	}}
	tasks := []Task{{ID: 1, DurationMin: 30}}
	res := newTestPacker().Pack(tasks, slots, Schedule{ID: 1})
	if len(res.Assignments) != 1 || !res.Assignments[0].StartsAt.Equal(at(monday, 14, 0)) {
		t.Fatalf("assignments = %+v, want the 14:00 slot", res.Assignments)
	}
}

func TestPack_PrefersHighPreferenceWithinDay(t *testing.T) {
	slots := map[int64][]TimeSlot{1: {
		slotAt(1, at(monday, 12, 0)),
		slotAt(1, at(monday, 15, 0)),
	}}
	tasks := []Task{{ID: 1, DurationMin: 30}}
	res := newTestPacker().Pack(tasks, slots, Schedule{ID: 1})
	if len(res.Assignments) != 1 || !res.Assignments[0].StartsAt.Equal(at(monday, 15, 0)) {
		t.Fatalf("assignments = %+v, want the 15:00 slot over lunch", res.Assignments)
	}
}

func TestPack_UrgentDeadlineIgnoresPreference(t *testing.T) {
	now := at(monday, 0, 0)
	packer := NewPacker(zerolog.Nop(), WithClock(func() time.Time { return now }))
	slots := map[int64][]TimeSlot{1: {
		slotAt(1, at(monday, 15, 0)),
		slotAt(1, at(monday, 12, 0)),
	}}
	due := at(monday, 20, 0)
	tasks := []Task{{ID: 1, DurationMin: 30, DueAt: &due}}

	res := packer.Pack(tasks, slots, Schedule{ID: 1})
	if len(res.Assignments) != 1 || !res.Assignments[0].StartsAt.Equal(at(monday, 12, 0)) {
		t.Fatalf("assignments = %+v, want the earliest slot 12:00", res.Assignments)
	}
}

func TestPack_DistantDeadlineOrdersByDateThenPreference(t *testing.T) {
	now := at(monday, 0, 0)
	packer := NewPacker(zerolog.Nop(), WithClock(func() time.Time { return now }))
	tuesday := monday.AddDate(0, 0, 1)
	slots := map[int64][]TimeSlot{1: {
		slotAt(1, at(tuesday, 9, 0)),
		slotAt(1, at(monday, 16, 0)),
		slotAt(1, at(monday, 12, 0)),
		slotAt(1, at(monday, 15, 0)),
	}}
	due := at(monday.AddDate(0, 0, 2), 17, 0)
	tasks := []Task{{ID: 1, DurationMin: 30, DueAt: &due}}

	res := packer.Pack(tasks, slots, Schedule{ID: 1})
	if len(res.Assignments) != 1 || !res.Assignments[0].StartsAt.Equal(at(monday, 15, 0)) {
		t.Fatalf("assignments = %+v, want Monday 15:00", res.Assignments)
	}
}

func TestOrderTasks(t *testing.T) {
	early := at(monday, 12, 0)
	late := at(monday, 16, 0)
	tasks := []Task{
		{ID: 1, DurationMin: 30, Priority: 1},
		{ID: 2, DurationMin: 30, Priority: 1, DueAt: &late},
		{ID: 3, DurationMin: 90, Priority: 1, DueAt: &early},
		{ID: 4, DurationMin: 30, Priority: 2, DueAt: &early},
		{ID: 5, DurationMin: 30, Priority: 4, DueAt: &early},
		{ID: 6, DurationMin: 120, Priority: 1},
	}
	got := orderTasks(tasks)
	want := []int64{3, 5, 4, 2, 6, 1}
	for i, task := range got {
		if task.ID != want[i] {
			t.Fatalf("orderTasks() position %d = task %d, want %d (order %v)", i, task.ID, want[i], ids(got))
		}
	}
}

func ids(tasks []Task) []int64 {
	out := make([]int64, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
