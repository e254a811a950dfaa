/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"testing"
	"time"

	"github.com/friendsincode/teamslot/internal/planning"
)

func TestTaskToPlanningDefaultsPriority(t *testing.T) {
	task := Task{ID: 4, TeamID: 1, Title: "x", DurationMin: 45}
	got := task.ToPlanning()
	if got.Priority != DefaultTaskPriority {
		t.Errorf("Priority = %d, want %d", got.Priority, DefaultTaskPriority)
	}
	if got.SlotsNeeded() != 2 {
		t.Errorf("SlotsNeeded() = %d, want 2", got.SlotsNeeded())
	}
}

func TestCalendarEventToPlanning(t *testing.T) {
	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		recurrence string
		want       planning.RecurrenceKind
		wantErr    bool
	}{
		{"", planning.RecurrenceNone, false},
		{"WEEKLY", planning.RecurrenceWeekly, false},
		{"monthly", planning.RecurrenceMonthly, false},
		{"hourly", planning.RecurrenceNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.recurrence, func(t *testing.T) {
			ev := CalendarEvent{ID: 1, Title: "sync", StartsAt: start, EndsAt: start.Add(time.Hour), Recurrence: tt.recurrence}
			got, err := ev.ToPlanning()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToPlanning() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got.Recurrence != tt.want {
				t.Errorf("Recurrence = %v, want %v", got.Recurrence, tt.want)
			}
		})
	}
}

func TestAssignmentConversionKeepsMeta(t *testing.T) {
	taskID := int64(9)
	idx := 18
	in := planning.Assignment{
		ScheduleID: 3,
		TaskID:     &taskID,
		Title:      "plan",
		StartsAt:   time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		EndsAt:     time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
		Source:     planning.SourceTask,
		SlotIndex:  &idx,
		Meta:       &planning.AssignmentMeta{Slots: 2, UserID: 5},
	}
	row := AssignmentFromPlanning(in)
	if row.Source != "TASK" || row.Meta.UserID != 5 {
		t.Fatalf("row = %+v", row)
	}
	back := row.ToPlanning()
	if !back.TaskBacked() {
		t.Fatalf("converted assignment should stay task-backed")
	}
	if owner, ok := back.Owner(); !ok || owner != 5 {
		t.Errorf("Owner() = %d, %v; want 5, true", owner, ok)
	}
}
