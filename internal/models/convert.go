/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"github.com/friendsincode/teamslot/internal/planning"
)

// ToPlanning converts a stored task for the planner.
func (t Task) ToPlanning() planning.Task {
	priority := t.Priority
	if priority == 0 {
		priority = DefaultTaskPriority
	}
	return planning.Task{
		ID:          t.ID,
		TeamID:      t.TeamID,
		AssigneeID:  t.AssigneeID,
		Title:       t.Title,
		DurationMin: t.DurationMin,
		DueAt:       t.DueAt,
		Priority:    priority,
		Splittable:  t.Splittable,
		Tags:        t.Tags,
	}
}

// ToPlanning converts a stored work-hour window for the planner.
func (w WorkHour) ToPlanning() planning.WorkHourRule {
	return planning.WorkHourRule{
		TeamID:    w.TeamID,
		UserID:    w.UserID,
		DayOfWeek: w.DayOfWeek,
		StartMin:  w.StartMin,
		EndMin:    w.EndMin,
	}
}

// ToPlanning converts a stored event for the planner. It fails when the
// recurrence kind is not recognised.
func (e CalendarEvent) ToPlanning() (planning.CalendarEvent, error) {
	kind, err := planning.ParseRecurrenceKind(e.Recurrence)
	if err != nil {
		return planning.CalendarEvent{}, err
	}
	return planning.CalendarEvent{
		ID:            e.ID,
		TeamID:        e.TeamID,
		OwnerID:       e.OwnerID,
		Attendees:     e.Attendees,
		Title:         e.Title,
		StartsAt:      e.StartsAt,
		EndsAt:        e.EndsAt,
		Fixed:         e.Fixed,
		Recurrence:    kind,
		RecurrenceEnd: e.RecurrenceEnd,
	}, nil
}

// AssignmentFromPlanning builds a row for a planned assignment.
func AssignmentFromPlanning(a planning.Assignment) Assignment {
	return Assignment{
		ScheduleID: a.ScheduleID,
		TaskID:     a.TaskID,
		Title:      a.Title,
		StartsAt:   a.StartsAt,
		EndsAt:     a.EndsAt,
		Source:     string(a.Source),
		SlotIndex:  a.SlotIndex,
		Meta:       a.Meta,
	}
}

// ToPlanning converts a stored assignment back for scoring.
func (a Assignment) ToPlanning() planning.Assignment {
	return planning.Assignment{
		ScheduleID: a.ScheduleID,
		TaskID:     a.TaskID,
		Title:      a.Title,
		StartsAt:   a.StartsAt,
		EndsAt:     a.EndsAt,
		Source:     planning.Source(a.Source),
		SlotIndex:  a.SlotIndex,
		Meta:       a.Meta,
	}
}
