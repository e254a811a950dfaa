/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package planning places team tasks into available working time.
//
// The package is pure: callers hand in plain records (tasks, work-hour
// rules, calendar events) and receive assignments back. It performs no I/O
// and keeps no state between calls.
package planning

import (
	"encoding/json"
	"fmt"
	"time"
)

// SlotDuration is the placement granularity.
const SlotDuration = 30 * time.Minute

// SlotsPerDay is the number of slots in one calendar day.
const SlotsPerDay = 48

// Task is a unit of work to place. Priority 1 is the most important.
type Task struct {
	ID          int64
	TeamID      int64
	AssigneeID  *int64
	Title       string
	DurationMin int
	DueAt       *time.Time
	Priority    int
	Splittable  bool
	Tags        string
}

// SlotsNeeded returns how many 30-minute slots the task occupies.
func (t Task) SlotsNeeded() int {
	if t.DurationMin <= 0 {
		return 0
	}
	return (t.DurationMin + 29) / 30
}

// WorkHourRule declares recurring availability. A nil UserID applies the
// rule to every team member.
type WorkHourRule struct {
	TeamID    int64
	UserID    *int64
	DayOfWeek int // 1 = Monday ... 7 = Sunday
	StartMin  int
	EndMin    int
}

// Valid reports whether the rule bounds make sense.
func (r WorkHourRule) Valid() bool {
	if r.DayOfWeek < 1 || r.DayOfWeek > 7 {
		return false
	}
	if r.StartMin < 0 || r.EndMin > 24*60 {
		return false
	}
	return r.StartMin < r.EndMin
}

// CalendarEvent blocks time on its owner's or attendees' calendars.
type CalendarEvent struct {
	ID            int64
	TeamID        int64
	OwnerID       *int64
	Attendees     string
	Title         string
	StartsAt      time.Time
	EndsAt        time.Time
	Fixed         bool
	Recurrence    RecurrenceKind
	RecurrenceEnd *time.Time
}

// Source identifies what produced an assignment.
type Source string

const (
	SourceTask   Source = "TASK"
	SourceEvent  Source = "EVENT"
	SourceManual Source = "MANUAL"
)

// Assignment places a task (or part of one) on a user's calendar.
type Assignment struct {
	ScheduleID int64
	TaskID     *int64
	Title      string
	StartsAt   time.Time
	EndsAt     time.Time
	Source     Source
	SlotIndex  *int
	Meta       *AssignmentMeta
}

// TaskBacked reports whether the assignment belongs to a task.
func (a Assignment) TaskBacked() bool {
	return a.TaskID != nil && a.Source == SourceTask
}

// Owner returns the user the assignment was placed for.
func (a Assignment) Owner() (int64, bool) {
	if a.Meta == nil {
		return 0, false
	}
	return a.Meta.UserID, true
}

// Overlaps reports whether two assignments share any time.
func (a Assignment) Overlaps(b Assignment) bool {
	return a.StartsAt.Before(b.EndsAt) && b.StartsAt.Before(a.EndsAt)
}

func (a Assignment) clone() Assignment {
	out := a
	if a.TaskID != nil {
		id := *a.TaskID
		out.TaskID = &id
	}
	if a.SlotIndex != nil {
		idx := *a.SlotIndex
		out.SlotIndex = &idx
	}
	if a.Meta != nil {
		m := *a.Meta
		out.Meta = &m
	}
	return out
}

func cloneAssignments(in []Assignment) []Assignment {
	out := make([]Assignment, len(in))
	for i := range in {
		out[i] = in[i].clone()
	}
	return out
}

// AssignmentMeta records ownership and split bookkeeping.
type AssignmentMeta struct {
	Slots       int   `json:"slots"`
	Split       bool  `json:"split"`
	UserID      int64 `json:"userId"`
	SplitIndex  int   `json:"splitIndex"`
	TotalGroups int   `json:"totalGroups,omitempty"`
}

// Encode serializes the metadata for storage.
func (m AssignmentMeta) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode assignment meta: %w", err)
	}
	return string(data), nil
}

// DecodeAssignmentMeta parses stored metadata. Empty input yields nil.
func DecodeAssignmentMeta(raw string) (*AssignmentMeta, error) {
	if raw == "" {
		return nil, nil
	}
	var m AssignmentMeta
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode assignment meta: %w", err)
	}
	return &m, nil
}

// Schedule is the container a planning run writes into.
type Schedule struct {
	ID         int64
	TeamID     int64
	RangeStart time.Time
	RangeEnd   time.Time
	Score      int
	CreatedBy  *int64
	CreatedAt  time.Time
}

// UnassignedReason explains why a task could not be placed.
type UnassignedReason string

const (
	ReasonNoSlots          UnassignedReason = "no available time slots"
	ReasonDeadlinePassed   UnassignedReason = "deadline already passed"
	ReasonBeforeDeadline   UnassignedReason = "insufficient time before deadline"
	ReasonInsufficientTime UnassignedReason = "insufficient time"
	ReasonInvalidDuration  UnassignedReason = "invalid duration"
)

// Unassigned is a task the packer could not place.
type Unassigned struct {
	TaskID int64
	Title  string
	Reason UnassignedReason
}
