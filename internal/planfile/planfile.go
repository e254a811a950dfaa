/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package planfile reads offline planning input from YAML and runs the
// planning pipeline over it without a database.
package planfile

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/teamslot/internal/planning"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"
)

// File is the YAML document.
type File struct {
	TeamID           int64       `yaml:"team_id"`
	RangeStart       string      `yaml:"range_start"`
	RangeEnd         string      `yaml:"range_end"`
	UTCOffsetMinutes int         `yaml:"utc_offset_minutes"`
	Seed             int64       `yaml:"seed"`
	Members          []int64     `yaml:"members"`
	WorkHours        []WorkHours `yaml:"work_hours"`
	Events           []Event     `yaml:"events"`
	Tasks            []Task      `yaml:"tasks"`
}

// WorkHours is a weekly availability window; days are 1 (Monday) to 7.
type WorkHours struct {
	UserID *int64 `yaml:"user_id"`
	Days   []int  `yaml:"days"`
	Start  string `yaml:"start"`
	End    string `yaml:"end"`
}

// Event blocks time for its owner or attendees.
type Event struct {
	ID            int64   `yaml:"id"`
	OwnerID       *int64  `yaml:"owner_id"`
	Attendees     []int64 `yaml:"attendees"`
	Title         string  `yaml:"title"`
	StartsAt      string  `yaml:"starts_at"`
	EndsAt        string  `yaml:"ends_at"`
	Recurrence    string  `yaml:"recurrence"`
	RecurrenceEnd string  `yaml:"recurrence_end"`
}

// Task is work to place.
type Task struct {
	ID          int64    `yaml:"id"`
	Title       string   `yaml:"title"`
	DurationMin int      `yaml:"duration_min"`
	DueAt       string   `yaml:"due_at"`
	Priority    int      `yaml:"priority"`
	Splittable  *bool    `yaml:"splittable"`
	AssigneeID  *int64   `yaml:"assignee_id"`
	Tags        []string `yaml:"tags"`
}

// Load decodes and validates a plan file.
func Load(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode plan file: %w", err)
	}
	if f.UTCOffsetMinutes < -14*60 || f.UTCOffsetMinutes > 14*60 {
		return nil, fmt.Errorf("utc_offset_minutes %d out of range", f.UTCOffsetMinutes)
	}
	if len(f.Members) == 0 {
		return nil, errors.New("plan file lists no members")
	}
	return &f, nil
}

// Location is the fixed zone the file's local times are read in.
func (f *File) Location() *time.Location {
	if f.UTCOffsetMinutes == 0 {
		return time.UTC
	}
	return time.FixedZone("plan", f.UTCOffsetMinutes*60)
}

// Input is a plan file converted to planning records.
type Input struct {
	Schedule planning.Schedule
	Rules    []planning.WorkHourRule
	Events   []planning.CalendarEvent
	Tasks    []planning.Task
	Members  []int64
	Seed     int64
}

// Input converts the file. An empty work_hours list means Monday to Sunday
// 09:00-18:00 for everyone.
func (f *File) Input() (*Input, error) {
	loc := f.Location()
	start, err := time.ParseInLocation(dateLayout, f.RangeStart, loc)
	if err != nil {
		return nil, fmt.Errorf("range_start: %w", err)
	}
	end, err := time.ParseInLocation(dateLayout, f.RangeEnd, loc)
	if err != nil {
		return nil, fmt.Errorf("range_end: %w", err)
	}
	if end.Before(start) {
		return nil, errors.New("range_end is before range_start")
	}

	in := &Input{
		Schedule: planning.Schedule{TeamID: f.TeamID, RangeStart: start, RangeEnd: end},
		Members:  f.Members,
		Seed:     f.Seed,
	}

	hours := f.WorkHours
	if len(hours) == 0 {
		hours = []WorkHours{{Days: []int{1, 2, 3, 4, 5, 6, 7}, Start: "09:00", End: "18:00"}}
	}
	for i, wh := range hours {
		startMin, err := clockMinutes(wh.Start)
		if err != nil {
			return nil, fmt.Errorf("work_hours[%d].start: %w", i, err)
		}
		endMin, err := clockMinutes(wh.End)
		if err != nil {
			return nil, fmt.Errorf("work_hours[%d].end: %w", i, err)
		}
		for _, day := range wh.Days {
			rule := planning.WorkHourRule{TeamID: f.TeamID, UserID: wh.UserID, DayOfWeek: day, StartMin: startMin, EndMin: endMin}
			if !rule.Valid() {
				return nil, fmt.Errorf("work_hours[%d]: invalid window day %d %s-%s", i, day, wh.Start, wh.End)
			}
			in.Rules = append(in.Rules, rule)
		}
	}

	for i, ev := range f.Events {
		converted, err := ev.toPlanning(f.TeamID, loc)
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		in.Events = append(in.Events, converted)
	}

	for i, t := range f.Tasks {
		converted, err := t.toPlanning(f.TeamID, loc)
		if err != nil {
			return nil, fmt.Errorf("tasks[%d]: %w", i, err)
		}
		if converted.ID == 0 {
			converted.ID = int64(i + 1)
		}
		in.Tasks = append(in.Tasks, converted)
	}
	return in, nil
}

func (ev Event) toPlanning(teamID int64, loc *time.Location) (planning.CalendarEvent, error) {
	start, err := parseDateTime(ev.StartsAt, loc)
	if err != nil {
		return planning.CalendarEvent{}, fmt.Errorf("starts_at: %w", err)
	}
	end, err := parseDateTime(ev.EndsAt, loc)
	if err != nil {
		return planning.CalendarEvent{}, fmt.Errorf("ends_at: %w", err)
	}
	kind, err := planning.ParseRecurrenceKind(ev.Recurrence)
	if err != nil {
		return planning.CalendarEvent{}, err
	}
	out := planning.CalendarEvent{
		ID:         ev.ID,
		TeamID:     teamID,
		OwnerID:    ev.OwnerID,
		Title:      ev.Title,
		StartsAt:   start,
		EndsAt:     end,
		Fixed:      true,
		Recurrence: kind,
	}
	if len(ev.Attendees) > 0 {
		ids := make([]string, 0, len(ev.Attendees))
		for _, id := range ev.Attendees {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		out.Attendees = strings.Join(ids, ",")
	}
	if ev.RecurrenceEnd != "" {
		until, err := parseDateTime(ev.RecurrenceEnd, loc)
		if err != nil {
			return planning.CalendarEvent{}, fmt.Errorf("recurrence_end: %w", err)
		}
		out.RecurrenceEnd = &until
	}
	return out, nil
}

func (t Task) toPlanning(teamID int64, loc *time.Location) (planning.Task, error) {
	out := planning.Task{
		ID:          t.ID,
		TeamID:      teamID,
		AssigneeID:  t.AssigneeID,
		Title:       t.Title,
		DurationMin: t.DurationMin,
		Priority:    t.Priority,
		Splittable:  true,
		Tags:        strings.Join(t.Tags, ","),
	}
	if out.Priority == 0 {
		out.Priority = 3
	}
	if t.Splittable != nil {
		out.Splittable = *t.Splittable
	}
	if t.DueAt != "" {
		due, err := parseDateTime(t.DueAt, loc)
		if err != nil {
			return planning.Task{}, fmt.Errorf("due_at: %w", err)
		}
		out.DueAt = &due
	}
	return out, nil
}

// parseDateTime accepts RFC 3339, "YYYY-MM-DD HH:MM" or a bare date, the
// last two in loc.
func parseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(dateTimeLayout, s, loc); err == nil {
		return t, nil
	}
	return time.ParseInLocation(dateLayout, s, loc)
}

// clockMinutes parses "HH:MM" into minutes after midnight; "24:00" is
// allowed as an end.
func clockMinutes(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	hours, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	total := hours*60 + minutes
	if hours < 0 || total > 24*60 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return total, nil
}
