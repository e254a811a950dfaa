/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planning

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// RecurrenceKind is how a calendar event repeats.
type RecurrenceKind int

const (
	RecurrenceNone RecurrenceKind = iota
	RecurrenceDaily
	RecurrenceWeekly
	RecurrenceMonthly
	RecurrenceYearly
)

var recurrenceNames = map[RecurrenceKind]string{
	RecurrenceNone:    "NONE",
	RecurrenceDaily:   "DAILY",
	RecurrenceWeekly:  "WEEKLY",
	RecurrenceMonthly: "MONTHLY",
	RecurrenceYearly:  "YEARLY",
}

// recurrenceFrequencies holds the rrule expansion for fixed-length periods.
// Monthly and yearly repeats are stepped by calendarStep instead.
var recurrenceFrequencies = map[RecurrenceKind]rrule.Frequency{
	RecurrenceDaily:  rrule.DAILY,
	RecurrenceWeekly: rrule.WEEKLY,
}

// calendarSteps is the month count of one period for calendar-based kinds.
var calendarSteps = map[RecurrenceKind]int{
	RecurrenceMonthly: 1,
	RecurrenceYearly:  12,
}

// ParseRecurrenceKind accepts the stored names case-insensitively. Empty
// means no recurrence.
func ParseRecurrenceKind(s string) (RecurrenceKind, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return RecurrenceNone, nil
	}
	for kind, name := range recurrenceNames {
		if name == s {
			return kind, nil
		}
	}
	return RecurrenceNone, fmt.Errorf("unknown recurrence kind %q", s)
}

func (k RecurrenceKind) String() string {
	if name, ok := recurrenceNames[k]; ok {
		return name
	}
	return fmt.Sprintf("RecurrenceKind(%d)", int(k))
}

// occurrences returns the start of every instance of the event that can
// touch [windowStart, windowEnd).
func (e CalendarEvent) occurrences(windowStart, windowEnd time.Time) ([]time.Time, error) {
	if e.Recurrence == RecurrenceNone {
		return []time.Time{e.StartsAt}, nil
	}

	freq, isRRule := recurrenceFrequencies[e.Recurrence]
	months, isCalendar := calendarSteps[e.Recurrence]
	if !isRRule && !isCalendar {
		return nil, fmt.Errorf("event %d: unsupported recurrence %s", e.ID, e.Recurrence)
	}

	until := windowEnd
	if e.RecurrenceEnd != nil {
		endOfDay := dateOf(e.RecurrenceEnd.In(e.StartsAt.Location())).AddDate(0, 0, 1)
		if endOfDay.Before(until) {
			until = endOfDay
		}
	}
	if !e.StartsAt.Before(until) {
		return nil, nil
	}

	// An instance that starts before the window may still run into it.
	from := windowStart.Add(-e.EndsAt.Sub(e.StartsAt))
	if from.Before(e.StartsAt) {
		from = e.StartsAt
	}

	if isCalendar {
		return calendarOccurrences(e.StartsAt, months, from, until), nil
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    freq,
		Dtstart: e.StartsAt,
		Until:   until.Add(-time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("event %d: build recurrence: %w", e.ID, err)
	}
	return rule.Between(from, until, true), nil
}

// calendarOccurrences steps from start by whole months, each step from the
// previous instance. A day missing from the target month clamps to its last
// day and the clamped day carries forward: Jan 31, Feb 28, Mar 28.
func calendarOccurrences(start time.Time, months int, from, until time.Time) []time.Time {
	var out []time.Time
	for t := start; t.Before(until); t = addMonthsClamped(t, months) {
		if !t.Before(from) {
			out = append(out, t)
		}
	}
	return out
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return firstOfTarget.AddDate(0, 0, d-1)
}
