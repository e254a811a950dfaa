/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planning

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Generator turns work-hour rules and calendar events into available slots.
type Generator struct {
	logger   zerolog.Logger
	location *time.Location
}

// GeneratorOption customizes a Generator.
type GeneratorOption func(*Generator)

// WithLocation sets the fixed offset used to lay out calendar days.
func WithLocation(loc *time.Location) GeneratorOption {
	return func(g *Generator) {
		if loc != nil {
			g.location = loc
		}
	}
}

// NewGenerator creates a slot generator. Days are laid out in UTC unless
// WithLocation says otherwise.
func NewGenerator(logger zerolog.Logger, opts ...GeneratorOption) *Generator {
	g := &Generator{
		logger:   logger.With().Str("component", "slot_generator").Logger(),
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Location returns the generator's calendar location.
func (g *Generator) Location() *time.Location {
	return g.location
}

// Generate returns the available slots per user for every day in
// [rangeStart, rangeEnd]. Both bounds are treated as dates.
func (g *Generator) Generate(rules []WorkHourRule, events []CalendarEvent, rangeStart, rangeEnd time.Time, memberIDs []int64) map[int64][]TimeSlot {
	first := dateOf(rangeStart.In(g.location))
	last := dateOf(rangeEnd.In(g.location))

	valid := make([]WorkHourRule, 0, len(rules))
	for _, r := range rules {
		if !r.Valid() {
			g.logger.Warn().
				Int("day_of_week", r.DayOfWeek).
				Int("start_min", r.StartMin).
				Int("end_min", r.EndMin).
				Msg("skipping invalid work hour rule")
			continue
		}
		valid = append(valid, r)
	}

	perUser := make(map[int64][]TimeSlot)
	seen := make(map[slotKey]struct{})

	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		dow := isoWeekday(day)
		for _, r := range valid {
			if r.DayOfWeek != dow {
				continue
			}
			for _, userID := range ruleUsers(r, memberIDs) {
				for idx := r.StartMin / 30; idx < r.EndMin/30 && idx < SlotsPerDay; idx++ {
					start := day.Add(time.Duration(idx) * SlotDuration)
					slot := TimeSlot{
						Date:       day,
						Index:      idx,
						Start:      start,
						End:        start.Add(SlotDuration),
						Available:  true,
						UserID:     userID,
						Preference: slotPreference(start),
					}
					k := keyOf(slot)
					if _, dup := seen[k]; dup {
						continue
					}
					seen[k] = struct{}{}
					perUser[userID] = append(perUser[userID], slot)
				}
			}
		}
	}

	windowEnd := last.AddDate(0, 0, 1)
	for _, ev := range events {
		g.block(perUser, ev, first, windowEnd)
	}

	out := make(map[int64][]TimeSlot, len(perUser))
	for userID, slots := range perUser {
		available := make([]TimeSlot, 0, len(slots))
		for _, s := range slots {
			if s.Available {
				available = append(available, s)
			}
		}
		sortChronological(available)
		if len(available) > 0 {
			out[userID] = available
		}
	}
	return out
}

func (g *Generator) block(perUser map[int64][]TimeSlot, ev CalendarEvent, windowStart, windowEnd time.Time) {
	if !ev.StartsAt.Before(ev.EndsAt) {
		g.logger.Warn().Int64("event_id", ev.ID).Msg("skipping calendar event with empty time range")
		return
	}

	users := g.eventUsers(ev)
	if len(users) == 0 {
		return
	}

	starts, err := ev.occurrences(windowStart, windowEnd)
	if err != nil {
		g.logger.Warn().Err(err).Int64("event_id", ev.ID).Msg("skipping calendar event")
		return
	}

	length := ev.EndsAt.Sub(ev.StartsAt)
	for _, start := range starts {
		end := start.Add(length)
		for _, userID := range users {
			slots := perUser[userID]
			for i := range slots {
				if slots[i].Overlaps(start, end) {
					slots[i].Available = false
				}
			}
		}
	}
}

// eventUsers lists whose calendars an event blocks: the attendees when any
// are listed, otherwise the owner.
func (g *Generator) eventUsers(ev CalendarEvent) []int64 {
	var users []int64
	for _, part := range strings.Split(ev.Attendees, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			g.logger.Warn().Int64("event_id", ev.ID).Str("attendee", part).Msg("ignoring malformed attendee id")
			continue
		}
		users = append(users, id)
	}
	if len(users) == 0 && ev.OwnerID != nil {
		users = append(users, *ev.OwnerID)
	}
	return users
}

func ruleUsers(r WorkHourRule, memberIDs []int64) []int64 {
	if r.UserID != nil {
		return []int64{*r.UserID}
	}
	return memberIDs
}

// SortedUserIDs returns the keys of a slot map in ascending order.
func SortedUserIDs(slots map[int64][]TimeSlot) []int64 {
	ids := make([]int64, 0, len(slots))
	for id := range slots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
