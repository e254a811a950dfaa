/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planning

import (
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func int64Ptr(v int64) *int64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

// monday is 2026-01-05, a Monday.
var monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func at(day time.Time, hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func mondayRule(user int64) WorkHourRule {
	return WorkHourRule{TeamID: 1, UserID: int64Ptr(user), DayOfWeek: 1, StartMin: 540, EndMin: 1080}
}

func TestGenerate_WorkHoursProduceSlots(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	slots := g.Generate([]WorkHourRule{mondayRule(1)}, nil, monday, monday.AddDate(0, 0, 6), []int64{1})

	got := slots[1]
	if len(got) != 18 {
		t.Fatalf("Generate() produced %d slots, want 18", len(got))
	}

	seen := make(map[int]bool)
	for i, s := range got {
		if !s.End.Equal(s.Start.Add(SlotDuration)) {
			t.Errorf("slot %d: end %v is not start+30m (%v)", i, s.End, s.Start)
		}
		if s.Index < 0 || s.Index >= SlotsPerDay {
			t.Errorf("slot %d: index %d out of range", i, s.Index)
		}
		if seen[s.Index] {
			t.Errorf("slot %d: duplicate index %d", i, s.Index)
		}
		seen[s.Index] = true
		if !s.Available {
			t.Errorf("slot %d: expected available", i)
		}
		if s.UserID != 1 {
			t.Errorf("slot %d: user = %d, want 1", i, s.UserID)
		}
	}
	if got[0].Index != 18 || got[len(got)-1].Index != 35 {
		t.Errorf("index range = %d..%d, want 18..35", got[0].Index, got[len(got)-1].Index)
	}
}

func TestGenerate_PartialSlotAtRuleEndIsDropped(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	rule := WorkHourRule{TeamID: 1, UserID: int64Ptr(1), DayOfWeek: 1, StartMin: 540, EndMin: 575}
	slots := g.Generate([]WorkHourRule{rule}, nil, monday, monday, []int64{1})

	got := slots[1]
	if len(got) != 1 {
		t.Fatalf("Generate() produced %d slots, want 1", len(got))
	}
	if !got[0].Start.Equal(at(monday, 9, 0)) || !got[0].End.Equal(at(monday, 9, 30)) {
		t.Fatalf("slot = %v-%v, want 09:00-09:30", got[0].Start, got[0].End)
	}
}

func TestGenerate_TeamWideRuleExpandsPerMember(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	rule := WorkHourRule{TeamID: 1, DayOfWeek: 1, StartMin: 540, EndMin: 600}
	slots := g.Generate([]WorkHourRule{rule}, nil, monday, monday, []int64{1, 2})

	for _, user := range []int64{1, 2} {
		if len(slots[user]) != 2 {
			t.Errorf("user %d: got %d slots, want 2", user, len(slots[user]))
		}
	}
}

func TestGenerate_OverlappingRulesDoNotDuplicate(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	rules := []WorkHourRule{
		{TeamID: 1, DayOfWeek: 1, StartMin: 540, EndMin: 660},
		{TeamID: 1, UserID: int64Ptr(1), DayOfWeek: 1, StartMin: 600, EndMin: 720},
	}
	slots := g.Generate(rules, nil, monday, monday, []int64{1})
	if len(slots[1]) != 6 {
		t.Fatalf("got %d slots, want 6 (09:00-12:00)", len(slots[1]))
	}
}

func TestGenerate_SkipsInvalidRules(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	rules := []WorkHourRule{
		{TeamID: 1, UserID: int64Ptr(1), DayOfWeek: 1, StartMin: 600, EndMin: 600},
		{TeamID: 1, UserID: int64Ptr(1), DayOfWeek: 8, StartMin: 540, EndMin: 600},
		{TeamID: 1, UserID: int64Ptr(1), DayOfWeek: 1, StartMin: -30, EndMin: 600},
		{TeamID: 1, UserID: int64Ptr(1), DayOfWeek: 1, StartMin: 1380, EndMin: 1500},
	}
	slots := g.Generate(rules, nil, monday, monday, []int64{1})
	if len(slots) != 0 {
		t.Fatalf("expected no slots from invalid rules, got %v", slots)
	}
}

func TestGenerate_WeeklyEventBlocksEachMonday(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	event := CalendarEvent{
		ID:         7,
		TeamID:     1,
		OwnerID:    int64Ptr(1),
		Title:      "standup",
		StartsAt:   at(monday, 10, 0),
		EndsAt:     at(monday, 11, 0),
		Fixed:      true,
		Recurrence: RecurrenceWeekly,
	}
	rangeEnd := monday.AddDate(0, 0, 27) // Sunday 2026-02-01
	slots := g.Generate([]WorkHourRule{mondayRule(1)}, []CalendarEvent{event}, monday, rangeEnd, []int64{1})

	got := slots[1]
	if len(got) != 4*16 {
		t.Fatalf("got %d slots, want %d", len(got), 4*16)
	}

	perDay := make(map[time.Time]map[int]bool)
	for _, s := range got {
		if perDay[s.Date] == nil {
			perDay[s.Date] = make(map[int]bool)
		}
		perDay[s.Date][s.Index] = true
	}
	for week := 0; week < 4; week++ {
		day := monday.AddDate(0, 0, 7*week)
		indexes := perDay[day]
		if len(indexes) != 16 {
			t.Errorf("%s: got %d slots, want 16", day.Format("2006-01-02"), len(indexes))
		}
		if indexes[20] || indexes[21] {
			t.Errorf("%s: 10:00/10:30 should be blocked", day.Format("2006-01-02"))
		}
		if !indexes[19] || !indexes[22] {
			t.Errorf("%s: neighbours of the event should stay free", day.Format("2006-01-02"))
		}
	}
}

func TestGenerate_RecurrenceEndBoundsExpansion(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	event := CalendarEvent{
		ID:            8,
		OwnerID:       int64Ptr(1),
		StartsAt:      at(monday, 9, 0),
		EndsAt:        at(monday, 9, 30),
		Recurrence:    RecurrenceWeekly,
		RecurrenceEnd: timePtr(monday.AddDate(0, 0, 8)),
	}
	slots := g.Generate([]WorkHourRule{mondayRule(1)}, []CalendarEvent{event}, monday, monday.AddDate(0, 0, 20), []int64{1})

	blocked := 0
	for week := 0; week < 3; week++ {
		day := monday.AddDate(0, 0, 7*week)
		found := false
		for _, s := range slots[1] {
			if s.Date.Equal(day) && s.Index == 18 {
				found = true
			}
		}
		if !found {
			blocked++
			if week == 2 {
				t.Errorf("week %d should not be blocked after the recurrence end", week)
			}
		}
	}
	if blocked != 2 {
		t.Errorf("blocked %d Mondays, want 2", blocked)
	}
}

func TestGenerate_DailyEventStartingBeforeRange(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	event := CalendarEvent{
		ID:         9,
		OwnerID:    int64Ptr(1),
		StartsAt:   at(monday.AddDate(0, 0, -10), 12, 0),
		EndsAt:     at(monday.AddDate(0, 0, -10), 13, 0),
		Recurrence: RecurrenceDaily,
	}
	slots := g.Generate([]WorkHourRule{mondayRule(1)}, []CalendarEvent{event}, monday, monday, []int64{1})
	if len(slots[1]) != 16 {
		t.Fatalf("got %d slots, want 16 with lunch blocked", len(slots[1]))
	}
	for _, s := range slots[1] {
		if s.Start.Hour() == 12 {
			t.Errorf("slot at %v should be blocked", s.Start)
		}
	}
}

func TestGenerate_AttendeesAreBlockedInsteadOfOwner(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	event := CalendarEvent{
		ID:        10,
		OwnerID:   int64Ptr(1),
		Attendees: "2, 3,bogus",
		StartsAt:  at(monday, 9, 0),
		EndsAt:    at(monday, 10, 0),
	}
	rule := WorkHourRule{TeamID: 1, DayOfWeek: 1, StartMin: 540, EndMin: 600}
	slots := g.Generate([]WorkHourRule{rule}, []CalendarEvent{event}, monday, monday, []int64{1, 2, 3})

	if len(slots[1]) != 2 {
		t.Errorf("owner slots = %d, want 2", len(slots[1]))
	}
	if _, ok := slots[2]; ok {
		t.Errorf("attendee 2 should have no free slots")
	}
	if _, ok := slots[3]; ok {
		t.Errorf("attendee 3 should have no free slots")
	}
}

func TestGenerate_SkipsEmptyEvents(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	event := CalendarEvent{ID: 11, OwnerID: int64Ptr(1), StartsAt: at(monday, 10, 0), EndsAt: at(monday, 10, 0)}
	slots := g.Generate([]WorkHourRule{mondayRule(1)}, []CalendarEvent{event}, monday, monday, []int64{1})
	if len(slots[1]) != 18 {
		t.Errorf("got %d slots, want 18", len(slots[1]))
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	rules := []WorkHourRule{
		{TeamID: 1, DayOfWeek: 1, StartMin: 480, EndMin: 1200},
		{TeamID: 1, DayOfWeek: 3, StartMin: 480, EndMin: 1200},
		{TeamID: 1, UserID: int64Ptr(2), DayOfWeek: 6, StartMin: 600, EndMin: 720},
	}
	events := []CalendarEvent{
		{ID: 1, OwnerID: int64Ptr(1), StartsAt: at(monday, 13, 0), EndsAt: at(monday, 14, 30), Recurrence: RecurrenceDaily},
		{ID: 2, Attendees: "1,2", StartsAt: at(monday, 9, 0), EndsAt: at(monday, 9, 30), Recurrence: RecurrenceWeekly},
	}
	end := monday.AddDate(0, 0, 13)

	first := g.Generate(rules, events, monday, end, []int64{1, 2})
	second := g.Generate(rules, events, monday, end, []int64{1, 2})
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Generate() is not deterministic")
	}
}

func TestSlotPreference(t *testing.T) {
	saturday := monday.AddDate(0, 0, 5)
	tests := []struct {
		name  string
		start time.Time
		want  float64
	}{
		{"early morning", at(monday, 6, 30), 0.05},
		{"late evening", at(monday, 22, 0), 0.05},
		{"morning", at(monday, 9, 0), 1.0},
		{"lunch", at(monday, 12, 30), 0.8},
		{"evening", at(monday, 18, 0), 0.9},
		{"afternoon", at(monday, 15, 0), 1.0},
		{"weekend", at(saturday, 10, 0), 0.3},
		{"weekend night", at(saturday, 23, 0), 0.05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := slotPreference(tt.start); got != tt.want {
				t.Errorf("slotPreference(%v) = %v, want %v", tt.start, got, tt.want)
			}
		})
	}
}

func TestParseRecurrenceKind(t *testing.T) {
	tests := []struct {
		in      string
		want    RecurrenceKind
		wantErr bool
	}{
		{"", RecurrenceNone, false},
		{"none", RecurrenceNone, false},
		{"DAILY", RecurrenceDaily, false},
		{"Weekly", RecurrenceWeekly, false},
		{" monthly ", RecurrenceMonthly, false},
		{"YEARLY", RecurrenceYearly, false},
		{"FORTNIGHTLY", RecurrenceNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRecurrenceKind(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRecurrenceKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRecurrenceKind(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestConsecutiveAcrossMidnight(t *testing.T) {
	late := TimeSlot{UserID: 1, Index: 47, Start: at(monday, 23, 30), End: monday.AddDate(0, 0, 1)}
	early := TimeSlot{UserID: 1, Index: 0, Start: monday.AddDate(0, 0, 1), End: at(monday.AddDate(0, 0, 1), 0, 30)}
	if !Consecutive(late, early) || !Consecutive(early, late) {
		t.Fatalf("slots across midnight should be consecutive")
	}
	other := early
	other.UserID = 2
	if Consecutive(late, other) {
		t.Fatalf("slots of different users are never consecutive")
	}
}

func TestGenerate_MonthlyEventClampsToMonthEnd(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	jan31 := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	event := CalendarEvent{
		ID:         11,
		OwnerID:    int64Ptr(1),
		StartsAt:   at(jan31, 10, 0),
		EndsAt:     at(jan31, 11, 0),
		Recurrence: RecurrenceMonthly,
	}
	var rules []WorkHourRule
	for day := 1; day <= 7; day++ {
		rules = append(rules, WorkHourRule{TeamID: 1, DayOfWeek: day, StartMin: 540, EndMin: 1080})
	}
	slots := g.Generate(rules, []CalendarEvent{event}, jan31, time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC), []int64{1})

	free := make(map[time.Time]bool)
	for _, s := range slots[1] {
		free[s.Start] = true
	}
	tests := []struct {
		day  time.Time
		free bool
	}{
		{jan31, false},
		{time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), false},
		{time.Date(2026, 3, 28, 0, 0, 0, 0, time.UTC), false},
		{time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2026, 4, 28, 0, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		if got := free[at(tt.day, 10, 0)]; got != tt.free {
			t.Errorf("%s 10:00 free = %v, want %v", tt.day.Format("2006-01-02"), got, tt.free)
		}
	}
}

func TestAddMonthsClamped(t *testing.T) {
	start := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	want := []string{"2024-02-29", "2024-03-29", "2024-04-29"}
	cur := start
	for i, w := range want {
		cur = addMonthsClamped(cur, 1)
		if got := cur.Format("2006-01-02"); got != w || cur.Hour() != 9 {
			t.Fatalf("step %d = %s %02d:00, want %s 09:00", i+1, got, cur.Hour(), w)
		}
	}
	if got := addMonthsClamped(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), 12).Format("2006-01-02"); got != "2025-02-28" {
		t.Fatalf("yearly step from leap day = %s, want 2025-02-28", got)
	}
}
