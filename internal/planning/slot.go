/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planning

import (
	"sort"
	"time"
)

// UnusableFloor is the preference at or below which the packer ignores a slot.
const UnusableFloor = 0.05

// TimeSlot is one 30-minute window on a user's calendar.
type TimeSlot struct {
	Date       time.Time
	Index      int
	Start      time.Time
	End        time.Time
	Available  bool
	UserID     int64
	Preference float64
}

// Overlaps reports whether the slot intersects [start, end).
func (s TimeSlot) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && start.Before(s.End)
}

// Follows reports whether s starts exactly where prev ends on the same calendar.
func (s TimeSlot) Follows(prev TimeSlot) bool {
	return s.UserID == prev.UserID && s.Start.Equal(prev.End)
}

// Consecutive reports whether two slots are adjacent in either order.
func Consecutive(a, b TimeSlot) bool {
	return b.Follows(a) || a.Follows(b)
}

type slotKey struct {
	user  int64
	start int64
}

func keyOf(s TimeSlot) slotKey {
	return slotKey{user: s.UserID, start: s.Start.Unix()}
}

// slotPreference scores how desirable an hour of the day is.
func slotPreference(start time.Time) float64 {
	hour := start.Hour()
	if hour >= 22 || hour < 7 {
		return 0.05
	}

	pref := 1.0
	switch {
	case hour == 12:
		pref = 0.8
	case hour == 18:
		pref = 0.9
	}

	if wd := start.Weekday(); wd == time.Saturday || wd == time.Sunday {
		if pref > 0.3 {
			pref = 0.3
		}
	}
	return pref
}

// isoWeekday maps Go weekdays to 1 (Monday) ... 7 (Sunday).
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sortChronological(slots []TimeSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].UserID < slots[j].UserID
	})
}

// contiguousGroups splits chronologically sorted slots into maximal runs.
func contiguousGroups(slots []TimeSlot) [][]TimeSlot {
	if len(slots) == 0 {
		return nil
	}
	groups := [][]TimeSlot{{slots[0]}}
	for _, s := range slots[1:] {
		last := groups[len(groups)-1]
		if s.Follows(last[len(last)-1]) {
			groups[len(groups)-1] = append(last, s)
			continue
		}
		groups = append(groups, []TimeSlot{s})
	}
	return groups
}

// slotIndex maps slot starts to slots for one or more users.
type slotIndex map[slotKey]TimeSlot

func indexSlots(slots []TimeSlot) slotIndex {
	idx := make(slotIndex, len(slots))
	for _, s := range slots {
		idx[keyOf(s)] = s
	}
	return idx
}

func (idx slotIndex) at(user int64, start time.Time) (TimeSlot, bool) {
	s, ok := idx[slotKey{user: user, start: start.Unix()}]
	return s, ok
}

// chain returns n consecutive slots beginning with first, or false when the
// run breaks before reaching n.
func (idx slotIndex) chain(first TimeSlot, n int) ([]TimeSlot, bool) {
	run := make([]TimeSlot, 0, n)
	run = append(run, first)
	for len(run) < n {
		next, ok := idx.at(first.UserID, run[len(run)-1].End)
		if !ok {
			return nil, false
		}
		run = append(run, next)
	}
	return run, true
}

// covers reports whether consecutive slots span exactly [start, end).
func (idx slotIndex) covers(user int64, start, end time.Time) bool {
	cur, ok := idx.at(user, start)
	if !ok {
		return false
	}
	for {
		if cur.End.Equal(end) {
			return true
		}
		if cur.End.After(end) {
			return false
		}
		cur, ok = idx.at(user, cur.End)
		if !ok {
			return false
		}
	}
}
