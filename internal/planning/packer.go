/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planning

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// urgentWindow is how close a deadline must be before preference is ignored.
const urgentWindow = 24 * time.Hour

// Packer places tasks into free slots one at a time, most constrained first.
type Packer struct {
	logger zerolog.Logger
	now    func() time.Time
}

// PackerOption customizes a Packer.
type PackerOption func(*Packer)

// WithClock overrides the packer's notion of now.
func WithClock(now func() time.Time) PackerOption {
	return func(p *Packer) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPacker creates a greedy packer.
func NewPacker(logger zerolog.Logger, opts ...PackerOption) *Packer {
	p := &Packer{
		logger: logger.With().Str("component", "greedy_packer").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PackResult is the greedy placement outcome.
type PackResult struct {
	Assignments []Assignment
	Unassigned  []Unassigned
}

// Pack assigns tasks into the available slots of the schedule's team.
func (p *Packer) Pack(tasks []Task, slots map[int64][]TimeSlot, schedule Schedule) PackResult {
	now := p.now()
	used := make(map[slotKey]struct{})
	users := SortedUserIDs(slots)

	var result PackResult
	for _, task := range orderTasks(tasks) {
		if task.SlotsNeeded() == 0 {
			result.Unassigned = append(result.Unassigned, unassigned(task, ReasonInvalidDuration))
			continue
		}

		candidates := users
		if task.AssigneeID != nil {
			candidates = []int64{*task.AssigneeID}
		}

		var (
			placed   []TimeSlot
			owner    int64
			anySlots bool
		)
		for _, userID := range candidates {
			userSlots := slots[userID]
			if len(userSlots) > 0 {
				anySlots = true
			}
			if run := p.place(task, userSlots, used, now); len(run) > 0 {
				placed, owner = run, userID
				break
			}
		}

		if placed == nil {
			reason := unplacedReason(task, anySlots, now)
			p.logger.Debug().
				Int64("task_id", task.ID).
				Str("reason", string(reason)).
				Msg("task left unassigned")
			result.Unassigned = append(result.Unassigned, unassigned(task, reason))
			continue
		}

		for _, s := range placed {
			used[keyOf(s)] = struct{}{}
		}
		result.Assignments = append(result.Assignments, p.buildAssignments(task, owner, placed, schedule)...)
	}

	p.logger.Debug().
		Int("tasks", len(tasks)).
		Int("assignments", len(result.Assignments)).
		Int("unassigned", len(result.Unassigned)).
		Msg("greedy packing complete")

	return result
}

// place picks slots for one task on one user's calendar. The returned slots
// are chronological; nil means the task does not fit.
func (p *Packer) place(task Task, userSlots []TimeSlot, used map[slotKey]struct{}, now time.Time) []TimeSlot {
	free := make([]TimeSlot, 0, len(userSlots))
	for _, s := range userSlots {
		if _, taken := used[keyOf(s)]; taken {
			continue
		}
		if s.Preference <= UnusableFloor {
			continue
		}
		if task.DueAt != nil && !fitsDeadline(task, s, *task.DueAt) {
			continue
		}
		free = append(free, s)
	}

	need := task.SlotsNeeded()
	if len(free) < need {
		return nil
	}

	orderSlots(free, task.DueAt, now)

	idx := indexSlots(free)
	for _, s := range free {
		if run, ok := idx.chain(s, need); ok {
			return run
		}
	}

	if !task.Splittable {
		return nil
	}

	picked := make([]TimeSlot, need)
	copy(picked, free[:need])
	sortChronological(picked)
	return picked
}

// fitsDeadline filters single slots. Whole runs of a non-splittable task end
// strictly before the deadline; splittable fragments start before it and
// never run past it.
func fitsDeadline(task Task, s TimeSlot, due time.Time) bool {
	if !task.Splittable {
		return s.End.Before(due)
	}
	return s.Start.Before(due) && !s.End.After(due)
}

func (p *Packer) buildAssignments(task Task, owner int64, placed []TimeSlot, schedule Schedule) []Assignment {
	groups := contiguousGroups(placed)
	split := len(groups) > 1

	out := make([]Assignment, 0, len(groups))
	for i, group := range groups {
		start := group[0].Start
		end := group[len(group)-1].End
		if end.Before(start) {
			p.logger.Error().
				Int64("task_id", task.ID).
				Time("start", start).
				Time("end", end).
				Msg("inverted assignment range, swapping")
			start, end = end, start
		}
		if !start.Before(end) {
			p.logger.Error().Int64("task_id", task.ID).Msg("discarding empty assignment range")
			continue
		}

		taskID := task.ID
		slotIdx := group[0].Index
		meta := &AssignmentMeta{
			Slots:      len(group),
			Split:      split,
			UserID:     owner,
			SplitIndex: i,
		}
		if split {
			meta.TotalGroups = len(groups)
		}

		out = append(out, Assignment{
			ScheduleID: schedule.ID,
			TaskID:     &taskID,
			Title:      task.Title,
			StartsAt:   start,
			EndsAt:     end,
			Source:     SourceTask,
			SlotIndex:  &slotIdx,
			Meta:       meta,
		})
	}
	return out
}

// orderTasks sorts deadline-bearing tasks first by deadline, then longer
// tasks, then by descending priority value. Ties keep ascending id order.
func orderTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.DueAt != nil) != (b.DueAt != nil) {
			return a.DueAt != nil
		}
		if a.DueAt != nil && !a.DueAt.Equal(*b.DueAt) {
			return a.DueAt.Before(*b.DueAt)
		}
		if a.DurationMin != b.DurationMin {
			return a.DurationMin > b.DurationMin
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.ID < b.ID
	})
	return out
}

// orderSlots applies the active placement order. An imminent deadline sorts
// purely by time; otherwise slots go by date, then preference, then time.
func orderSlots(slots []TimeSlot, due *time.Time, now time.Time) {
	if due != nil && due.Sub(now) < urgentWindow {
		sortChronological(slots)
		return
	}
	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Preference != b.Preference {
			return a.Preference > b.Preference
		}
		return a.Start.Before(b.Start)
	})
}

func unplacedReason(task Task, anySlots bool, now time.Time) UnassignedReason {
	switch {
	case !anySlots:
		return ReasonNoSlots
	case task.DueAt != nil && !task.DueAt.After(now):
		return ReasonDeadlinePassed
	case task.DueAt != nil:
		return ReasonBeforeDeadline
	default:
		return ReasonInsufficientTime
	}
}

func unassigned(task Task, reason UnassignedReason) Unassigned {
	return Unassigned{TaskID: task.ID, Title: task.Title, Reason: reason}
}
