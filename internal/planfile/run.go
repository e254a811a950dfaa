/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planfile

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/teamslot/internal/planning"
)

// Placement is one block of placed work.
type Placement struct {
	TaskID     int64     `json:"taskId"`
	Title      string    `json:"title"`
	UserID     int64     `json:"userId"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Split      bool      `json:"split,omitempty"`
	SplitIndex int       `json:"splitIndex,omitempty"`
}

// Skipped is a task left off the plan.
type Skipped struct {
	TaskID int64  `json:"taskId"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// Output is the JSON result of an offline run.
type Output struct {
	TeamID       int64       `json:"teamId"`
	RangeStart   string      `json:"rangeStart"`
	RangeEnd     string      `json:"rangeEnd"`
	InitialScore int         `json:"initialScore"`
	Score        int         `json:"score"`
	Iterations   int         `json:"iterations"`
	Assignments  []Placement `json:"assignments"`
	Unassigned   []Skipped   `json:"unassignedTasks"`
}

// Options tune an offline run.
type Options struct {
	Now       time.Time // deadlines are judged against it; zero means time.Now
	Optimizer planning.OptimizerConfig
}

// Run plans the input the same way the server does: slots, greedy
// placement, then local search.
func Run(f *File, opts Options, logger zerolog.Logger) (*Output, error) {
	in, err := f.Input()
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	clock := func() time.Time { return now }
	in.Schedule.CreatedAt = now

	gen := planning.NewGenerator(logger, planning.WithLocation(f.Location()))
	slots := gen.Generate(in.Rules, in.Events, in.Schedule.RangeStart, in.Schedule.RangeEnd, in.Members)

	packed := planning.NewPacker(logger, planning.WithClock(clock)).Pack(in.Tasks, slots, in.Schedule)

	seed := in.Seed
	if seed == 0 {
		seed = now.UnixNano()
	}
	scorer := planning.NewScorer(logger)
	opt := planning.NewOptimizer(scorer, opts.Optimizer, logger).Optimize(planning.OptimizeRequest{
		Schedule:    in.Schedule,
		Assignments: packed.Assignments,
		Tasks:       in.Tasks,
		Slots:       slots,
		Seed:        seed,
	})

	out := &Output{
		TeamID:       f.TeamID,
		RangeStart:   f.RangeStart,
		RangeEnd:     f.RangeEnd,
		InitialScore: opt.InitialScore,
		Score:        opt.FinalScore,
		Iterations:   opt.Iterations,
		Assignments:  make([]Placement, 0, len(opt.Assignments)),
		Unassigned:   make([]Skipped, 0, len(packed.Unassigned)),
	}
	for _, a := range opt.Assignments {
		p := Placement{Title: a.Title, Start: a.StartsAt, End: a.EndsAt}
		if a.TaskID != nil {
			p.TaskID = *a.TaskID
		}
		if a.Meta != nil {
			p.UserID = a.Meta.UserID
			p.Split = a.Meta.Split
			p.SplitIndex = a.Meta.SplitIndex
		}
		out.Assignments = append(out.Assignments, p)
	}
	for _, u := range packed.Unassigned {
		out.Unassigned = append(out.Unassigned, Skipped{TaskID: u.TaskID, Title: u.Title, Reason: string(u.Reason)})
	}
	return out, nil
}
