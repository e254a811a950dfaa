/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package meeting suggests times at which a group of team members are all
// free.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/teamslot/internal/planning"
	"github.com/friendsincode/teamslot/internal/scheduler"
	"github.com/friendsincode/teamslot/internal/telemetry"
	"github.com/rs/zerolog"
)

// Request defaults and limits.
const (
	DefaultSearchDays = 14
	DefaultLimit      = 10
	MinDurationMin    = 15
	maxSearchDays     = 90
)

// ErrInvalidDuration is returned for meetings shorter than MinDurationMin.
var ErrInvalidDuration = errors.New("meeting duration too short")

// Request describes the meeting to place.
type Request struct {
	TeamID         int64
	ParticipantIDs []int64 // empty means the whole team
	DurationMin    int
	From           time.Time // first day searched; zero means today
	SearchDays     int
	Limit          int
}

// Roster is the part of the scheduler the suggester reads team data from.
type Roster interface {
	CheckTeam(ctx context.Context, teamID int64) error
	TeamMembers(ctx context.Context, teamID int64) ([]int64, error)
	WorkHourRules(ctx context.Context, teamID int64) ([]planning.WorkHourRule, error)
	CalendarEvents(ctx context.Context, teamID int64, from, until time.Time) ([]planning.CalendarEvent, error)
}

var _ Roster = (*scheduler.Service)(nil)

// Service produces meeting suggestions.
type Service struct {
	roster    Roster
	generator *planning.Generator
	now       func() time.Time
	logger    zerolog.Logger
}

// NewService creates a meeting suggester laying out days in loc.
func NewService(roster Roster, loc *time.Location, logger zerolog.Logger) *Service {
	logger = logger.With().Str("component", "meeting").Logger()
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		roster:    roster,
		generator: planning.NewGenerator(logger, planning.WithLocation(loc)),
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Suggest returns up to req.Limit windows where every participant is free.
// Windows that have already started are left out.
func (s *Service) Suggest(ctx context.Context, req Request) ([]Suggestion, error) {
	ctx, span := telemetry.StartSpan(ctx, "meeting", "meeting.suggest")
	defer span.End()

	if req.DurationMin < MinDurationMin {
		return nil, fmt.Errorf("%w: %d minutes", ErrInvalidDuration, req.DurationMin)
	}
	if err := s.roster.CheckTeam(ctx, req.TeamID); err != nil {
		return nil, err
	}

	participants := dedupe(req.ParticipantIDs)
	if len(participants) == 0 {
		members, err := s.roster.TeamMembers(ctx, req.TeamID)
		if err != nil {
			return nil, err
		}
		participants = members
	}
	if len(participants) == 0 {
		return []Suggestion{}, nil
	}

	days := req.SearchDays
	if days <= 0 {
		days = DefaultSearchDays
	}
	if days > maxSearchDays {
		days = maxSearchDays
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	now := s.now()
	from := req.From
	if from.IsZero() {
		from = now
	}
	loc := s.generator.Location()
	from = from.In(loc)
	firstDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	lastDay := firstDay.AddDate(0, 0, days-1)

	rules, err := s.roster.WorkHourRules(ctx, req.TeamID)
	if err != nil {
		return nil, err
	}
	evs, err := s.roster.CalendarEvents(ctx, req.TeamID, firstDay, lastDay.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	slots := s.generator.Generate(forParticipants(rules, participants), evs, firstDay, lastDay, participants)
	required := (req.DurationMin + 29) / 30
	all := FindCommonWindows(slots, participants, required)

	out := make([]Suggestion, 0, limit)
	for _, sug := range all {
		if sug.StartsAt.Before(now) {
			continue
		}
		out = append(out, sug)
		if len(out) == limit {
			break
		}
	}

	telemetry.MeetingSuggestionsTotal.Inc()
	telemetry.AddSpanAttributes(span, map[string]any{
		"team_id":      req.TeamID,
		"participants": len(participants),
		"suggestions":  len(out),
	})
	s.logger.Debug().
		Int64("team_id", req.TeamID).
		Int("participants", len(participants)).
		Int("candidates", len(all)).
		Int("suggestions", len(out)).
		Msg("meeting suggestions computed")
	return out, nil
}

// forParticipants keeps team-wide rules and the personal rules of the
// participants.
func forParticipants(rules []planning.WorkHourRule, participants []int64) []planning.WorkHourRule {
	want := make(map[int64]struct{}, len(participants))
	for _, id := range participants {
		want[id] = struct{}{}
	}
	out := make([]planning.WorkHourRule, 0, len(rules))
	for _, r := range rules {
		if r.UserID != nil {
			if _, ok := want[*r.UserID]; !ok {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
