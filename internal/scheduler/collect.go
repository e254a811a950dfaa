/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/teamslot/internal/cache"
	"github.com/friendsincode/teamslot/internal/models"
	"github.com/friendsincode/teamslot/internal/planning"
	"github.com/friendsincode/teamslot/internal/telemetry"
	"gorm.io/gorm"
)

// input is everything the planning core needs for one run.
type input struct {
	members []int64
	tasks   []planning.Task
	rules   []planning.WorkHourRule
	events  []planning.CalendarEvent
}

// collect loads the planning input for the days firstDay..lastDay.
func (s *Service) collect(ctx context.Context, teamID int64, firstDay, lastDay time.Time) (*input, error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "scheduler.collect")
	defer span.End()

	if err := s.CheckTeam(ctx, teamID); err != nil {
		return nil, err
	}

	members, err := s.TeamMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	rules, err := s.workHours(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 && len(members) > 0 {
		s.logger.Warn().Int64("team_id", teamID).Msg("no work hours configured, using Mon-Sun 09:00-18:00")
		rules = DefaultWorkHours(teamID)
	}

	from := firstDay.UTC()
	until := lastDay.AddDate(0, 0, 1).UTC()

	var taskRows []models.Task
	if err := s.db.WithContext(ctx).
		Where("team_id = ? AND (due_at IS NULL OR (due_at >= ? AND due_at < ?))", teamID, from, until).
		Order("id").
		Find(&taskRows).Error; err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	tasks := make([]planning.Task, 0, len(taskRows))
	for _, t := range taskRows {
		tasks = append(tasks, t.ToPlanning())
	}

	evs, err := s.CalendarEvents(ctx, teamID, from, until)
	if err != nil {
		return nil, err
	}

	telemetry.AddSpanAttributes(span, map[string]any{
		"members": len(members),
		"tasks":   len(tasks),
		"events":  len(evs),
	})
	return &input{members: members, tasks: tasks, rules: rules, events: evs}, nil
}

// CheckTeam returns ErrTeamNotFound unless the team exists.
func (s *Service) CheckTeam(ctx context.Context, teamID int64) error {
	var team models.Team
	if err := s.db.WithContext(ctx).Select("id").First(&team, teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", ErrTeamNotFound, teamID)
		}
		return fmt.Errorf("load team: %w", err)
	}
	return nil
}

// CalendarEvents returns the team's events that overlap [from, until) plus
// every recurring event that starts before until. Events with an unknown
// recurrence are skipped.
func (s *Service) CalendarEvents(ctx context.Context, teamID int64, from, until time.Time) ([]planning.CalendarEvent, error) {
	var rows []models.CalendarEvent
	if err := s.db.WithContext(ctx).
		Where("team_id = ? AND starts_at < ? AND (ends_at > ? OR (recurrence IS NOT NULL AND recurrence <> ''))", teamID, until.UTC(), from.UTC()).
		Order("starts_at, id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load calendar events: %w", err)
	}
	evs := make([]planning.CalendarEvent, 0, len(rows))
	for _, e := range rows {
		ev, err := e.ToPlanning()
		if err != nil {
			s.logger.Warn().Err(err).Int64("event_id", e.ID).Msg("skipping calendar event")
			continue
		}
		evs = append(evs, ev)
	}
	return evs, nil
}

// TeamMembers returns the user ids of a team, cached when Redis is
// available.
func (s *Service) TeamMembers(ctx context.Context, teamID int64) ([]int64, error) {
	if ids, ok := s.cache.GetTeamMembers(ctx, teamID); ok {
		return ids, nil
	}
	var ids []int64
	if err := s.db.WithContext(ctx).
		Model(&models.TeamMember{}).
		Where("team_id = ?", teamID).
		Order("user_id").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load team members: %w", err)
	}
	if err := s.cache.SetTeamMembers(ctx, teamID, ids); err != nil {
		s.logger.Debug().Err(err).Msg("cache team members")
	}
	return ids, nil
}

// WorkHourRules returns a team's configured rules, or the default week when
// none are configured.
func (s *Service) WorkHourRules(ctx context.Context, teamID int64) ([]planning.WorkHourRule, error) {
	rules, err := s.workHours(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return DefaultWorkHours(teamID), nil
	}
	return rules, nil
}

func (s *Service) workHours(ctx context.Context, teamID int64) ([]planning.WorkHourRule, error) {
	if cached, ok := s.cache.GetWorkHours(ctx, teamID); ok {
		rules := make([]planning.WorkHourRule, 0, len(cached))
		for _, c := range cached {
			rules = append(rules, planning.WorkHourRule{
				TeamID:    teamID,
				UserID:    c.UserID,
				DayOfWeek: c.DayOfWeek,
				StartMin:  c.StartMin,
				EndMin:    c.EndMin,
			})
		}
		return rules, nil
	}

	var rows []models.WorkHour
	if err := s.db.WithContext(ctx).Where("team_id = ?", teamID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load work hours: %w", err)
	}
	rules := make([]planning.WorkHourRule, 0, len(rows))
	cached := make([]cache.CachedWorkHour, 0, len(rows))
	for _, w := range rows {
		rules = append(rules, w.ToPlanning())
		cached = append(cached, cache.CachedWorkHour{UserID: w.UserID, DayOfWeek: w.DayOfWeek, StartMin: w.StartMin, EndMin: w.EndMin})
	}
	if err := s.cache.SetWorkHours(ctx, teamID, cached); err != nil {
		s.logger.Debug().Err(err).Msg("cache work hours")
	}
	return rules, nil
}

// DefaultWorkHours is the team-wide Monday to Sunday 09:00-18:00 week.
// Weekend slots still carry the low weekend preference.
func DefaultWorkHours(teamID int64) []planning.WorkHourRule {
	rules := make([]planning.WorkHourRule, 0, 7)
	for dow := 1; dow <= 7; dow++ {
		rules = append(rules, planning.WorkHourRule{
			TeamID:    teamID,
			DayOfWeek: dow,
			StartMin:  defaultWorkStartMin,
			EndMin:    defaultWorkEndMin,
		})
	}
	return rules
}
