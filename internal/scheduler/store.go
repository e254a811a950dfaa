/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/friendsincode/teamslot/internal/events"
	"github.com/friendsincode/teamslot/internal/models"
	"github.com/friendsincode/teamslot/internal/planning"
	"github.com/friendsincode/teamslot/internal/telemetry"
	"gorm.io/gorm"
)

const assignmentBatchSize = 200

// persist writes the schedule and its assignments in one transaction,
// optionally replacing the team's schedules that intersect the range.
func (s *Service) persist(ctx context.Context, req GenerateRequest, plan planning.Schedule, assignments []planning.Assignment, score int) (models.Schedule, []models.Assignment, error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "scheduler.persist")
	defer span.End()

	schedule := models.Schedule{
		TeamID:     plan.TeamID,
		RangeStart: plan.RangeStart.UTC(),
		RangeEnd:   plan.RangeEnd.UTC(),
		Score:      score,
		CreatedBy:  req.CreatedBy,
		CreatedAt:  s.now().UTC(),
	}
	rows := make([]models.Assignment, 0, len(assignments))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.Replace {
			var ids []int64
			if err := tx.Model(&models.Schedule{}).
				Where("team_id = ? AND range_start <= ? AND range_end >= ?", schedule.TeamID, schedule.RangeEnd, schedule.RangeStart).
				Pluck("id", &ids).Error; err != nil {
				return fmt.Errorf("find replaced schedules: %w", err)
			}
			if err := deleteSchedules(tx, ids); err != nil {
				return err
			}
			if len(ids) > 0 {
				s.logger.Info().Int64("team_id", schedule.TeamID).Ints64("schedule_ids", ids).Msg("replaced schedules")
			}
		}

		if err := tx.Create(&schedule).Error; err != nil {
			return fmt.Errorf("create schedule: %w", err)
		}
		for _, a := range assignments {
			a.ScheduleID = schedule.ID
			row := models.AssignmentFromPlanning(a)
			row.StartsAt = row.StartsAt.UTC()
			row.EndsAt = row.EndsAt.UTC()
			rows = append(rows, row)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, assignmentBatchSize).Error; err != nil {
			return fmt.Errorf("create assignments: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Schedule{}, nil, err
	}
	return schedule, rows, nil
}

func deleteSchedules(tx *gorm.DB, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("schedule_id IN ?", ids).Delete(&models.Assignment{}).Error; err != nil {
		return fmt.Errorf("delete assignments: %w", err)
	}
	if err := tx.Where("id IN ?", ids).Delete(&models.Schedule{}).Error; err != nil {
		return fmt.Errorf("delete schedules: %w", err)
	}
	return nil
}

func orderedAssignments(db *gorm.DB) *gorm.DB {
	return db.Order("starts_at, id")
}

// GetSchedule loads a schedule with its assignments.
func (s *Service) GetSchedule(ctx context.Context, id int64) (*models.Schedule, error) {
	var schedule models.Schedule
	err := s.db.WithContext(ctx).Preload("Assignments", orderedAssignments).First(&schedule, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load schedule %d: %w", id, err)
	}
	return &schedule, nil
}

// LatestSchedule loads the most recently created schedule of a team.
func (s *Service) LatestSchedule(ctx context.Context, teamID int64) (*models.Schedule, error) {
	var schedule models.Schedule
	err := s.db.WithContext(ctx).
		Preload("Assignments", orderedAssignments).
		Where("team_id = ?", teamID).
		Order("created_at DESC, id DESC").
		First(&schedule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load latest schedule: %w", err)
	}
	return &schedule, nil
}

// ListSchedules returns a team's schedules, newest first, without
// assignments.
func (s *Service) ListSchedules(ctx context.Context, teamID int64) ([]models.Schedule, error) {
	var schedules []models.Schedule
	if err := s.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("created_at DESC, id DESC").
		Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return schedules, nil
}

// DeleteSchedule removes a schedule and its assignments.
func (s *Service) DeleteSchedule(ctx context.Context, id int64) error {
	var teamID int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var schedule models.Schedule
		if err := tx.Select("id", "team_id").First(&schedule, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrScheduleNotFound
			}
			return fmt.Errorf("load schedule %d: %w", id, err)
		}
		teamID = schedule.TeamID
		return deleteSchedules(tx, []int64{id})
	})
	if err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(events.EventScheduleDeleted, events.Payload{"team_id": teamID, "schedule_id": id})
	}
	return nil
}

// DeleteTeamSchedules removes every schedule of a team and returns how many
// were deleted.
func (s *Service) DeleteTeamSchedules(ctx context.Context, teamID int64) (int, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Schedule{}).Where("team_id = ?", teamID).Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("find team schedules: %w", err)
		}
		return deleteSchedules(tx, ids)
	})
	if err != nil {
		return 0, err
	}
	if s.bus != nil {
		for _, id := range ids {
			s.bus.Publish(events.EventScheduleDeleted, events.Payload{"team_id": teamID, "schedule_id": id})
		}
	}
	return len(ids), nil
}

// TaskPriorities maps task ids to priorities for the given assignments.
func (s *Service) TaskPriorities(ctx context.Context, assignments []models.Assignment) (map[int64]int, error) {
	ids := make([]int64, 0, len(assignments))
	seen := make(map[int64]bool)
	for _, a := range assignments {
		if a.TaskID != nil && !seen[*a.TaskID] {
			seen[*a.TaskID] = true
			ids = append(ids, *a.TaskID)
		}
	}
	out := make(map[int64]int, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var tasks []models.Task
	if err := s.db.WithContext(ctx).Select("id", "priority").Where("id IN ?", ids).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("load task priorities: %w", err)
	}
	for _, t := range tasks {
		out[t.ID] = t.Priority
	}
	return out, nil
}
