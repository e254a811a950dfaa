/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/teamslot/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		// Teams
		&models.Team{},
		&models.TeamMember{},

		// Planning inputs
		&models.Task{},
		&models.WorkHour{},
		&models.CalendarEvent{},

		// Planning output
		&models.Schedule{},
		&models.Assignment{},

		// Advisory locks
		&models.SlotLock{},
	); err != nil {
		return err
	}

	if err := clampLegacyTaskPriorities(database); err != nil {
		return err
	}

	return nil
}

// clampLegacyTaskPriorities pulls rows written before priorities were
// bounded back into the 1..5 range.
func clampLegacyTaskPriorities(database *gorm.DB) error {
	if err := database.Model(&models.Task{}).
		Where("priority < ?", models.MinTaskPriority).
		Update("priority", models.DefaultTaskPriority).Error; err != nil {
		return fmt.Errorf("clamp low task priorities: %w", err)
	}
	if err := database.Model(&models.Task{}).
		Where("priority > ?", models.MaxTaskPriority).
		Update("priority", models.MaxTaskPriority).Error; err != nil {
		return fmt.Errorf("clamp high task priorities: %w", err)
	}
	return nil
}
