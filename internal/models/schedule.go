/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/friendsincode/teamslot/internal/planning"
)

// Schedule is the persisted result of one planning run.
type Schedule struct {
	ID          int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	TeamID      int64        `gorm:"index;not null" json:"team_id"`
	RangeStart  time.Time    `gorm:"not null" json:"range_start"`
	RangeEnd    time.Time    `gorm:"not null" json:"range_end"`
	Score       int          `gorm:"not null;default:0" json:"score"`
	CreatedBy   *int64       `json:"created_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	Assignments []Assignment `gorm:"foreignKey:ScheduleID;constraint:OnDelete:CASCADE" json:"assignments,omitempty"`
}

// Assignment is one block of time in a schedule.
type Assignment struct {
	ID         int64                    `gorm:"primaryKey;autoIncrement" json:"id"`
	ScheduleID int64                    `gorm:"index;not null" json:"schedule_id"`
	TaskID     *int64                   `gorm:"index" json:"task_id,omitempty"`
	Title      string                   `gorm:"type:varchar(255)" json:"title"`
	StartsAt   time.Time                `gorm:"index;not null" json:"starts_at"`
	EndsAt     time.Time                `gorm:"not null" json:"ends_at"`
	Source     string                   `gorm:"type:varchar(16);not null;default:'TASK'" json:"source"`
	SlotIndex  *int                     `json:"slot_index,omitempty"`
	Meta       *planning.AssignmentMeta `gorm:"type:text;serializer:json" json:"meta,omitempty"`
}

// SlotLock is an advisory lock held on a resource while it is being edited.
type SlotLock struct {
	ResourceKey string    `gorm:"type:varchar(255);primaryKey" json:"resource_key"`
	OwnerUserID int64     `gorm:"not null" json:"owner_user_id"`
	ExpiresAt   time.Time `gorm:"index;not null" json:"expires_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
