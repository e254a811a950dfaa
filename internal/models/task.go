/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Default task settings.
const (
	DefaultTaskPriority = 3
	MinTaskPriority     = 1
	MaxTaskPriority     = 5
)

// Task is a piece of work waiting to be placed on someone's calendar.
type Task struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TeamID      int64      `gorm:"index:idx_tasks_team_due;not null" json:"team_id"`
	AssigneeID  *int64     `gorm:"index" json:"assignee_id,omitempty"`
	Title       string     `gorm:"type:varchar(255);not null" json:"title"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	DurationMin int        `gorm:"not null" json:"duration_min"`
	DueAt       *time.Time `gorm:"index:idx_tasks_team_due" json:"due_at,omitempty"`
	Priority    int        `gorm:"not null;default:3" json:"priority"`
	Splittable  bool       `gorm:"not null;default:true" json:"splittable"`
	Tags        string     `gorm:"type:varchar(512)" json:"tags,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// WorkHour is a recurring weekly availability window. A nil UserID applies
// to the whole team.
type WorkHour struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TeamID    int64  `gorm:"index;not null" json:"team_id"`
	UserID    *int64 `gorm:"index" json:"user_id,omitempty"`
	DayOfWeek int    `gorm:"not null" json:"day_of_week"`
	StartMin  int    `gorm:"not null" json:"start_min"`
	EndMin    int    `gorm:"not null" json:"end_min"`
}

// CalendarEvent blocks time for its owner or attendees.
type CalendarEvent struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TeamID        int64      `gorm:"index:idx_calendar_events_team_start;not null" json:"team_id"`
	OwnerID       *int64     `gorm:"index" json:"owner_id,omitempty"`
	Attendees     string     `gorm:"type:varchar(1024)" json:"attendees,omitempty"`
	Title         string     `gorm:"type:varchar(255);not null" json:"title"`
	StartsAt      time.Time  `gorm:"index:idx_calendar_events_team_start;not null" json:"starts_at"`
	EndsAt        time.Time  `gorm:"not null" json:"ends_at"`
	Fixed         bool       `gorm:"not null;default:true" json:"fixed"`
	Recurrence    string     `gorm:"type:varchar(16)" json:"recurrence,omitempty"`
	RecurrenceEnd *time.Time `json:"recurrence_end,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
