/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Team groups the people whose time is planned together.
type Team struct {
	ID        int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string       `gorm:"type:varchar(255);not null" json:"name"`
	Members   []TeamMember `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// TeamMember links a user to a team.
type TeamMember struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TeamID    int64     `gorm:"uniqueIndex:idx_team_members_team_user;not null" json:"team_id"`
	UserID    int64     `gorm:"uniqueIndex:idx_team_members_team_user;not null" json:"user_id"`
	Role      string    `gorm:"type:varchar(32);not null;default:'member'" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
