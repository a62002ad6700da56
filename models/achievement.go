package models

import (
	"time"

	"gorm.io/datatypes"
)

// Difficulty is shared by achievements and challenges.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyLegend Difficulty = "legendary"
)

// Achievement is a catalog entry unlocked once per user when Criteria holds.
type Achievement struct {
	ID          uint                         `gorm:"primaryKey" json:"id"`
	Name        string                       `gorm:"size:128;uniqueIndex;not null" json:"name"`
	Description string                       `gorm:"size:512" json:"description"`
	Category    string                       `gorm:"size:32;index" json:"category"`
	Criteria    datatypes.JSONType[Criteria] `json:"criteria"`
	PointValue  int64                        `gorm:"not null;default:0" json:"point_value"`
	Difficulty  Difficulty                   `gorm:"size:16" json:"difficulty"`
	IsHidden    bool                         `gorm:"not null;default:false" json:"is_hidden"`
	IsActive    bool                         `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time                    `json:"created_at"`
}

// UserAchievement records that a user earned an achievement. Its existence is the unlock.
type UserAchievement struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	UserID        uint        `gorm:"uniqueIndex:idx_user_achievement;not null" json:"user_id"`
	AchievementID uint        `gorm:"uniqueIndex:idx_user_achievement;not null" json:"achievement_id"`
	UnlockedAt    time.Time   `json:"unlocked_at"`
	Achievement   Achievement `gorm:"constraint:OnDelete:CASCADE;" json:"achievement"`
}

// Revocation kinds.
const (
	RevokedAchievement = "achievement"
	RevokedBadge       = "badge"
)

// Revocation marks an achievement or badge an admin took away from a user. Evaluation
// does not grant it again until the user is reset.
type Revocation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_user_revocation;not null" json:"user_id"`
	Kind      string    `gorm:"size:16;uniqueIndex:idx_user_revocation;not null" json:"kind"`
	RefID     uint      `gorm:"uniqueIndex:idx_user_revocation;not null" json:"ref_id"`
	RevokedAt time.Time `json:"revoked_at"`
}
