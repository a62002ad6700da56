package models

import (
	"time"

	"gorm.io/datatypes"
)

// Badge is a visual reward. It is granted either as a cascade of its required
// achievement or by its own criteria; a zero criteria kind means "cascade only".
type Badge struct {
	ID                    uint                         `gorm:"primaryKey" json:"id"`
	Name                  string                       `gorm:"size:128;uniqueIndex;not null" json:"name"`
	Description           string                       `gorm:"size:512" json:"description"`
	Icon                  string                       `gorm:"size:64" json:"icon"`
	RequiredAchievementID *uint                        `gorm:"index" json:"required_achievement_id,omitempty"`
	Criteria              datatypes.JSONType[Criteria] `json:"criteria"`
	PointValue            int64                        `gorm:"not null;default:0" json:"point_value"`
	CreatedAt             time.Time                    `json:"created_at"`
}

// UserBadge is an earned badge. The display flags belong to the user.
type UserBadge struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"uniqueIndex:idx_user_badge;not null" json:"user_id"`
	BadgeID     uint      `gorm:"uniqueIndex:idx_user_badge;not null" json:"badge_id"`
	EarnedAt    time.Time `json:"earned_at"`
	IsDisplayed bool      `gorm:"not null" json:"is_displayed"`
	IsFeatured  bool      `gorm:"not null;default:false" json:"is_featured"`
	Badge       Badge     `gorm:"constraint:OnDelete:CASCADE;" json:"badge"`
}
