package models

import "time"

// UserProgress is the per-user reward aggregate. It is a projection of the point
// ledger plus the streak state, and is created on the first qualifying event.
type UserProgress struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UserID             uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	Level              int        `gorm:"not null;default:1" json:"level"`
	CurrentPoints      int64      `gorm:"not null;default:0" json:"current_points"`
	TotalPointsEarned  int64      `gorm:"not null;default:0" json:"total_points_earned"`
	NextLevelThreshold int64      `gorm:"not null;default:0" json:"next_level_threshold"`
	CurrentStreak      int        `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak      int        `gorm:"not null;default:0" json:"longest_streak"`
	LastActivityDate   *time.Time `gorm:"type:date" json:"last_activity_date"`
	TimeZone           string     `gorm:"size:64" json:"time_zone"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName keeps the table name singular like the rest of the progress tables.
func (UserProgress) TableName() string {
	return "user_progress"
}
