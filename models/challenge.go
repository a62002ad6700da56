package models

import "time"

// Activity types understood by the challenge engine.
const (
	ActivityTaskCompleted = "task_completed"
	ActivityDailyLogin    = "daily_login"
	ActivityFocusSession  = "focus_session"
)

// ChallengeStatus is the per-user enrollment state.
type ChallengeStatus string

const (
	ChallengeEnrolled   ChallengeStatus = "enrolled"
	ChallengeInProgress ChallengeStatus = "in_progress"
	ChallengeCompleted  ChallengeStatus = "completed"
	ChallengeExpired    ChallengeStatus = "expired"
)

// Challenge is a time-boxed goal: perform ActivityType TargetCount times between
// StartDate and EndDate.
type Challenge struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Name            string     `gorm:"size:128;not null" json:"name"`
	Description     string     `gorm:"size:512" json:"description"`
	StartDate       time.Time  `gorm:"index" json:"start_date"`
	EndDate         time.Time  `gorm:"index" json:"end_date"`
	TargetCount     int        `gorm:"not null" json:"target_count"`
	ActivityType    string     `gorm:"size:32;index;not null" json:"activity_type"`
	PointReward     int64      `gorm:"not null;default:0" json:"point_reward"`
	Difficulty      Difficulty `gorm:"size:16" json:"difficulty"`
	MaxParticipants *int       `json:"max_participants"`
	IsActive        bool       `gorm:"not null" json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
}

// UserChallenge is a user's enrollment in a challenge.
type UserChallenge struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"uniqueIndex:idx_user_challenge;not null" json:"user_id"`
	ChallengeID     uint            `gorm:"uniqueIndex:idx_user_challenge;index;not null" json:"challenge_id"`
	Status          ChallengeStatus `gorm:"size:16;index;not null" json:"status"`
	EnrolledAt      time.Time       `json:"enrolled_at"`
	CurrentProgress int             `gorm:"not null;default:0" json:"current_progress"`
	IsCompleted     bool            `gorm:"not null;default:false" json:"is_completed"`
	CompletedAt     *time.Time      `json:"completed_at"`
	Challenge       Challenge       `gorm:"constraint:OnDelete:CASCADE;" json:"challenge"`
}

// ChallengeProgress is one increment applied to an enrollment.
type ChallengeProgress struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserChallengeID uint      `gorm:"index;not null" json:"user_challenge_id"`
	UserID          uint      `gorm:"index;not null" json:"user_id"`
	ProgressDelta   int       `gorm:"not null" json:"progress_delta"`
	RelatedEntityID *uint     `gorm:"index" json:"related_entity_id,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// TableName avoids the awkward "challenge_progresses".
func (ChallengeProgress) TableName() string {
	return "challenge_progress"
}
