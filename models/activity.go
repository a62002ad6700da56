package models

import "time"

// TaskCompletion is the engine's copy of a completed-task event; one row per
// (user, task) so a task is credited exactly once.
type TaskCompletion struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"uniqueIndex:idx_task_completion;index;not null" json:"user_id"`
	TaskID      uint      `gorm:"uniqueIndex:idx_task_completion;not null" json:"task_id"`
	CategoryID  *uint     `gorm:"index" json:"category_id,omitempty"`
	Points      int64     `gorm:"not null;default:0" json:"points"`
	CompletedAt time.Time `json:"completed_at"`
}

// FocusSession is a finished focus (pomodoro) session.
type FocusSession struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	SessionID string    `gorm:"size:64;uniqueIndex;not null" json:"session_id"`
	Minutes   int       `gorm:"not null" json:"minutes"`
	EndedAt   time.Time `json:"ended_at"`
}

// All lists every model the service migrates.
func All() []interface{} {
	return []interface{}{
		&User{}, &Family{}, &FamilyMember{},
		&UserProgress{}, &PointTransaction{},
		&Achievement{}, &UserAchievement{}, &Revocation{},
		&Badge{}, &UserBadge{},
		&Reward{}, &UserReward{},
		&Challenge{}, &UserChallenge{}, &ChallengeProgress{},
		&TaskCompletion{}, &FocusSession{},
	}
}
