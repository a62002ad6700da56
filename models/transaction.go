package models

import "time"

// TransactionType classifies ledger entries.
type TransactionType string

const (
	TransactionTaskCompletion   TransactionType = "task_completion"
	TransactionDailyLogin       TransactionType = "daily_login"
	TransactionAchievementBonus TransactionType = "achievement_bonus"
	TransactionBadgeBonus       TransactionType = "badge_bonus"
	TransactionChallengeReward  TransactionType = "challenge_reward"
	TransactionFocusSession     TransactionType = "focus_session"
	TransactionRewardRedemption TransactionType = "reward_redemption"
	TransactionAdminAdjustment  TransactionType = "admin_adjustment"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTaskCompletion, TransactionDailyLogin, TransactionAchievementBonus,
		TransactionBadgeBonus, TransactionChallengeReward, TransactionFocusSession,
		TransactionRewardRedemption, TransactionAdminAdjustment:
		return true
	}
	return false
}

// PointTransaction is an immutable ledger entry. Points are negative for deductions.
type PointTransaction struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"index:idx_tx_user_created;not null" json:"user_id"`
	Points          int64           `gorm:"not null" json:"points"`
	TransactionType TransactionType `gorm:"size:32;index;not null" json:"transaction_type"`
	Description     string          `gorm:"size:255" json:"description"`
	TaskID          *uint           `json:"task_id,omitempty"`
	TemplateID      *uint           `json:"template_id,omitempty"`
	ChallengeID     *uint           `json:"challenge_id,omitempty"`
	AchievementID   *uint           `json:"achievement_id,omitempty"`
	BadgeID         *uint           `json:"badge_id,omitempty"`
	RewardID        *uint           `json:"reward_id,omitempty"`
	IdempotencyKey  *string         `gorm:"size:128;uniqueIndex" json:"-"`
	CreatedAt       time.Time       `gorm:"index:idx_tx_user_created" json:"created_at"`
}
