package models

import "time"

// Reward is a redeemable catalog item. A nil Quantity means unlimited stock.
type Reward struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Name           string     `gorm:"size:128;not null" json:"name"`
	Description    string     `gorm:"size:512" json:"description"`
	PointCost      int64      `gorm:"not null" json:"point_cost"`
	MinimumLevel   int        `gorm:"not null;default:1" json:"minimum_level"`
	Quantity       *int       `json:"quantity"`
	ExpirationDate *time.Time `json:"expiration_date"`
	IsActive       bool       `gorm:"not null" json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// UserReward is one redemption of a reward by a user.
type UserReward struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"index;not null" json:"user_id"`
	RewardID    uint       `gorm:"index;not null" json:"reward_id"`
	PointsSpent int64      `gorm:"not null" json:"points_spent"`
	RedeemedAt  time.Time  `json:"redeemed_at"`
	IsUsed      bool       `gorm:"not null;default:false" json:"is_used"`
	UsedAt      *time.Time `json:"used_at"`
	Reward      Reward     `gorm:"constraint:OnDelete:CASCADE;" json:"reward"`
}
