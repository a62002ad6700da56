package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the identity record owned by the account service. The engine only reads
// usernames from it for leaderboard display.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"size:64;not null" json:"username"`
	Email     string         `gorm:"size:255" json:"email"`
	AvatarURL string         `gorm:"size:512" json:"avatar_url"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// Family groups users that share a household board.
type Family struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// FamilyMember links a user to a family.
type FamilyMember struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	FamilyID uint      `gorm:"uniqueIndex:idx_family_member;not null" json:"family_id"`
	UserID   uint      `gorm:"uniqueIndex:idx_family_member;index;not null" json:"user_id"`
	Role     string    `gorm:"size:32" json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}
