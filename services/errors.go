package services

import "errors"

// Error kinds. Every domain error unwraps to exactly one of these, so callers can
// branch with errors.Is(err, ErrNotFound) and friends.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidOperation   = errors.New("invalid operation")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrInsufficientLevel  = errors.New("insufficient level")
)

// Error is a business rule violation that is safe to show to the caller.
type Error struct {
	Kind    error
	Reason  string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func domainError(kind error, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

var (
	ErrUserNotFound        = domainError(ErrNotFound, "user_not_found", "user not found")
	ErrAchievementNotFound = domainError(ErrNotFound, "achievement_not_found", "achievement not found")
	ErrBadgeNotFound       = domainError(ErrNotFound, "badge_not_found", "badge not found")
	ErrRewardNotFound      = domainError(ErrNotFound, "reward_not_found", "reward not found")
	ErrUserRewardNotFound  = domainError(ErrNotFound, "user_reward_not_found", "redeemed reward not found")
	ErrChallengeNotFound   = domainError(ErrNotFound, "challenge_not_found", "challenge not found")
	ErrNotEnrolled         = domainError(ErrNotFound, "not_enrolled", "not enrolled in challenge")
	ErrFamilyNotFound      = domainError(ErrNotFound, "family_not_found", "family not found")

	ErrInvalidAmount        = domainError(ErrInvalidOperation, "invalid_amount", "points must be positive")
	ErrInvalidType          = domainError(ErrInvalidOperation, "invalid_transaction_type", "unknown transaction type")
	ErrInvalidCriteria      = domainError(ErrInvalidOperation, "invalid_criteria", "unknown criteria kind")
	ErrInvalidCategory      = domainError(ErrInvalidOperation, "invalid_category", "unknown leaderboard category")
	ErrInvalidActivity      = domainError(ErrInvalidOperation, "invalid_activity", "activity type is required")
	ErrInvalidChallenge     = domainError(ErrInvalidOperation, "invalid_challenge", "challenge window or target is invalid")
	ErrAlreadyEnrolled      = domainError(ErrInvalidOperation, "already_enrolled", "already enrolled in challenge")
	ErrChallengeEnded       = domainError(ErrInvalidOperation, "challenge_ended", "challenge has ended")
	ErrChallengeInactive    = domainError(ErrInvalidOperation, "challenge_inactive", "challenge is not active")
	ErrChallengeFull        = domainError(ErrInvalidOperation, "challenge_full", "challenge enrollment cap reached")
	ErrChallengeCompleted   = domainError(ErrInvalidOperation, "challenge_completed", "challenge already completed")
	ErrRewardInactive       = domainError(ErrInvalidOperation, "reward_inactive", "reward is not available")
	ErrRewardOutOfStock     = domainError(ErrInvalidOperation, "reward_out_of_stock", "reward is out of stock")
	ErrRewardAlreadyUsed    = domainError(ErrInvalidOperation, "reward_already_used", "reward already used")
	ErrFeaturedLimitReached = domainError(ErrInvalidOperation, "featured_limit", "too many featured badges")
	ErrBadgeNotEarned       = domainError(ErrNotFound, "badge_not_earned", "badge not earned")
	ErrNotEnoughPoints      = domainError(ErrInsufficientPoints, "insufficient_points", "not enough points")
	ErrLevelTooLow          = domainError(ErrInsufficientLevel, "insufficient_level", "level too low for reward")
)
