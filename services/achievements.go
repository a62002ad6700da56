package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/taskquest/models"
)

// maxUnlockPasses bounds the re-evaluation loop. An unlock can satisfy further criteria
// (points, achievements_unlocked), so evaluation repeats until a pass unlocks nothing.
const maxUnlockPasses = 5

// UnlockResult lists what a single evaluation newly granted.
type UnlockResult struct {
	Achievements  []models.Achievement `json:"achievements"`
	Badges        []models.Badge       `json:"badges"`
	PointsAwarded int64                `json:"points_awarded"`
}

// Empty reports whether nothing was unlocked.
func (r *UnlockResult) Empty() bool {
	return r == nil || (len(r.Achievements) == 0 && len(r.Badges) == 0)
}

// AchievementProgress is one catalog entry with the user's progress towards it.
type AchievementProgress struct {
	Achievement models.Achievement `json:"achievement"`
	Progress    CriteriaProgress   `json:"progress"`
	Unlocked    bool               `json:"unlocked"`
	UnlockedAt  *time.Time         `json:"unlocked_at,omitempty"`
}

// EvaluateAndUnlock evaluates every active achievement and criteria badge the user has
// not earned yet and grants those whose criteria now hold. trigger is only logged.
func (e *Engine) EvaluateAndUnlock(ctx context.Context, userID uint, trigger string) (*UnlockResult, error) {
	var catalog []models.Achievement
	if err := e.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&catalog).Error; err != nil {
		return nil, fmt.Errorf("load achievements: %w", err)
	}
	var badges []models.Badge
	if err := e.db.WithContext(ctx).Order("id ASC").Find(&badges).Error; err != nil {
		return nil, fmt.Errorf("load badges: %w", err)
	}

	revokedAchievements, err := e.revokedIDs(ctx, userID, models.RevokedAchievement)
	if err != nil {
		return nil, err
	}
	revokedBadges, err := e.revokedIDs(ctx, userID, models.RevokedBadge)
	if err != nil {
		return nil, err
	}

	result := &UnlockResult{}
	for pass := 0; pass < maxUnlockPasses; pass++ {
		earned, err := e.earnedAchievementIDs(ctx, userID)
		if err != nil {
			return nil, err
		}
		owned, err := e.earnedBadgeIDs(ctx, userID)
		if err != nil {
			return nil, err
		}
		stats, err := e.CollectStats(ctx, userID)
		if err != nil {
			return nil, err
		}

		before := len(result.Achievements) + len(result.Badges)
		for _, a := range catalog {
			if earned[a.ID] || revokedAchievements[a.ID] {
				continue
			}
			prog, err := EvaluateCriteria(a.Criteria.Data(), *stats)
			if err != nil {
				e.log.Warnw("skip achievement with invalid criteria", "achievement_id", a.ID, "error", err)
				continue
			}
			if !prog.Met {
				continue
			}
			if err := e.unlockAchievement(ctx, userID, a, owned, result); err != nil {
				return nil, err
			}
		}
		for _, b := range badges {
			c := b.Criteria.Data()
			if owned[b.ID] || revokedBadges[b.ID] || c.Kind == models.CriteriaNone {
				continue
			}
			if b.RequiredAchievementID != nil && !earned[*b.RequiredAchievementID] {
				continue
			}
			prog, err := EvaluateCriteria(c, *stats)
			if err != nil {
				e.log.Warnw("skip badge with invalid criteria", "badge_id", b.ID, "error", err)
				continue
			}
			if !prog.Met {
				continue
			}
			if err := e.awardBadge(ctx, userID, b, owned, result); err != nil {
				return nil, err
			}
		}
		if len(result.Achievements)+len(result.Badges) == before {
			break
		}
	}

	if !result.Empty() {
		e.log.Infow("unlocked",
			"user_id", userID,
			"trigger", trigger,
			"achievements", len(result.Achievements),
			"badges", len(result.Badges),
			"points", result.PointsAwarded,
		)
	}
	return result, nil
}

// unlockAchievement grants one achievement, its bonus and any cascade badges in one
// transaction. A concurrent unlock of the same achievement loses on the unique index
// and grants nothing.
func (e *Engine) unlockAchievement(ctx context.Context, userID uint, a models.Achievement, owned map[uint]bool, result *UnlockResult) error {
	var (
		unlocked bool
		granted  []models.Badge
		postings []*PointsResult
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := e.lockProgress(tx, userID)
		if err != nil {
			return err
		}
		if revoked, err := isRevoked(tx, userID, models.RevokedAchievement, a.ID); err != nil || revoked {
			return err
		}
		row := models.UserAchievement{UserID: userID, AchievementID: a.ID, UnlockedAt: e.clock()}
		res := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return fmt.Errorf("insert user achievement: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		unlocked = true

		if a.PointValue > 0 {
			id := a.ID
			posting, err := e.credit(tx, p, a.PointValue, models.TransactionAchievementBonus,
				"Achievement unlocked: "+a.Name,
				Refs{AchievementID: &id, IdempotencyKey: fmt.Sprintf("achievement:%d:%d", userID, a.ID)})
			if err != nil {
				return err
			}
			postings = append(postings, posting)
		}

		var cascade []models.Badge
		if err := tx.Where("required_achievement_id = ?", a.ID).Order("id ASC").Find(&cascade).Error; err != nil {
			return fmt.Errorf("load cascade badges: %w", err)
		}
		for _, b := range cascade {
			if b.Criteria.Data().Kind != models.CriteriaNone {
				continue
			}
			ok, posting, err := e.grantBadge(tx, p, b)
			if err != nil {
				return err
			}
			if ok {
				granted = append(granted, b)
			}
			if posting != nil {
				postings = append(postings, posting)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("unlock achievement %d for user %d: %w", a.ID, userID, err)
	}
	if !unlocked {
		return nil
	}

	result.Achievements = append(result.Achievements, a)
	observeUnlock("achievement")
	for _, b := range granted {
		owned[b.ID] = true
		result.Badges = append(result.Badges, b)
		observeUnlock("badge")
	}
	for _, posting := range postings {
		if !posting.AlreadyProcessed {
			result.PointsAwarded += posting.Transaction.Points
		}
		e.observePosting(posting)
	}
	return nil
}

// awardBadge grants a criteria badge in its own transaction.
func (e *Engine) awardBadge(ctx context.Context, userID uint, b models.Badge, owned map[uint]bool, result *UnlockResult) error {
	var (
		ok      bool
		posting *PointsResult
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := e.lockProgress(tx, userID)
		if err != nil {
			return err
		}
		ok, posting, err = e.grantBadge(tx, p, b)
		return err
	})
	if err != nil {
		return fmt.Errorf("award badge %d for user %d: %w", b.ID, userID, err)
	}
	owned[b.ID] = true
	if !ok {
		return nil
	}
	result.Badges = append(result.Badges, b)
	observeUnlock("badge")
	if posting != nil {
		if !posting.AlreadyProcessed {
			result.PointsAwarded += posting.Transaction.Points
		}
		e.observePosting(posting)
	}
	return nil
}

// grantBadge inserts the UserBadge row and credits the badge bonus. It reports false
// when the user already holds the badge.
func (e *Engine) grantBadge(tx *gorm.DB, p *models.UserProgress, b models.Badge) (bool, *PointsResult, error) {
	if revoked, err := isRevoked(tx, p.UserID, models.RevokedBadge, b.ID); err != nil || revoked {
		return false, nil, err
	}
	row := models.UserBadge{UserID: p.UserID, BadgeID: b.ID, EarnedAt: e.clock(), IsDisplayed: true}
	res := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, nil, fmt.Errorf("insert user badge: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil, nil
	}
	if b.PointValue <= 0 {
		return true, nil, nil
	}
	id := b.ID
	posting, err := e.credit(tx, p, b.PointValue, models.TransactionBadgeBonus,
		"Badge earned: "+b.Name,
		Refs{BadgeID: &id, IdempotencyKey: fmt.Sprintf("badge:%d:%d", p.UserID, b.ID)})
	if err != nil {
		return false, nil, err
	}
	return true, posting, nil
}

func (e *Engine) earnedAchievementIDs(ctx context.Context, userID uint) (map[uint]bool, error) {
	var ids []uint
	if err := e.db.WithContext(ctx).Model(&models.UserAchievement{}).Where("user_id = ?", userID).Pluck("achievement_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load earned achievements: %w", err)
	}
	out := make(map[uint]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (e *Engine) earnedBadgeIDs(ctx context.Context, userID uint) (map[uint]bool, error) {
	var ids []uint
	if err := e.db.WithContext(ctx).Model(&models.UserBadge{}).Where("user_id = ?", userID).Pluck("badge_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load earned badges: %w", err)
	}
	out := make(map[uint]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (e *Engine) revokedIDs(ctx context.Context, userID uint, kind string) (map[uint]bool, error) {
	var ids []uint
	err := e.db.WithContext(ctx).Model(&models.Revocation{}).
		Where("user_id = ? AND kind = ?", userID, kind).
		Pluck("ref_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load revoked %ss: %w", kind, err)
	}
	out := make(map[uint]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func isRevoked(tx *gorm.DB, userID uint, kind string, refID uint) (bool, error) {
	var n int64
	err := tx.Model(&models.Revocation{}).
		Where("user_id = ? AND kind = ? AND ref_id = ?", userID, kind, refID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check revoked %s %d: %w", kind, refID, err)
	}
	return n > 0, nil
}

// GetUserAchievements lists the user's unlocked achievements, oldest first.
func (e *Engine) GetUserAchievements(ctx context.Context, userID uint) ([]models.UserAchievement, error) {
	items := []models.UserAchievement{}
	err := e.db.WithContext(ctx).Preload("Achievement").
		Where("user_id = ?", userID).
		Order("unlocked_at ASC").Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list user achievements: %w", err)
	}
	return items, nil
}

// GetAvailableAchievements lists active achievements the user has not unlocked yet.
// Hidden entries are only listed when includeHidden is set.
func (e *Engine) GetAvailableAchievements(ctx context.Context, userID uint, includeHidden bool) ([]models.Achievement, error) {
	earned, err := e.earnedAchievementIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	revoked, err := e.revokedIDs(ctx, userID, models.RevokedAchievement)
	if err != nil {
		return nil, err
	}
	for id := range revoked {
		earned[id] = true
	}
	q := e.db.WithContext(ctx).Where("is_active = ?", true)
	if !includeHidden {
		q = q.Where("is_hidden = ?", false)
	}
	var all []models.Achievement
	if err := q.Order("id ASC").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	out := make([]models.Achievement, 0, len(all))
	for _, a := range all {
		if !earned[a.ID] {
			out = append(out, a)
		}
	}
	return out, nil
}

// GetAchievementProgress reports current/target for each visible achievement.
// Hidden achievements appear once unlocked, or always when includeHidden is set.
func (e *Engine) GetAchievementProgress(ctx context.Context, userID uint, includeHidden bool) ([]AchievementProgress, error) {
	var all []models.Achievement
	if err := e.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	var rows []models.UserAchievement
	if err := e.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list user achievements: %w", err)
	}
	unlockedAt := make(map[uint]time.Time, len(rows))
	for _, r := range rows {
		unlockedAt[r.AchievementID] = r.UnlockedAt
	}
	stats, err := e.CollectStats(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]AchievementProgress, 0, len(all))
	for _, a := range all {
		at, unlocked := unlockedAt[a.ID]
		if a.IsHidden && !unlocked && !includeHidden {
			continue
		}
		prog, err := EvaluateCriteria(a.Criteria.Data(), *stats)
		if err != nil {
			continue
		}
		item := AchievementProgress{Achievement: a, Progress: prog, Unlocked: unlocked}
		if unlocked {
			t := at
			item.UnlockedAt = &t
			item.Progress.Current = item.Progress.Target
			item.Progress.Met = true
		}
		out = append(out, item)
	}
	return out, nil
}

// GetUserBadges lists the user's earned badges, featured first.
func (e *Engine) GetUserBadges(ctx context.Context, userID uint) ([]models.UserBadge, error) {
	items := []models.UserBadge{}
	err := e.db.WithContext(ctx).Preload("Badge").
		Where("user_id = ?", userID).
		Order("is_featured DESC").Order("earned_at ASC").Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list user badges: %w", err)
	}
	return items, nil
}

// ToggleBadge sets the display flags of an earned badge. A featured badge is always
// displayed, and at most FeaturedBadgeLimit badges can be featured at once.
func (e *Engine) ToggleBadge(ctx context.Context, userID, badgeID uint, displayed, featured bool) (*models.UserBadge, error) {
	if featured {
		displayed = true
	}
	var ub models.UserBadge
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := e.lockProgress(tx, userID); err != nil {
			return err
		}
		if err := tx.Where("user_id = ? AND badge_id = ?", userID, badgeID).First(&ub).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBadgeNotEarned
			}
			return fmt.Errorf("load user badge: %w", err)
		}
		if featured && !ub.IsFeatured && e.opts.FeaturedBadgeLimit > 0 {
			var n int64
			if err := tx.Model(&models.UserBadge{}).Where("user_id = ? AND is_featured = ?", userID, true).Count(&n).Error; err != nil {
				return fmt.Errorf("count featured badges: %w", err)
			}
			if n >= int64(e.opts.FeaturedBadgeLimit) {
				return ErrFeaturedLimitReached
			}
		}
		ub.IsDisplayed = displayed
		ub.IsFeatured = featured
		return tx.Model(&ub).Updates(map[string]interface{}{
			"is_displayed": displayed,
			"is_featured":  featured,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	if err := e.db.WithContext(ctx).Preload("Badge").First(&ub, ub.ID).Error; err != nil {
		return nil, fmt.Errorf("reload user badge: %w", err)
	}
	return &ub, nil
}

// RevokeAchievement removes an unlocked achievement and records the revocation so the
// next evaluation does not grant it again. Points already granted stay.
func (e *Engine) RevokeAchievement(ctx context.Context, userID, achievementID uint) error {
	if err := e.revoke(ctx, userID, models.RevokedAchievement, achievementID, &models.UserAchievement{}, "achievement_id", ErrAchievementNotFound); err != nil {
		return err
	}
	e.log.Infow("achievement revoked", "user_id", userID, "achievement_id", achievementID)
	return nil
}

// RevokeBadge removes an earned badge and records the revocation. Points already
// granted stay.
func (e *Engine) RevokeBadge(ctx context.Context, userID, badgeID uint) error {
	if err := e.revoke(ctx, userID, models.RevokedBadge, badgeID, &models.UserBadge{}, "badge_id", ErrBadgeNotEarned); err != nil {
		return err
	}
	e.log.Infow("badge revoked", "user_id", userID, "badge_id", badgeID)
	return nil
}

func (e *Engine) revoke(ctx context.Context, userID uint, kind string, refID uint, join interface{}, column string, missing error) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND "+column+" = ?", userID, refID).Delete(join)
		if res.Error != nil {
			return fmt.Errorf("revoke %s: %w", kind, res.Error)
		}
		if res.RowsAffected == 0 {
			return missing
		}
		mark := models.Revocation{UserID: userID, Kind: kind, RefID: refID, RevokedAt: e.clock()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&mark).Error; err != nil {
			return fmt.Errorf("record %s revocation: %w", kind, err)
		}
		return nil
	})
}
