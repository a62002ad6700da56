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

// ChallengeUpdate is the effect of one activity on one enrollment.
type ChallengeUpdate struct {
	UserChallengeID uint   `json:"user_challenge_id"`
	ChallengeID     uint   `json:"challenge_id"`
	Name            string `json:"name"`
	Progress        int    `json:"progress"`
	Target          int    `json:"target"`
	Completed       bool   `json:"completed"`
	PointsAwarded   int64  `json:"points_awarded"`
}

// EnrollInChallenge enrolls the user. Enrollments made before the challenge starts stay
// Enrolled until the window opens.
func (e *Engine) EnrollInChallenge(ctx context.Context, userID, challengeID uint) (*models.UserChallenge, error) {
	var uc models.UserChallenge
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := e.lockProgress(tx, userID); err != nil {
			return err
		}
		var ch models.Challenge
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ch, challengeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChallengeNotFound
			}
			return fmt.Errorf("load challenge %d: %w", challengeID, err)
		}
		now := e.clock()
		if !ch.IsActive {
			return ErrChallengeInactive
		}
		if !now.Before(ch.EndDate) {
			return ErrChallengeEnded
		}
		var exists int64
		if err := tx.Model(&models.UserChallenge{}).Where("user_id = ? AND challenge_id = ?", userID, challengeID).Count(&exists).Error; err != nil {
			return fmt.Errorf("check enrollment: %w", err)
		}
		if exists > 0 {
			return ErrAlreadyEnrolled
		}
		if ch.MaxParticipants != nil {
			var n int64
			if err := tx.Model(&models.UserChallenge{}).Where("challenge_id = ?", challengeID).Count(&n).Error; err != nil {
				return fmt.Errorf("count participants: %w", err)
			}
			if n >= int64(*ch.MaxParticipants) {
				return ErrChallengeFull
			}
		}

		status := models.ChallengeInProgress
		if now.Before(ch.StartDate) {
			status = models.ChallengeEnrolled
		}
		uc = models.UserChallenge{
			UserID:      userID,
			ChallengeID: challengeID,
			Status:      status,
			EnrolledAt:  now,
		}
		if err := tx.Omit(clause.Associations).Create(&uc).Error; err != nil {
			return fmt.Errorf("create enrollment: %w", err)
		}
		uc.Challenge = ch
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Infow("challenge enrolled", "user_id", userID, "challenge_id", challengeID, "status", uc.Status)
	return &uc, nil
}

// ProcessChallengeProgress applies one unit of activityType to every open enrollment of
// the user whose challenge window contains now. A non-nil relatedID is counted at most
// once per enrollment.
func (e *Engine) ProcessChallengeProgress(ctx context.Context, userID uint, activityType string, relatedID *uint) ([]ChallengeUpdate, error) {
	if activityType == "" {
		return nil, ErrInvalidActivity
	}
	var (
		updates  []ChallengeUpdate
		postings []*PointsResult
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := e.lockProgress(tx, userID)
		if err != nil {
			return err
		}
		updates, postings, err = e.progressChallengesTx(tx, p, activityType, relatedID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if e.observeChallengeUpdates(userID, updates, postings) {
		if _, err := e.EvaluateAndUnlock(ctx, userID, "challenge_completed"); err != nil {
			e.log.Errorw("evaluate achievements after challenge", "user_id", userID, "error", err)
		}
	}
	return updates, nil
}

// progressChallengesTx is the in-transaction part of ProcessChallengeProgress so that
// event recording and challenge progress commit together.
func (e *Engine) progressChallengesTx(tx *gorm.DB, p *models.UserProgress, activityType string, relatedID *uint) ([]ChallengeUpdate, []*PointsResult, error) {
	now := e.clock()
	var open []models.UserChallenge
	err := tx.Preload("Challenge").
		Joins("JOIN challenges ON challenges.id = user_challenges.challenge_id").
		Where("user_challenges.user_id = ? AND user_challenges.is_completed = ?", p.UserID, false).
		Where("user_challenges.status IN ?", []models.ChallengeStatus{models.ChallengeEnrolled, models.ChallengeInProgress}).
		Where("challenges.activity_type = ? AND challenges.is_active = ?", activityType, true).
		Where("challenges.start_date <= ? AND challenges.end_date > ?", now, now).
		Order("user_challenges.id ASC").
		Find(&open).Error
	if err != nil {
		return nil, nil, fmt.Errorf("load open challenges: %w", err)
	}

	var (
		updates  []ChallengeUpdate
		postings []*PointsResult
	)
	for _, uc := range open {
		if relatedID != nil {
			var seen int64
			if err := tx.Model(&models.ChallengeProgress{}).
				Where("user_challenge_id = ? AND related_entity_id = ?", uc.ID, *relatedID).
				Count(&seen).Error; err != nil {
				return nil, nil, fmt.Errorf("check challenge progress: %w", err)
			}
			if seen > 0 {
				continue
			}
		}

		target := uc.Challenge.TargetCount
		next := uc.CurrentProgress + 1
		if next > target {
			next = target
		}
		done := next >= target
		fields := map[string]interface{}{
			"current_progress": next,
			"status":           models.ChallengeInProgress,
		}
		if done {
			fields["status"] = models.ChallengeCompleted
			fields["is_completed"] = true
			fields["completed_at"] = now
		}
		res := tx.Model(&models.UserChallenge{}).
			Where("id = ? AND is_completed = ?", uc.ID, false).
			Updates(fields)
		if res.Error != nil {
			return nil, nil, fmt.Errorf("update challenge progress: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		step := models.ChallengeProgress{
			UserChallengeID: uc.ID,
			UserID:          p.UserID,
			ProgressDelta:   next - uc.CurrentProgress,
			RelatedEntityID: relatedID,
			RecordedAt:      now,
		}
		if err := tx.Create(&step).Error; err != nil {
			return nil, nil, fmt.Errorf("record challenge progress: %w", err)
		}

		u := ChallengeUpdate{
			UserChallengeID: uc.ID,
			ChallengeID:     uc.ChallengeID,
			Name:            uc.Challenge.Name,
			Progress:        next,
			Target:          target,
			Completed:       done,
		}
		if done && uc.Challenge.PointReward > 0 {
			cid := uc.ChallengeID
			posting, err := e.credit(tx, p, uc.Challenge.PointReward, models.TransactionChallengeReward,
				"Challenge completed: "+uc.Challenge.Name,
				Refs{ChallengeID: &cid, IdempotencyKey: fmt.Sprintf("challenge:%d:%d", p.UserID, cid)})
			if err != nil {
				return nil, nil, err
			}
			if !posting.AlreadyProcessed {
				u.PointsAwarded = posting.Transaction.Points
			}
			postings = append(postings, posting)
		}
		updates = append(updates, u)
	}
	return updates, postings, nil
}

// observeChallengeUpdates records the post-commit effects of challenge progress and
// reports whether any challenge was completed.
func (e *Engine) observeChallengeUpdates(userID uint, updates []ChallengeUpdate, postings []*PointsResult) bool {
	for _, posting := range postings {
		e.observePosting(posting)
	}
	completed := false
	for _, u := range updates {
		if u.Completed {
			completed = true
			observeChallengeCompleted()
			e.log.Infow("challenge completed", "user_id", userID, "challenge_id", u.ChallengeID, "points", u.PointsAwarded)
		}
	}
	return completed
}

// ExpireChallenges promotes enrollments whose window has opened and expires open
// enrollments whose window has closed. It returns the number of expired enrollments.
func (e *Engine) ExpireChallenges(ctx context.Context, now time.Time) (int64, error) {
	if now.IsZero() {
		now = e.clock()
	}
	now = now.UTC()
	db := e.db.WithContext(ctx)

	started := db.Model(&models.Challenge{}).Select("id").Where("start_date <= ? AND end_date > ?", now, now)
	if err := db.Model(&models.UserChallenge{}).
		Where("status = ? AND challenge_id IN (?)", models.ChallengeEnrolled, started).
		Update("status", models.ChallengeInProgress).Error; err != nil {
		return 0, fmt.Errorf("promote enrollments: %w", err)
	}

	ended := db.Model(&models.Challenge{}).Select("id").Where("end_date <= ?", now)
	res := db.Model(&models.UserChallenge{}).
		Where("is_completed = ? AND status IN ? AND challenge_id IN (?)", false,
			[]models.ChallengeStatus{models.ChallengeEnrolled, models.ChallengeInProgress}, ended).
		Update("status", models.ChallengeExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("expire enrollments: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		observeChallengesExpired(res.RowsAffected)
		e.log.Infow("challenges expired", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// GetActiveChallenges lists active challenges that have not ended.
func (e *Engine) GetActiveChallenges(ctx context.Context) ([]models.Challenge, error) {
	items := []models.Challenge{}
	err := e.db.WithContext(ctx).
		Where("is_active = ? AND end_date > ?", true, e.clock()).
		Order("start_date ASC").Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	return items, nil
}

// GetUserChallenges lists the user's enrollments, newest first.
func (e *Engine) GetUserChallenges(ctx context.Context, userID uint) ([]models.UserChallenge, error) {
	items := []models.UserChallenge{}
	err := e.db.WithContext(ctx).Preload("Challenge").
		Where("user_id = ?", userID).
		Order("enrolled_at DESC").Order("id DESC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list user challenges: %w", err)
	}
	return items, nil
}

// LeaveChallenge drops an enrollment that has not been completed.
func (e *Engine) LeaveChallenge(ctx context.Context, userID, challengeID uint) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := e.lockProgress(tx, userID); err != nil {
			return err
		}
		var uc models.UserChallenge
		if err := tx.Where("user_id = ? AND challenge_id = ?", userID, challengeID).First(&uc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotEnrolled
			}
			return fmt.Errorf("load enrollment: %w", err)
		}
		if uc.IsCompleted {
			return ErrChallengeCompleted
		}
		if err := tx.Where("user_challenge_id = ?", uc.ID).Delete(&models.ChallengeProgress{}).Error; err != nil {
			return fmt.Errorf("delete challenge progress: %w", err)
		}
		return tx.Delete(&uc).Error
	})
}
