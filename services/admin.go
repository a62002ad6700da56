package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cppla/taskquest/models"
)

// BalanceDrift is a user whose cached balance disagrees with the ledger.
type BalanceDrift struct {
	UserID            uint  `json:"user_id"`
	CurrentPoints     int64 `json:"current_points"`
	LedgerBalance     int64 `json:"ledger_balance"`
	TotalPointsEarned int64 `json:"total_points_earned"`
	LedgerEarned      int64 `json:"ledger_earned"`
}

// ResetUser wipes every reward row of one user and re-seeds a fresh progress record.
// The user's time zone preference survives the reset.
func (e *Engine) ResetUser(ctx context.Context, userID uint) (*models.UserProgress, error) {
	var fresh models.UserProgress
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		if err := tx.Select("id").First(&u, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("load user %d: %w", userID, err)
		}
		p, err := e.lockProgress(tx, userID)
		if err != nil {
			return err
		}
		zone := p.TimeZone

		for _, m := range []interface{}{
			&models.ChallengeProgress{},
			&models.UserChallenge{},
			&models.UserReward{},
			&models.UserBadge{},
			&models.UserAchievement{},
			&models.Revocation{},
			&models.PointTransaction{},
			&models.TaskCompletion{},
			&models.FocusSession{},
			&models.UserProgress{},
		} {
			if err := tx.Where("user_id = ?", userID).Delete(m).Error; err != nil {
				return fmt.Errorf("reset %T: %w", m, err)
			}
		}

		fresh = e.newProgress(userID)
		fresh.TimeZone = zone
		return tx.Create(&fresh).Error
	})
	if err != nil {
		return nil, err
	}
	e.users.Forget(userID)
	e.InvalidateLeaderboards()
	e.log.Warnw("user progress reset", "user_id", userID)
	return &fresh, nil
}

// AuditBalances reconciles every cached balance against the sum of its ledger.
func (e *Engine) AuditBalances(ctx context.Context) ([]BalanceDrift, error) {
	var rows []BalanceDrift
	err := e.db.WithContext(ctx).Table("user_progress AS p").
		Select("p.user_id AS user_id, p.current_points AS current_points, p.total_points_earned AS total_points_earned, " +
			"COALESCE(SUM(t.points), 0) AS ledger_balance, " +
			"COALESCE(SUM(CASE WHEN t.points > 0 THEN t.points ELSE 0 END), 0) AS ledger_earned").
		Joins("LEFT JOIN point_transactions AS t ON t.user_id = p.user_id").
		Group("p.user_id, p.current_points, p.total_points_earned").
		Order("p.user_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("audit balances: %w", err)
	}
	drift := []BalanceDrift{}
	for _, r := range rows {
		if r.CurrentPoints != r.LedgerBalance || r.TotalPointsEarned != r.LedgerEarned {
			drift = append(drift, r)
			e.log.Warnw("balance drift", "user_id", r.UserID,
				"current_points", r.CurrentPoints, "ledger_balance", r.LedgerBalance,
				"total_points_earned", r.TotalPointsEarned, "ledger_earned", r.LedgerEarned)
		}
	}
	return drift, nil
}

// AdminAdjust applies a signed manual correction. Negative adjustments follow the same
// balance rule as any deduction.
func (e *Engine) AdminAdjust(ctx context.Context, userID uint, delta int64, reason string) (*PointsResult, error) {
	if delta == 0 {
		return nil, ErrInvalidAmount
	}
	desc := "Admin adjustment"
	if reason != "" {
		desc += ": " + reason
	}
	refs := Refs{IdempotencyKey: "admin:" + uuid.NewString()}
	if delta < 0 {
		return e.DeductPoints(ctx, userID, -delta, models.TransactionAdminAdjustment, desc, refs)
	}
	res, err := e.AddPoints(ctx, userID, delta, models.TransactionAdminAdjustment, desc, refs)
	if err != nil {
		return nil, err
	}
	if _, err := e.EvaluateAndUnlock(ctx, userID, "admin_adjustment"); err != nil {
		e.log.Errorw("evaluate achievements after adjustment", "user_id", userID, "error", err)
	}
	return res, nil
}
