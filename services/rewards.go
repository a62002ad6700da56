package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/taskquest/models"
)

// RedeemReward spends points on a reward. Preconditions are checked in a fixed order:
// availability, level, stock, balance. The stock decrement is a single conditional
// update so a finite reward is never oversold.
func (e *Engine) RedeemReward(ctx context.Context, userID, rewardID uint) (*models.UserReward, error) {
	var (
		ur      models.UserReward
		posting *PointsResult
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := e.lockProgress(tx, userID)
		if err != nil {
			return err
		}
		var r models.Reward
		if err := tx.First(&r, rewardID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRewardNotFound
			}
			return fmt.Errorf("load reward %d: %w", rewardID, err)
		}
		now := e.clock()
		if !r.IsActive || (r.ExpirationDate != nil && !now.Before(*r.ExpirationDate)) {
			return ErrRewardInactive
		}
		if p.Level < r.MinimumLevel {
			return ErrLevelTooLow
		}
		if r.Quantity != nil && *r.Quantity <= 0 {
			return ErrRewardOutOfStock
		}
		if p.CurrentPoints < r.PointCost {
			return ErrNotEnoughPoints
		}

		if r.PointCost > 0 {
			id := r.ID
			posting, err = e.debit(tx, p, r.PointCost, models.TransactionRewardRedemption,
				"Redeemed reward: "+r.Name, Refs{RewardID: &id})
			if err != nil {
				return err
			}
		}
		if r.Quantity != nil {
			if err := takeStock(tx, r.ID); err != nil {
				return err
			}
		}

		ur = models.UserReward{
			UserID:      userID,
			RewardID:    r.ID,
			PointsSpent: r.PointCost,
			RedeemedAt:  now,
		}
		if err := tx.Omit(clause.Associations).Create(&ur).Error; err != nil {
			return fmt.Errorf("create user reward: %w", err)
		}
		if err := tx.First(&ur.Reward, r.ID).Error; err != nil {
			return fmt.Errorf("reload reward: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.observePosting(posting)
	observeRedemption()
	e.log.Infow("reward redeemed", "user_id", userID, "reward_id", rewardID, "points", ur.PointsSpent)
	return &ur, nil
}

// UseReward marks a redeemed reward as used. It can only happen once.
func (e *Engine) UseReward(ctx context.Context, userID, userRewardID uint) (*models.UserReward, error) {
	var ur models.UserReward
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", userRewardID, userID).First(&ur).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserRewardNotFound
			}
			return fmt.Errorf("load user reward: %w", err)
		}
		if ur.IsUsed {
			return ErrRewardAlreadyUsed
		}
		now := e.clock()
		res := tx.Model(&models.UserReward{}).
			Where("id = ? AND is_used = ?", ur.ID, false).
			Updates(map[string]interface{}{"is_used": true, "used_at": now})
		if res.Error != nil {
			return fmt.Errorf("use reward: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrRewardAlreadyUsed
		}
		ur.IsUsed = true
		ur.UsedAt = &now
		return tx.First(&ur.Reward, ur.RewardID).Error
	})
	if err != nil {
		return nil, err
	}
	return &ur, nil
}

// GetAvailableRewards lists active, unexpired, in-stock rewards the user's level allows.
func (e *Engine) GetAvailableRewards(ctx context.Context, userID uint) ([]models.Reward, error) {
	p, err := e.GetProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := e.clock()
	items := []models.Reward{}
	err = e.db.WithContext(ctx).
		Where("is_active = ? AND minimum_level <= ?", true, p.Level).
		Where("expiration_date IS NULL OR expiration_date > ?", now).
		Where("quantity IS NULL OR quantity > 0").
		Order("point_cost ASC").Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	return items, nil
}

// GetUserRewards lists the user's redemptions, newest first.
func (e *Engine) GetUserRewards(ctx context.Context, userID uint) ([]models.UserReward, error) {
	items := []models.UserReward{}
	err := e.db.WithContext(ctx).Preload("Reward").
		Where("user_id = ?", userID).
		Order("redeemed_at DESC").Order("id DESC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list user rewards: %w", err)
	}
	return items, nil
}

// takeStock decrements a limited reward's quantity only while it is positive. The
// condition is evaluated by the database, so a stale read of quantity cannot oversell.
func takeStock(tx *gorm.DB, rewardID uint) error {
	res := tx.Model(&models.Reward{}).
		Where("id = ? AND quantity > 0", rewardID).
		Update("quantity", gorm.Expr("quantity - 1"))
	if res.Error != nil {
		return fmt.Errorf("decrement reward stock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRewardOutOfStock
	}
	return nil
}
