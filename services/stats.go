package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/cppla/taskquest/models"
)

// Dashboard is the aggregated gamification view of one user.
type Dashboard struct {
	Progress         *models.UserProgress `json:"progress"`
	Stats            *Stats               `json:"stats"`
	BadgesEarned     int64                `json:"badges_earned"`
	RewardsRedeemed  int64                `json:"rewards_redeemed"`
	RewardsUnused    int64                `json:"rewards_unused"`
	ActiveChallenges int64                `json:"active_challenges"`
	PointsRank       int64                `json:"points_rank"`
	PointsToNext     int64                `json:"points_to_next_level"`
}

// GetStats builds the user's dashboard.
func (e *Engine) GetStats(ctx context.Context, userID uint) (*Dashboard, error) {
	d := &Dashboard{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p, err := e.GetProgress(gctx, userID)
		if err != nil {
			return err
		}
		d.Progress = p
		return nil
	})
	g.Go(func() error {
		s, err := e.CollectStats(gctx, userID)
		if err != nil {
			return err
		}
		d.Stats = s
		return nil
	})
	g.Go(func() error {
		return e.db.WithContext(gctx).Model(&models.UserBadge{}).Where("user_id = ?", userID).Count(&d.BadgesEarned).Error
	})
	g.Go(func() error {
		return e.db.WithContext(gctx).Model(&models.UserReward{}).Where("user_id = ?", userID).Count(&d.RewardsRedeemed).Error
	})
	g.Go(func() error {
		return e.db.WithContext(gctx).Model(&models.UserReward{}).Where("user_id = ? AND is_used = ?", userID, false).Count(&d.RewardsUnused).Error
	})
	g.Go(func() error {
		return e.db.WithContext(gctx).Model(&models.UserChallenge{}).
			Where("user_id = ? AND status IN ?", userID, []models.ChallengeStatus{models.ChallengeEnrolled, models.ChallengeInProgress}).
			Count(&d.ActiveChallenges).Error
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("stats for user %d: %w", userID, err)
	}

	rank, err := e.pointsRank(ctx, d.Progress)
	if err != nil {
		return nil, err
	}
	d.PointsRank = rank
	if gap := d.Progress.NextLevelThreshold - d.Progress.TotalPointsEarned; gap > 0 {
		d.PointsToNext = gap
	}
	return d, nil
}

// pointsRank is the user's position on the global points board, using the same
// tie-break as the leaderboard. Users without progress are unranked (0).
func (e *Engine) pointsRank(ctx context.Context, p *models.UserProgress) (int64, error) {
	if p.ID == 0 {
		return 0, nil
	}
	var ahead int64
	err := e.db.WithContext(ctx).Model(&models.UserProgress{}).
		Where("current_points > ? OR (current_points = ? AND user_id < ?)", p.CurrentPoints, p.CurrentPoints, p.UserID).
		Count(&ahead).Error
	if err != nil {
		return 0, fmt.Errorf("rank user %d: %w", p.UserID, err)
	}
	return ahead + 1, nil
}
