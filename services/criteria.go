package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/cppla/taskquest/models"
)

// Stats is the snapshot of user statistics that unlock criteria are evaluated against.
type Stats struct {
	TasksCompleted       int64          `json:"tasks_completed"`
	TasksByCategory      map[uint]int64 `json:"tasks_by_category"`
	CurrentStreak        int            `json:"current_streak"`
	LongestStreak        int            `json:"longest_streak"`
	TotalPoints          int64          `json:"total_points"`
	Level                int            `json:"level"`
	DailyLogins          int64          `json:"daily_logins"`
	FocusSessions        int64          `json:"focus_sessions"`
	FocusMinutes         int64          `json:"focus_minutes"`
	ChallengesCompleted  int64          `json:"challenges_completed"`
	AchievementsUnlocked int64          `json:"achievements_unlocked"`
}

// CriteriaProgress is how far a user is towards a criteria threshold.
type CriteriaProgress struct {
	Current int64 `json:"current"`
	Target  int64 `json:"target"`
	Met     bool  `json:"met"`
}

// ValidateCriteria rejects rules the interpreter cannot evaluate.
func ValidateCriteria(c models.Criteria) error {
	if c.Threshold <= 0 {
		return ErrInvalidCriteria
	}
	switch c.Kind {
	case models.CriteriaCategoryTasks:
		if c.CategoryID == nil {
			return ErrInvalidCriteria
		}
	case models.CriteriaTasksCompleted, models.CriteriaCurrentStreak, models.CriteriaLongestStreak,
		models.CriteriaTotalPoints, models.CriteriaLevel, models.CriteriaDailyLogins,
		models.CriteriaFocusSessions, models.CriteriaFocusMinutes, models.CriteriaChallengesCompleted,
		models.CriteriaAchievementsUnlocked:
	default:
		return ErrInvalidCriteria
	}
	return nil
}

// EvaluateCriteria interprets c against s. A CriteriaNone rule never holds.
func EvaluateCriteria(c models.Criteria, s Stats) (CriteriaProgress, error) {
	var current int64
	switch c.Kind {
	case models.CriteriaNone:
		return CriteriaProgress{Target: c.Threshold}, nil
	case models.CriteriaTasksCompleted:
		current = s.TasksCompleted
	case models.CriteriaCategoryTasks:
		if c.CategoryID == nil {
			return CriteriaProgress{}, ErrInvalidCriteria
		}
		current = s.TasksByCategory[*c.CategoryID]
	case models.CriteriaCurrentStreak:
		current = int64(s.CurrentStreak)
	case models.CriteriaLongestStreak:
		current = int64(s.LongestStreak)
	case models.CriteriaTotalPoints:
		current = s.TotalPoints
	case models.CriteriaLevel:
		current = int64(s.Level)
	case models.CriteriaDailyLogins:
		current = s.DailyLogins
	case models.CriteriaFocusSessions:
		current = s.FocusSessions
	case models.CriteriaFocusMinutes:
		current = s.FocusMinutes
	case models.CriteriaChallengesCompleted:
		current = s.ChallengesCompleted
	case models.CriteriaAchievementsUnlocked:
		current = s.AchievementsUnlocked
	default:
		return CriteriaProgress{}, ErrInvalidCriteria
	}
	met := c.Threshold > 0 && current >= c.Threshold
	if current > c.Threshold && c.Threshold > 0 {
		current = c.Threshold
	}
	return CriteriaProgress{Current: current, Target: c.Threshold, Met: met}, nil
}

// CollectStats gathers the statistics snapshot for a user from the ledger, the
// engine's own tables and the task read model.
func (e *Engine) CollectStats(ctx context.Context, userID uint) (*Stats, error) {
	s := &Stats{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p, err := e.GetProgress(gctx, userID)
		if err != nil {
			return err
		}
		s.CurrentStreak = e.EffectiveStreak(p)
		s.LongestStreak = p.LongestStreak
		s.TotalPoints = p.TotalPointsEarned
		s.Level = p.Level
		return nil
	})
	g.Go(func() error {
		n, err := e.tasks.CompletedCount(gctx, userID)
		if err != nil {
			return fmt.Errorf("count completed tasks: %w", err)
		}
		s.TasksCompleted = n
		return nil
	})
	g.Go(func() error {
		m, err := e.tasks.CompletedByCategory(gctx, userID)
		if err != nil {
			return fmt.Errorf("count tasks by category: %w", err)
		}
		s.TasksByCategory = m
		return nil
	})
	g.Go(func() error {
		return e.db.WithContext(gctx).Model(&models.PointTransaction{}).
			Where("user_id = ? AND transaction_type = ?", userID, models.TransactionDailyLogin).
			Count(&s.DailyLogins).Error
	})
	g.Go(func() error {
		var row struct {
			Sessions int64
			Minutes  int64
		}
		err := e.db.WithContext(gctx).Model(&models.FocusSession{}).
			Select("COUNT(*) AS sessions, COALESCE(SUM(minutes), 0) AS minutes").
			Where("user_id = ?", userID).
			Scan(&row).Error
		s.FocusSessions, s.FocusMinutes = row.Sessions, row.Minutes
		return err
	})
	g.Go(func() error {
		return e.db.WithContext(gctx).Model(&models.UserChallenge{}).
			Where("user_id = ? AND is_completed = ?", userID, true).
			Count(&s.ChallengesCompleted).Error
	})
	g.Go(func() error {
		return e.db.WithContext(gctx).Model(&models.UserAchievement{}).
			Where("user_id = ?", userID).
			Count(&s.AchievementsUnlocked).Error
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect stats for user %d: %w", userID, err)
	}
	return s, nil
}
