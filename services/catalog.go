package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cppla/taskquest/models"
)

var errDuplicateName = domainError(ErrInvalidOperation, "duplicate_name", "name already in use")

// CreateAchievement adds an achievement to the catalog.
func (e *Engine) CreateAchievement(ctx context.Context, a models.Achievement) (*models.Achievement, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return nil, domainError(ErrInvalidOperation, "invalid_name", "name is required")
	}
	if err := ValidateCriteria(a.Criteria.Data()); err != nil {
		return nil, err
	}
	if a.PointValue < 0 {
		return nil, ErrInvalidAmount
	}
	if a.Difficulty == "" {
		a.Difficulty = models.DifficultyEasy
	}
	a.ID = 0
	if err := e.createUnique(ctx, &models.Achievement{}, a.Name, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateBadge adds a badge. A badge needs a required achievement, criteria, or both.
func (e *Engine) CreateBadge(ctx context.Context, b models.Badge) (*models.Badge, error) {
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		return nil, domainError(ErrInvalidOperation, "invalid_name", "name is required")
	}
	c := b.Criteria.Data()
	if c.Kind == models.CriteriaNone && b.RequiredAchievementID == nil {
		return nil, ErrInvalidCriteria
	}
	if c.Kind != models.CriteriaNone {
		if err := ValidateCriteria(c); err != nil {
			return nil, err
		}
	}
	if b.PointValue < 0 {
		return nil, ErrInvalidAmount
	}
	if b.RequiredAchievementID != nil {
		var n int64
		if err := e.db.WithContext(ctx).Model(&models.Achievement{}).Where("id = ?", *b.RequiredAchievementID).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("check required achievement: %w", err)
		}
		if n == 0 {
			return nil, ErrAchievementNotFound
		}
	}
	b.ID = 0
	if err := e.createUnique(ctx, &models.Badge{}, b.Name, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateReward adds a reward to the store.
func (e *Engine) CreateReward(ctx context.Context, r models.Reward) (*models.Reward, error) {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return nil, domainError(ErrInvalidOperation, "invalid_name", "name is required")
	}
	if r.PointCost < 0 {
		return nil, ErrInvalidAmount
	}
	if r.Quantity != nil && *r.Quantity < 0 {
		return nil, domainError(ErrInvalidOperation, "invalid_quantity", "quantity cannot be negative")
	}
	if r.MinimumLevel < 1 {
		r.MinimumLevel = 1
	}
	if r.ExpirationDate != nil {
		t := r.ExpirationDate.UTC()
		r.ExpirationDate = &t
	}
	r.ID = 0
	if err := e.db.WithContext(ctx).Create(&r).Error; err != nil {
		return nil, fmt.Errorf("create reward: %w", err)
	}
	return &r, nil
}

// CreateChallenge adds a time-boxed challenge.
func (e *Engine) CreateChallenge(ctx context.Context, c models.Challenge) (*models.Challenge, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, domainError(ErrInvalidOperation, "invalid_name", "name is required")
	}
	if c.ActivityType == "" {
		return nil, ErrInvalidActivity
	}
	if c.TargetCount <= 0 || c.StartDate.IsZero() || !c.EndDate.After(c.StartDate) {
		return nil, ErrInvalidChallenge
	}
	if c.PointReward < 0 {
		return nil, ErrInvalidAmount
	}
	if c.MaxParticipants != nil && *c.MaxParticipants <= 0 {
		return nil, ErrInvalidChallenge
	}
	if c.Difficulty == "" {
		c.Difficulty = models.DifficultyMedium
	}
	c.StartDate, c.EndDate = c.StartDate.UTC(), c.EndDate.UTC()
	c.ID = 0
	if err := e.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}
	return &c, nil
}

func (e *Engine) createUnique(ctx context.Context, model interface{}, name string, row interface{}) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(model).Where("name = ?", name).Count(&n).Error; err != nil {
			return fmt.Errorf("check name: %w", err)
		}
		if n > 0 {
			return errDuplicateName
		}
		return tx.Create(row).Error
	})
}

// SeedCatalog installs the default achievements, badges and rewards on an empty catalog.
func (e *Engine) SeedCatalog(ctx context.Context) error {
	var n int64
	if err := e.db.WithContext(ctx).Model(&models.Achievement{}).Count(&n).Error; err != nil {
		return fmt.Errorf("count achievements: %w", err)
	}
	if n > 0 {
		return nil
	}

	ids := map[string]uint{}
	for _, a := range defaultAchievements() {
		created, err := e.CreateAchievement(ctx, a)
		if err != nil && !errors.Is(err, errDuplicateName) {
			return fmt.Errorf("seed achievement %q: %w", a.Name, err)
		}
		if created != nil {
			ids[created.Name] = created.ID
		}
	}
	for _, sb := range defaultBadges() {
		b := sb.badge
		if sb.requires != "" {
			id, ok := ids[sb.requires]
			if !ok {
				continue
			}
			b.RequiredAchievementID = &id
		}
		if _, err := e.CreateBadge(ctx, b); err != nil && !errors.Is(err, errDuplicateName) {
			return fmt.Errorf("seed badge %q: %w", b.Name, err)
		}
	}
	for _, r := range defaultRewards() {
		if _, err := e.CreateReward(ctx, r); err != nil {
			return fmt.Errorf("seed reward %q: %w", r.Name, err)
		}
	}
	e.log.Infow("default catalog seeded", "achievements", len(ids))
	return nil
}

func rule(kind models.CriteriaKind, threshold int64) datatypes.JSONType[models.Criteria] {
	return datatypes.NewJSONType(models.Criteria{Kind: kind, Threshold: threshold})
}

func defaultAchievements() []models.Achievement {
	return []models.Achievement{
		{Name: "First Steps", Description: "Complete your first task", Category: "tasks", Criteria: rule(models.CriteriaTasksCompleted, 1), PointValue: 10, Difficulty: models.DifficultyEasy, IsActive: true},
		{Name: "Getting Things Done", Description: "Complete 25 tasks", Category: "tasks", Criteria: rule(models.CriteriaTasksCompleted, 25), PointValue: 50, Difficulty: models.DifficultyMedium, IsActive: true},
		{Name: "Task Master", Description: "Complete 100 tasks", Category: "tasks", Criteria: rule(models.CriteriaTasksCompleted, 100), PointValue: 200, Difficulty: models.DifficultyHard, IsActive: true},
		{Name: "On a Roll", Description: "Log in 3 days in a row", Category: "streak", Criteria: rule(models.CriteriaCurrentStreak, 3), PointValue: 30, Difficulty: models.DifficultyEasy, IsActive: true},
		{Name: "Week Warrior", Description: "Log in 7 days in a row", Category: "streak", Criteria: rule(models.CriteriaCurrentStreak, 7), PointValue: 100, Difficulty: models.DifficultyMedium, IsActive: true},
		{Name: "Deep Focus", Description: "Focus for 5 hours in total", Category: "focus", Criteria: rule(models.CriteriaFocusMinutes, 300), PointValue: 100, Difficulty: models.DifficultyMedium, IsActive: true},
		{Name: "Rising Star", Description: "Reach level 5", Category: "level", Criteria: rule(models.CriteriaLevel, 5), PointValue: 50, Difficulty: models.DifficultyMedium, IsActive: true},
		{Name: "Challenger", Description: "Complete a challenge", Category: "challenges", Criteria: rule(models.CriteriaChallengesCompleted, 1), PointValue: 50, Difficulty: models.DifficultyEasy, IsActive: true},
		{Name: "Collector", Description: "Unlock 5 achievements", Category: "meta", Criteria: rule(models.CriteriaAchievementsUnlocked, 5), PointValue: 100, Difficulty: models.DifficultyHard, IsHidden: true, IsActive: true},
	}
}

type seedBadge struct {
	badge    models.Badge
	requires string
}

func defaultBadges() []seedBadge {
	return []seedBadge{
		{badge: models.Badge{Name: "Starter", Description: "Completed a first task", Icon: "seedling", Criteria: rule(models.CriteriaNone, 0)}, requires: "First Steps"},
		{badge: models.Badge{Name: "Focus Monk", Description: "Five hours of focus", Icon: "lotus", Criteria: rule(models.CriteriaNone, 0), PointValue: 25}, requires: "Deep Focus"},
		{badge: models.Badge{Name: "Streak Flame", Description: "A 30 day streak", Icon: "flame", Criteria: rule(models.CriteriaLongestStreak, 30), PointValue: 100}},
	}
}

func defaultRewards() []models.Reward {
	return []models.Reward{
		{Name: "Extra screen time", Description: "30 minutes of extra screen time", PointCost: 100, MinimumLevel: 1, IsActive: true},
		{Name: "Pick dinner", Description: "Choose what the family eats tonight", PointCost: 250, MinimumLevel: 2, IsActive: true},
		{Name: "Movie night", Description: "Pick the movie for movie night", PointCost: 500, MinimumLevel: 3, IsActive: true},
	}
}
