package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/taskquest/models"
)

func TestSeedCatalogRunsOnce(t *testing.T) {
	e, db, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	require.NoError(t, e.SeedCatalog(ctx))
	require.NoError(t, e.SeedCatalog(ctx))

	assert.Equal(t, int64(len(defaultAchievements())), countRows(t, db, &models.Achievement{}, "1 = 1"))
	assert.Equal(t, int64(len(defaultBadges())), countRows(t, db, &models.Badge{}, "1 = 1"))
	assert.Equal(t, int64(len(defaultRewards())), countRows(t, db, &models.Reward{}, "1 = 1"))

	res := completeTask(t, e, 1, 1, 0)
	require.Len(t, res.Unlocked.Achievements, 1)
	assert.Equal(t, "First Steps", res.Unlocked.Achievements[0].Name)
	require.Len(t, res.Unlocked.Badges, 1)
	assert.Equal(t, "Starter", res.Unlocked.Badges[0].Name)
}

func TestCreateAchievementValidation(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	a, err := e.CreateAchievement(ctx, models.Achievement{Name: " Night Owl ", Criteria: criteria(models.CriteriaFocusSessions, 3), IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "Night Owl", a.Name)
	assert.Equal(t, models.DifficultyEasy, a.Difficulty)

	_, err = e.CreateAchievement(ctx, models.Achievement{Name: "Night Owl", Criteria: criteria(models.CriteriaFocusSessions, 3)})
	assert.ErrorIs(t, err, ErrInvalidOperation)
	_, err = e.CreateAchievement(ctx, models.Achievement{Name: "Nothing", Criteria: criteria(models.CriteriaNone, 0)})
	assert.ErrorIs(t, err, ErrInvalidCriteria)
	_, err = e.CreateAchievement(ctx, models.Achievement{Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestCreateBadgeValidation(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	_, err := e.CreateBadge(ctx, models.Badge{Name: "Orphan"})
	assert.ErrorIs(t, err, ErrInvalidCriteria)

	missing := uint(42)
	_, err = e.CreateBadge(ctx, models.Badge{Name: "Dangling", RequiredAchievementID: &missing})
	assert.ErrorIs(t, err, ErrNotFound)

	b, err := e.CreateBadge(ctx, models.Badge{Name: "Loyal", Criteria: criteria(models.CriteriaDailyLogins, 10)})
	require.NoError(t, err)
	assert.NotZero(t, b.ID)
}
