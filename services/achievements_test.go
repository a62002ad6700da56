package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/taskquest/models"
)

func TestAchievementUnlocksAtMostOnce(t *testing.T) {
	e, db, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()
	a := seedAchievement(t, db, "First Steps", models.CriteriaTasksCompleted, 1, 50, false)

	res := completeTask(t, e, 1, 100, 0)
	require.Len(t, res.Unlocked.Achievements, 1)
	assert.Equal(t, a.ID, res.Unlocked.Achievements[0].ID)
	assert.Equal(t, int64(50), res.Unlocked.PointsAwarded)

	res = completeTask(t, e, 1, 101, 0)
	assert.True(t, res.Unlocked.Empty())

	again, err := e.EvaluateAndUnlock(ctx, 1, "manual")
	require.NoError(t, err)
	assert.True(t, again.Empty())

	assert.Equal(t, int64(1), countRows(t, db, &models.UserAchievement{}, "user_id = ?", 1))
	assert.Equal(t, int64(1), countRows(t, db, &models.PointTransaction{}, "transaction_type = ?", models.TransactionAchievementBonus))
	p, err := e.GetProgress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(50), p.CurrentPoints)
}

func TestAchievementCascadesIntoBadge(t *testing.T) {
	e, db, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()
	a := seedAchievement(t, db, "First Steps", models.CriteriaTasksCompleted, 1, 50, false)
	badge := models.Badge{Name: "Starter", RequiredAchievementID: &a.ID, PointValue: 5}
	require.NoError(t, db.Create(&badge).Error)

	res := completeTask(t, e, 1, 100, 0)
	require.Len(t, res.Unlocked.Badges, 1)
	assert.Equal(t, "Starter", res.Unlocked.Badges[0].Name)
	assert.Equal(t, int64(55), res.Unlocked.PointsAwarded)
	assert.Equal(t, int64(55), res.Progress.CurrentPoints)

	badges, err := e.GetUserBadges(ctx, 1)
	require.NoError(t, err)
	require.Len(t, badges, 1)
	assert.True(t, badges[0].IsDisplayed)
	assert.Equal(t, "Starter", badges[0].Badge.Name)
}

func TestCriteriaBadgeNeedsRequiredAchievement(t *testing.T) {
	e, db, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()
	a := seedAchievement(t, db, "Ten Tasks", models.CriteriaTasksCompleted, 10, 0, false)
	badge := models.Badge{Name: "Doer", RequiredAchievementID: &a.ID, Criteria: criteria(models.CriteriaTasksCompleted, 1)}
	require.NoError(t, db.Create(&badge).Error)
	free := models.Badge{Name: "Early Bird", Criteria: criteria(models.CriteriaTasksCompleted, 1)}
	require.NoError(t, db.Create(&free).Error)

	res := completeTask(t, e, 1, 100, 0)
	require.Len(t, res.Unlocked.Badges, 1)
	assert.Equal(t, "Early Bird", res.Unlocked.Badges[0].Name)

	badges, err := e.GetUserBadges(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, badges, 1)
}

func TestUnlockChainsWithinOneEvaluation(t *testing.T) {
	e, db, _ := newTestEngine(t, DefaultOptions())
	seedAchievement(t, db, "First Steps", models.CriteriaTasksCompleted, 1, 10, false)
	seedAchievement(t, db, "Collector", models.CriteriaAchievementsUnlocked, 1, 20, true)

	res := completeTask(t, e, 1, 100, 0)
	assert.Len(t, res.Unlocked.Achievements, 2)
	assert.Equal(t, int64(30), res.Progress.CurrentPoints)
}

func TestHiddenAchievements(t *testing.T) {
	e, db, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()
	seedAchievement(t, db, "Visible", models.CriteriaTasksCompleted, 5, 10, false)
	hidden := seedAchievement(t, db, "Secret", models.CriteriaTasksCompleted, 1, 10, true)

	available, err := e.GetAvailableAchievements(ctx, 1, false)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "Visible", available[0].Name)

	available, err = e.GetAvailableAchievements(ctx, 1, true)
	require.NoError(t, err)
	assert.Len(t, available, 2)

	progress, err := e.GetAchievementProgress(ctx, 1, false)
	require.NoError(t, err)
	require.Len(t, progress, 1)

	res := completeTask(t, e, 1, 100, 0)
	require.Len(t, res.Unlocked.Achievements, 1)
	assert.Equal(t, hidden.ID, res.Unlocked.Achievements[0].ID)

	progress, err = e.GetAchievementProgress(ctx, 1, false)
	require.NoError(t, err)
	require.Len(t, progress, 2)
	assert.Equal(t, CriteriaProgress{Current: 1, Target: 5}, progress[0].Progress)
	assert.True(t, progress[1].Unlocked)
	assert.NotNil(t, progress[1].UnlockedAt)

	mine, err := e.GetUserAchievements(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Secret", mine[0].Achievement.Name)
}

func TestRevokeAchievementKeepsPoints(t *testing.T) {
	e, db, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()
	a := seedAchievement(t, db, "First Steps", models.CriteriaTasksCompleted, 1, 50, false)
	completeTask(t, e, 1, 100, 0)

	require.NoError(t, e.RevokeAchievement(ctx, 1, a.ID))
	mine, err := e.GetUserAchievements(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, mine)
	p, err := e.GetProgress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(50), p.CurrentPoints)

	// The criteria still hold, but a revoked achievement stays revoked.
	res, err := e.EvaluateAndUnlock(ctx, 1, "manual")
	require.NoError(t, err)
	assert.Empty(t, res.Achievements)
	completeTask(t, e, 1, 101, 0)
	assert.Equal(t, int64(0), countRows(t, db, &models.UserAchievement{}, "user_id = ?", 1))
	assert.Equal(t, int64(1), countRows(t, db, &models.Revocation{}, "user_id = ? AND kind = ?", 1, models.RevokedAchievement))

	available, err := e.GetAvailableAchievements(ctx, 1, true)
	require.NoError(t, err)
	assert.Empty(t, available)
	p, err = e.GetProgress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(50), p.CurrentPoints)

	assert.ErrorIs(t, e.RevokeAchievement(ctx, 1, a.ID), ErrNotFound)
}

func TestResetClearsRevocations(t *testing.T) {
	e, db, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()
	seedUser(t, db, 1, "kid")
	a := seedAchievement(t, db, "First Steps", models.CriteriaTasksCompleted, 1, 50, false)
	completeTask(t, e, 1, 100, 0)
	require.NoError(t, e.RevokeAchievement(ctx, 1, a.ID))

	_, err := e.ResetUser(ctx, 1)
	require.NoError(t, err)
	res := completeTask(t, e, 1, 100, 0)
	require.Len(t, res.Unlocked.Achievements, 1)
	assert.Equal(t, a.ID, res.Unlocked.Achievements[0].ID)
}

func TestRevokeBadge(t *testing.T) {
	e, db, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()
	b := models.Badge{Name: "Starter", Criteria: criteria(models.CriteriaTasksCompleted, 1), PointValue: 5}
	require.NoError(t, db.Create(&b).Error)
	completeTask(t, e, 1, 100, 0)

	require.NoError(t, e.RevokeBadge(ctx, 1, b.ID))
	assert.ErrorIs(t, e.RevokeBadge(ctx, 1, b.ID), ErrNotFound)

	completeTask(t, e, 1, 101, 0)
	assert.Equal(t, int64(0), countRows(t, db, &models.UserBadge{}, "user_id = ?", 1))
	p, err := e.GetProgress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.CurrentPoints)
}

func TestToggleBadgeFeaturedLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.FeaturedBadgeLimit = 1
	e, db, _ := newTestEngine(t, opts)
	ctx := context.Background()

	for _, name := range []string{"One", "Two"} {
		b := models.Badge{Name: name, Criteria: criteria(models.CriteriaTasksCompleted, 1)}
		require.NoError(t, db.Create(&b).Error)
		require.NoError(t, db.Create(&models.UserBadge{UserID: 1, BadgeID: b.ID, EarnedAt: testStart, IsDisplayed: false}).Error)
	}

	ub, err := e.ToggleBadge(ctx, 1, 1, false, true)
	require.NoError(t, err)
	assert.True(t, ub.IsFeatured)
	assert.True(t, ub.IsDisplayed)
	assert.Equal(t, "One", ub.Badge.Name)

	_, err = e.ToggleBadge(ctx, 1, 2, true, true)
	assert.ErrorIs(t, err, ErrFeaturedLimitReached)

	// re-featuring an already featured badge is not counted twice
	_, err = e.ToggleBadge(ctx, 1, 1, true, true)
	require.NoError(t, err)

	ub, err = e.ToggleBadge(ctx, 1, 1, false, false)
	require.NoError(t, err)
	assert.False(t, ub.IsDisplayed)
	assert.False(t, ub.IsFeatured)

	_, err = e.ToggleBadge(ctx, 1, 99, true, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEvaluateCriteria(t *testing.T) {
	cat := uint(3)
	stats := Stats{
		TasksCompleted:  4,
		TasksByCategory: map[uint]int64{3: 2},
		CurrentStreak:   6,
		FocusMinutes:    90,
	}
	cases := []struct {
		name string
		c    models.Criteria
		want CriteriaProgress
	}{
		{"below threshold", models.Criteria{Kind: models.CriteriaTasksCompleted, Threshold: 5}, CriteriaProgress{Current: 4, Target: 5}},
		{"capped at target", models.Criteria{Kind: models.CriteriaCurrentStreak, Threshold: 3}, CriteriaProgress{Current: 3, Target: 3, Met: true}},
		{"category", models.Criteria{Kind: models.CriteriaCategoryTasks, Threshold: 2, CategoryID: &cat}, CriteriaProgress{Current: 2, Target: 2, Met: true}},
		{"focus minutes", models.Criteria{Kind: models.CriteriaFocusMinutes, Threshold: 300}, CriteriaProgress{Current: 90, Target: 300}},
		{"none never holds", models.Criteria{Kind: models.CriteriaNone, Threshold: 0}, CriteriaProgress{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := EvaluateCriteria(c.c, stats)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}

	_, err := EvaluateCriteria(models.Criteria{Kind: "moon_phase", Threshold: 1}, stats)
	assert.ErrorIs(t, err, ErrInvalidCriteria)
}

func TestValidateCriteria(t *testing.T) {
	cat := uint(1)
	assert.NoError(t, ValidateCriteria(models.Criteria{Kind: models.CriteriaLevel, Threshold: 5}))
	assert.NoError(t, ValidateCriteria(models.Criteria{Kind: models.CriteriaCategoryTasks, Threshold: 1, CategoryID: &cat}))
	assert.Error(t, ValidateCriteria(models.Criteria{Kind: models.CriteriaCategoryTasks, Threshold: 1}))
	assert.Error(t, ValidateCriteria(models.Criteria{Kind: models.CriteriaLevel}))
	assert.Error(t, ValidateCriteria(models.Criteria{Kind: "unknown", Threshold: 1}))
}
