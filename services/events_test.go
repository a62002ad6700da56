package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/cppla/taskquest/models"
)

func TestNewUserLoginThenFiveTasks(t *testing.T) {
	e, db, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()
	seedAchievement(t, db, "Five Tasks", models.CriteriaTasksCompleted, 5, 50, false)

	login, err := e.RecordDailyLogin(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), login.Progress.CurrentPoints)
	assert.Equal(t, 1, login.Progress.CurrentStreak)

	var last *ActivityResult
	for task := uint(1); task <= 5; task++ {
		last = completeTask(t, e, 1, task, 0)
	}
	require.Len(t, last.Unlocked.Achievements, 1)
	assert.Equal(t, int64(60), last.Progress.CurrentPoints)

	mine, err := e.GetUserAchievements(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestDailyLoginTwiceSameDay(t *testing.T) {
	e, db, clock := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	first, err := e.RecordDailyLogin(ctx, 1)
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	second, err := e.RecordDailyLogin(ctx, 1)
	require.NoError(t, err)

	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.Points.Transaction.ID, second.Points.Transaction.ID)
	assert.Equal(t, int64(10), second.Progress.CurrentPoints)
	assert.Equal(t, 1, second.Progress.CurrentStreak)
	assert.Equal(t, int64(1), countRows(t, db, &models.PointTransaction{}, "user_id = ?", 1))

	clock.Advance(24 * time.Hour)
	third, err := e.RecordDailyLogin(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), third.Progress.CurrentPoints)
	assert.Equal(t, 2, third.Progress.CurrentStreak)
}

func TestDailyLoginCountsStreakAfterManualLoginCredit(t *testing.T) {
	e, db, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	manual, err := e.AddPoints(ctx, 1, 10, models.TransactionDailyLogin, "granted by parent", Refs{})
	require.NoError(t, err)

	login, err := e.RecordDailyLogin(ctx, 1)
	require.NoError(t, err)
	assert.False(t, login.AlreadyProcessed)
	assert.True(t, login.Points.AlreadyProcessed)
	assert.Equal(t, manual.Transaction.ID, login.Points.Transaction.ID)
	assert.Equal(t, 1, login.Progress.CurrentStreak)
	require.NotNil(t, login.Progress.LastActivityDate)
	assert.Equal(t, int64(10), login.Progress.CurrentPoints)
	assert.Equal(t, int64(1), countRows(t, db, &models.PointTransaction{}, "user_id = ?", 1))

	again, err := e.RecordDailyLogin(ctx, 1)
	require.NoError(t, err)
	assert.True(t, again.AlreadyProcessed)
	assert.Equal(t, 1, again.Progress.CurrentStreak)
}

func TestTaskCompletionCreditedOnce(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	first := completeTask(t, e, 1, 7, 20)
	require.NotNil(t, first.Points)
	assert.Equal(t, int64(20), first.Points.Transaction.Points)

	second := completeTask(t, e, 1, 7, 20)
	assert.True(t, second.AlreadyProcessed)

	p, err := e.GetProgress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), p.CurrentPoints)

	// the same task id for another user is a different completion
	completeTask(t, e, 2, 7, 20)

	_, err = e.RecordTaskCompletion(ctx, 1, TaskCompletionEvent{})
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestTaskCategoryDrivesCategoryCriteria(t *testing.T) {
	e, db, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()
	cat := uint(4)
	a := models.Achievement{
		Name:     "Chef",
		Criteria: datatypes.NewJSONType(models.Criteria{Kind: models.CriteriaCategoryTasks, Threshold: 2, CategoryID: &cat}),
		IsActive: true,
	}
	require.NoError(t, db.Create(&a).Error)

	other := uint(5)
	for i, c := range []*uint{&cat, &other, nil} {
		_, err := e.RecordTaskCompletion(ctx, 1, TaskCompletionEvent{TaskID: uint(i + 1), CategoryID: c})
		require.NoError(t, err)
	}
	mine, err := e.GetUserAchievements(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, mine)

	res, err := e.RecordTaskCompletion(ctx, 1, TaskCompletionEvent{TaskID: 10, CategoryID: &cat})
	require.NoError(t, err)
	assert.Len(t, res.Unlocked.Achievements, 1)
}

func TestFocusSessionCredit(t *testing.T) {
	opts := DefaultOptions()
	opts.FocusPointsPerMinute = 2
	e, db, _ := newTestEngine(t, opts)
	ctx := context.Background()
	seedAchievement(t, db, "Deep Focus", models.CriteriaFocusMinutes, 40, 15, false)

	res, err := e.RecordFocusSession(ctx, 1, FocusSessionEvent{SessionID: "s-1", Minutes: 25})
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.Points.Transaction.Points)
	assert.True(t, res.Unlocked.Empty())

	dup, err := e.RecordFocusSession(ctx, 1, FocusSessionEvent{SessionID: "s-1", Minutes: 25})
	require.NoError(t, err)
	assert.True(t, dup.AlreadyProcessed)

	res, err = e.RecordFocusSession(ctx, 1, FocusSessionEvent{SessionID: "s-2", Minutes: 20})
	require.NoError(t, err)
	require.Len(t, res.Unlocked.Achievements, 1)
	assert.Equal(t, int64(105), res.Progress.CurrentPoints)

	_, err = e.RecordFocusSession(ctx, 1, FocusSessionEvent{SessionID: "s-3"})
	assert.ErrorIs(t, err, ErrInvalidOperation)
	_, err = e.RecordFocusSession(ctx, 1, FocusSessionEvent{Minutes: 5})
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestFocusSessionDoesNotTouchStreak(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultOptions())

	res, err := e.RecordFocusSession(context.Background(), 1, FocusSessionEvent{SessionID: "s-1", Minutes: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Progress.CurrentStreak)
	assert.Nil(t, res.Progress.LastActivityDate)
}

func TestCollectStats(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()
	cat := uint(2)

	_, err := e.RecordDailyLogin(ctx, 1)
	require.NoError(t, err)
	_, err = e.RecordTaskCompletion(ctx, 1, TaskCompletionEvent{TaskID: 1, CategoryID: &cat, Points: 5})
	require.NoError(t, err)
	_, err = e.RecordFocusSession(ctx, 1, FocusSessionEvent{SessionID: "a", Minutes: 30})
	require.NoError(t, err)
	_, err = e.RecordFocusSession(ctx, 1, FocusSessionEvent{SessionID: "b", Minutes: 15})
	require.NoError(t, err)

	s, err := e.CollectStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.TasksCompleted)
	assert.Equal(t, int64(1), s.TasksByCategory[cat])
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, int64(1), s.DailyLogins)
	assert.Equal(t, int64(2), s.FocusSessions)
	assert.Equal(t, int64(45), s.FocusMinutes)
	assert.Equal(t, int64(60), s.TotalPoints)
}
