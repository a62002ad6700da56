package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/taskquest/models"
)

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// newTestDB opens a private in-memory sqlite database with every model migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newTestEngine(t *testing.T, opts Options, options ...Option) (*Engine, *gorm.DB, *testClock) {
	t.Helper()
	db := newTestDB(t)
	clock := &testClock{t: testStart}
	options = append([]Option{WithClock(clock.Now)}, options...)
	return NewEngine(db, opts, options...), db, clock
}

func criteria(kind models.CriteriaKind, threshold int64) datatypes.JSONType[models.Criteria] {
	return datatypes.NewJSONType(models.Criteria{Kind: kind, Threshold: threshold})
}

func seedAchievement(t *testing.T, db *gorm.DB, name string, kind models.CriteriaKind, threshold, points int64, hidden bool) models.Achievement {
	t.Helper()
	a := models.Achievement{
		Name:       name,
		Criteria:   criteria(kind, threshold),
		PointValue: points,
		Difficulty: models.DifficultyEasy,
		IsHidden:   hidden,
		IsActive:   true,
	}
	require.NoError(t, db.Create(&a).Error)
	return a
}

func seedUser(t *testing.T, db *gorm.DB, id uint, username string) {
	t.Helper()
	require.NoError(t, db.Create(&models.User{ID: id, Username: username}).Error)
}

func completeTask(t *testing.T, e *Engine, userID, taskID uint, points int64) *ActivityResult {
	t.Helper()
	res, err := e.RecordTaskCompletion(context.Background(), userID, TaskCompletionEvent{TaskID: taskID, Title: fmt.Sprintf("task %d", taskID), Points: points})
	require.NoError(t, err)
	return res
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}
