package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/taskquest/config"
	"github.com/cppla/taskquest/middleware"
	"github.com/cppla/taskquest/models"
	"github.com/cppla/taskquest/services"
	"github.com/cppla/taskquest/utils"
)

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func init() {
	gin.SetMode(gin.TestMode)
	config.Override(config.AppConfig{JWTSecret: "controller-secret", AdminUsernames: []string{"admin"}})
}

func setupServer(t *testing.T) (*gin.Engine, *services.Engine, *gorm.DB) {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	engine := services.NewEngine(db, services.DefaultOptions())
	gc := NewGamificationController(engine)
	ac := NewAdminController(engine)

	r := gin.New()
	g := r.Group("/g", middleware.AuthRequired())
	g.GET("/progress", gc.GetProgress)
	g.POST("/login/daily", gc.DailyLogin)
	g.POST("/tasks/complete", gc.CompleteTask)
	g.POST("/points/add", middleware.AdminRequired(), gc.AddPoints)
	g.POST("/rewards/redeem", gc.RedeemReward)
	g.GET("/leaderboard/:category", gc.GetLeaderboard)
	g.GET("/transactions", gc.GetTransactions)

	a := r.Group("/admin", middleware.AuthRequired(), middleware.AdminRequired())
	a.POST("/achievements", ac.CreateAchievement)
	a.POST("/rewards", ac.CreateReward)
	a.POST("/users/:id/reset", ac.ResetUser)
	a.GET("/audit", ac.Audit)
	return r, engine, db
}

func bearer(t *testing.T, id uint, username string) string {
	t.Helper()
	token, err := utils.IssueToken(id, username, time.Hour)
	require.NoError(t, err)
	return token
}

func call(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func TestRequiresToken(t *testing.T) {
	r, _, _ := setupServer(t)

	status, resp := call(t, r, http.MethodGet, "/g/progress", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 40101, resp.Code)
}

func TestDailyLoginAndProgress(t *testing.T) {
	r, _, _ := setupServer(t)
	token := bearer(t, 3, "kid")

	status, resp := call(t, r, http.MethodPost, "/g/login/daily", token, nil)
	require.Equal(t, http.StatusOK, status)
	var login struct {
		Progress models.UserProgress `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &login))
	assert.Equal(t, int64(10), login.Progress.CurrentPoints)

	status, resp = call(t, r, http.MethodGet, "/g/progress", token, nil)
	require.Equal(t, http.StatusOK, status)
	var progress struct {
		Progress        models.UserProgress `json:"progress"`
		EffectiveStreak int                 `json:"effective_streak"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &progress))
	assert.Equal(t, 1, progress.EffectiveStreak)

	status, resp = call(t, r, http.MethodGet, "/g/transactions?page=1&page_size=5", token, nil)
	require.Equal(t, http.StatusOK, status)
	var page struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, int64(1), page.Total)
}

func TestCompleteTaskValidatesPayload(t *testing.T) {
	r, _, _ := setupServer(t)
	token := bearer(t, 3, "kid")

	status, resp := call(t, r, http.MethodPost, "/g/tasks/complete", token, gin.H{"title": "no id"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40001, resp.Code)

	status, _ = call(t, r, http.MethodPost, "/g/tasks/complete", token, gin.H{"task_id": 9, "points": 15})
	assert.Equal(t, http.StatusOK, status)
}

func TestRedeemErrorMapping(t *testing.T) {
	r, engine, _ := setupServer(t)
	token := bearer(t, 3, "kid")
	admin := bearer(t, 1, "admin")

	status, resp := call(t, r, http.MethodPost, "/g/rewards/redeem", token, gin.H{"reward_id": 99})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 40400, resp.Code)
	assert.JSONEq(t, `{"reason":"reward_not_found"}`, string(resp.Data))

	status, resp = call(t, r, http.MethodPost, "/admin/rewards", admin, gin.H{"name": "<i>Ice cream</i>", "point_cost": 50, "minimum_level": 1})
	require.Equal(t, http.StatusCreated, status)
	var reward models.Reward
	require.NoError(t, json.Unmarshal(resp.Data, &reward))
	assert.Equal(t, "Ice cream", reward.Name)
	assert.True(t, reward.IsActive)

	status, resp = call(t, r, http.MethodPost, "/g/rewards/redeem", token, gin.H{"reward_id": reward.ID})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40010, resp.Code)

	status, _ = call(t, r, http.MethodPost, "/admin/rewards", admin, gin.H{"name": "Bike", "point_cost": 1, "minimum_level": 4})
	require.Equal(t, http.StatusCreated, status)
	status, resp = call(t, r, http.MethodPost, "/g/rewards/redeem", token, gin.H{"reward_id": reward.ID + 1})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40011, resp.Code)

	_, err := engine.AddPoints(context.Background(), 3, 60, models.TransactionTaskCompletion, "", services.Refs{})
	require.NoError(t, err)
	status, _ = call(t, r, http.MethodPost, "/g/rewards/redeem", token, gin.H{"reward_id": reward.ID})
	assert.Equal(t, http.StatusOK, status)
}

func TestAdminEndpointsRejectNonAdmins(t *testing.T) {
	r, _, db := setupServer(t)
	kid := bearer(t, 3, "kid")
	admin := bearer(t, 1, "admin")

	status, resp := call(t, r, http.MethodPost, "/g/points/add", kid, gin.H{"user_id": 3, "points": 10})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, 40301, resp.Code)

	status, _ = call(t, r, http.MethodPost, "/g/points/add", admin, gin.H{"user_id": 3, "points": 10, "description": "chores"})
	assert.Equal(t, http.StatusOK, status)

	status, _ = call(t, r, http.MethodGet, "/admin/audit", kid, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, resp = call(t, r, http.MethodGet, "/admin/audit", admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"drift":[],"consistent":true}`, string(resp.Data))

	status, _ = call(t, r, http.MethodPost, "/admin/users/3/reset", admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
	require.NoError(t, db.Create(&models.User{ID: 3, Username: "kid"}).Error)
	status, _ = call(t, r, http.MethodPost, "/admin/users/3/reset", admin, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAdminCreateAchievement(t *testing.T) {
	r, _, _ := setupServer(t)
	admin := bearer(t, 1, "admin")

	body := gin.H{"name": "Tidy", "criteria": gin.H{"kind": "tasks_completed", "threshold": 3}, "point_value": 20}
	status, resp := call(t, r, http.MethodPost, "/admin/achievements", admin, body)
	require.Equal(t, http.StatusCreated, status)
	var a models.Achievement
	require.NoError(t, json.Unmarshal(resp.Data, &a))
	assert.Equal(t, models.CriteriaTasksCompleted, a.Criteria.Data().Kind)

	status, resp = call(t, r, http.MethodPost, "/admin/achievements", admin, body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"reason":"duplicate_name"}`, string(resp.Data))

	body = gin.H{"name": "Broken", "criteria": gin.H{"kind": "moon_phase", "threshold": 1}}
	status, resp = call(t, r, http.MethodPost, "/admin/achievements", admin, body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"reason":"invalid_criteria"}`, string(resp.Data))
}

func TestLeaderboardCategory(t *testing.T) {
	r, _, _ := setupServer(t)
	token := bearer(t, 3, "kid")

	status, _ := call(t, r, http.MethodGet, "/g/leaderboard/points", token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, resp := call(t, r, http.MethodGet, "/g/leaderboard/karma", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40000, resp.Code)
}
