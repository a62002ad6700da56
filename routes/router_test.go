package routes

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/taskquest/config"
	"github.com/cppla/taskquest/models"
	"github.com/cppla/taskquest/services"
	"github.com/cppla/taskquest/utils"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.AppConfig{
		JWTSecret:          "router-secret",
		GinMode:            "test",
		GinPath:            filepath.Join(t.TempDir(), "gin.log"),
		MetricsEnabled:     true,
		RateLimitPerMinute: 600,
		AdminUsernames:     []string{"root"},
	}
	config.Override(cfg)

	db, err := gorm.Open(sqlite.Open("file:routes?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	return SetupRouter(services.NewEngine(db, services.DefaultOptions()), config.Get())
}

func get(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter(t *testing.T) {
	h := newRouter(t)

	w := get(h, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = get(h, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(h, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "40400")

	w = get(h, "/api/v1/gamification/progress", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	user, err := utils.IssueToken(4, "sam", time.Hour)
	require.NoError(t, err)
	w = get(h, "/api/v1/gamification/progress", user)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"current_points":0`)

	w = get(h, "/api/v1/admin/gamification/audit", user)
	assert.Equal(t, http.StatusForbidden, w.Code)

	root, err := utils.IssueToken(1, "root", time.Hour)
	require.NoError(t, err)
	w = get(h, "/api/v1/admin/gamification/audit", root)
	assert.Equal(t, http.StatusOK, w.Code)
}
