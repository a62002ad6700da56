package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cppla/taskquest/config"
	"github.com/cppla/taskquest/controllers"
	"github.com/cppla/taskquest/middleware"
	"github.com/cppla/taskquest/services"
	"github.com/cppla/taskquest/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(engine *services.Engine, cfg config.AppConfig) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.GinPath != "" {
		gl := utils.NewRollingFileLogger(cfg.GinPath, cfg)
		r.Use(ginzap.Ginzap(gl, time.RFC3339, true))
		r.Use(ginzap.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	gc := controllers.NewGamificationController(engine)
	ac := controllers.NewAdminController(engine)

	api := r.Group("/api/v1")

	g := api.Group("/gamification")
	g.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))
	g.GET("/progress", gc.GetProgress)
	g.POST("/progress/timezone", gc.SetTimeZone)
	g.GET("/transactions", gc.GetTransactions)
	g.POST("/points/add", middleware.AdminRequired(), gc.AddPoints)
	g.POST("/login/daily", gc.DailyLogin)
	g.POST("/tasks/complete", gc.CompleteTask)
	g.POST("/focus/complete", gc.CompleteFocus)
	g.GET("/achievements", gc.GetAchievements)
	g.GET("/achievements/available", gc.GetAvailableAchievements)
	g.GET("/achievements/progress", gc.GetAchievementProgress)
	g.GET("/badges", gc.GetBadges)
	g.POST("/badges/toggle", gc.ToggleBadge)
	g.GET("/rewards", gc.GetRewards)
	g.GET("/rewards/mine", gc.GetMyRewards)
	g.POST("/rewards/redeem", gc.RedeemReward)
	g.POST("/rewards/use", gc.UseReward)
	g.GET("/challenges", gc.GetChallenges)
	g.GET("/challenges/mine", gc.GetMyChallenges)
	g.POST("/challenges/enroll", gc.EnrollChallenge)
	g.POST("/challenges/leave", gc.LeaveChallenge)
	g.POST("/challenges/progress", gc.ChallengeProgress)
	g.GET("/stats", gc.GetStats)
	g.GET("/leaderboard/:category", gc.GetLeaderboard)
	g.GET("/families/:id/leaderboard/:category", gc.GetFamilyLeaderboard)

	admin := api.Group("/admin/gamification")
	admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
	admin.POST("/users/:id/reset", ac.ResetUser)
	admin.POST("/users/:id/points", ac.AdjustPoints)
	admin.DELETE("/users/:id/achievements/:achievementId", ac.RevokeAchievement)
	admin.DELETE("/users/:id/badges/:badgeId", ac.RevokeBadge)
	admin.GET("/audit", ac.Audit)
	admin.POST("/achievements", ac.CreateAchievement)
	admin.POST("/badges", ac.CreateBadge)
	admin.POST("/rewards", ac.CreateReward)
	admin.POST("/challenges", ac.CreateChallenge)
	admin.POST("/challenges/expire", ac.ExpireChallenges)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
