package main

import (
	"context"
	"time"

	"github.com/cppla/taskquest/config"
	"github.com/cppla/taskquest/models"
	"github.com/cppla/taskquest/routes"
	"github.com/cppla/taskquest/services"
	"github.com/cppla/taskquest/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(models.All()...)

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		utils.Sugar.Warnw("unknown time zone, using UTC", "zone", cfg.TimeZone, "error", err)
		loc = time.UTC
	}

	var cache services.Cache
	if rc := utils.GetRedis(); rc != nil {
		cache = utils.NewRedisCache(rc)
	} else {
		mc, err := utils.NewMemoryCache(1024)
		if err != nil {
			utils.Sugar.Fatalf("init cache: %v", err)
		}
		cache = mc
	}

	engine := services.NewEngine(db, services.Options{
		DailyLoginPoints:     int64(cfg.SigninRewardPoints),
		LevelBasePoints:      int64(cfg.LevelBasePoints),
		FocusPointsPerMinute: int64(cfg.FocusPointsPerMinute),
		FeaturedBadgeLimit:   cfg.FeaturedBadgeLimit,
		Location:             loc,
		LeaderboardCacheTTL:  time.Duration(cfg.LeaderboardCacheSeconds) * time.Second,
		LeaderboardMaxLimit:  cfg.LeaderboardMaxLimit,
	}, services.WithLogger(utils.Sugar.Named("gamification")), services.WithCache(cache))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.SeedCatalog {
		if err := engine.SeedCatalog(ctx); err != nil {
			utils.Sugar.Fatalf("seed catalog: %v", err)
		}
	}

	utils.StartSweeper(ctx, "challenge-expiry", time.Duration(cfg.ChallengeSweepMinutes)*time.Minute,
		func(ctx context.Context) (int64, error) {
			return engine.ExpireChallenges(ctx, time.Time{})
		})

	r := routes.SetupRouter(engine, cfg)

	srv := utils.NewServer(":"+cfg.AppPort, r)
	srv.OnShutdown(cancel)
	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := srv.ListenAndServe(); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
	_ = utils.Logger.Sync()
}
