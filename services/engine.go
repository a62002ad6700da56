package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Options holds the tunable rules of the engine.
type Options struct {
	DailyLoginPoints     int64
	LevelBasePoints      int64
	FocusPointsPerMinute int64
	FeaturedBadgeLimit   int
	// Location is the day boundary used when a user has no time zone of their own.
	Location            *time.Location
	LeaderboardCacheTTL time.Duration
	LeaderboardMaxLimit int
}

// DefaultOptions mirrors the defaults in config.
func DefaultOptions() Options {
	return Options{
		DailyLoginPoints:     10,
		LevelBasePoints:      100,
		FocusPointsPerMinute: 1,
		FeaturedBadgeLimit:   3,
		Location:             time.UTC,
		LeaderboardMaxLimit:  100,
	}
}

// Cache stores rendered read models. Implementations must be safe for concurrent use.
type Cache interface {
	GetBytes(key string) ([]byte, bool)
	SetJSON(key string, v interface{}, ttl time.Duration)
	InvalidatePrefix(prefix string)
}

// TaskStatsReader exposes completed-task counts owned by the task service.
type TaskStatsReader interface {
	CompletedCount(ctx context.Context, userID uint) (int64, error)
	CompletedByCategory(ctx context.Context, userID uint) (map[uint]int64, error)
	// TopCompleters returns per-user completed counts, restricted to members when members is non-nil.
	TopCompleters(ctx context.Context, members []uint, limit int) ([]Score, error)
}

// FamilyDirectory resolves family membership.
type FamilyDirectory interface {
	MemberIDs(ctx context.Context, familyID uint) ([]uint, error)
}

// UserDirectory resolves display names.
type UserDirectory interface {
	Usernames(ctx context.Context, ids []uint) (map[uint]string, error)
	// Forget drops anything cached for the user.
	Forget(userID uint)
}

const defaultUsernameCacheSize = 4096

// Engine is the gamification engine. All methods are safe for concurrent use; per-user
// serialization is provided by row locks on the user's progress row.
type Engine struct {
	db       *gorm.DB
	opts     Options
	log      *zap.SugaredLogger
	cache    Cache
	tasks    TaskStatsReader
	families FamilyDirectory
	users    UserDirectory
	flight   singleflight.Group
	now      func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithCache enables leaderboard caching.
func WithCache(c Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTaskStats plugs in an external task read model.
func WithTaskStats(r TaskStatsReader) Option {
	return func(e *Engine) { e.tasks = r }
}

// WithFamilies plugs in an external family directory.
func WithFamilies(d FamilyDirectory) Option {
	return func(e *Engine) { e.families = d }
}

// WithUsers plugs in an external user directory.
func WithUsers(d UserDirectory) Option {
	return func(e *Engine) { e.users = d }
}

// NewEngine builds an engine over db. Collaborators default to the gorm-backed
// implementations in this package.
func NewEngine(db *gorm.DB, opts Options, options ...Option) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DailyLoginPoints <= 0 {
		opts.DailyLoginPoints = 10
	}
	if opts.LevelBasePoints <= 0 {
		opts.LevelBasePoints = 100
	}
	if opts.LeaderboardMaxLimit <= 0 {
		opts.LeaderboardMaxLimit = 100
	}
	e := &Engine{
		db:   db,
		opts: opts,
		log:  zap.NewNop().Sugar(),
		now:  time.Now,
	}
	for _, o := range options {
		o(e)
	}
	if e.tasks == nil {
		e.tasks = NewGormTaskStats(db)
	}
	if e.families == nil {
		e.families = NewGormFamilyDirectory(db)
	}
	if e.users == nil {
		users, err := NewGormUserDirectory(db, defaultUsernameCacheSize)
		if err != nil {
			e.log.Errorw("username cache disabled", "error", err)
			users = &GormUserDirectory{db: db}
		}
		e.users = users
	}
	return e
}

// Options returns the active rule set.
func (e *Engine) Options() Options {
	return e.opts
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}
