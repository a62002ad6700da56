package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/taskquest/models"
)

// Refs are optional references attached to a ledger entry.
type Refs struct {
	TaskID        *uint
	TemplateID    *uint
	ChallengeID   *uint
	AchievementID *uint
	BadgeID       *uint
	RewardID      *uint
	// IdempotencyKey makes the entry exactly-once: a second entry with the same key
	// returns the first one instead of posting again.
	IdempotencyKey string
}

// PointsResult describes one ledger posting. LevelBefore/LevelAfter let the caller
// observe a level-up.
type PointsResult struct {
	Transaction      *models.PointTransaction `json:"transaction"`
	Progress         *models.UserProgress     `json:"progress"`
	LevelBefore      int                      `json:"level_before"`
	LevelAfter       int                      `json:"level_after"`
	AlreadyProcessed bool                     `json:"already_processed"`
}

// LeveledUp reports whether the posting moved the user to a higher level.
func (r *PointsResult) LeveledUp() bool {
	return r != nil && r.LevelAfter > r.LevelBefore
}

// AddPoints credits points to a user. DailyLogin credits are idempotent per calendar day.
func (e *Engine) AddPoints(ctx context.Context, userID uint, points int64, typ models.TransactionType, description string, refs Refs) (*PointsResult, error) {
	if points <= 0 {
		return nil, ErrInvalidAmount
	}
	if !typ.Valid() {
		return nil, ErrInvalidType
	}
	var res *PointsResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := e.lockProgress(tx, userID)
		if err != nil {
			return err
		}
		if typ == models.TransactionDailyLogin && refs.IdempotencyKey == "" {
			refs.IdempotencyKey = dailyLoginKey(userID, e.today(p))
		}
		res, err = e.credit(tx, p, points, typ, description, refs)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.observePosting(res)
	return res, nil
}

// DeductPoints debits points from a user. It fails with ErrInsufficientPoints when the
// balance is too low and never applies a partial deduction.
func (e *Engine) DeductPoints(ctx context.Context, userID uint, points int64, typ models.TransactionType, description string, refs Refs) (*PointsResult, error) {
	if points <= 0 {
		return nil, ErrInvalidAmount
	}
	if !typ.Valid() {
		return nil, ErrInvalidType
	}
	var res *PointsResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := e.lockProgress(tx, userID)
		if err != nil {
			return err
		}
		res, err = e.debit(tx, p, points, typ, description, refs)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.observePosting(res)
	return res, nil
}

// GetProgress returns the user's progress. Users without activity get a fresh,
// unsaved aggregate.
func (e *Engine) GetProgress(ctx context.Context, userID uint) (*models.UserProgress, error) {
	var p models.UserProgress
	err := e.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fresh := e.newProgress(userID)
		return &fresh, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress for user %d: %w", userID, err)
	}
	return &p, nil
}

// GetTransactions pages through a user's ledger, newest first.
func (e *Engine) GetTransactions(ctx context.Context, userID uint, page, pageSize int) ([]models.PointTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	var total int64
	q := e.db.WithContext(ctx).Model(&models.PointTransaction{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}
	items := []models.PointTransaction{}
	err := q.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return items, total, nil
}

func (e *Engine) newProgress(userID uint) models.UserProgress {
	return models.UserProgress{
		UserID:             userID,
		Level:              1,
		NextLevelThreshold: ThresholdForLevel(2, e.opts.LevelBasePoints),
	}
}

// lockProgress loads the user's progress row with a row lock, creating it first when
// the user has never had a qualifying event. Every mutation of a user's reward state
// starts here, which serializes concurrent requests for the same user.
func (e *Engine) lockProgress(tx *gorm.DB, userID uint) (*models.UserProgress, error) {
	var p models.UserProgress
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lock progress for user %d: %w", userID, err)
	}
	seed := e.newProgress(userID)
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("create progress for user %d: %w", userID, err)
	}
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, fmt.Errorf("lock progress for user %d: %w", userID, err)
	}
	return &p, nil
}

// credit posts a positive entry against a locked progress row.
func (e *Engine) credit(tx *gorm.DB, p *models.UserProgress, points int64, typ models.TransactionType, description string, refs Refs) (*PointsResult, error) {
	if points <= 0 {
		return nil, ErrInvalidAmount
	}
	if existing, err := findByKey(tx, refs.IdempotencyKey); err != nil || existing != nil {
		if err != nil {
			return nil, err
		}
		return &PointsResult{Transaction: existing, Progress: p, LevelBefore: p.Level, LevelAfter: p.Level, AlreadyProcessed: true}, nil
	}

	before := p.Level
	entry := e.newEntry(p.UserID, points, typ, description, refs)
	if err := tx.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	p.CurrentPoints += points
	p.TotalPointsEarned += points
	e.applyLevel(p)
	if err := tx.Save(p).Error; err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}
	return &PointsResult{Transaction: entry, Progress: p, LevelBefore: before, LevelAfter: p.Level}, nil
}

// debit posts a negative entry against a locked progress row.
func (e *Engine) debit(tx *gorm.DB, p *models.UserProgress, points int64, typ models.TransactionType, description string, refs Refs) (*PointsResult, error) {
	if points <= 0 {
		return nil, ErrInvalidAmount
	}
	if existing, err := findByKey(tx, refs.IdempotencyKey); err != nil || existing != nil {
		if err != nil {
			return nil, err
		}
		return &PointsResult{Transaction: existing, Progress: p, LevelBefore: p.Level, LevelAfter: p.Level, AlreadyProcessed: true}, nil
	}
	if p.CurrentPoints < points {
		return nil, ErrNotEnoughPoints
	}

	entry := e.newEntry(p.UserID, -points, typ, description, refs)
	if err := tx.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	p.CurrentPoints -= points
	if err := tx.Save(p).Error; err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}
	return &PointsResult{Transaction: entry, Progress: p, LevelBefore: p.Level, LevelAfter: p.Level}, nil
}

// applyLevel recomputes the level from lifetime points. Lifetime points never drop,
// so the level never drops either.
func (e *Engine) applyLevel(p *models.UserProgress) {
	level := LevelForPoints(p.TotalPointsEarned, e.opts.LevelBasePoints)
	if level < p.Level {
		level = p.Level
	}
	p.Level = level
	p.NextLevelThreshold = ThresholdForLevel(level+1, e.opts.LevelBasePoints)
}

func (e *Engine) newEntry(userID uint, points int64, typ models.TransactionType, description string, refs Refs) *models.PointTransaction {
	entry := &models.PointTransaction{
		UserID:          userID,
		Points:          points,
		TransactionType: typ,
		Description:     description,
		TaskID:          refs.TaskID,
		TemplateID:      refs.TemplateID,
		ChallengeID:     refs.ChallengeID,
		AchievementID:   refs.AchievementID,
		BadgeID:         refs.BadgeID,
		RewardID:        refs.RewardID,
		CreatedAt:       e.clock(),
	}
	if refs.IdempotencyKey != "" {
		key := refs.IdempotencyKey
		entry.IdempotencyKey = &key
	}
	return entry
}

func findByKey(tx *gorm.DB, key string) (*models.PointTransaction, error) {
	if key == "" {
		return nil, nil
	}
	var existing models.PointTransaction
	err := tx.Where("idempotency_key = ?", key).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	return &existing, nil
}

func dailyLoginKey(userID uint, day time.Time) string {
	return fmt.Sprintf("daily_login:%d:%s", userID, day.Format("2006-01-02"))
}

func (e *Engine) observePosting(res *PointsResult) {
	if res == nil || res.AlreadyProcessed || res.Transaction == nil {
		return
	}
	observeTransaction(res.Transaction)
	e.InvalidateLeaderboards()
	if res.LeveledUp() {
		e.log.Infow("level up", "user_id", res.Progress.UserID, "from", res.LevelBefore, "to", res.LevelAfter)
	}
}
