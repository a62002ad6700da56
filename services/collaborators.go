package services

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"gorm.io/gorm"

	"github.com/cppla/taskquest/models"
)

// GormTaskStats reads task counts from the engine's task_completions table.
type GormTaskStats struct {
	db *gorm.DB
}

// NewGormTaskStats creates a TaskStatsReader over db.
func NewGormTaskStats(db *gorm.DB) *GormTaskStats {
	return &GormTaskStats{db: db}
}

func (s *GormTaskStats) CompletedCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.TaskCompletion{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

func (s *GormTaskStats) CompletedByCategory(ctx context.Context, userID uint) (map[uint]int64, error) {
	var rows []struct {
		CategoryID uint
		Total      int64
	}
	err := s.db.WithContext(ctx).Model(&models.TaskCompletion{}).
		Select("category_id, COUNT(*) AS total").
		Where("user_id = ? AND category_id IS NOT NULL", userID).
		Group("category_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]int64, len(rows))
	for _, r := range rows {
		out[r.CategoryID] = r.Total
	}
	return out, nil
}

func (s *GormTaskStats) TopCompleters(ctx context.Context, members []uint, limit int) ([]Score, error) {
	if members != nil && len(members) == 0 {
		return nil, nil
	}
	q := s.db.WithContext(ctx).Model(&models.TaskCompletion{}).
		Select("user_id, COUNT(*) AS value").
		Group("user_id").
		Order("value DESC").
		Order("user_id ASC")
	if members != nil {
		q = q.Where("user_id IN ?", members)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []Score
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GormFamilyDirectory reads family membership from the families tables.
type GormFamilyDirectory struct {
	db *gorm.DB
}

// NewGormFamilyDirectory creates a FamilyDirectory over db.
func NewGormFamilyDirectory(db *gorm.DB) *GormFamilyDirectory {
	return &GormFamilyDirectory{db: db}
}

func (d *GormFamilyDirectory) MemberIDs(ctx context.Context, familyID uint) ([]uint, error) {
	var fam models.Family
	if err := d.db.WithContext(ctx).First(&fam, familyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFamilyNotFound
		}
		return nil, fmt.Errorf("load family %d: %w", familyID, err)
	}
	ids := []uint{}
	err := d.db.WithContext(ctx).Model(&models.FamilyMember{}).
		Where("family_id = ?", familyID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load family %d members: %w", familyID, err)
	}
	return ids, nil
}

// GormUserDirectory reads usernames from the users table, optionally through an LRU.
type GormUserDirectory struct {
	db    *gorm.DB
	names *lru.Cache
}

// NewGormUserDirectory creates a UserDirectory caching up to size names. A size of
// zero or less disables the cache.
func NewGormUserDirectory(db *gorm.DB, size int) (*GormUserDirectory, error) {
	d := &GormUserDirectory{db: db}
	if size <= 0 {
		return d, nil
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("username cache: %w", err)
	}
	d.names = cache
	return d, nil
}

func (d *GormUserDirectory) Usernames(ctx context.Context, ids []uint) (map[uint]string, error) {
	out := make(map[uint]string, len(ids))
	missing := make([]uint, 0, len(ids))
	for _, id := range ids {
		if d.names != nil {
			if v, ok := d.names.Get(id); ok {
				out[id] = v.(string)
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}
	var users []models.User
	if err := d.db.WithContext(ctx).Select("id", "username").Where("id IN ?", missing).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load usernames: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u.Username
		if d.names != nil {
			d.names.Add(u.ID, u.Username)
		}
	}
	return out, nil
}

// Forget drops a cached username so the next lookup reads the users table.
func (d *GormUserDirectory) Forget(id uint) {
	if d.names != nil {
		d.names.Remove(id)
	}
}
