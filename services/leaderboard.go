package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cppla/taskquest/models"
)

// Leaderboard categories.
const (
	CategoryPoints = "points"
	CategoryStreak = "streak"
	CategoryTasks  = "tasks"
)

const leaderboardCachePrefix = "cache:leaderboard:"

// Score is a user's value in one leaderboard category.
type Score struct {
	UserID uint  `json:"user_id"`
	Value  int64 `json:"value"`
}

// LeaderboardEntry is one ranked row. Rank is the 1-based output position, so tied
// values get consecutive distinct ranks ordered by user id.
type LeaderboardEntry struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Value    int64  `json:"value"`
	Rank     int    `json:"rank"`
}

// ValidCategory reports whether c is a known leaderboard category.
func ValidCategory(c string) bool {
	switch c {
	case CategoryPoints, CategoryStreak, CategoryTasks:
		return true
	}
	return false
}

// GetLeaderboard ranks all users in category.
func (e *Engine) GetLeaderboard(ctx context.Context, category string, limit int) ([]LeaderboardEntry, error) {
	return e.leaderboard(ctx, "global", nil, category, limit)
}

// GetFamilyLeaderboard ranks the members of a family. Members without any activity are
// listed with a zero value.
func (e *Engine) GetFamilyLeaderboard(ctx context.Context, familyID uint, category string, limit int) ([]LeaderboardEntry, error) {
	if !ValidCategory(category) {
		return nil, ErrInvalidCategory
	}
	members, err := e.families.MemberIDs(ctx, familyID)
	if err != nil {
		return nil, err
	}
	return e.leaderboard(ctx, fmt.Sprintf("family:%d", familyID), uniqueIDs(members), category, limit)
}

// uniqueIDs drops duplicates and zero ids, keeping first-seen order.
func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := []uint{}
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// InvalidateLeaderboards drops every cached board.
func (e *Engine) InvalidateLeaderboards() {
	if e.cache != nil {
		e.cache.InvalidatePrefix(leaderboardCachePrefix)
	}
}

func (e *Engine) leaderboard(ctx context.Context, scope string, members []uint, category string, limit int) ([]LeaderboardEntry, error) {
	if !ValidCategory(category) {
		return nil, ErrInvalidCategory
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > e.opts.LeaderboardMaxLimit {
		limit = e.opts.LeaderboardMaxLimit
	}
	key := fmt.Sprintf("%s%s:%s:%d", leaderboardCachePrefix, scope, category, limit)

	if e.cache != nil {
		if raw, ok := e.cache.GetBytes(key); ok {
			var cached []LeaderboardEntry
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	v, err, _ := e.flight.Do(key, func() (interface{}, error) {
		scores, err := e.scores(ctx, members, category, limit)
		if err != nil {
			return nil, err
		}
		entries := rankEntries(scores, limit)
		if err := e.attachUsernames(ctx, entries); err != nil {
			return nil, err
		}
		if e.cache != nil && e.opts.LeaderboardCacheTTL > 0 {
			e.cache.SetJSON(key, entries, e.opts.LeaderboardCacheTTL)
		}
		return entries, nil
	})
	if err != nil {
		return nil, fmt.Errorf("leaderboard %s/%s: %w", scope, category, err)
	}
	entries := v.([]LeaderboardEntry)
	out := make([]LeaderboardEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// scores loads the raw values for category. When members is non-nil only those users
// are scored and every member appears.
func (e *Engine) scores(ctx context.Context, members []uint, category string, limit int) ([]Score, error) {
	var scores []Score
	switch category {
	case CategoryTasks:
		fetch := limit
		if members != nil {
			fetch = 0
		}
		rows, err := e.tasks.TopCompleters(ctx, members, fetch)
		if err != nil {
			return nil, err
		}
		scores = rows
	case CategoryPoints:
		q := e.db.WithContext(ctx).Model(&models.UserProgress{}).
			Select("user_id, current_points AS value").
			Order("current_points DESC").Order("user_id ASC")
		if members != nil {
			q = q.Where("user_id IN ?", members)
		} else {
			q = q.Limit(limit)
		}
		if members == nil || len(members) > 0 {
			if err := q.Scan(&scores).Error; err != nil {
				return nil, err
			}
		}
	case CategoryStreak:
		// Stored streaks go stale when a user stops logging in, so the effective
		// streak is computed per row.
		var rows []models.UserProgress
		q := e.db.WithContext(ctx).Where("current_streak > 0")
		if members != nil {
			q = q.Where("user_id IN ?", members)
		}
		if members == nil || len(members) > 0 {
			if err := q.Find(&rows).Error; err != nil {
				return nil, err
			}
		}
		for i := range rows {
			if s := e.EffectiveStreak(&rows[i]); s > 0 {
				scores = append(scores, Score{UserID: rows[i].UserID, Value: int64(s)})
			}
		}
	}

	if members != nil {
		present := make(map[uint]bool, len(scores))
		for _, s := range scores {
			present[s.UserID] = true
		}
		for _, id := range members {
			if !present[id] {
				scores = append(scores, Score{UserID: id})
			}
		}
	}
	return scores, nil
}

// rankEntries orders scores by value descending then user id ascending, keeps the
// first limit rows and numbers them from 1.
func rankEntries(scores []Score, limit int) []LeaderboardEntry {
	sorted := make([]Score, len(scores))
	copy(sorted, scores)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Value != sorted[j].Value {
			return sorted[i].Value > sorted[j].Value
		}
		return sorted[i].UserID < sorted[j].UserID
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]LeaderboardEntry, len(sorted))
	for i, s := range sorted {
		out[i] = LeaderboardEntry{UserID: s.UserID, Value: s.Value, Rank: i + 1}
	}
	return out
}

func (e *Engine) attachUsernames(ctx context.Context, entries []LeaderboardEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]uint, len(entries))
	for i, en := range entries {
		ids[i] = en.UserID
	}
	names, err := e.users.Usernames(ctx, ids)
	if err != nil {
		return err
	}
	for i := range entries {
		entries[i].Username = names[entries[i].UserID]
	}
	return nil
}
