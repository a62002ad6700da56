package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/taskquest/models"
)

// UpdateActivityStreak records activity for the user's current calendar day.
// Same-day calls are no-ops; it is meant to be driven by the daily login only.
func (e *Engine) UpdateActivityStreak(ctx context.Context, userID uint) (*models.UserProgress, error) {
	var out *models.UserProgress
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := e.lockProgress(tx, userID)
		if err != nil {
			return err
		}
		out = p
		if !applyStreak(p, e.today(p)) {
			return nil
		}
		return tx.Save(p).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// applyStreak advances the streak for activity on today and reports whether p changed.
//   - no previous activity, or previous activity yesterday: streak + 1
//   - previous activity today: unchanged
//   - a gap of two or more days: streak restarts at 1
func applyStreak(p *models.UserProgress, today time.Time) bool {
	if p.LastActivityDate != nil {
		gap := daysBetween(civilDay(*p.LastActivityDate), today)
		switch {
		case gap <= 0:
			return false
		case gap == 1:
			p.CurrentStreak++
		default:
			p.CurrentStreak = 1
		}
	} else {
		p.CurrentStreak++
	}
	if p.CurrentStreak > p.LongestStreak {
		p.LongestStreak = p.CurrentStreak
	}
	day := today
	p.LastActivityDate = &day
	return true
}

// SetTimeZone sets the IANA zone that defines the user's day boundary.
func (e *Engine) SetTimeZone(ctx context.Context, userID uint, zone string) (*models.UserProgress, error) {
	if zone != "" {
		if _, err := time.LoadLocation(zone); err != nil {
			return nil, domainError(ErrInvalidOperation, "invalid_time_zone", "unknown time zone "+zone)
		}
	}
	var out *models.UserProgress
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := e.lockProgress(tx, userID)
		if err != nil {
			return err
		}
		p.TimeZone = zone
		out = p
		return tx.Save(p).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EffectiveStreak is the streak a user would see today: a stored streak whose last
// activity is older than yesterday is already broken.
func (e *Engine) EffectiveStreak(p *models.UserProgress) int {
	if p.LastActivityDate == nil {
		return 0
	}
	if daysBetween(civilDay(*p.LastActivityDate), e.today(p)) > 1 {
		return 0
	}
	return p.CurrentStreak
}

// today is the user's current calendar day, as a UTC midnight.
func (e *Engine) today(p *models.UserProgress) time.Time {
	return civilDay(e.clock().In(e.location(p)))
}

func (e *Engine) location(p *models.UserProgress) *time.Location {
	if p != nil && p.TimeZone != "" {
		if loc, err := time.LoadLocation(p.TimeZone); err == nil {
			return loc
		}
	}
	return e.opts.Location
}

// civilDay keeps only the calendar date of t, read in t's own location.
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
