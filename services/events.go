package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/taskquest/models"
)

// TaskCompletionEvent is emitted by the task service when a task is completed.
type TaskCompletionEvent struct {
	TaskID      uint      `json:"task_id"`
	TemplateID  *uint     `json:"template_id"`
	CategoryID  *uint     `json:"category_id"`
	Title       string    `json:"title"`
	Points      int64     `json:"points"`
	CompletedAt time.Time `json:"completed_at"`
}

// FocusSessionEvent is emitted when a focus session ends.
type FocusSessionEvent struct {
	SessionID string    `json:"session_id"`
	Minutes   int       `json:"minutes"`
	EndedAt   time.Time `json:"ended_at"`
}

// ActivityResult is everything one ingested event changed.
type ActivityResult struct {
	Points           *PointsResult        `json:"points,omitempty"`
	Progress         *models.UserProgress `json:"progress"`
	Challenges       []ChallengeUpdate    `json:"challenges"`
	Unlocked         *UnlockResult        `json:"unlocked"`
	AlreadyProcessed bool                 `json:"already_processed"`
}

// RecordTaskCompletion credits a completed task exactly once per (user, task), advances
// task challenges and re-evaluates achievements.
func (e *Engine) RecordTaskCompletion(ctx context.Context, userID uint, ev TaskCompletionEvent) (*ActivityResult, error) {
	if ev.TaskID == 0 {
		return nil, domainError(ErrInvalidOperation, "invalid_task", "task id is required")
	}
	if ev.Points < 0 {
		return nil, ErrInvalidAmount
	}
	if ev.CompletedAt.IsZero() {
		ev.CompletedAt = e.clock()
	}

	out := &ActivityResult{}
	var postings []*PointsResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := e.lockProgress(tx, userID)
		if err != nil {
			return err
		}
		out.Progress = p
		row := models.TaskCompletion{
			UserID:      userID,
			TaskID:      ev.TaskID,
			CategoryID:  ev.CategoryID,
			Points:      ev.Points,
			CompletedAt: ev.CompletedAt.UTC(),
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return fmt.Errorf("record task completion: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			out.AlreadyProcessed = true
			return nil
		}

		if ev.Points > 0 {
			taskID := ev.TaskID
			desc := "Completed task"
			if ev.Title != "" {
				desc += ": " + ev.Title
			}
			posting, err := e.credit(tx, p, ev.Points, models.TransactionTaskCompletion, desc,
				Refs{TaskID: &taskID, TemplateID: ev.TemplateID, IdempotencyKey: fmt.Sprintf("task:%d:%d", userID, ev.TaskID)})
			if err != nil {
				return err
			}
			out.Points = posting
			postings = append(postings, posting)
		}

		taskID := ev.TaskID
		updates, more, err := e.progressChallengesTx(tx, p, models.ActivityTaskCompleted, &taskID)
		if err != nil {
			return err
		}
		out.Challenges = updates
		postings = append(postings, more...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.AlreadyProcessed {
		return out, nil
	}
	return e.finishActivity(ctx, userID, "task_completed", out, postings), nil
}

// RecordDailyLogin credits the daily login bonus once per calendar day and advances the
// streak in the same transaction. A repeat login the same day changes nothing and
// returns the existing transaction.
func (e *Engine) RecordDailyLogin(ctx context.Context, userID uint) (*ActivityResult, error) {
	out := &ActivityResult{}
	var postings []*PointsResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := e.lockProgress(tx, userID)
		if err != nil {
			return err
		}
		out.Progress = p
		today := e.today(p)
		posting, err := e.credit(tx, p, e.opts.DailyLoginPoints, models.TransactionDailyLogin, "Daily login bonus",
			Refs{IdempotencyKey: dailyLoginKey(userID, today)})
		if err != nil {
			return err
		}
		out.Points = posting

		// The bonus may already exist from a manual DailyLogin credit; the login itself
		// still counts for the streak.
		advanced := applyStreak(p, today)
		if advanced {
			if err := tx.Save(p).Error; err != nil {
				return fmt.Errorf("save streak: %w", err)
			}
		}
		if posting.AlreadyProcessed && !advanced {
			out.AlreadyProcessed = true
			return nil
		}
		if !posting.AlreadyProcessed {
			postings = append(postings, posting)
		}
		updates, more, err := e.progressChallengesTx(tx, p, models.ActivityDailyLogin, nil)
		if err != nil {
			return err
		}
		out.Challenges = updates
		postings = append(postings, more...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.AlreadyProcessed {
		return out, nil
	}
	return e.finishActivity(ctx, userID, "daily_login", out, postings), nil
}

// RecordChallengeActivity forwards a collaborator activity to the challenge engine.
func (e *Engine) RecordChallengeActivity(ctx context.Context, userID uint, activityType string, relatedID *uint) (*ActivityResult, error) {
	if activityType == "" {
		return nil, ErrInvalidActivity
	}
	out := &ActivityResult{}
	var postings []*PointsResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := e.lockProgress(tx, userID)
		if err != nil {
			return err
		}
		out.Progress = p
		out.Challenges, postings, err = e.progressChallengesTx(tx, p, activityType, relatedID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e.finishActivity(ctx, userID, "challenge_activity", out, postings), nil
}

// RecordFocusSession credits a finished focus session once per session id.
func (e *Engine) RecordFocusSession(ctx context.Context, userID uint, ev FocusSessionEvent) (*ActivityResult, error) {
	if ev.SessionID == "" {
		return nil, domainError(ErrInvalidOperation, "invalid_session", "session id is required")
	}
	if ev.Minutes <= 0 {
		return nil, domainError(ErrInvalidOperation, "invalid_duration", "minutes must be positive")
	}
	if ev.EndedAt.IsZero() {
		ev.EndedAt = e.clock()
	}

	out := &ActivityResult{}
	var postings []*PointsResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := e.lockProgress(tx, userID)
		if err != nil {
			return err
		}
		out.Progress = p
		row := models.FocusSession{UserID: userID, SessionID: ev.SessionID, Minutes: ev.Minutes, EndedAt: ev.EndedAt.UTC()}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return fmt.Errorf("record focus session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			out.AlreadyProcessed = true
			return nil
		}

		if points := int64(ev.Minutes) * e.opts.FocusPointsPerMinute; points > 0 {
			posting, err := e.credit(tx, p, points, models.TransactionFocusSession,
				fmt.Sprintf("Focus session: %d min", ev.Minutes),
				Refs{IdempotencyKey: "focus:" + ev.SessionID})
			if err != nil {
				return err
			}
			out.Points = posting
			postings = append(postings, posting)
		}
		updates, more, err := e.progressChallengesTx(tx, p, models.ActivityFocusSession, nil)
		if err != nil {
			return err
		}
		out.Challenges = updates
		postings = append(postings, more...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.AlreadyProcessed {
		return out, nil
	}
	return e.finishActivity(ctx, userID, "focus_session", out, postings), nil
}

// finishActivity runs the post-commit steps shared by every ingested event. Achievement
// evaluation is re-derivable from state, so a failure here is logged and the event
// still counts.
func (e *Engine) finishActivity(ctx context.Context, userID uint, trigger string, out *ActivityResult, postings []*PointsResult) *ActivityResult {
	e.observeChallengeUpdates(userID, out.Challenges, postings)
	// Task counts and streaks move even when no points were posted.
	e.InvalidateLeaderboards()
	observeEvent(trigger)

	unlocked, err := e.EvaluateAndUnlock(ctx, userID, trigger)
	if err != nil {
		e.log.Errorw("evaluate achievements", "user_id", userID, "trigger", trigger, "error", err)
		unlocked = &UnlockResult{}
	}
	out.Unlocked = unlocked
	if !unlocked.Empty() {
		if p, err := e.GetProgress(ctx, userID); err == nil {
			out.Progress = p
		}
	}
	return out
}
