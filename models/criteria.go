package models

// CriteriaKind names the statistic an unlock rule is evaluated against.
type CriteriaKind string

const (
	CriteriaNone                 CriteriaKind = ""
	CriteriaTasksCompleted       CriteriaKind = "tasks_completed"
	CriteriaCategoryTasks        CriteriaKind = "category_tasks"
	CriteriaCurrentStreak        CriteriaKind = "current_streak"
	CriteriaLongestStreak        CriteriaKind = "longest_streak"
	CriteriaTotalPoints          CriteriaKind = "total_points"
	CriteriaLevel                CriteriaKind = "level"
	CriteriaDailyLogins          CriteriaKind = "daily_logins"
	CriteriaFocusSessions        CriteriaKind = "focus_sessions"
	CriteriaFocusMinutes         CriteriaKind = "focus_minutes"
	CriteriaChallengesCompleted  CriteriaKind = "challenges_completed"
	CriteriaAchievementsUnlocked CriteriaKind = "achievements_unlocked"
)

// Criteria is a typed unlock rule: "statistic Kind reaches Threshold", optionally
// narrowed to a single task category.
type Criteria struct {
	Kind       CriteriaKind `json:"kind"`
	Threshold  int64        `json:"threshold"`
	CategoryID *uint        `json:"category_id,omitempty"`
}
