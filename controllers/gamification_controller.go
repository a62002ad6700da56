package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/taskquest/models"
	"github.com/cppla/taskquest/services"
	"github.com/cppla/taskquest/utils"
)

// GamificationController serves the per-user gamification endpoints.
type GamificationController struct {
	engine *services.Engine
}

// NewGamificationController creates a new controller instance.
func NewGamificationController(engine *services.Engine) *GamificationController {
	return &GamificationController{engine: engine}
}

type addPointsRequest struct {
	UserID          uint   `json:"user_id" binding:"required"`
	Points          int64  `json:"points" binding:"required"`
	TransactionType string `json:"transaction_type"`
	Description     string `json:"description"`
	TaskID          *uint  `json:"task_id"`
	ChallengeID     *uint  `json:"challenge_id"`
}

type completeTaskRequest struct {
	TaskID      uint       `json:"task_id" binding:"required"`
	TemplateID  *uint      `json:"template_id"`
	CategoryID  *uint      `json:"category_id"`
	Title       string     `json:"title"`
	Points      int64      `json:"points"`
	CompletedAt *time.Time `json:"completed_at"`
}

type completeFocusRequest struct {
	SessionID string     `json:"session_id" binding:"required"`
	Minutes   int        `json:"minutes" binding:"required"`
	EndedAt   *time.Time `json:"ended_at"`
}

type timeZoneRequest struct {
	TimeZone string `json:"time_zone"`
}

type toggleBadgeRequest struct {
	BadgeID     uint  `json:"badge_id" binding:"required"`
	IsDisplayed *bool `json:"is_displayed"`
	IsFeatured  *bool `json:"is_featured"`
}

type rewardRequest struct {
	RewardID uint `json:"reward_id" binding:"required"`
}

type useRewardRequest struct {
	UserRewardID uint `json:"user_reward_id" binding:"required"`
}

type challengeRequest struct {
	ChallengeID uint `json:"challenge_id" binding:"required"`
}

type challengeProgressRequest struct {
	ActivityType    string `json:"activity_type" binding:"required"`
	RelatedEntityID *uint  `json:"related_entity_id"`
}

// GetProgress returns the caller's progress aggregate.
func (g *GamificationController) GetProgress(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	p, err := g.engine.GetProgress(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "failed to load progress")
		return
	}
	utils.Success(ctx, gin.H{
		"progress":         p,
		"effective_streak": g.engine.EffectiveStreak(p),
	})
}

// SetTimeZone changes the day boundary used for the caller's streak.
func (g *GamificationController) SetTimeZone(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req timeZoneRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid payload")
		return
	}
	p, err := g.engine.SetTimeZone(ctx.Request.Context(), userID, req.TimeZone)
	if err != nil {
		respondError(ctx, err, "failed to set time zone")
		return
	}
	utils.Success(ctx, p)
}

// GetTransactions pages through the caller's ledger.
func (g *GamificationController) GetTransactions(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	items, total, err := g.engine.GetTransactions(ctx.Request.Context(), userID, page, pageSize)
	if err != nil {
		respondError(ctx, err, "failed to load transactions")
		return
	}
	utils.Success(ctx, utils.Page{Items: items, Total: total, Page: page, PageSize: pageSize})
}

// AddPoints credits points to any user. Admin only.
func (g *GamificationController) AddPoints(ctx *gin.Context) {
	var req addPointsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid payload")
		return
	}
	typ := models.TransactionType(req.TransactionType)
	if typ == "" {
		typ = models.TransactionAdminAdjustment
	}
	c := ctx.Request.Context()
	res, err := g.engine.AddPoints(c, req.UserID, req.Points, typ, utils.SanitizeText(req.Description),
		services.Refs{TaskID: req.TaskID, ChallengeID: req.ChallengeID})
	if err != nil {
		respondError(ctx, err, "failed to add points")
		return
	}
	unlocked, err := g.engine.EvaluateAndUnlock(c, req.UserID, "points_added")
	if err != nil {
		utils.Sugar.Errorw("evaluate achievements", "user_id", req.UserID, "error", err)
	}
	utils.Success(ctx, gin.H{"result": res, "unlocked": unlocked})
}

// DailyLogin records the caller's daily login.
func (g *GamificationController) DailyLogin(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	res, err := g.engine.RecordDailyLogin(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "failed to record daily login")
		return
	}
	utils.Success(ctx, res)
}

// CompleteTask ingests a task completion for the caller.
func (g *GamificationController) CompleteTask(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req completeTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid payload")
		return
	}
	ev := services.TaskCompletionEvent{
		TaskID:     req.TaskID,
		TemplateID: req.TemplateID,
		CategoryID: req.CategoryID,
		Title:      utils.SanitizeText(req.Title),
		Points:     req.Points,
	}
	if req.CompletedAt != nil {
		ev.CompletedAt = *req.CompletedAt
	}
	res, err := g.engine.RecordTaskCompletion(ctx.Request.Context(), userID, ev)
	if err != nil {
		respondError(ctx, err, "failed to record task completion")
		return
	}
	utils.Success(ctx, res)
}

// CompleteFocus ingests a finished focus session for the caller.
func (g *GamificationController) CompleteFocus(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req completeFocusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid payload")
		return
	}
	ev := services.FocusSessionEvent{SessionID: req.SessionID, Minutes: req.Minutes}
	if req.EndedAt != nil {
		ev.EndedAt = *req.EndedAt
	}
	res, err := g.engine.RecordFocusSession(ctx.Request.Context(), userID, ev)
	if err != nil {
		respondError(ctx, err, "failed to record focus session")
		return
	}
	utils.Success(ctx, res)
}

// GetAchievements lists the caller's unlocked achievements.
func (g *GamificationController) GetAchievements(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	items, err := g.engine.GetUserAchievements(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "failed to load achievements")
		return
	}
	utils.Success(ctx, items)
}

// GetAvailableAchievements lists achievements still to earn. Hidden ones are only
// shown to admins asking for them.
func (g *GamificationController) GetAvailableAchievements(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	includeHidden := isAdmin(ctx) && ctx.Query("include_hidden") == "true"
	items, err := g.engine.GetAvailableAchievements(ctx.Request.Context(), userID, includeHidden)
	if err != nil {
		respondError(ctx, err, "failed to load achievements")
		return
	}
	utils.Success(ctx, items)
}

// GetAchievementProgress reports per-achievement progress for the caller.
func (g *GamificationController) GetAchievementProgress(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	includeHidden := isAdmin(ctx) && ctx.Query("include_hidden") == "true"
	items, err := g.engine.GetAchievementProgress(ctx.Request.Context(), userID, includeHidden)
	if err != nil {
		respondError(ctx, err, "failed to load achievement progress")
		return
	}
	utils.Success(ctx, items)
}

// GetBadges lists the caller's badges.
func (g *GamificationController) GetBadges(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	items, err := g.engine.GetUserBadges(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "failed to load badges")
		return
	}
	utils.Success(ctx, items)
}

// ToggleBadge updates the display flags of one of the caller's badges.
func (g *GamificationController) ToggleBadge(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req toggleBadgeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid payload")
		return
	}
	displayed, featured := true, false
	if req.IsDisplayed != nil {
		displayed = *req.IsDisplayed
	}
	if req.IsFeatured != nil {
		featured = *req.IsFeatured
	}
	ub, err := g.engine.ToggleBadge(ctx.Request.Context(), userID, req.BadgeID, displayed, featured)
	if err != nil {
		respondError(ctx, err, "failed to update badge")
		return
	}
	utils.Success(ctx, ub)
}

// GetRewards lists rewards the caller can currently redeem.
func (g *GamificationController) GetRewards(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	items, err := g.engine.GetAvailableRewards(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "failed to load rewards")
		return
	}
	utils.Success(ctx, items)
}

// GetMyRewards lists the caller's redemptions.
func (g *GamificationController) GetMyRewards(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	items, err := g.engine.GetUserRewards(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "failed to load rewards")
		return
	}
	utils.Success(ctx, items)
}

// RedeemReward spends the caller's points on a reward.
func (g *GamificationController) RedeemReward(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req rewardRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid payload")
		return
	}
	ur, err := g.engine.RedeemReward(ctx.Request.Context(), userID, req.RewardID)
	if err != nil {
		respondError(ctx, err, "failed to redeem reward")
		return
	}
	utils.Success(ctx, ur)
}

// UseReward marks one of the caller's redemptions as used.
func (g *GamificationController) UseReward(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req useRewardRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid payload")
		return
	}
	ur, err := g.engine.UseReward(ctx.Request.Context(), userID, req.UserRewardID)
	if err != nil {
		respondError(ctx, err, "failed to use reward")
		return
	}
	utils.Success(ctx, ur)
}

// GetChallenges lists open challenges.
func (g *GamificationController) GetChallenges(ctx *gin.Context) {
	items, err := g.engine.GetActiveChallenges(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, "failed to load challenges")
		return
	}
	utils.Success(ctx, items)
}

// GetMyChallenges lists the caller's enrollments.
func (g *GamificationController) GetMyChallenges(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	items, err := g.engine.GetUserChallenges(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "failed to load challenges")
		return
	}
	utils.Success(ctx, items)
}

// EnrollChallenge enrolls the caller in a challenge.
func (g *GamificationController) EnrollChallenge(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req challengeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid payload")
		return
	}
	uc, err := g.engine.EnrollInChallenge(ctx.Request.Context(), userID, req.ChallengeID)
	if err != nil {
		respondError(ctx, err, "failed to enroll")
		return
	}
	utils.Success(ctx, uc)
}

// LeaveChallenge drops the caller's enrollment.
func (g *GamificationController) LeaveChallenge(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req challengeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid payload")
		return
	}
	if err := g.engine.LeaveChallenge(ctx.Request.Context(), userID, req.ChallengeID); err != nil {
		respondError(ctx, err, "failed to leave challenge")
		return
	}
	utils.Success(ctx, gin.H{"challenge_id": req.ChallengeID})
}

// ChallengeProgress records a challenge activity for the caller.
func (g *GamificationController) ChallengeProgress(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req challengeProgressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid payload")
		return
	}
	res, err := g.engine.RecordChallengeActivity(ctx.Request.Context(), userID, req.ActivityType, req.RelatedEntityID)
	if err != nil {
		respondError(ctx, err, "failed to record challenge progress")
		return
	}
	utils.Success(ctx, res)
}

// GetStats returns the caller's dashboard.
func (g *GamificationController) GetStats(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	d, err := g.engine.GetStats(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "failed to load stats")
		return
	}
	utils.Success(ctx, d)
}

// GetLeaderboard ranks all users in a category.
func (g *GamificationController) GetLeaderboard(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	entries, err := g.engine.GetLeaderboard(ctx.Request.Context(), ctx.Param("category"), limit)
	if err != nil {
		respondError(ctx, err, "failed to load leaderboard")
		return
	}
	utils.Success(ctx, entries)
}

// GetFamilyLeaderboard ranks the members of a family in a category.
func (g *GamificationController) GetFamilyLeaderboard(ctx *gin.Context) {
	familyID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid family id")
		return
	}
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	entries, err := g.engine.GetFamilyLeaderboard(ctx.Request.Context(), familyID, ctx.Param("category"), limit)
	if err != nil {
		respondError(ctx, err, "failed to load leaderboard")
		return
	}
	utils.Success(ctx, entries)
}
