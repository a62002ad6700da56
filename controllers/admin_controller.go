package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/cppla/taskquest/models"
	"github.com/cppla/taskquest/services"
	"github.com/cppla/taskquest/utils"
)

// AdminController serves support and catalog endpoints. Every route is admin only.
type AdminController struct {
	engine *services.Engine
}

// NewAdminController creates a new controller instance.
func NewAdminController(engine *services.Engine) *AdminController {
	return &AdminController{engine: engine}
}

type criteriaRequest struct {
	Kind       string `json:"kind"`
	Threshold  int64  `json:"threshold"`
	CategoryID *uint  `json:"category_id"`
}

func (c criteriaRequest) toModel() datatypes.JSONType[models.Criteria] {
	return datatypes.NewJSONType(models.Criteria{
		Kind:       models.CriteriaKind(c.Kind),
		Threshold:  c.Threshold,
		CategoryID: c.CategoryID,
	})
}

type createAchievementRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Criteria    criteriaRequest `json:"criteria"`
	PointValue  int64           `json:"point_value"`
	Difficulty  string          `json:"difficulty"`
	IsHidden    bool            `json:"is_hidden"`
}

type createBadgeRequest struct {
	Name                  string          `json:"name" binding:"required"`
	Description           string          `json:"description"`
	Icon                  string          `json:"icon"`
	RequiredAchievementID *uint           `json:"required_achievement_id"`
	Criteria              criteriaRequest `json:"criteria"`
	PointValue            int64           `json:"point_value"`
}

type createRewardRequest struct {
	Name           string     `json:"name" binding:"required"`
	Description    string     `json:"description"`
	PointCost      int64      `json:"point_cost"`
	MinimumLevel   int        `json:"minimum_level"`
	Quantity       *int       `json:"quantity"`
	ExpirationDate *time.Time `json:"expiration_date"`
}

type createChallengeRequest struct {
	Name            string    `json:"name" binding:"required"`
	Description     string    `json:"description"`
	StartDate       time.Time `json:"start_date" binding:"required"`
	EndDate         time.Time `json:"end_date" binding:"required"`
	TargetCount     int       `json:"target_count" binding:"required"`
	ActivityType    string    `json:"activity_type" binding:"required"`
	PointReward     int64     `json:"point_reward"`
	Difficulty      string    `json:"difficulty"`
	MaxParticipants *int      `json:"max_participants"`
}

type adjustPointsRequest struct {
	Delta  int64  `json:"delta" binding:"required"`
	Reason string `json:"reason"`
}

// ResetUser wipes a user's gamification state.
func (a *AdminController) ResetUser(ctx *gin.Context) {
	userID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid user id")
		return
	}
	p, err := a.engine.ResetUser(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "failed to reset user")
		return
	}
	utils.Success(ctx, p)
}

// AdjustPoints applies a signed manual correction to a user's balance.
func (a *AdminController) AdjustPoints(ctx *gin.Context) {
	userID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid user id")
		return
	}
	var req adjustPointsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid payload")
		return
	}
	res, err := a.engine.AdminAdjust(ctx.Request.Context(), userID, req.Delta, utils.SanitizeText(req.Reason))
	if err != nil {
		respondError(ctx, err, "failed to adjust points")
		return
	}
	utils.Success(ctx, res)
}

// RevokeAchievement removes an achievement from a user without clawing back points.
func (a *AdminController) RevokeAchievement(ctx *gin.Context) {
	userID, ok := parseID(ctx.Param("id"))
	achievementID, ok2 := parseID(ctx.Param("achievementId"))
	if !ok || !ok2 {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid id")
		return
	}
	if err := a.engine.RevokeAchievement(ctx.Request.Context(), userID, achievementID); err != nil {
		respondError(ctx, err, "failed to revoke achievement")
		return
	}
	utils.Success(ctx, gin.H{"user_id": userID, "achievement_id": achievementID})
}

// RevokeBadge removes a badge from a user without clawing back points.
func (a *AdminController) RevokeBadge(ctx *gin.Context) {
	userID, ok := parseID(ctx.Param("id"))
	badgeID, ok2 := parseID(ctx.Param("badgeId"))
	if !ok || !ok2 {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid id")
		return
	}
	if err := a.engine.RevokeBadge(ctx.Request.Context(), userID, badgeID); err != nil {
		respondError(ctx, err, "failed to revoke badge")
		return
	}
	utils.Success(ctx, gin.H{"user_id": userID, "badge_id": badgeID})
}

// Audit reports users whose cached balance drifted from the ledger.
func (a *AdminController) Audit(ctx *gin.Context) {
	drift, err := a.engine.AuditBalances(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, "failed to audit balances")
		return
	}
	utils.Success(ctx, gin.H{"drift": drift, "consistent": len(drift) == 0})
}

// CreateAchievement adds a catalog achievement.
func (a *AdminController) CreateAchievement(ctx *gin.Context) {
	var req createAchievementRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid payload")
		return
	}
	created, err := a.engine.CreateAchievement(ctx.Request.Context(), models.Achievement{
		Name:        utils.SanitizeText(req.Name),
		Description: utils.Sanitize(req.Description),
		Category:    utils.SanitizeText(req.Category),
		Criteria:    req.Criteria.toModel(),
		PointValue:  req.PointValue,
		Difficulty:  models.Difficulty(req.Difficulty),
		IsHidden:    req.IsHidden,
		IsActive:    true,
	})
	if err != nil {
		respondError(ctx, err, "failed to create achievement")
		return
	}
	utils.Respond(ctx, http.StatusCreated, 0, "created", created)
}

// CreateBadge adds a catalog badge.
func (a *AdminController) CreateBadge(ctx *gin.Context) {
	var req createBadgeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid payload")
		return
	}
	created, err := a.engine.CreateBadge(ctx.Request.Context(), models.Badge{
		Name:                  utils.SanitizeText(req.Name),
		Description:           utils.Sanitize(req.Description),
		Icon:                  utils.SanitizeText(req.Icon),
		RequiredAchievementID: req.RequiredAchievementID,
		Criteria:              req.Criteria.toModel(),
		PointValue:            req.PointValue,
	})
	if err != nil {
		respondError(ctx, err, "failed to create badge")
		return
	}
	utils.Respond(ctx, http.StatusCreated, 0, "created", created)
}

// CreateReward adds a reward to the store.
func (a *AdminController) CreateReward(ctx *gin.Context) {
	var req createRewardRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid payload")
		return
	}
	created, err := a.engine.CreateReward(ctx.Request.Context(), models.Reward{
		Name:           utils.SanitizeText(req.Name),
		Description:    utils.Sanitize(req.Description),
		PointCost:      req.PointCost,
		MinimumLevel:   req.MinimumLevel,
		Quantity:       req.Quantity,
		ExpirationDate: req.ExpirationDate,
		IsActive:       true,
	})
	if err != nil {
		respondError(ctx, err, "failed to create reward")
		return
	}
	utils.Respond(ctx, http.StatusCreated, 0, "created", created)
}

// CreateChallenge adds a challenge.
func (a *AdminController) CreateChallenge(ctx *gin.Context) {
	var req createChallengeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid payload")
		return
	}
	created, err := a.engine.CreateChallenge(ctx.Request.Context(), models.Challenge{
		Name:            utils.SanitizeText(req.Name),
		Description:     utils.Sanitize(req.Description),
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		TargetCount:     req.TargetCount,
		ActivityType:    req.ActivityType,
		PointReward:     req.PointReward,
		Difficulty:      models.Difficulty(req.Difficulty),
		MaxParticipants: req.MaxParticipants,
		IsActive:        true,
	})
	if err != nil {
		respondError(ctx, err, "failed to create challenge")
		return
	}
	utils.Respond(ctx, http.StatusCreated, 0, "created", created)
}

// ExpireChallenges runs the expiry sweep on demand.
func (a *AdminController) ExpireChallenges(ctx *gin.Context) {
	n, err := a.engine.ExpireChallenges(ctx.Request.Context(), time.Time{})
	if err != nil {
		respondError(ctx, err, "failed to expire challenges")
		return
	}
	utils.Success(ctx, gin.H{"expired": n})
}
