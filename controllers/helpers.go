package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/taskquest/middleware"
	"github.com/cppla/taskquest/services"
	"github.com/cppla/taskquest/utils"
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 20
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func parseID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

func isAdmin(ctx *gin.Context) bool {
	return ctx.GetBool(middleware.ContextIsAdminKey)
}

// respondError maps engine errors onto HTTP statuses. Business rule violations carry
// their reason to the client; anything else is logged and hidden behind a 500.
func respondError(ctx *gin.Context, err error, fallback string) {
	var de *services.Error
	reason := ""
	message := fallback
	if errors.As(err, &de) {
		reason, message = de.Reason, de.Message
	}

	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.Reject(ctx, http.StatusNotFound, 40400, reason, message)
	case errors.Is(err, services.ErrInsufficientPoints):
		utils.Reject(ctx, http.StatusBadRequest, 40010, reason, message)
	case errors.Is(err, services.ErrInsufficientLevel):
		utils.Reject(ctx, http.StatusBadRequest, 40011, reason, message)
	case errors.Is(err, services.ErrInvalidOperation):
		utils.Reject(ctx, http.StatusBadRequest, 40000, reason, message)
	default:
		utils.Sugar.Errorw(fallback, "path", ctx.FullPath(), "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50000, fallback)
	}
}
