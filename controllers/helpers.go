package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/codechannels/config"
	"github.com/cppla/codechannels/middleware"
	"github.com/cppla/codechannels/models"
	"github.com/cppla/codechannels/services"
	"github.com/cppla/codechannels/utils"
)

const (
	defaultSearchLimit  = 20
	defaultRankingLimit = 10
	maxLimit            = 100
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 20
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= maxLimit {
		pageSize = s
	}
	return page, pageSize
}

func pagination(page, pageSize int, total int64) gin.H {
	return gin.H{
		"page":        page,
		"page_size":   pageSize,
		"total":       total,
		"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
}

// parseLimit reads ?limit=, falling back to def and clamping to [1, maxLimit].
func parseLimit(ctx *gin.Context, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(ctx.Query("limit")))
	if err != nil {
		return def
	}
	if n < 1 {
		return 1
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

// parseID reads a positive numeric path parameter, writing a 400 when it is malformed.
func parseID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func currentUser(ctx *gin.Context) (*models.User, bool) {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
	}
	return user, ok
}

// canModify reports whether user owns the record or is an admin.
func canModify(user *models.User, ownerID *uint) bool {
	if user.IsAdmin {
		return true
	}
	return ownerID != nil && *ownerID == user.ID
}

// respondError maps service errors onto the response envelope. Unexpected
// errors are logged and reported as 500 with the given message.
func respondError(ctx *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		utils.Error(ctx, http.StatusBadRequest, 40000, err.Error())
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40400, err.Error())
	case errors.Is(err, services.ErrForbidden):
		utils.Error(ctx, http.StatusForbidden, 40300, err.Error())
	case errors.Is(err, services.ErrConflict):
		utils.Error(ctx, http.StatusConflict, 40900, err.Error())
	default:
		utils.Logger.Error(message,
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.Request.URL.Path),
			zap.Error(err),
		)
		utils.Error(ctx, http.StatusInternalServerError, 50000, message)
	}
}

// saveUpload stores the multipart file under field, if any. It returns ""
// when the request carries no such file and writes a 400/500 on failure.
func saveUpload(ctx *gin.Context, field string) (string, bool) {
	if !strings.HasPrefix(ctx.ContentType(), "multipart/") {
		return "", true
	}
	fh, err := ctx.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", true
		}
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid multipart payload")
		return "", false
	}
	cfg := config.Get()
	url, err := utils.SaveUpload(fh, cfg.UploadDir, int64(cfg.UploadMaxMB)<<20)
	switch {
	case err == nil:
		return url, true
	case errors.Is(err, utils.ErrUploadType):
		utils.Error(ctx, http.StatusBadRequest, 40031, err.Error())
	case errors.Is(err, utils.ErrUploadTooLarge):
		utils.Error(ctx, http.StatusBadRequest, 40032, "file size exceeds "+strconv.Itoa(cfg.UploadMaxMB)+"MB")
	default:
		utils.Logger.Error("save upload failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to save file")
	}
	return "", false
}

// normaliseTags accepts a JSON encoded list, a comma separated string or
// repeated form values, and returns trimmed, de-duplicated plain-text tags.
func normaliseTags(raw []string) []string {
	var parts []string
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if strings.HasPrefix(r, "[") {
			var decoded []string
			if err := json.Unmarshal([]byte(r), &decoded); err == nil {
				parts = append(parts, decoded...)
				continue
			}
		}
		parts = append(parts, strings.Split(r, ",")...)
	}
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := utils.SanitizeText(p); t != "" {
			tags = append(tags, t)
		}
	}
	return utils.Unique(tags)
}

func runeLen(s string) int {
	return len([]rune(s))
}
