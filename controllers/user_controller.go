package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/codechannels/config"
	"github.com/cppla/codechannels/models"
	"github.com/cppla/codechannels/services"
	"github.com/cppla/codechannels/utils"
)

// UserController serves profiles and account administration.
type UserController struct {
	db *gorm.DB
}

// NewUserController creates a new UserController instance.
func NewUserController(db *gorm.DB) *UserController {
	return &UserController{db: db}
}

// ListUsers returns paginated users for administrators.
func (u *UserController) ListUsers(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	tx := u.db.WithContext(ctx.Request.Context())

	var total int64
	if err := tx.Model(&models.User{}).Count(&total).Error; err != nil {
		respondError(ctx, err, "failed to count users")
		return
	}
	users := []models.User{}
	if err := tx.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&users).Error; err != nil {
		respondError(ctx, err, "failed to retrieve users")
		return
	}
	utils.Success(ctx, gin.H{"items": users, "pagination": pagination(page, pageSize, total)})
}

// GetProfile returns the caller's account with post and rating statistics.
func (u *UserController) GetProfile(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	stats, err := services.UserStats(ctx.Request.Context(), u.db, user.ID)
	if err != nil {
		respondError(ctx, err, "failed to load profile statistics")
		return
	}
	utils.Success(ctx, gin.H{"user": user, "stats": stats})
}

// UpdateProfile changes username, email, level, password or avatar of the caller.
func (u *UserController) UpdateProfile(ctx *gin.Context) {
	current, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req struct {
		Username *string `json:"username" form:"username"`
		Email    *string `json:"email" form:"email"`
		Level    *string `json:"level" form:"level"`
		Password *string `json:"password" form:"password"`
	}
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	user := *current
	columns := []string{}
	if req.Username != nil && strings.TrimSpace(*req.Username) != user.Username {
		name := strings.TrimSpace(*req.Username)
		if !validUsername(name) {
			utils.Error(ctx, http.StatusBadRequest, 40002, "username must be 3-30 letters, digits, '_', '-' or '.'")
			return
		}
		if !u.ensureFree(ctx, "username", name, user.ID) {
			return
		}
		user.Username = name
		columns = append(columns, "username")
	}
	if req.Email != nil && strings.ToLower(strings.TrimSpace(*req.Email)) != user.Email {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if at := strings.LastIndex(email, "@"); at < 1 || at == len(email)-1 ||
			strings.HasSuffix(email, "@"+config.Get().AnonymizedEmailDomain) {
			utils.Error(ctx, http.StatusBadRequest, 40003, "invalid email")
			return
		}
		if !u.ensureFree(ctx, "email", email, user.ID) {
			return
		}
		user.Email = email
		columns = append(columns, "email")
	}
	if req.Level != nil {
		level := models.Level(strings.TrimSpace(*req.Level))
		if !level.Valid() {
			utils.Error(ctx, http.StatusBadRequest, 40004, "level must be Beginner, Intermediate or Expert")
			return
		}
		user.Level = level
		columns = append(columns, "level")
	}
	if req.Password != nil && *req.Password != "" {
		hash, err := utils.HashPassword(*req.Password)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40005, err.Error())
			return
		}
		user.PasswordHash = hash
		columns = append(columns, "password_hash")
	}
	avatar, ok := saveUpload(ctx, "avatar")
	if !ok {
		return
	}
	if avatar != "" {
		user.Avatar = avatar
		columns = append(columns, "avatar")
	}

	if len(columns) > 0 {
		if err := u.db.WithContext(ctx.Request.Context()).Model(&user).
			Select(columns).Updates(&user).Error; err != nil {
			respondError(ctx, err, "failed to update profile")
			return
		}
		// threads and channel listings embed authors
		utils.InvalidateByPrefix(ctx.Request.Context(), utils.ThreadCachePrefix)
		utils.InvalidateByPrefix(ctx.Request.Context(), utils.ChannelCachePrefix)
	}
	utils.Success(ctx, gin.H{"message": "profile updated", "user": user})
}

// DeleteUser anonymizes an account; admins cannot be deleted.
func (u *UserController) DeleteUser(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	user, err := services.AnonymizeUser(ctx.Request.Context(), u.db, id)
	if err != nil {
		respondError(ctx, err, "failed to anonymize user")
		return
	}
	utils.InvalidateByPrefix(ctx.Request.Context(), utils.ThreadCachePrefix)
	utils.InvalidateByPrefix(ctx.Request.Context(), utils.ChannelCachePrefix)
	utils.Success(ctx, gin.H{"message": "user anonymized", "user": user})
}

func (u *UserController) ensureFree(ctx *gin.Context, column, value string, selfID uint) bool {
	var n int64
	if err := u.db.WithContext(ctx.Request.Context()).Model(&models.User{}).
		Where(column+" = ? AND id <> ?", value, selfID).Count(&n).Error; err != nil {
		respondError(ctx, err, "failed to check "+column)
		return false
	}
	if n > 0 {
		utils.Error(ctx, http.StatusConflict, 40902, column+" already in use")
		return false
	}
	return true
}
