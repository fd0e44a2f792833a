package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/cppla/codechannels/config"
	"github.com/cppla/codechannels/middleware"
	"github.com/cppla/codechannels/models"
	"github.com/cppla/codechannels/utils"
)

// AuthController handles authentication related endpoints including local and third-party providers.
type AuthController struct {
	db *gorm.DB
}

// NewAuthController creates a new AuthController instance.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

// Register handles local account registration with bcrypt hashing.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		Username string       `json:"username" binding:"required"`
		Email    string       `json:"email" binding:"required,email"`
		Password string       `json:"password" binding:"required"`
		Level    models.Level `json:"level"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "username, a valid email and password are required")
		return
	}

	username := strings.TrimSpace(req.Username)
	if !validUsername(username) {
		utils.Error(ctx, http.StatusBadRequest, 40002, "username must be 3-30 letters, digits, '_', '-' or '.'")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if strings.HasSuffix(email, "@"+config.Get().AnonymizedEmailDomain) {
		utils.Error(ctx, http.StatusBadRequest, 40003, "email domain is reserved")
		return
	}
	if req.Level == "" {
		req.Level = models.LevelBeginner
	}
	if !req.Level.Valid() {
		utils.Error(ctx, http.StatusBadRequest, 40004, "level must be Beginner, Intermediate or Expert")
		return
	}

	var taken int64
	if err := a.db.WithContext(ctx.Request.Context()).Model(&models.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&taken).Error; err != nil {
		respondError(ctx, err, "failed to check account")
		return
	}
	if taken > 0 {
		utils.Error(ctx, http.StatusConflict, 40901, "username or email already in use")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, utils.ErrWeakPassword) {
			utils.Error(ctx, http.StatusBadRequest, 40005, err.Error())
			return
		}
		utils.Error(ctx, http.StatusBadRequest, 40005, "password cannot be used")
		return
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Level:        req.Level,
	}
	if err := a.db.WithContext(ctx.Request.Context()).Create(&user).Error; err != nil {
		respondError(ctx, err, "failed to create user")
		return
	}

	token, expiresAt, err := utils.GenerateToken(user.ID, user.Username)
	if err != nil {
		respondError(ctx, err, "failed to generate token")
		return
	}
	utils.Created(ctx, gin.H{"token": token, "expiresAt": expiresAt, "user": user})
}

func validUsername(s string) bool {
	if l := runeLen(s); l < 3 || l > 30 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return false
		}
	}
	return true
}

// Login verifies user credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40006, "invalid request payload")
		return
	}

	var user models.User
	err := a.db.WithContext(ctx.Request.Context()).
		Where("username = ? AND anonymized_at IS NULL", strings.TrimSpace(req.Username)).
		First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(ctx, err, "failed to load account")
		return
	}
	if err != nil || !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "invalid username or password")
		return
	}

	token, expiresAt, err := utils.GenerateToken(user.ID, user.Username)
	if err != nil {
		respondError(ctx, err, "failed to generate token")
		return
	}
	utils.Success(ctx, gin.H{"token": token, "expiresAt": expiresAt, "user": user})
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	token := ctx.GetString(middleware.ContextTokenKey)
	expiresAt := time.Now().Add(time.Duration(config.Get().JWTExpireHours) * time.Hour)
	if v, ok := ctx.Get(middleware.ContextTokenExpiryKey); ok {
		if t, ok := v.(time.Time); ok {
			expiresAt = t
		}
	}
	utils.BlacklistToken(ctx.Request.Context(), token, expiresAt)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// OAuthRedirect generates a provider-specific authorization URL.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	provider := strings.ToLower(ctx.Param("provider"))
	cfg, err := oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40007, err.Error())
		return
	}
	state := utils.NewOAuthState(ctx.Request.Context())
	utils.Success(ctx, gin.H{"authorization_url": cfg.AuthCodeURL(state), "state": state})
}

// OAuthCallback exchanges the authorization code for a user identity and issues a JWT.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := strings.ToLower(ctx.Param("provider"))
	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		utils.Error(ctx, http.StatusBadRequest, 40008, "missing code or state")
		return
	}
	if !utils.ConsumeOAuthState(ctx.Request.Context(), state) {
		utils.Error(ctx, http.StatusBadRequest, 40009, "invalid or expired state")
		return
	}
	cfg, err := oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40007, err.Error())
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 15*time.Second)
	defer cancel()
	token, err := cfg.Exchange(reqCtx, code)
	if err != nil {
		utils.Logger.Warn("oauth exchange failed", zap.String("provider", provider), zap.Error(err))
		utils.Error(ctx, http.StatusBadRequest, 40011, "failed to exchange code")
		return
	}

	client := cfg.Client(reqCtx, token)
	var info *oauthUser
	switch provider {
	case "github":
		info, err = fetchGitHubUser(reqCtx, client)
	default:
		info, err = fetchGoogleUser(reqCtx, client)
	}
	if err != nil {
		utils.Logger.Warn("oauth profile fetch failed", zap.String("provider", provider), zap.Error(err))
		utils.Error(ctx, http.StatusBadGateway, 50201, "failed to fetch provider profile")
		return
	}

	user, err := a.findOrCreateOAuthUser(ctx.Request.Context(), provider, info)
	if err != nil {
		if errors.Is(err, errAccountDeleted) {
			utils.Error(ctx, http.StatusForbidden, 40302, err.Error())
			return
		}
		respondError(ctx, err, "failed to persist user")
		return
	}

	jwtToken, expiresAt, err := utils.GenerateToken(user.ID, user.Username)
	if err != nil {
		respondError(ctx, err, "failed to generate token")
		return
	}
	utils.Success(ctx, gin.H{"token": jwtToken, "expiresAt": expiresAt, "user": user})
}

func oauthConfig(provider string) (*oauth2.Config, error) {
	cfg := config.Get()
	redirect := fmt.Sprintf("%s/api/auth/oauth/%s/callback", strings.TrimRight(cfg.OAuthRedirectBase, "/"), provider)
	switch provider {
	case "github":
		if cfg.GitHubClientID == "" || cfg.GitHubClientSecret == "" {
			return nil, fmt.Errorf("github oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  redirect,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}, nil
	case "google":
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  redirect,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

type oauthUser struct {
	ID        string
	Username  string
	Email     string
	AvatarURL string
}

var errAccountDeleted = errors.New("this account has been deleted")

func (a *AuthController) findOrCreateOAuthUser(ctx context.Context, provider string, info *oauthUser) (*models.User, error) {
	tx := a.db.WithContext(ctx)
	var user models.User
	err := tx.Where("provider = ? AND provider_id = ?", provider, info.ID).First(&user).Error
	if err == nil {
		if user.Anonymized() {
			return nil, errAccountDeleted
		}
		if info.AvatarURL != "" && info.AvatarURL != user.Avatar {
			if err := tx.Model(&user).Update("avatar", info.AvatarURL).Error; err != nil {
				return nil, err
			}
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(info.Email))
	if email != "" {
		var n int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
			return nil, err
		}
		if n > 0 {
			email = ""
		}
	}
	if email == "" {
		// email is unique and required; providers may withhold it
		email = fmt.Sprintf("%s_%s@oauth.local", provider, info.ID)
	}

	username, err := a.ensureUniqueUsername(ctx, info.Username, provider, info.ID)
	if err != nil {
		return nil, err
	}
	user = models.User{
		Username:   username,
		Email:      email,
		Provider:   provider,
		ProviderID: info.ID,
		Avatar:     info.AvatarURL,
	}
	if err := tx.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func fetchJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fetchGitHubUser(ctx context.Context, client *http.Client) (*oauthUser, error) {
	var payload struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := fetchJSON(ctx, client, "https://api.github.com/user", &payload); err != nil {
		return nil, err
	}

	email := payload.Email
	if email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		// the emails scope may be refused; the account still works without one
		if err := fetchJSON(ctx, client, "https://api.github.com/user/emails", &emails); err == nil {
			for _, e := range emails {
				if e.Primary && e.Verified {
					email = e.Email
					break
				}
			}
		}
	}
	return &oauthUser{
		ID:        fmt.Sprintf("%d", payload.ID),
		Username:  payload.Login,
		Email:     email,
		AvatarURL: payload.AvatarURL,
	}, nil
}

func fetchGoogleUser(ctx context.Context, client *http.Client) (*oauthUser, error) {
	var payload struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := fetchJSON(ctx, client, "https://www.googleapis.com/oauth2/v2/userinfo", &payload); err != nil {
		return nil, err
	}
	email := ""
	if payload.VerifiedEmail {
		email = payload.Email
	}
	name := payload.Name
	if at := strings.Index(payload.Email, "@"); name == "" && at > 0 {
		name = payload.Email[:at]
	}
	return &oauthUser{
		ID:        payload.ID,
		Username:  name,
		Email:     email,
		AvatarURL: payload.Picture,
	}, nil
}

func sanitizeUsername(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	var builder strings.Builder
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '_' || r == '-' || r == '.' || r == ' ':
			builder.WriteRune('_')
		}
	}
	result := strings.Trim(builder.String(), "_")
	if len(result) > 24 {
		result = result[:24]
	}
	return result
}

func (a *AuthController) ensureUniqueUsername(ctx context.Context, base, provider, id string) (string, error) {
	base = sanitizeUsername(base)
	if len(base) < 3 {
		base = sanitizeUsername(fmt.Sprintf("%s_%s", provider, id))
	}

	candidate := base
	for suffix := 1; ; suffix++ {
		var count int64
		if err := a.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
}
