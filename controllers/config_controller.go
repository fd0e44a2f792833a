package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/codechannels/config"
	"github.com/cppla/codechannels/models"
	"github.com/cppla/codechannels/utils"
)

// ConfigController serves the public, environment-driven client configuration.
type ConfigController struct{}

func NewConfigController() *ConfigController { return &ConfigController{} }

// GetClientConfig tells the frontend which login providers and upload limits are active.
func (c *ConfigController) GetClientConfig(ctx *gin.Context) {
	cfg := config.Get()
	providers := []string{}
	if cfg.GitHubClientID != "" && cfg.GitHubClientSecret != "" {
		providers = append(providers, "github")
	}
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		providers = append(providers, "google")
	}
	utils.Success(ctx, gin.H{
		"oauthProviders":    providers,
		"uploadMaxMB":       cfg.UploadMaxMB,
		"passwordMinLength": utils.MinPasswordLength,
		"levels":            []models.Level{models.LevelBeginner, models.LevelIntermediate, models.LevelExpert},
	})
}
