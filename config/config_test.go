package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadJSONConfig(t *testing.T) {
	path := writeFile(t, `{
		"app": {"AppPort": "8080", "JWTSecret": "s", "RateLimitPerMinute": 30, "AllowedOrigins": ["https://a.example"]},
		"database": {"Driver": "postgres", "Host": "db", "Name": "qa"},
		"redis": {"Port": 6380, "Disabled": true},
		"upload": {"Dir": "/srv/uploads", "MaxMB": 8},
		"accounts": {"AnonymizedEmailDomain": "gone.example"}
	}`)
	var c AppConfig
	require.NoError(t, loadJSONConfig(path, &c))
	assert.Equal(t, "8080", c.AppPort)
	assert.Equal(t, 30, c.RateLimitPerMinute)
	assert.Equal(t, []string{"https://a.example"}, c.AllowedOrigins)
	assert.Equal(t, "postgres", c.DBDriver)
	assert.Equal(t, "db", c.DBHost)
	assert.Equal(t, 6380, c.RedisPort)
	assert.True(t, c.CacheDisabled)
	assert.Equal(t, 8, c.UploadMaxMB)
	assert.Equal(t, "gone.example", c.AnonymizedEmailDomain)

	applyDefaults(&c)
	assert.Equal(t, "5432", c.DBPort)
}

func TestLoadJSONConfigMissingAndInvalid(t *testing.T) {
	var c AppConfig
	assert.NoError(t, loadJSONConfig(filepath.Join(t.TempDir(), "absent.json"), &c))
	assert.Error(t, loadJSONConfig(writeFile(t, "{not json"), &c))
}

func TestApplyDefaults(t *testing.T) {
	var c AppConfig
	applyDefaults(&c)
	assert.Equal(t, "5000", c.AppPort)
	assert.Equal(t, 24, c.JWTExpireHours)
	assert.Equal(t, 60, c.RateLimitPerMinute)
	assert.Equal(t, []string{"*"}, c.AllowedOrigins)
	assert.Equal(t, "mysql", c.DBDriver)
	assert.Equal(t, "3306", c.DBPort)
	assert.Equal(t, "deleted.com", c.AnonymizedEmailDomain)
	assert.Equal(t, 5, c.UploadMaxMB)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("CACHE_DISABLED", "true")
	t.Setenv("ANONYMIZED_EMAIL_DOMAIN", "@removed.example")
	t.Setenv("UPLOAD_MAX_MB", "12")

	var c AppConfig
	applyDefaults(&c)
	applyEnvOverrides(&c)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowedOrigins)
	assert.True(t, c.CacheDisabled)
	assert.Equal(t, "removed.example", c.AnonymizedEmailDomain)
	assert.Equal(t, 12, c.UploadMaxMB)
}

func TestOpen(t *testing.T) {
	_, err := Open(AppConfig{DBDriver: "oracle"}, &gorm.Config{})
	assert.Error(t, err)

	conn, err := Open(AppConfig{DBDriver: "sqlite", DatabaseURI: ":memory:"}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	type probe struct {
		ID   uint
		Name string
	}
	require.NoError(t, Migrate(conn, &probe{}))
	assert.True(t, conn.Migrator().HasTable(&probe{}))
}

func TestToGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, toGormLogLevel("debug"))
	assert.Equal(t, logger.Warn, toGormLogLevel(""))
	assert.Equal(t, logger.Error, toGormLogLevel("error"))
	assert.Equal(t, logger.Silent, toGormLogLevel("silent"))
}
