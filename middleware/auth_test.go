package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/codechannels/config"
	"github.com/cppla/codechannels/models"
	"github.com/cppla/codechannels/utils"
)

func TestMain(m *testing.M) {
	config.Set(config.AppConfig{JWTSecret: "middleware-test-secret", CacheDisabled: true})
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func authRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db, err := config.Open(config.AppConfig{DBDriver: "sqlite", DatabaseURI: ":memory:"}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db, &models.User{}))

	r := gin.New()
	r.GET("/me", AuthRequired(db), func(ctx *gin.Context) {
		user, _ := CurrentUser(ctx)
		ctx.String(http.StatusOK, user.Username)
	})
	r.GET("/admin", AuthRequired(db), AdminRequired(), func(ctx *gin.Context) {
		ctx.Status(http.StatusNoContent)
	})
	return r, db
}

func get(r *gin.Engine, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	r, db := authRouter(t)
	user := models.User{Username: "gopher", Email: "gopher@example.com"}
	require.NoError(t, db.Create(&user).Error)
	token, _, err := utils.GenerateToken(user.ID, user.Username)
	require.NoError(t, err)

	w := get(r, "/me", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gopher", w.Body.String())

	cases := map[string]struct {
		header string
		code   string
	}{
		"missing":   {"", `"code":40101`},
		"malformed": {"Token " + token, `"code":40102`},
		"empty":     {"Bearer  ", `"code":40103`},
		"invalid":   {"Bearer nope", `"code":40105`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := get(r, "/me", tc.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tc.code)
		})
	}

	w = get(r, "/admin", "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"code":40301`)

	require.NoError(t, db.Model(&user).Update("is_admin", true).Error)
	w = get(r, "/admin", "Bearer "+token)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAuthRequiredRejectsRevokedAndAnonymized(t *testing.T) {
	r, db := authRouter(t)
	user := models.User{Username: "gopher", Email: "gopher@example.com"}
	require.NoError(t, db.Create(&user).Error)

	revoked, exp, err := utils.GenerateToken(user.ID, user.Username)
	require.NoError(t, err)
	utils.BlacklistToken(context.Background(), revoked, exp)
	w := get(r, "/me", "Bearer "+revoked)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":40104`)

	token, _, err := utils.GenerateToken(user.ID, user.Username)
	require.NoError(t, err)
	require.NoError(t, db.Model(&user).Update("anonymized_at", time.Now()).Error)
	w = get(r, "/me", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":40106`)
}
