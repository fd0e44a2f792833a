package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/codechannels/config"
	"github.com/cppla/codechannels/models"
)

func TestMain(m *testing.M) {
	uploads, err := os.MkdirTemp("", "codechannels-uploads-")
	if err != nil {
		panic(err)
	}
	config.Set(config.AppConfig{
		JWTSecret:          "router-test-secret",
		GinMode:            "test",
		CacheDisabled:      true,
		RateLimitPerMinute: 100000,
		UploadDir:          uploads,
		DBDriver:           "sqlite",
		DatabaseURI:        ":memory:",
	})
	code := m.Run()
	_ = os.RemoveAll(uploads)
	os.Exit(code)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t  *testing.T
	db *gorm.DB
	r  *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := config.Open(config.Get(), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db, models.All()...))
	return &testServer{t: t, db: db, r: SetupRouter(db)}
}

func (s *testServer) do(method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)

	var env envelope
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out), string(env.Data))
	return out
}

type account struct {
	ID    uint
	Token string
}

func (s *testServer) register(username string) account {
	s.t.Helper()
	status, env := s.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	require.Equal(s.t, http.StatusCreated, status, env.Message)
	data := decode[struct {
		Token string `json:"token"`
		User  struct {
			ID uint `json:"id"`
		} `json:"user"`
	}](s.t, env)
	return account{ID: data.User.ID, Token: data.Token}
}

func (s *testServer) admin(username string) account {
	s.t.Helper()
	a := s.register(username)
	require.NoError(s.t, s.db.Model(&models.User{}).Where("id = ?", a.ID).Update("is_admin", true).Error)
	return a
}

func (s *testServer) create(path, token string, body interface{}) uint {
	s.t.Helper()
	status, env := s.do(http.MethodPost, path, token, body)
	require.Equal(s.t, http.StatusCreated, status, env.Message)
	return decode[struct {
		ID uint `json:"id"`
	}](s.t, env).ID
}

type node struct {
	ID           uint   `json:"id"`
	Content      string `json:"content"`
	TotalRating  int    `json:"totalRating"`
	ChildReplies []node `json:"childReplies"`
}

func TestHealthAndUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, env.Code)

	status, env = s.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 40400, env.Code)
}

func TestAuthLifecycle(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice")

	status, env := s.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "alice", "email": "other@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, 40901, env.Code)

	status, env = s.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "bad name!", "email": "x@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40002, env.Code)

	status, env = s.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "shorty", "email": "shorty@example.com", "password": "123",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40005, env.Code)

	status, _ = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"username": "alice", "password": "password123"})
	assert.Equal(t, http.StatusOK, status)
	status, env = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"username": "alice", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 40108, env.Code)

	status, env = s.do(http.MethodGet, "/api/users/profile", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	profile := decode[struct {
		User struct {
			Username string `json:"username"`
			Level    string `json:"level"`
		} `json:"user"`
		Stats struct {
			TotalPosts int `json:"totalPosts"`
		} `json:"stats"`
	}](t, env)
	assert.Equal(t, "alice", profile.User.Username)
	assert.Equal(t, "Beginner", profile.User.Level)
	assert.Zero(t, profile.Stats.TotalPosts)

	status, env = s.do(http.MethodGet, "/api/users/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 40101, env.Code)

	status, _ = s.do(http.MethodPost, "/api/auth/logout", alice.Token, nil)
	assert.Equal(t, http.StatusOK, status)
	status, env = s.do(http.MethodGet, "/api/users/profile", alice.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 40104, env.Code)
}

func TestThreadLifecycle(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice")
	bob := s.register("bob")

	chID := s.create("/api/channels", alice.Token, gin.H{"name": "Golang", "description": "all things Go"})
	status, env := s.do(http.MethodPost, "/api/channels", bob.Token, gin.H{"name": "golang"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, 40910, env.Code)

	msgID := s.create("/api/messages", alice.Token, gin.H{
		"title": "Buffered channels", "content": "when to use them?", "channelId": chID, "tags": []string{"go", "channels", "go"},
	})
	r1 := s.create("/api/replies", bob.Token, gin.H{"content": "for bounded queues", "messageId": msgID})
	r2 := s.create("/api/replies", alice.Token, gin.H{"content": "thanks", "messageId": msgID, "parentReplyId": r1})
	r3 := s.create("/api/replies", bob.Token, gin.H{"content": "also semaphores", "messageId": msgID, "parentReplyId": 0})

	status, env = s.do(http.MethodPost, fmt.Sprintf("/api/messages/%d/rate", msgID), bob.Token, gin.H{"value": 1})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, 1, decode[struct {
		TotalRating int `json:"totalRating"`
	}](t, env).TotalRating)
	status, env = s.do(http.MethodPost, fmt.Sprintf("/api/messages/%d/rate", msgID), bob.Token, gin.H{"value": -1})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, -1, decode[struct {
		TotalRating int `json:"totalRating"`
	}](t, env).TotalRating)

	status, _ = s.do(http.MethodPost, fmt.Sprintf("/api/replies/%d/rate", r1), alice.Token, gin.H{"value": 1})
	require.Equal(t, http.StatusCreated, status)

	status, env = s.do(http.MethodPost, fmt.Sprintf("/api/replies/%d/rate", r1), alice.Token, gin.H{"value": 3})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40000, env.Code)
	status, env = s.do(http.MethodPost, fmt.Sprintf("/api/replies/%d/rate", r1), alice.Token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40040, env.Code)

	status, env = s.do(http.MethodGet, fmt.Sprintf("/api/messages/%d", msgID), "", nil)
	require.Equal(t, http.StatusOK, status)
	thread := decode[struct {
		ID          uint     `json:"id"`
		Tags        []string `json:"tags"`
		TotalRating int      `json:"totalRating"`
		Replies     []node   `json:"replies"`
	}](t, env)
	assert.Equal(t, msgID, thread.ID)
	assert.Equal(t, []string{"go", "channels"}, thread.Tags)
	assert.Equal(t, -1, thread.TotalRating)
	require.Len(t, thread.Replies, 2)
	assert.Equal(t, r1, thread.Replies[0].ID)
	assert.Equal(t, 1, thread.Replies[0].TotalRating)
	require.Len(t, thread.Replies[0].ChildReplies, 1)
	assert.Equal(t, r2, thread.Replies[0].ChildReplies[0].ID)
	assert.Equal(t, r3, thread.Replies[1].ID)
	assert.NotNil(t, thread.Replies[1].ChildReplies)

	status, env = s.do(http.MethodGet, fmt.Sprintf("/api/replies/parent/%d", r1), "", nil)
	require.Equal(t, http.StatusOK, status)
	children := decode[[]node](t, env)
	require.Len(t, children, 1)
	assert.Equal(t, r2, children[0].ID)

	status, env = s.do(http.MethodGet, fmt.Sprintf("/api/messages/channel/%d", chID), "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]node](t, env), 1)

	status, env = s.do(http.MethodGet, fmt.Sprintf("/api/stats/messages/%d", msgID), "", nil)
	require.Equal(t, http.StatusOK, status)
	st := decode[map[string]int](t, env)
	assert.Equal(t, 3, st["replyCount"])
	assert.Equal(t, -1, st["totalRating"])

	status, env = s.do(http.MethodGet, "/api/messages/999", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 40400, env.Code)
}

func TestReplyTargetRules(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice")
	chID := s.create("/api/channels", alice.Token, gin.H{"name": "Golang"})
	m1 := s.create("/api/messages", alice.Token, gin.H{"title": "First", "content": "x", "channelId": chID})
	m2 := s.create("/api/messages", alice.Token, gin.H{"title": "Second", "content": "y", "channelId": chID})
	r1 := s.create("/api/replies", alice.Token, gin.H{"content": "reply", "messageId": m1})

	status, env := s.do(http.MethodPost, "/api/replies", alice.Token, gin.H{"content": "cross", "messageId": m2, "parentReplyId": r1})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40000, env.Code)

	status, env = s.do(http.MethodPost, "/api/replies", alice.Token, gin.H{"content": "ghost", "messageId": m1, "parentReplyId": 404})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 40400, env.Code)

	status, env = s.do(http.MethodPut, fmt.Sprintf("/api/replies/%d", r1), alice.Token, gin.H{"messageId": m2})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40025, env.Code)

	status, env = s.do(http.MethodPut, fmt.Sprintf("/api/replies/%d", r1), alice.Token, gin.H{"content": "edited"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "edited", decode[node](t, env).Content)

	status, env = s.do(http.MethodPut, fmt.Sprintf("/api/messages/%d", m1), alice.Token, gin.H{"channelId": chID + 1})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40023, env.Code)
}

func TestOwnershipAndAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice")
	bob := s.register("bob")
	root := s.admin("root")

	chID := s.create("/api/channels", alice.Token, gin.H{"name": "Golang"})
	msgID := s.create("/api/messages", alice.Token, gin.H{"title": "Question", "content": "x", "channelId": chID})
	s.create("/api/replies", bob.Token, gin.H{"content": "answer", "messageId": msgID})

	status, env := s.do(http.MethodPut, fmt.Sprintf("/api/channels/%d", chID), bob.Token, gin.H{"description": "mine now"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, 40310, env.Code)
	status, _ = s.do(http.MethodPut, fmt.Sprintf("/api/channels/%d", chID), root.Token, gin.H{"description": "moderated"})
	assert.Equal(t, http.StatusOK, status)

	status, env = s.do(http.MethodDelete, fmt.Sprintf("/api/channels/%d", chID), alice.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, 40301, env.Code)

	status, _ = s.do(http.MethodGet, "/api/messages", root.Token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/channels/%d", chID), root.Token, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = s.do(http.MethodGet, fmt.Sprintf("/api/messages/%d", msgID), "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = s.do(http.MethodGet, "/api/stats", "", nil)
	require.Equal(t, http.StatusOK, status)
	counts := decode[map[string]int](t, env)
	assert.Equal(t, 3, counts["userCount"])
	assert.Zero(t, counts["channelCount"])
	assert.Zero(t, counts["replyCount"])
}

func TestDeleteUserAnonymizes(t *testing.T) {
	s := newTestServer(t)
	root := s.admin("root")
	bob := s.register("bobby")
	chID := s.create("/api/channels", bob.Token, gin.H{"name": "Golang"})
	msgID := s.create("/api/messages", bob.Token, gin.H{"title": "Still visible", "content": "x", "channelId": chID})

	status, env := s.do(http.MethodDelete, fmt.Sprintf("/api/users/%d", root.ID), root.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, 40300, env.Code)

	status, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/users/%d", bob.ID), root.Token, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = s.do(http.MethodGet, "/api/users/profile", bob.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 40106, env.Code)
	status, _ = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"username": "bobby", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = s.do(http.MethodGet, fmt.Sprintf("/api/messages/%d", msgID), "", nil)
	require.Equal(t, http.StatusOK, status)
	msg := decode[struct {
		Author struct {
			Username   string `json:"username"`
			Anonymized bool   `json:"anonymized"`
		} `json:"author"`
	}](t, env)
	assert.Equal(t, fmt.Sprintf("Deleted User %d", bob.ID), msg.Author.Username)
	assert.True(t, msg.Author.Anonymized)

	status, env = s.do(http.MethodGet, "/api/search/user?query=bob", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]struct{}](t, env))
}

func TestSearchRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice")
	s.register("javaDev")
	chID := s.create("/api/channels", alice.Token, gin.H{"name": "Java Basics"})
	s.create("/api/messages", alice.Token, gin.H{"title": "Learning JAVA", "content": "x", "channelId": chID})

	status, env := s.do(http.MethodGet, "/api/search/keyword", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40050, env.Code)

	status, env = s.do(http.MethodGet, "/api/search/keyword?query=java", "", nil)
	require.Equal(t, http.StatusOK, status)
	res := decode[struct {
		Channels []struct{} `json:"channels"`
		Messages []struct{} `json:"messages"`
		Replies  []struct{} `json:"replies"`
		Users    []struct {
			Username string `json:"username"`
		} `json:"users"`
	}](t, env)
	assert.Len(t, res.Channels, 1)
	assert.Len(t, res.Messages, 1)
	assert.NotNil(t, res.Replies)
	assert.Empty(t, res.Replies)
	require.Len(t, res.Users, 1)
	assert.Equal(t, "javaDev", res.Users[0].Username)

	status, env = s.do(http.MethodGet, "/api/search/users/most-posts?limit=1", "", nil)
	require.Equal(t, http.StatusOK, status)
	top := decode[[]struct {
		Username   string `json:"username"`
		TotalPosts int    `json:"totalPosts"`
	}](t, env)
	require.Len(t, top, 1)
	assert.Equal(t, "alice", top[0].Username)
	assert.Equal(t, 1, top[0].TotalPosts)

	status, env = s.do(http.MethodGet, "/api/search/users/highest-ratings", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]struct{}](t, env))
}

func TestClientConfig(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(http.MethodGet, "/api/config", "", nil)
	require.Equal(t, http.StatusOK, status)
	cfg := decode[struct {
		PasswordMinLength int      `json:"passwordMinLength"`
		Levels            []string `json:"levels"`
	}](t, env)
	assert.Equal(t, 6, cfg.PasswordMinLength)
	assert.Equal(t, []string{"Beginner", "Intermediate", "Expert"}, cfg.Levels)
}
