package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/codechannels/config"
	"github.com/cppla/codechannels/controllers"
	"github.com/cppla/codechannels/middleware"
	"github.com/cppla/codechannels/services"
	"github.com/cppla/codechannels/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	accessLog, err := utils.NewAccessLogger(cfg)
	if err != nil {
		utils.Sugar.Warnf("access log file unavailable, using application log: %v", err)
		accessLog = utils.Logger
	}
	r.Use(utils.Ginzap(accessLog))
	r.Use(utils.RecoveryWithZap(utils.Logger))
	r.MaxMultipartMemory = int64(cfg.UploadMaxMB+1) << 20

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		// browsers reject credentials with a wildcard origin
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.Static(utils.UploadURLPrefix, cfg.UploadDir)

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	threads := services.NewThreadService(db)
	search := services.NewSearchService(db, cfg.AnonymizedEmailDomain)

	authController := controllers.NewAuthController(db)
	userController := controllers.NewUserController(db)
	channelController := controllers.NewChannelController(db)
	messageController := controllers.NewMessageController(db, threads)
	replyController := controllers.NewReplyController(db, threads)
	searchController := controllers.NewSearchController(search)
	statsController := controllers.NewStatsController(db)
	configController := controllers.NewConfigController()

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	auth := middleware.AuthRequired(db)
	admin := middleware.AdminRequired()
	write := []gin.HandlerFunc{auth, limiter.Middleware()}

	api := r.Group("/api")
	api.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	api.GET("/stats", statsController.GetStats)
	api.GET("/stats/messages/:id", statsController.GetMessageStats)
	api.GET("/config", configController.GetClientConfig)

	authGroup := api.Group("/auth")
	authGroup.Use(limiter.Middleware())
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/oauth/:provider/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", auth, authController.Logout)

	channels := api.Group("/channels")
	channels.GET("", channelController.ListChannels)
	channels.GET("/:id", channelController.GetChannel)
	channels.POST("", append(write, channelController.CreateChannel)...)
	channels.PUT("/:id", append(write, channelController.UpdateChannel)...)
	channels.DELETE("/:id", auth, admin, channelController.DeleteChannel)

	messages := api.Group("/messages")
	messages.GET("", auth, admin, messageController.ListMessages)
	messages.GET("/channel/:channelId", messageController.ListChannelMessages)
	messages.GET("/:id", messageController.GetMessage)
	messages.POST("", append(write, messageController.CreateMessage)...)
	messages.PUT("/:id", append(write, messageController.UpdateMessage)...)
	messages.DELETE("/:id", auth, admin, messageController.DeleteMessage)
	messages.POST("/:id/rate", append(write, messageController.RateMessage)...)

	replies := api.Group("/replies")
	replies.GET("", auth, admin, replyController.ListReplies)
	replies.GET("/message/:messageId", replyController.ListMessageReplies)
	replies.GET("/parent/:replyId", replyController.ListChildReplies)
	replies.POST("", append(write, replyController.CreateReply)...)
	replies.PUT("/:id", append(write, replyController.UpdateReply)...)
	replies.DELETE("/:id", auth, admin, replyController.DeleteReply)
	replies.POST("/:id/rate", append(write, replyController.RateReply)...)

	searchGroup := api.Group("/search")
	searchGroup.GET("/keyword", searchController.SearchByKeyword)
	searchGroup.GET("/user", searchController.SearchUsers)
	searchGroup.GET("/users/most-posts", searchController.UsersWithMostPosts)
	searchGroup.GET("/users/highest-ratings", searchController.UsersWithHighestRatings)

	users := api.Group("/users")
	users.GET("", auth, admin, userController.ListUsers)
	users.GET("/profile", auth, userController.GetProfile)
	users.PUT("/profile", append(write, userController.UpdateProfile)...)
	users.DELETE("/:id", auth, admin, userController.DeleteUser)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
