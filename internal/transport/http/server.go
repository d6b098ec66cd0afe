package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "ollamachat/internal/app"
	"ollamachat/internal/bootstrap"
	"ollamachat/internal/repository"
	"ollamachat/internal/transport/http/handler"
	"ollamachat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.StaticFile("/", "web/index.html")
	router.StaticFile("/login", "web/login.html")
	router.StaticFile("/register", "web/register.html")
	router.StaticFile("/chat", "web/chat.html")
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	chatRepo := repository.NewChatRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	auditLogRepo := repository.NewGenerationRecordRepository(app.MySQL)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
		time.Duration(app.Config.Auth.RefreshExpireMinute)*time.Minute,
	)
	chatService := appsvc.NewChatService(chatRepo, messageRepo, app.HistoryCache)
	generationService := appsvc.NewGenerationService(
		chatRepo,
		messageRepo,
		auditLogRepo,
		app.Registry,
		app.Ollama,
		app.HistoryCache,
		app.AuditPublisher,
		app.Config.Ollama.Model,
		app.Config.Ollama.PersistOnCancel,
	)

	userHandler := handler.NewUserHandler(authService, app.Config.Auth.SecureCookies)
	chatHandler := handler.NewChatHandler(chatService)
	messageHandler := handler.NewMessageHandler(chatService, generationService, app.Registry)

	authRequired := middleware.AuthJWT(app.Config.Auth.JWTSecret, authService)

	v1 := router.Group("/api/v1")

	userGroup := v1.Group("/user")
	userGroup.POST("/register", userHandler.Register)
	userGroup.POST("/login", userHandler.Login)
	userGroup.GET("/all-users", userHandler.AllUsers)
	userGroup.GET("/me", authRequired, userHandler.CurrentUser)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(authRequired)
	chatGroup.POST("/create-chat", chatHandler.CreateChat)
	chatGroup.GET("/all-chats", chatHandler.AllChats)
	chatGroup.GET("/single-chat/:id", chatHandler.SingleChat)
	chatGroup.DELETE("/delete-chat/:id", chatHandler.DeleteChat)

	messageGroup := v1.Group("/message")
	messageGroup.Use(authRequired)
	messageGroup.GET("/get-message/:id", messageHandler.GetMessages)
	messageGroup.GET("/generation-history/:id", messageHandler.GenerationHistory)
	messageGroup.POST("/send-message/:id", messageHandler.SendMessage)
	messageGroup.POST("/stop-generation/:id/stop", messageHandler.StopGeneration)

	return router
}
