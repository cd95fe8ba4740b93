package http

import (
	"github.com/gin-gonic/gin"

	"docbot/internal/bootstrap"
	"docbot/internal/transport/http/handler"
	"docbot/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Logger), gin.Recovery())

	checks := map[string]handler.HealthCheck{}
	for name, check := range app.HealthChecks() {
		checks[name] = check
	}
	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, checks)
	router.GET("/healthz", healthHandler.Check)

	authHandler := handler.NewAuthHandler(app.AuthService)
	chatbotHandler := handler.NewChatbotHandler(app.RAGService, int64(app.Config.RAG.MaxDocumentBytes))
	shareHandler := handler.NewShareHandler(app.RAGService)
	toolsHandler := handler.NewToolsHandler(app.RAGService)
	requireAuth := middleware.AuthJWT(app.Config.Auth.JWTSecret)

	v1 := router.Group("/api/v1")
	v1.GET("/healthz", healthHandler.Check)

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", requireAuth, authHandler.Me)

	botGroup := v1.Group("/chatbots")
	botGroup.Use(requireAuth)
	botGroup.POST("", chatbotHandler.Create)
	botGroup.POST("/upload", chatbotHandler.Upload)
	botGroup.GET("", chatbotHandler.List)
	botGroup.GET("/:name/chunks", chatbotHandler.Chunks)
	botGroup.POST("/:name/search", chatbotHandler.Search)
	botGroup.POST("/:name/chat", chatbotHandler.Chat)

	v1.POST("/share/:user/:bot/chat", shareHandler.Chat)

	v1.POST("/preview/chunks", requireAuth, toolsHandler.PreviewChunks)
	v1.POST("/embeddings", requireAuth, toolsHandler.Embed)
	v1.GET("/ingest/jobs/:id", requireAuth, toolsHandler.JobStatus)

	return router
}
