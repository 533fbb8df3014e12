package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"tawarln-chat/internal/bootstrap"
	"tawarln-chat/internal/model"
	"tawarln-chat/internal/transport/http/handler"
	"tawarln-chat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.MaxMultipartMemory = 12 << 20
	router.Use(
		middleware.Recovery(app.Log),
		otelgin.Middleware(app.Config.App.Name),
		middleware.RequestLogger(app.Log),
		cors.New(cors.Config{
			AllowOrigins:     app.Config.App.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Retry-After", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	)

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	authHandler := handler.NewAuthHandler(app.Auth)
	chatHandler := handler.NewChatHandler(app.Chat, app.Models)
	sessionHandler := handler.NewSessionHandler(app.Sessions)
	knowledgeHandler := handler.NewKnowledgeHandler(app.Knowledge)

	requireAuth := middleware.AuthJWT(app.Config.Auth.JWTSecret)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", requireAuth, authHandler.Me)
	authGroup.PUT("/me/memory", requireAuth, authHandler.UpdateMemory)

	v1.GET("/models", chatHandler.Models)
	v1.GET("/share/:id", sessionHandler.GetShared)

	authed := v1.Group("")
	authed.Use(requireAuth)
	authed.POST("/chat", chatHandler.Chat)
	authed.GET("/chats", sessionHandler.List)
	authed.PUT("/chats/:id", sessionHandler.Save)
	authed.DELETE("/chats/:id", sessionHandler.Delete)
	authed.POST("/chats/:id/share", sessionHandler.Share)
	authed.POST("/knowledge", middleware.RequireRole(model.UserRoleAdmin, model.UserRoleOwner), knowledgeHandler.Add)

	return router
}
