package server

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/dermalens/dermalens-backend/internal/handlers"
	"github.com/dermalens/dermalens-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler        *handlers.AuthHandler
	AuthMiddleware     *middleware.AuthMiddleware
	UserHandler        *handlers.UserHandler
	ScanHandler        *handlers.ScanHandler
	PlanHandler        *handlers.PlanHandler
	ChatHandler        *handlers.ChatHandler
	HealthcheckHandler *handlers.HealthcheckHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := []string{"http://localhost:3000", "http://localhost:5173"}
	if env := os.Getenv("CORS_ALLOW_ORIGINS"); env != "" {
		origins = strings.Split(env, ",")
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Refresh-Token"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", cfg.HealthcheckHandler.Healthcheck)
	router.POST("/register", cfg.AuthHandler.Register)
	router.POST("/login", cfg.AuthHandler.Login)
	router.POST("/refresh", cfg.AuthMiddleware.AttachRefreshToken(), cfg.AuthHandler.Refresh)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())

	// Auth
	protected.POST("/logout", cfg.AuthHandler.Logout)

	// User
	protected.GET("/user", cfg.UserHandler.GetMe)
	protected.PATCH("/user/skin-profile", cfg.UserHandler.UpdateSkinProfile)

	// Scans
	protected.POST("/scans/presign", cfg.ScanHandler.Presign)
	protected.POST("/scans", cfg.ScanHandler.Submit)
	protected.GET("/scans", cfg.ScanHandler.List)
	protected.GET("/scans/:id", cfg.ScanHandler.Get)
	protected.GET("/scans/:id/deltas", cfg.ScanHandler.Deltas)

	// Treatment plans
	protected.POST("/plans", cfg.PlanHandler.Create)
	protected.GET("/plans/current", cfg.PlanHandler.Current)
	protected.GET("/plans/history", cfg.PlanHandler.History)
	protected.POST("/plans/adjust", cfg.PlanHandler.Adjust)
	protected.POST("/plans/unlock", cfg.PlanHandler.Unlock)
	protected.GET("/plans/recommendations", cfg.PlanHandler.Recommendations)

	// Assistant chat
	protected.POST("/chat/messages", cfg.ChatHandler.SendMessage)
	protected.GET("/chat/sessions/:session_id", cfg.ChatHandler.History)
	protected.DELETE("/chat/sessions/:session_id", cfg.ChatHandler.DeleteSession)

	return router
}
