package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ohgrt/ohgrt-backend/internal/handlers"
	"github.com/ohgrt/ohgrt-backend/internal/middleware"
)

type RouterConfig struct {
	WebhookHandler      *handlers.WebhookHandler
	ChatHandler         *handlers.ChatHandler
	SubscriptionHandler *handlers.SubscriptionHandler
	AuthMiddleware      *middleware.AuthMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Verify-Token"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.GET("/webhook/messaging", cfg.WebhookHandler.Verify)
	router.POST("/webhook/messaging", cfg.WebhookHandler.Receive)
	router.POST("/web/chat", cfg.ChatHandler.WebChat)
	router.GET("/web/inbox", cfg.ChatHandler.WebInbox)

	// ===============
	// || Protected ||
	// ===============
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	// Chat
	api.POST("/chat", cfg.ChatHandler.MobileChat)
	// Subscriptions
	api.GET("/subscriptions", cfg.SubscriptionHandler.List)
	api.POST("/subscriptions", cfg.SubscriptionHandler.Create)
	api.DELETE("/subscriptions/:kind", cfg.SubscriptionHandler.Delete)
	api.POST("/subscriptions/:kind/pause", cfg.SubscriptionHandler.Pause)
	api.POST("/subscriptions/:kind/resume", cfg.SubscriptionHandler.Resume)
	// Reminders
	api.GET("/reminders", cfg.SubscriptionHandler.ListReminders)
	api.DELETE("/reminders/:id", cfg.SubscriptionHandler.CancelReminder)

	return router
}
