package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ohgrt/ohgrt-backend/internal/config"
	"github.com/ohgrt/ohgrt-backend/internal/db"
	"github.com/ohgrt/ohgrt-backend/internal/handlers"
	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/middleware"
	"github.com/ohgrt/ohgrt-backend/internal/server"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      config.Config
	Repos    Repos
	Services Services
	cancel   context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := config.Load(log)

	store, err := db.NewFromEnv(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := store.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := store.DB()

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet)
	if err != nil {
		log.Sync()
		return nil, err
	}

	authMiddleware := middleware.NewAuthMiddleware(log, cfg.JWTSecretKey)
	webhookHandler := handlers.NewWebhookHandler(log, serviceset.Engine)
	chatHandler := handlers.NewChatHandler(log, serviceset.Engine, serviceset.Redis)
	subscriptionHandler := handlers.NewSubscriptionHandler(log, serviceset.Scheduler, reposet.Subscription, reposet.ScheduledTask)

	router := server.NewRouter(server.RouterConfig{
		WebhookHandler:      webhookHandler,
		ChatHandler:         chatHandler,
		SubscriptionHandler: subscriptionHandler,
		AuthMiddleware:      authMiddleware,
	})

	return &App{
		Log:      log,
		DB:       theDB,
		Router:   router,
		Cfg:      cfg,
		Repos:    reposet,
		Services: serviceset,
	}, nil
}

// Start launches the background loops: the scheduler tick and the expired
// context sweeper.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.Services.Scheduler.Start(ctx)
	a.Services.Store.StartSweeper(ctx, a.Cfg.SweepInterval)
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.Redis != nil {
		_ = a.Services.Redis.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
