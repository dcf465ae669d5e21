package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/ohgrt/ohgrt-backend/internal/classifier"
	"github.com/ohgrt/ohgrt-backend/internal/clients/content"
	"github.com/ohgrt/ohgrt-backend/internal/clients/delivery"
	"github.com/ohgrt/ohgrt-backend/internal/clients/redis"
	"github.com/ohgrt/ohgrt-backend/internal/config"
	"github.com/ohgrt/ohgrt-backend/internal/engine"
	"github.com/ohgrt/ohgrt-backend/internal/graph"
	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/ratelimit"
	"github.com/ohgrt/ohgrt-backend/internal/scheduler"
	"github.com/ohgrt/ohgrt-backend/internal/session"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

type Services struct {
	Limiter    *ratelimit.Limiter
	Store      *session.Store
	Classifier *classifier.Classifier
	Generator  content.Generator
	Registry   *delivery.Registry
	Redis      redis.Client
	Scheduler  *scheduler.Service
	Executor   *graph.Executor
	Engine     *engine.Engine
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg config.Config, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	limiter := ratelimit.New(ratelimit.Config{
		Window:      cfg.RateWindow,
		Limit:       cfg.RateLimit,
		BurstWindow: cfg.BurstWindow,
		BurstLimit:  cfg.BurstLimit,
		Cooldown:    cfg.RateCooldown,
	}, reposet.RateWindow, log)

	store := session.NewStore(db, log, reposet.Profile, reposet.Context, cfg.ContextTTL)

	tables := classifier.DefaultTables()
	if cfg.ClassifierConfigPath != "" {
		loaded, err := classifier.LoadTables(cfg.ClassifierConfigPath)
		if err != nil {
			return Services{}, fmt.Errorf("load classifier config: %w", err)
		}
		tables = loaded
	}
	cls := classifier.New(tables, log)

	gen, err := content.NewTemplateGenerator(log)
	if err != nil {
		return Services{}, err
	}

	rdb, err := redis.NewFromEnv(log)
	if err != nil {
		log.Warn("Redis unavailable, dedupe falls back to the delivery log", "error", err)
		rdb = nil
	}

	registry := wireDeliveryAdapters(log, rdb)

	sched, err := scheduler.NewService(db, log, scheduler.Options{
		TickInterval: cfg.TickInterval,
		Concurrency:  cfg.TickConcurrency,
		MaxAttempts:  cfg.MaxAttempts,
		DedupeWindow: cfg.DedupeWindow,
	}, reposet.Subscription, reposet.ScheduledTask, reposet.DeliveryLog, reposet.Profile, gen, registry, rdb)
	if err != nil {
		return Services{}, fmt.Errorf("init scheduler: %w", err)
	}

	routes := graph.BuildRoutes(graph.RouteDeps{
		Handlers:  content.DefaultHandlers(gen),
		Subs:      sched,
		Reminders: sched,
	})
	executor, err := graph.NewExecutor(routes, log, cfg.HandlerTimeout, cfg.NodeBudget)
	if err != nil {
		return Services{}, fmt.Errorf("init executor: %w", err)
	}

	eng, err := engine.New(log, limiter, store, cls, executor)
	if err != nil {
		return Services{}, fmt.Errorf("init engine: %w", err)
	}

	return Services{
		Limiter:    limiter,
		Store:      store,
		Classifier: cls,
		Generator:  gen,
		Registry:   registry,
		Redis:      rdb,
		Scheduler:  sched,
		Executor:   executor,
		Engine:     eng,
	}, nil
}

// wireDeliveryAdapters registers whatever channels are configured. A missing
// adapter only disables proactive delivery on that channel.
func wireDeliveryAdapters(log *logger.Logger, rdb redis.Client) *delivery.Registry {
	registry := delivery.NewRegistry()

	if msg, err := delivery.NewMessagingAdapter(log, delivery.MessagingConfigFromEnv(log)); err != nil {
		log.Warn("Messaging delivery disabled", "error", err)
	} else {
		registry.Register(types.ChannelMessaging, msg)
	}

	if push, err := delivery.NewPushAdapter(log, delivery.PushConfigFromEnv(log)); err != nil {
		log.Warn("Push delivery disabled", "error", err)
	} else {
		registry.Register(types.ChannelMobile, push)
	}

	if rdb != nil {
		if inbox, err := delivery.NewInboxAdapter(log, rdb); err != nil {
			log.Warn("Web inbox delivery disabled", "error", err)
		} else {
			registry.Register(types.ChannelWeb, inbox)
		}
	}

	return registry
}
