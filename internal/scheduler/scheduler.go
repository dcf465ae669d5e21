package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/ohgrt/ohgrt-backend/internal/clients/content"
	"github.com/ohgrt/ohgrt-backend/internal/clients/delivery"
	"github.com/ohgrt/ohgrt-backend/internal/clients/redis"
	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/repos"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

// Options tunes the delivery loop.
type Options struct {
	TickInterval time.Duration
	Concurrency  int
	MaxAttempts  int
	DedupeWindow time.Duration
	BatchLimit   int
}

func (o *Options) normalize() {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Minute
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 3
	}
	if o.DedupeWindow <= 0 {
		o.DedupeWindow = 2 * time.Minute
	}
	if o.BatchLimit <= 0 {
		o.BatchLimit = 200
	}
}

// Service runs the background delivery loop and is the engine-side surface
// for subscription opt-in and one-shot reminders.
type Service struct {
	db       *gorm.DB
	log      *logger.Logger
	opts     Options
	subs     repos.SubscriptionRepo
	tasks    repos.ScheduledTaskRepo
	dlog     repos.DeliveryLogRepo
	profiles repos.ProfileRepo
	gen      content.Generator
	registry *delivery.Registry
	rdb      redis.Client

	now func() time.Time
}

func NewService(
	db *gorm.DB,
	baseLog *logger.Logger,
	opts Options,
	subs repos.SubscriptionRepo,
	tasks repos.ScheduledTaskRepo,
	dlog repos.DeliveryLogRepo,
	profiles repos.ProfileRepo,
	gen content.Generator,
	registry *delivery.Registry,
	rdb redis.Client,
) (*Service, error) {
	if db == nil || baseLog == nil {
		return nil, fmt.Errorf("db and logger required")
	}
	if subs == nil || tasks == nil || dlog == nil || profiles == nil {
		return nil, fmt.Errorf("scheduler repos required")
	}
	if gen == nil || registry == nil {
		return nil, fmt.Errorf("content generator and delivery registry required")
	}
	opts.normalize()
	return &Service{
		db:       db,
		log:      baseLog.With("service", "Scheduler"),
		opts:     opts,
		subs:     subs,
		tasks:    tasks,
		dlog:     dlog,
		profiles: profiles,
		gen:      gen,
		registry: registry,
		rdb:      rdb,
		now:      time.Now,
	}, nil
}

// Start launches the tick loop. It returns immediately; the loop stops when
// the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.log.Info("Starting scheduler", "tick", s.opts.TickInterval, "concurrency", s.opts.Concurrency)
	go func() {
		ticker := time.NewTicker(s.opts.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Info("Scheduler stopped")
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Tick scans for due work and delivers it with bounded fan-out. Exported so
// tests can drive the loop deterministically.
func (s *Service) Tick(ctx context.Context) {
	now := s.now().UTC()

	dueSubs, err := s.subs.ListDue(ctx, nil, now, s.opts.BatchLimit)
	if err != nil {
		s.log.Error("Listing due subscriptions failed", "error", err)
	}
	dueTasks, err := s.tasks.ListDue(ctx, nil, now, s.opts.BatchLimit)
	if err != nil {
		s.log.Error("Listing due tasks failed", "error", err)
	}
	if len(dueSubs) == 0 && len(dueTasks) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, sub := range dueSubs {
		sub := sub
		g.Go(func() error {
			s.deliverSubscription(gctx, sub, now)
			return nil
		})
	}
	for _, task := range dueTasks {
		task := task
		g.Go(func() error {
			s.deliverTask(gctx, task, now)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) deliverSubscription(ctx context.Context, sub *types.Subscription, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Subscription delivery panic", "subscription_id", sub.ID, "panic", r)
		}
	}()

	claimed, err := s.subs.Claim(ctx, nil, sub.ID, now)
	if err != nil {
		s.log.Warn("Subscription claim failed", "subscription_id", sub.ID, "error", err)
		return
	}
	if !claimed {
		return
	}

	if s.alreadyDelivered(ctx, sub.ID, "subscription", sub.NextDueAt) {
		next, nerr := NextDue(sub.Schedule, now)
		if nerr != nil {
			next = now.Add(24 * time.Hour)
		}
		_ = s.subs.FinishSuccess(ctx, nil, sub.ID, next)
		return
	}

	text, err := s.subscriptionContent(ctx, sub)
	if err == nil {
		err = s.registry.Deliver(ctx, sub.Identity(), delivery.Content{Text: text})
	}

	s.recordDelivery(ctx, sub.ID, "subscription", sub.Identity(), err)

	if err != nil {
		degraded := sub.Attempts+1 >= s.opts.MaxAttempts
		if degraded {
			// Degraded subscriptions stay active and keep their due time; an
			// operator decides whether to pause them.
			s.log.Error("Subscription delivery degraded",
				"subscription_id", sub.ID,
				"kind", sub.Kind,
				"attempts", sub.Attempts+1,
				"error", err,
			)
		} else {
			s.log.Warn("Subscription delivery failed",
				"subscription_id", sub.ID,
				"attempts", sub.Attempts+1,
				"error", err,
			)
		}
		if ferr := s.subs.FinishFailure(ctx, nil, sub.ID, degraded); ferr != nil {
			s.log.Error("Recording subscription failure failed", "subscription_id", sub.ID, "error", ferr)
		}
		return
	}

	next, err := NextDue(sub.Schedule, now)
	if err != nil {
		s.log.Error("Subscription has unparseable schedule", "subscription_id", sub.ID, "schedule", sub.Schedule, "error", err)
		next = now.Add(24 * time.Hour)
	}
	if err := s.subs.FinishSuccess(ctx, nil, sub.ID, next); err != nil {
		s.log.Error("Recording subscription success failed", "subscription_id", sub.ID, "error", err)
	}
}

func (s *Service) subscriptionContent(ctx context.Context, sub *types.Subscription) (string, error) {
	profile, err := s.profiles.GetByIdentity(ctx, nil, sub.Identity())
	if err != nil {
		s.log.Warn("Profile lookup for subscription failed", "subscription_id", sub.ID, "error", err)
	}

	switch sub.Kind {
	case types.SubscriptionDailyDigest:
		entities := map[string]string{"astro_sign": sub.Parameters["astro_sign"], "astro_period": "daily"}
		res, err := s.gen.Generate(ctx, content.Request{
			Intent:   "get_horoscope",
			Entities: entities,
			Profile:  profile,
		})
		if err != nil {
			return "", fmt.Errorf("digest content: %w", err)
		}
		return "Your daily horoscope 🌅\n" + res.Text, nil
	case types.SubscriptionTransitAlert:
		res, err := s.gen.Generate(ctx, content.Request{
			Intent:   "ask_astrologer",
			Entities: map[string]string{"question": "transit " + sub.Parameters["astro_sign"]},
			Profile:  profile,
		})
		if err != nil {
			return "", fmt.Errorf("transit content: %w", err)
		}
		return "Transit alert 🔭\n" + res.Text, nil
	default:
		return "", fmt.Errorf("unknown subscription kind %q", sub.Kind)
	}
}

func (s *Service) deliverTask(ctx context.Context, task *types.ScheduledTask, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Task delivery panic", "task_id", task.ID, "panic", r)
		}
	}()

	claimed, err := s.tasks.Claim(ctx, nil, task.ID, now)
	if err != nil {
		s.log.Warn("Task claim failed", "task_id", task.ID, "error", err)
		return
	}
	if !claimed {
		return
	}

	// The row may have been cancelled between the scan and the claim.
	current, err := s.tasks.GetByID(ctx, nil, task.ID)
	if err != nil || current == nil || current.Status != types.TaskPending {
		return
	}

	if s.alreadyDelivered(ctx, task.ID, "task", task.DueAt) {
		_ = s.tasks.MarkSent(ctx, nil, task.ID, now)
		return
	}

	message := task.Payload["message"]
	if message == "" {
		message = "Reminder!"
	}
	err = s.registry.Deliver(ctx, current.Identity(), delivery.Content{Text: "⏰ " + message})

	s.recordDelivery(ctx, task.ID, "task", current.Identity(), err)

	if err != nil {
		terminal := task.Attempts+1 >= s.opts.MaxAttempts
		if terminal {
			s.log.Error("Task delivery failed permanently", "task_id", task.ID, "attempts", task.Attempts+1, "error", err)
		} else {
			s.log.Warn("Task delivery failed", "task_id", task.ID, "attempts", task.Attempts+1, "error", err)
		}
		if ferr := s.tasks.MarkAttemptFailed(ctx, nil, task.ID, now, terminal); ferr != nil {
			s.log.Error("Recording task failure failed", "task_id", task.ID, "error", ferr)
		}
		return
	}
	if err := s.tasks.MarkSent(ctx, nil, task.ID, now); err != nil {
		s.log.Error("Recording task success failed", "task_id", task.ID, "error", err)
	}
}

// alreadyDelivered guards against double sends after a crash between deliver
// and bookkeeping. Redis holds the primary guard; the delivery log is the
// fallback when redis is absent or down.
func (s *Service) alreadyDelivered(ctx context.Context, id uuid.UUID, kind string, dueAt time.Time) bool {
	if s.rdb != nil {
		key := fmt.Sprintf("deliver:%s:%s:%d", kind, id, dueAt.Unix())
		won, err := s.rdb.AcquireOnce(ctx, key, s.opts.DedupeWindow)
		if err == nil {
			return !won
		}
		s.log.Warn("Redis dedupe unavailable, using delivery log", "error", err)
	}
	since := s.now().UTC().Add(-s.opts.DedupeWindow)
	sent, err := s.dlog.RecentSuccess(ctx, nil, id, since)
	if err != nil {
		s.log.Warn("Delivery log dedupe check failed", "error", err)
		return false
	}
	return sent
}

func (s *Service) recordDelivery(ctx context.Context, id uuid.UUID, kind string, identity types.Identity, deliverErr error) {
	detail := ""
	if deliverErr != nil {
		detail = deliverErr.Error()
	}
	entry := &types.DeliveryLog{
		SourceID:   id,
		SourceKind: kind,
		Channel:    identity.Channel,
		ExternalID: identity.ExternalID,
		Success:    deliverErr == nil,
		Detail:     detail,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.dlog.Record(ctx, nil, entry); err != nil {
		s.log.Warn("Recording delivery log failed", "source_id", id, "error", err)
	}
}

// Subscribe creates or refreshes a subscription for the identity. An
// existing non-cancelled row of the same kind is updated in place.
func (s *Service) Subscribe(ctx context.Context, id types.Identity, kind, schedule string, params map[string]string) error {
	if err := id.Validate(); err != nil {
		return err
	}
	kind = strings.TrimSpace(kind)
	if kind != types.SubscriptionDailyDigest && kind != types.SubscriptionTransitAlert {
		return fmt.Errorf("unknown subscription kind %q", kind)
	}

	now := s.now().UTC()
	next, err := NextDue(schedule, now)
	if err != nil {
		return err
	}

	existing, err := s.subs.GetByIdentityAndKind(ctx, nil, id, kind)
	if err != nil {
		return err
	}
	if existing != nil {
		existing.Schedule = schedule
		existing.Parameters = types.JSONMap(params)
		existing.Status = types.SubscriptionActive
		existing.NextDueAt = next
		existing.Attempts = 0
		existing.Degraded = false
		existing.Claimed = false
		return s.subs.Update(ctx, nil, existing)
	}

	return s.subs.Create(ctx, nil, &types.Subscription{
		Channel:    id.Channel,
		ExternalID: id.ExternalID,
		Kind:       kind,
		Schedule:   schedule,
		Parameters: types.JSONMap(params),
		Status:     types.SubscriptionActive,
		NextDueAt:  next,
	})
}

// Unsubscribe cancels the identity's subscription of the given kind. Returns
// false when no active subscription existed.
func (s *Service) Unsubscribe(ctx context.Context, id types.Identity, kind string) (bool, error) {
	existing, err := s.subs.GetByIdentityAndKind(ctx, nil, id, kind)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := s.subs.SetStatus(ctx, nil, existing.ID, types.SubscriptionCancelled); err != nil {
		return false, err
	}
	return true, nil
}

// Pause suspends delivery for a subscription without losing its schedule.
// Reports false when no active subscription of that kind exists.
func (s *Service) Pause(ctx context.Context, id types.Identity, kind string) (bool, error) {
	existing, err := s.subs.GetByIdentityAndKind(ctx, nil, id, kind)
	if err != nil {
		return false, err
	}
	if existing == nil || existing.Status != types.SubscriptionActive {
		return false, nil
	}
	if err := s.subs.SetStatus(ctx, nil, existing.ID, types.SubscriptionPaused); err != nil {
		return false, err
	}
	return true, nil
}

// Resume reactivates a paused subscription. The next due time is recomputed
// from now so a long pause never dumps a backlog on the user.
func (s *Service) Resume(ctx context.Context, id types.Identity, kind string) (bool, error) {
	existing, err := s.subs.GetByIdentityAndKind(ctx, nil, id, kind)
	if err != nil {
		return false, err
	}
	if existing == nil || existing.Status != types.SubscriptionPaused {
		return false, nil
	}

	now := s.now().UTC()
	next, err := NextDue(existing.Schedule, now)
	if err != nil {
		next = now.Add(24 * time.Hour)
	}
	existing.Status = types.SubscriptionActive
	existing.NextDueAt = next
	existing.Attempts = 0
	existing.Degraded = false
	existing.Claimed = false
	if err := s.subs.Update(ctx, nil, existing); err != nil {
		return false, err
	}
	return true, nil
}

// CreateReminder enqueues a one-shot reminder task.
func (s *Service) CreateReminder(ctx context.Context, id types.Identity, message string, dueAt time.Time) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if !dueAt.After(s.now().UTC()) {
		return fmt.Errorf("reminder time must be in the future")
	}
	return s.tasks.Create(ctx, nil, &types.ScheduledTask{
		Channel:    id.Channel,
		ExternalID: id.ExternalID,
		Payload:    types.JSONMap{"message": message},
		DueAt:      dueAt.UTC(),
		Status:     types.TaskPending,
	})
}

// CancelReminder cancels a pending reminder.
func (s *Service) CancelReminder(ctx context.Context, taskID uuid.UUID) error {
	return s.tasks.Cancel(ctx, nil, taskID)
}
