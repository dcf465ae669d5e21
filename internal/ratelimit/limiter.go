package ratelimit

import (
	"context"
	"time"

	"github.com/ohgrt/ohgrt-backend/internal/keylock"
	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/repos"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

// Config holds the window tunables. Window length and max count come from
// configuration, never from call sites.
type Config struct {
	Window      time.Duration
	Limit       int
	BurstWindow time.Duration
	BurstLimit  int
	Cooldown    time.Duration
}

// Info reports the admission decision detail the caller may surface.
type Info struct {
	Remaining  int
	RetryAfter time.Duration
	Reason     string
}

// Limiter is a per-identity fixed-window throttle with a short burst window
// and a cooldown after the limit is blown. Shared by inbound handling and
// scheduler delivery.
type Limiter struct {
	cfg   Config
	repo  repos.RateWindowRepo
	locks *keylock.KeyedMutex
	log   *logger.Logger
	now   func() time.Time
}

func New(cfg Config, repo repos.RateWindowRepo, baseLog *logger.Logger) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 30
	}
	return &Limiter{
		cfg:   cfg,
		repo:  repo,
		locks: keylock.New(),
		log:   baseLog.With("service", "RateLimiter"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Admit decides whether one request from the identity may proceed. Denial is
// normal control flow; it mutates nothing beyond the identity's own window
// row and is never logged as an error. A store failure admits the request:
// throttling is protection, not a correctness gate.
func (l *Limiter) Admit(ctx context.Context, id types.Identity) (bool, Info) {
	unlock := l.locks.Lock(id.Key())
	defer unlock()

	now := l.now()

	row, err := l.repo.GetByIdentity(ctx, nil, id)
	if err != nil {
		l.log.Warn("Rate window load failed, admitting", "identity", id.Key(), "error", err)
		return true, Info{Remaining: l.cfg.Limit}
	}
	if row == nil {
		row = &types.RateWindow{
			Channel:     id.Channel,
			ExternalID:  id.ExternalID,
			WindowStart: now,
			BurstStart:  now,
		}
	}

	if row.CooldownTill != nil {
		if now.Before(*row.CooldownTill) {
			return false, Info{
				RetryAfter: row.CooldownTill.Sub(now),
				Reason:     "cooldown",
			}
		}
		row.CooldownTill = nil
		row.WindowStart = now
		row.Count = 0
		row.BurstStart = now
		row.BurstCount = 0
	}

	// Window rollover resets the counter to zero.
	if now.Sub(row.WindowStart) >= l.cfg.Window {
		row.WindowStart = now
		row.Count = 0
	}
	if l.cfg.BurstWindow > 0 && now.Sub(row.BurstStart) >= l.cfg.BurstWindow {
		row.BurstStart = now
		row.BurstCount = 0
	}

	if row.Count >= l.cfg.Limit {
		if l.cfg.Cooldown > 0 {
			till := now.Add(l.cfg.Cooldown)
			row.CooldownTill = &till
			row.UpdatedAt = now
			if err := l.repo.Save(ctx, nil, row); err != nil {
				l.log.Warn("Rate window save failed", "identity", id.Key(), "error", err)
			}
			return false, Info{RetryAfter: l.cfg.Cooldown, Reason: "rate_limit"}
		}
		return false, Info{
			RetryAfter: l.cfg.Window - now.Sub(row.WindowStart),
			Reason:     "rate_limit",
		}
	}
	if l.cfg.BurstLimit > 0 && l.cfg.BurstWindow > 0 && row.BurstCount >= l.cfg.BurstLimit {
		return false, Info{
			RetryAfter: l.cfg.BurstWindow - now.Sub(row.BurstStart),
			Reason:     "burst",
		}
	}

	row.Count++
	row.BurstCount++
	row.UpdatedAt = now
	if err := l.repo.Save(ctx, nil, row); err != nil {
		l.log.Warn("Rate window save failed", "identity", id.Key(), "error", err)
	}

	return true, Info{Remaining: l.cfg.Limit - row.Count}
}
