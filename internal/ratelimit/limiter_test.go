package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/repos"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *time.Time) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&types.RateWindow{}))

	log := logger.NewNop()
	l := New(cfg, repos.NewRateWindowRepo(db, log), log)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestAdmitExactlyLimitPerWindow(t *testing.T) {
	l, clock := newTestLimiter(t, Config{Window: time.Minute, Limit: 5})
	ctx := context.Background()
	id := types.Identity{Channel: types.ChannelMessaging, ExternalID: "+911111111111"}

	for i := 0; i < 5; i++ {
		admitted, info := l.Admit(ctx, id)
		require.True(t, admitted, "request %d should be admitted", i+1)
		require.Equal(t, 5-(i+1), info.Remaining)
		// Spread the requests inside the window.
		*clock = clock.Add(time.Second)
	}

	admitted, info := l.Admit(ctx, id)
	require.False(t, admitted, "request limit+1 must be denied")
	require.Equal(t, "rate_limit", info.Reason)
	require.Greater(t, info.RetryAfter, time.Duration(0))
}

func TestWindowRolloverResetsCount(t *testing.T) {
	l, clock := newTestLimiter(t, Config{Window: time.Minute, Limit: 2})
	ctx := context.Background()
	id := types.Identity{Channel: types.ChannelWeb, ExternalID: "sess-1"}

	for i := 0; i < 2; i++ {
		admitted, _ := l.Admit(ctx, id)
		require.True(t, admitted)
	}
	admitted, _ := l.Admit(ctx, id)
	require.False(t, admitted)

	*clock = clock.Add(2 * time.Minute)

	// The denial above set a zero cooldown only when configured; with no
	// cooldown the next window admits again.
	admitted, _ = l.Admit(ctx, id)
	require.True(t, admitted)
}

func TestBurstWindowDeniesBeforeMainLimit(t *testing.T) {
	l, clock := newTestLimiter(t, Config{
		Window:      time.Minute,
		Limit:       30,
		BurstWindow: 5 * time.Second,
		BurstLimit:  3,
	})
	ctx := context.Background()
	id := types.Identity{Channel: types.ChannelMobile, ExternalID: "dev-1"}

	for i := 0; i < 3; i++ {
		admitted, _ := l.Admit(ctx, id)
		require.True(t, admitted)
	}

	admitted, info := l.Admit(ctx, id)
	require.False(t, admitted)
	require.Equal(t, "burst", info.Reason)

	// Past the burst window the identity is admitted again without waiting
	// out the main window.
	*clock = clock.Add(6 * time.Second)
	admitted, _ = l.Admit(ctx, id)
	require.True(t, admitted)
}

func TestCooldownAfterLimitBlown(t *testing.T) {
	l, clock := newTestLimiter(t, Config{
		Window:   time.Minute,
		Limit:    2,
		Cooldown: 30 * time.Second,
	})
	ctx := context.Background()
	id := types.Identity{Channel: types.ChannelMessaging, ExternalID: "+912222222222"}

	for i := 0; i < 2; i++ {
		admitted, _ := l.Admit(ctx, id)
		require.True(t, admitted)
	}

	admitted, info := l.Admit(ctx, id)
	require.False(t, admitted)
	require.Equal(t, "rate_limit", info.Reason)
	require.Equal(t, 30*time.Second, info.RetryAfter)

	// Still inside the cooldown: denied even though the window itself rolled.
	*clock = clock.Add(20 * time.Second)
	admitted, info = l.Admit(ctx, id)
	require.False(t, admitted)
	require.Equal(t, "cooldown", info.Reason)

	// Cooldown elapsed: fresh window.
	*clock = clock.Add(15 * time.Second)
	admitted, _ = l.Admit(ctx, id)
	require.True(t, admitted)
}

func TestIdentitiesAreIsolated(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Window: time.Minute, Limit: 1})
	ctx := context.Background()

	a := types.Identity{Channel: types.ChannelMessaging, ExternalID: "+913333333333"}
	b := types.Identity{Channel: types.ChannelMessaging, ExternalID: "+914444444444"}

	admitted, _ := l.Admit(ctx, a)
	require.True(t, admitted)
	admitted, _ = l.Admit(ctx, a)
	require.False(t, admitted, "a is over its limit")

	admitted, _ = l.Admit(ctx, b)
	require.True(t, admitted, "b must not be affected by a's denial")
}
