package session

import (
	"context"
	"sync"
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

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&types.UserProfile{}, &types.ConversationContext{}))

	log := logger.NewNop()
	return NewStore(db, log, repos.NewProfileRepo(db, log), repos.NewContextRepo(db, log), 30*time.Minute)
}

func TestLoadUnknownIdentityReturnsEmptySnapshot(t *testing.T) {
	store := newTestStore(t)
	id := types.Identity{Channel: types.ChannelMessaging, ExternalID: "+911234567890"}

	snap := store.Load(context.Background(), id)
	require.Equal(t, id.Channel, snap.Profile.Channel)
	require.Equal(t, id.ExternalID, snap.Profile.ExternalID)
	require.Empty(t, snap.Profile.BirthDate)
	require.Empty(t, snap.Contexts)
}

func TestSaveMergesOnlyNonEmptyFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := types.Identity{Channel: types.ChannelMessaging, ExternalID: "+911234567890"}

	require.NoError(t, store.Save(ctx, id, &ProfileDelta{Name: "Asha", BirthDate: "14-02-1995"}, nil))
	// A later delta with blanks must not clobber the stored values.
	require.NoError(t, store.Save(ctx, id, &ProfileDelta{BirthPlace: "Pune"}, nil))

	snap := store.Load(ctx, id)
	require.Equal(t, "Asha", snap.Profile.Name)
	require.Equal(t, "14-02-1995", snap.Profile.BirthDate)
	require.Equal(t, "Pune", snap.Profile.BirthPlace)
}

func TestConcurrentDisjointFieldSaves(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := types.Identity{Channel: types.ChannelWeb, ExternalID: "sess-42"}

	deltas := []*ProfileDelta{
		{Name: "Asha"},
		{BirthDate: "14-02-1995"},
		{BirthTime: "6:30 am"},
		{BirthPlace: "Pune"},
		{DerivedAttributes: types.JSONMap{"astro_sign": "aquarius"}},
	}

	var wg sync.WaitGroup
	for _, d := range deltas {
		wg.Add(1)
		go func(d *ProfileDelta) {
			defer wg.Done()
			if err := store.Save(ctx, id, d, nil); err != nil {
				t.Errorf("Save: %v", err)
			}
		}(d)
	}
	wg.Wait()

	snap := store.Load(ctx, id)
	require.Equal(t, "Asha", snap.Profile.Name)
	require.Equal(t, "14-02-1995", snap.Profile.BirthDate)
	require.Equal(t, "6:30 am", snap.Profile.BirthTime)
	require.Equal(t, "Pune", snap.Profile.BirthPlace)
	require.Equal(t, "aquarius", snap.Profile.DerivedAttributes["astro_sign"])
}

func TestExpiredContextIsInvisible(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := types.Identity{Channel: types.ChannelMobile, ExternalID: "dev-7"}

	require.NoError(t, store.Save(ctx, id, nil, []ContextDelta{{
		Type:    "awaiting_birth_details",
		Payload: types.JSONMap{"intent": "birth_chart"},
		TTL:     10 * time.Millisecond,
	}}))

	snap := store.Load(ctx, id)
	require.Contains(t, snap.Contexts, "awaiting_birth_details")

	time.Sleep(20 * time.Millisecond)

	snap = store.Load(ctx, id)
	require.NotContains(t, snap.Contexts, "awaiting_birth_details")
}

func TestContextClearAndReplace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := types.Identity{Channel: types.ChannelMessaging, ExternalID: "+919999999999"}

	require.NoError(t, store.Save(ctx, id, nil, []ContextDelta{{
		Type:    "awaiting_reminder_time",
		Payload: types.JSONMap{"reminder_message": "call mom"},
	}}))

	// Same type replaces the payload rather than stacking a second row.
	require.NoError(t, store.Save(ctx, id, nil, []ContextDelta{{
		Type:    "awaiting_reminder_time",
		Payload: types.JSONMap{"reminder_message": "call dad"},
	}}))

	snap := store.Load(ctx, id)
	require.Equal(t, "call dad", snap.Contexts["awaiting_reminder_time"].Payload["reminder_message"])

	require.NoError(t, store.Save(ctx, id, nil, []ContextDelta{{
		Type:  "awaiting_reminder_time",
		Clear: true,
	}}))

	snap = store.Load(ctx, id)
	require.NotContains(t, snap.Contexts, "awaiting_reminder_time")
}

func TestSweepDeletesExpiredRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := types.Identity{Channel: types.ChannelWeb, ExternalID: "sess-9"}

	require.NoError(t, store.Save(ctx, id, nil, []ContextDelta{
		{Type: "short_lived", Payload: types.JSONMap{"k": "v"}, TTL: 5 * time.Millisecond},
		{Type: "long_lived", Payload: types.JSONMap{"k": "v"}, TTL: time.Hour},
	}))

	time.Sleep(10 * time.Millisecond)
	store.Sweep(ctx)

	snap := store.Load(ctx, id)
	require.NotContains(t, snap.Contexts, "short_lived")
	require.Contains(t, snap.Contexts, "long_lived")
}
