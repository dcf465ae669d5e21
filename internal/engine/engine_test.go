package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ohgrt/ohgrt-backend/internal/classifier"
	"github.com/ohgrt/ohgrt-backend/internal/clients/content"
	"github.com/ohgrt/ohgrt-backend/internal/graph"
	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/normalizer"
	"github.com/ohgrt/ohgrt-backend/internal/ratelimit"
	"github.com/ohgrt/ohgrt-backend/internal/repos"
	"github.com/ohgrt/ohgrt-backend/internal/session"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

type fakeSubs struct {
	subscribed   int
	unsubscribed int
}

func (f *fakeSubs) Subscribe(ctx context.Context, id types.Identity, kind, schedule string, params map[string]string) error {
	f.subscribed++
	return nil
}

func (f *fakeSubs) Unsubscribe(ctx context.Context, id types.Identity, kind string) (bool, error) {
	f.unsubscribed++
	return true, nil
}

type fakeReminders struct {
	created []time.Time
}

func (f *fakeReminders) CreateReminder(ctx context.Context, id types.Identity, message string, dueAt time.Time) error {
	f.created = append(f.created, dueAt)
	return nil
}

type engineFixture struct {
	eng       *Engine
	store     *session.Store
	subs      *fakeSubs
	reminders *fakeReminders
}

func newEngineFixture(t *testing.T, rateCfg ratelimit.Config) *engineFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&types.UserProfile{}, &types.ConversationContext{}, &types.RateWindow{},
	))

	log := logger.NewNop()
	limiter := ratelimit.New(rateCfg, repos.NewRateWindowRepo(db, log), log)
	store := session.NewStore(db, log, repos.NewProfileRepo(db, log), repos.NewContextRepo(db, log), 30*time.Minute)
	cls := classifier.New(classifier.DefaultTables(), log)

	gen, err := content.NewTemplateGenerator(log)
	require.NoError(t, err)

	subs := &fakeSubs{}
	reminders := &fakeReminders{}
	routes := graph.BuildRoutes(graph.RouteDeps{
		Handlers:  content.DefaultHandlers(gen),
		Subs:      subs,
		Reminders: reminders,
	})
	executor, err := graph.NewExecutor(routes, log, 5*time.Second, 10)
	require.NoError(t, err)

	eng, err := New(log, limiter, store, cls, executor)
	require.NoError(t, err)

	return &engineFixture{eng: eng, store: store, subs: subs, reminders: reminders}
}

func defaultRateCfg() ratelimit.Config {
	return ratelimit.Config{Window: time.Minute, Limit: 100}
}

func (f *engineFixture) send(t *testing.T, text string) types.Response {
	t.Helper()
	resp, err := f.eng.Process(context.Background(), types.ChannelMessaging, normalizer.RawMessage{
		ExternalID: "+911234567890",
		Text:       text,
	})
	require.NoError(t, err)
	return resp
}

func TestProcessHoroscopeEndToEnd(t *testing.T) {
	f := newEngineFixture(t, defaultRateCfg())

	resp := f.send(t, "horoscope for aries today")
	require.Equal(t, "get_horoscope", resp.Intent)
	require.Contains(t, resp.Text, "Aries")
	require.False(t, resp.ShouldFallback)
}

func TestProcessHoroscopeWithoutSignAsksForIt(t *testing.T) {
	f := newEngineFixture(t, defaultRateCfg())

	resp := f.send(t, "what's my horoscope")
	require.Contains(t, resp.Text, "zodiac sign")
}

func TestProcessGreetingGetsChatResponse(t *testing.T) {
	f := newEngineFixture(t, defaultRateCfg())

	resp := f.send(t, "hello")
	require.Equal(t, "chat", resp.Intent)
	require.NotEmpty(t, resp.Text)
}

func TestProcessBirthDetailFollowUpResumesFlow(t *testing.T) {
	f := newEngineFixture(t, defaultRateCfg())
	ctx := context.Background()
	id := types.Identity{Channel: types.ChannelMessaging, ExternalID: "+911234567890"}

	// First turn asks for missing birth details and parks a context.
	resp := f.send(t, "show me my birth chart")
	require.Contains(t, resp.Text, "birth date")

	snap := f.store.Load(ctx, id)
	require.Contains(t, snap.Contexts, graph.ContextAwaitingBirthDetails)

	// The bare date answer would classify as chat; the pending context must
	// route it back into the astrology flow.
	resp = f.send(t, "14-02-1995")
	require.NotEqual(t, "chat", resp.Intent)

	snap = f.store.Load(ctx, id)
	require.Equal(t, "14-02-1995", snap.Profile.BirthDate)
}

func TestProcessReminderFollowUp(t *testing.T) {
	f := newEngineFixture(t, defaultRateCfg())
	ctx := context.Background()
	id := types.Identity{Channel: types.ChannelMessaging, ExternalID: "+911234567890"}

	resp := f.send(t, "remind me to call mom")
	require.Contains(t, resp.Text, "When should I remind you")
	require.Empty(t, f.reminders.created)

	snap := f.store.Load(ctx, id)
	require.Contains(t, snap.Contexts, graph.ContextAwaitingReminderTime)

	resp = f.send(t, "in 20 minutes")
	require.Contains(t, resp.Text, "Reminder set")
	require.Len(t, f.reminders.created, 1)

	snap = f.store.Load(ctx, id)
	require.NotContains(t, snap.Contexts, graph.ContextAwaitingReminderTime)
}

func TestProcessSubscribeFlow(t *testing.T) {
	f := newEngineFixture(t, defaultRateCfg())

	resp := f.send(t, "subscribe to daily horoscope for leo")
	require.Contains(t, resp.Text, "subscribed")
	require.Equal(t, 1, f.subs.subscribed)

	resp = f.send(t, "stop daily horoscope")
	require.Contains(t, resp.Text, "unsubscribed")
	require.Equal(t, 1, f.subs.unsubscribed)
}

func TestProcessThrottledMessageGetsPoliteCopy(t *testing.T) {
	f := newEngineFixture(t, ratelimit.Config{Window: time.Minute, Limit: 1})

	first := f.send(t, "hello")
	require.NotEqual(t, "rate_limited", first.Intent)

	second := f.send(t, "hello again")
	require.Equal(t, "rate_limited", second.Intent)
	require.NotEmpty(t, second.Text)
}

func TestConcurrentMessagesSameIdentity(t *testing.T) {
	f := newEngineFixture(t, defaultRateCfg())

	// Both texts reach the birth detail gate and write the same context
	// type with different payloads.
	texts := []string{"show me my birth chart", "do my kundli matching please"}
	responses := make([]types.Response, len(texts))
	errs := make([]error, len(texts))

	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			responses[i], errs[i] = f.eng.Process(context.Background(), types.ChannelMessaging, normalizer.RawMessage{
				ExternalID: "+911234567890",
				Text:       text,
			})
		}(i, text)
	}
	wg.Wait()

	for i := range texts {
		require.NoError(t, errs[i])
		require.NotEmpty(t, responses[i].Text)
	}

	snap := f.store.Load(context.Background(), types.Identity{
		Channel: types.ChannelMessaging, ExternalID: "+911234567890",
	})
	cc := snap.Contexts[graph.ContextAwaitingBirthDetails]
	require.NotNil(t, cc)
	require.Contains(t, []string{"birth_chart", "kundli_matching"}, cc.Payload["intent"])
}

func TestProcessRejectsInvalidChannel(t *testing.T) {
	f := newEngineFixture(t, defaultRateCfg())

	_, err := f.eng.Process(context.Background(), types.Channel("fax"), normalizer.RawMessage{
		ExternalID: "x", Text: "hello",
	})
	require.Error(t, err)
}
