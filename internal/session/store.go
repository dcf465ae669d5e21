package session

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ohgrt/ohgrt-backend/internal/keylock"
	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/repos"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

// Snapshot is the committed per-identity view handed to the executor. The
// profile is zero-valued (identity fields set) when the user has none yet.
type Snapshot struct {
	Profile  types.UserProfile
	Contexts map[string]*types.ConversationContext
}

// ProfileDelta carries only fields a handler learned this turn. Empty fields
// never overwrite stored values.
type ProfileDelta struct {
	Name              string
	BirthDate         string
	BirthTime         string
	BirthPlace        string
	Locale            string
	DerivedAttributes types.JSONMap
	NotificationOptIn *bool
}

func (d *ProfileDelta) Empty() bool {
	if d == nil {
		return true
	}
	return d.Name == "" && d.BirthDate == "" && d.BirthTime == "" && d.BirthPlace == "" &&
		d.Locale == "" && len(d.DerivedAttributes) == 0 && d.NotificationOptIn == nil
}

// ContextDelta either replaces the live context of its type or clears it.
type ContextDelta struct {
	Type    string
	Payload types.JSONMap
	TTL     time.Duration
	Clear   bool
}

// Store owns ConversationContext and UserProfile rows. Mutations for a single
// identity are serialized by a per-identity lock; reads are concurrent and
// return the most recently committed snapshot.
type Store struct {
	db         *gorm.DB
	log        *logger.Logger
	profiles   repos.ProfileRepo
	contexts   repos.ContextRepo
	locks      *keylock.KeyedMutex
	defaultTTL time.Duration
}

func NewStore(db *gorm.DB, baseLog *logger.Logger, profiles repos.ProfileRepo, contexts repos.ContextRepo, defaultTTL time.Duration) *Store {
	return &Store{
		db:         db,
		log:        baseLog.With("service", "SessionStore"),
		profiles:   profiles,
		contexts:   contexts,
		locks:      keylock.New(),
		defaultTTL: defaultTTL,
	}
}

// Load returns the profile and live contexts for an identity. A transient
// store error degrades to an empty snapshot so the conversation is never
// blocked on the datastore.
func (s *Store) Load(ctx context.Context, id types.Identity) Snapshot {
	now := time.Now().UTC()
	snap := Snapshot{
		Profile:  types.UserProfile{Channel: id.Channel, ExternalID: id.ExternalID, Locale: "en"},
		Contexts: map[string]*types.ConversationContext{},
	}

	profile, err := s.profiles.GetByIdentity(ctx, nil, id)
	if err != nil {
		s.log.Warn("Profile load failed, degrading to empty profile", "identity", id.Key(), "error", err)
	} else if profile != nil {
		snap.Profile = *profile
	}

	rows, err := s.contexts.GetLive(ctx, nil, id, now)
	if err != nil {
		s.log.Warn("Context load failed, degrading to empty context", "identity", id.Key(), "error", err)
		return snap
	}
	for _, row := range rows {
		// The repo filters on expires_at; this re-check only guards clock skew
		// between the query and this loop.
		if row.Expired(now) {
			continue
		}
		snap.Contexts[row.ContextType] = row
	}
	return snap
}

// Save applies a profile delta and context deltas under the identity's lock
// so two concurrent saves never interleave field-by-field. A returned error
// is a non-fatal warning: the caller still delivers its response.
func (s *Store) Save(ctx context.Context, id types.Identity, profileDelta *ProfileDelta, contextDeltas []ContextDelta) error {
	if profileDelta.Empty() && len(contextDeltas) == 0 {
		return nil
	}

	unlock := s.locks.Lock(id.Key())
	defer unlock()

	now := time.Now().UTC()

	if !profileDelta.Empty() {
		if err := s.saveProfile(ctx, id, profileDelta, now); err != nil {
			return fmt.Errorf("save profile for %s: %w", id.Key(), err)
		}
	}

	for _, delta := range contextDeltas {
		if delta.Type == "" {
			continue
		}
		if delta.Clear {
			if err := s.contexts.Delete(ctx, nil, id, delta.Type); err != nil {
				return fmt.Errorf("clear context %s for %s: %w", delta.Type, id.Key(), err)
			}
			continue
		}
		ttl := delta.TTL
		if ttl <= 0 {
			ttl = s.defaultTTL
		}
		row := &types.ConversationContext{
			Channel:     id.Channel,
			ExternalID:  id.ExternalID,
			ContextType: delta.Type,
			Payload:     delta.Payload.Clone(),
			CreatedAt:   now,
			ExpiresAt:   now.Add(ttl),
		}
		if err := s.contexts.Upsert(ctx, nil, row); err != nil {
			return fmt.Errorf("save context %s for %s: %w", delta.Type, id.Key(), err)
		}
	}
	return nil
}

func (s *Store) saveProfile(ctx context.Context, id types.Identity, delta *ProfileDelta, now time.Time) error {
	current, err := s.profiles.GetByIdentity(ctx, nil, id)
	if err != nil {
		return err
	}
	if current == nil {
		current = &types.UserProfile{
			Channel:           id.Channel,
			ExternalID:        id.ExternalID,
			Locale:            "en",
			DerivedAttributes: types.JSONMap{},
			CreatedAt:         now,
		}
	}

	// A handler may only set fields it has non-empty values for; blanks never
	// clobber stored facts.
	if delta.Name != "" {
		current.Name = delta.Name
	}
	if delta.BirthDate != "" {
		current.BirthDate = delta.BirthDate
	}
	if delta.BirthTime != "" {
		current.BirthTime = delta.BirthTime
	}
	if delta.BirthPlace != "" {
		current.BirthPlace = delta.BirthPlace
	}
	if delta.Locale != "" {
		current.Locale = delta.Locale
	}
	if delta.NotificationOptIn != nil {
		current.NotificationOptIn = *delta.NotificationOptIn
	}
	if len(delta.DerivedAttributes) > 0 {
		if current.DerivedAttributes == nil {
			current.DerivedAttributes = types.JSONMap{}
		}
		for k, v := range delta.DerivedAttributes {
			if v != "" {
				current.DerivedAttributes[k] = v
			}
		}
	}
	current.UpdatedAt = now

	return s.profiles.Upsert(ctx, nil, current)
}

// ExpireNow drops a single live context immediately.
func (s *Store) ExpireNow(ctx context.Context, id types.Identity, contextType string) error {
	unlock := s.locks.Lock(id.Key())
	defer unlock()
	return s.contexts.Delete(ctx, nil, id, contextType)
}

// Sweep physically deletes expired context rows. Readers already filter on
// expires_at, so a failed sweep is a storage-growth concern, not a
// correctness one.
func (s *Store) Sweep(ctx context.Context) {
	deleted, err := s.contexts.DeleteExpired(ctx, nil, time.Now().UTC())
	if err != nil {
		s.log.Warn("Context sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		s.log.Debug("Swept expired contexts", "deleted", deleted)
	}
}

// StartSweeper runs Sweep on an interval until the context is cancelled.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}
