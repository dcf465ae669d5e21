package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserProfile holds durable per-identity facts accumulated across
// conversations. Handlers may only set fields they have non-empty values for;
// the session store enforces that on save.
type UserProfile struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Channel           Channel   `gorm:"uniqueIndex:idx_profile_identity;not null;column:channel" json:"channel"`
	ExternalID        string    `gorm:"uniqueIndex:idx_profile_identity;not null;column:external_id" json:"external_id"`
	Name              string    `gorm:"column:name" json:"name"`
	BirthDate         string    `gorm:"column:birth_date" json:"birth_date"`
	BirthTime         string    `gorm:"column:birth_time" json:"birth_time"`
	BirthPlace        string    `gorm:"column:birth_place" json:"birth_place"`
	DerivedAttributes JSONMap   `gorm:"type:text;column:derived_attributes" json:"derived_attributes"`
	Locale            string    `gorm:"column:locale;default:en" json:"locale"`
	NotificationOptIn bool      `gorm:"column:notification_opt_in" json:"notification_opt_in"`
	CreatedAt         time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time `gorm:"not null" json:"updated_at"`
}

func (UserProfile) TableName() string {
	return "user_profile"
}

func (p *UserProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *UserProfile) Identity() Identity {
	return Identity{Channel: p.Channel, ExternalID: p.ExternalID}
}

// ConversationContext is short-lived multi-turn state. At most one live row
// per (identity, context_type); rows past ExpiresAt are treated as absent by
// readers even before the sweeper deletes them.
type ConversationContext struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Channel     Channel   `gorm:"uniqueIndex:idx_context_identity_type;not null;column:channel" json:"channel"`
	ExternalID  string    `gorm:"uniqueIndex:idx_context_identity_type;not null;column:external_id" json:"external_id"`
	ContextType string    `gorm:"uniqueIndex:idx_context_identity_type;not null;column:context_type" json:"context_type"`
	Payload     JSONMap   `gorm:"type:text;column:payload" json:"payload"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	ExpiresAt   time.Time `gorm:"index;not null;column:expires_at" json:"expires_at"`
}

func (ConversationContext) TableName() string {
	return "conversation_context"
}

func (c *ConversationContext) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *ConversationContext) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
