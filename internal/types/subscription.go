package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

const (
	SubscriptionDailyDigest  = "daily_digest"
	SubscriptionTransitAlert = "transit_alert"
)

// Subscription is a standing content-delivery agreement. Cancellation is a
// status transition, never a hard delete.
type Subscription struct {
	ID         uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	Channel    Channel            `gorm:"index:idx_subscription_identity;not null;column:channel" json:"channel"`
	ExternalID string             `gorm:"index:idx_subscription_identity;not null;column:external_id" json:"external_id"`
	Kind       string             `gorm:"not null;column:kind" json:"kind"`
	Schedule   string             `gorm:"not null;column:schedule" json:"schedule"`
	Parameters JSONMap            `gorm:"type:text;column:parameters" json:"parameters"`
	Status     SubscriptionStatus `gorm:"index:idx_subscription_due;not null;default:active;column:status" json:"status"`
	NextDueAt  time.Time          `gorm:"index:idx_subscription_due;not null;column:next_due_at" json:"next_due_at"`
	Attempts   int                `gorm:"not null;default:0;column:attempts" json:"attempts"`
	Degraded   bool               `gorm:"not null;default:false;column:degraded" json:"degraded"`
	Claimed    bool               `gorm:"not null;default:false;column:claimed" json:"claimed"`
	ClaimedAt  *time.Time         `gorm:"column:claimed_at" json:"claimed_at,omitempty"`
	CreatedAt  time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time          `gorm:"not null" json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (s *Subscription) Identity() Identity {
	return Identity{Channel: s.Channel, ExternalID: s.ExternalID}
}

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskSent      TaskStatus = "sent"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// ScheduledTask is a one-shot reminder. Terminal states are sent, failed and
// cancelled; cancelled is only reachable by explicit user action.
type ScheduledTask struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Channel       Channel    `gorm:"index:idx_task_identity;not null;column:channel" json:"channel"`
	ExternalID    string     `gorm:"index:idx_task_identity;not null;column:external_id" json:"external_id"`
	Payload       JSONMap    `gorm:"type:text;column:payload" json:"payload"`
	DueAt         time.Time  `gorm:"index:idx_task_due;not null;column:due_at" json:"due_at"`
	Status        TaskStatus `gorm:"index:idx_task_due;not null;default:pending;column:status" json:"status"`
	Attempts      int        `gorm:"not null;default:0;column:attempts" json:"attempts"`
	LastAttemptAt *time.Time `gorm:"column:last_attempt_at" json:"last_attempt_at,omitempty"`
	Claimed       bool       `gorm:"not null;default:false;column:claimed" json:"claimed"`
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null" json:"updated_at"`
}

func (ScheduledTask) TableName() string {
	return "scheduled_task"
}

func (t *ScheduledTask) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (t *ScheduledTask) Identity() Identity {
	return Identity{Channel: t.Channel, ExternalID: t.ExternalID}
}

// DeliveryLog records every scheduler delivery attempt for diagnosis and for
// the duplicate-suppression window.
type DeliveryLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SourceID   uuid.UUID `gorm:"index;not null;column:source_id" json:"source_id"`
	SourceKind string    `gorm:"not null;column:source_kind" json:"source_kind"`
	Channel    Channel   `gorm:"not null;column:channel" json:"channel"`
	ExternalID string    `gorm:"not null;column:external_id" json:"external_id"`
	Success    bool      `gorm:"not null;column:success" json:"success"`
	Detail     string    `gorm:"column:detail" json:"detail"`
	CreatedAt  time.Time `gorm:"index;not null" json:"created_at"`
}

func (DeliveryLog) TableName() string {
	return "delivery_log"
}

func (d *DeliveryLog) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
