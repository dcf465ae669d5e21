package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RateWindow is one fixed admission window per identity. The counter resets
// when the window elapses; it never exceeds the configured limit for longer
// than one window.
type RateWindow struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Channel      Channel    `gorm:"uniqueIndex:idx_rate_identity;not null;column:channel" json:"channel"`
	ExternalID   string     `gorm:"uniqueIndex:idx_rate_identity;not null;column:external_id" json:"external_id"`
	WindowStart  time.Time  `gorm:"not null;column:window_start" json:"window_start"`
	Count        int        `gorm:"not null;default:0;column:count" json:"count"`
	BurstStart   time.Time  `gorm:"not null;column:burst_start" json:"burst_start"`
	BurstCount   int        `gorm:"not null;default:0;column:burst_count" json:"burst_count"`
	CooldownTill *time.Time `gorm:"column:cooldown_till" json:"cooldown_till,omitempty"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`
}

func (RateWindow) TableName() string {
	return "rate_window"
}

func (w *RateWindow) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
