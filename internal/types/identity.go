package types

import "fmt"

// Channel names a message intake/delivery surface.
type Channel string

const (
	ChannelMessaging Channel = "messaging"
	ChannelMobile    Channel = "mobile"
	ChannelWeb       Channel = "web"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelMessaging, ChannelMobile, ChannelWeb:
		return true
	}
	return false
}

// Identity is the stable key for all per-user state. Created on first
// contact, never deleted.
type Identity struct {
	Channel    Channel `gorm:"column:channel" json:"channel"`
	ExternalID string  `gorm:"column:external_id" json:"external_id"`
}

func (id Identity) Key() string {
	return string(id.Channel) + ":" + id.ExternalID
}

func (id Identity) String() string {
	return id.Key()
}

func (id Identity) Validate() error {
	if !id.Channel.Valid() {
		return fmt.Errorf("unknown channel %q", id.Channel)
	}
	if id.ExternalID == "" {
		return fmt.Errorf("external id is required")
	}
	return nil
}

// InboundMessage is the normalized shape every intake adapter produces.
type InboundMessage struct {
	Channel     Channel  `json:"channel"`
	ExternalID  string   `json:"external_id"`
	Text        string   `json:"text"`
	Locale      string   `json:"locale"`
	Attachments []string `json:"attachments,omitempty"`
}

func (m InboundMessage) Identity() Identity {
	return Identity{Channel: m.Channel, ExternalID: m.ExternalID}
}

// Response is what the engine hands back to the intake adapter.
type Response struct {
	Text           string            `json:"text"`
	MediaURL       string            `json:"media_url,omitempty"`
	StructuredData map[string]string `json:"structured_data,omitempty"`
	Intent         string            `json:"intent"`
	ShouldFallback bool              `json:"should_fallback"`
}
