package normalizer

import (
	"fmt"
	"strings"

	"github.com/ohgrt/ohgrt-backend/internal/types"
)

// RawMessage is what an intake adapter hands over after transport parsing and
// auth verification, before any engine processing.
type RawMessage struct {
	ExternalID  string
	Text        string
	Locale      string
	Attachments []string
}

// Normalize turns a channel-specific inbound message into the canonical
// tuple every downstream component works with.
func Normalize(channel types.Channel, raw RawMessage) (types.InboundMessage, error) {
	if !channel.Valid() {
		return types.InboundMessage{}, fmt.Errorf("unknown channel %q", channel)
	}

	externalID := strings.TrimSpace(raw.ExternalID)
	if externalID == "" {
		return types.InboundMessage{}, fmt.Errorf("external id is required")
	}

	locale := strings.ToLower(strings.TrimSpace(raw.Locale))
	if locale == "" {
		locale = "en"
	}
	// Collapse region-qualified tags; the engine only keys on the language.
	if idx := strings.IndexAny(locale, "-_"); idx > 0 {
		locale = locale[:idx]
	}

	return types.InboundMessage{
		Channel:     channel,
		ExternalID:  externalID,
		Text:        strings.TrimSpace(raw.Text),
		Locale:      locale,
		Attachments: raw.Attachments,
	}, nil
}
