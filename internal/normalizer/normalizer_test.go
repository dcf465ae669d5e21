package normalizer

import (
	"testing"

	"github.com/ohgrt/ohgrt-backend/internal/types"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name       string
		channel    types.Channel
		raw        RawMessage
		wantErr    bool
		wantLocale string
		wantText   string
	}{
		{
			name:       "defaults_locale_to_en",
			channel:    types.ChannelMessaging,
			raw:        RawMessage{ExternalID: "+919876543210", Text: "hello"},
			wantLocale: "en",
			wantText:   "hello",
		},
		{
			name:       "strips_region_tag",
			channel:    types.ChannelWeb,
			raw:        RawMessage{ExternalID: "sess-1", Text: "hi", Locale: "hi-IN"},
			wantLocale: "hi",
			wantText:   "hi",
		},
		{
			name:       "underscore_region_tag",
			channel:    types.ChannelMobile,
			raw:        RawMessage{ExternalID: "dev-1", Text: "hey", Locale: "en_US"},
			wantLocale: "en",
			wantText:   "hey",
		},
		{
			name:       "trims_text_and_id",
			channel:    types.ChannelMessaging,
			raw:        RawMessage{ExternalID: "  +911111111111  ", Text: "  spaced out  "},
			wantLocale: "en",
			wantText:   "spaced out",
		},
		{
			name:    "unknown_channel",
			channel: types.Channel("carrier_pigeon"),
			raw:     RawMessage{ExternalID: "x", Text: "hello"},
			wantErr: true,
		},
		{
			name:    "missing_external_id",
			channel: types.ChannelMessaging,
			raw:     RawMessage{ExternalID: "   ", Text: "hello"},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.channel, tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%v, %+v) expected error, got %+v", tc.channel, tc.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if got.Locale != tc.wantLocale {
				t.Fatalf("locale=%q, want %q", got.Locale, tc.wantLocale)
			}
			if got.Text != tc.wantText {
				t.Fatalf("text=%q, want %q", got.Text, tc.wantText)
			}
			if got.Identity().Channel != tc.channel {
				t.Fatalf("channel=%q, want %q", got.Identity().Channel, tc.channel)
			}
		})
	}
}
