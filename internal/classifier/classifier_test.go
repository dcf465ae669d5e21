package classifier

import (
	"testing"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	return New(DefaultTables(), logger.NewNop())
}

func TestClassifyDomainPriority(t *testing.T) {
	c := newTestClassifier(t)

	cases := []struct {
		name       string
		text       string
		wantIntent string
		wantDomain string
	}{
		{
			name:       "aries_horoscope",
			text:       "What is the horoscope for Aries today?",
			wantIntent: IntentGetHoroscope,
			wantDomain: DomainAstrology,
		},
		{
			name:       "kundli",
			text:       "kundli matching for me and my partner",
			wantIntent: IntentKundliMatching,
			wantDomain: DomainAstrology,
		},
		{
			name:       "train_running",
			text:       "where is train 12951 right now",
			wantIntent: IntentTrainStatus,
			wantDomain: DomainTravel,
		},
		{
			name:       "weather",
			text:       "weather in Mumbai",
			wantIntent: IntentWeather,
			wantDomain: DomainUtility,
		},
		{
			name:       "word_game",
			text:       "let's play a word game",
			wantIntent: IntentWordGame,
			wantDomain: DomainGame,
		},
		{
			name:       "greeting_defaults_to_chat",
			text:       "hello there",
			wantIntent: IntentChat,
			wantDomain: DomainConversation,
		},
		{
			name:       "gibberish_defaults_to_chat",
			text:       "qwertyuiop zxcvbnm",
			wantIntent: IntentChat,
			wantDomain: DomainConversation,
		},
		{
			name:       "empty_defaults_to_chat",
			text:       "",
			wantIntent: IntentChat,
			wantDomain: DomainConversation,
		},
		{
			name:       "astrology_beats_utility",
			text:       "horoscope and weather please",
			wantIntent: IntentGetHoroscope,
			wantDomain: DomainAstrology,
		},
		{
			name:       "help_precheck",
			text:       "what can you do",
			wantIntent: IntentHelp,
			wantDomain: DomainConversation,
		},
		{
			name:       "unsubscribe_before_subscribe",
			text:       "stop daily horoscope subscription",
			wantIntent: IntentUnsubscribe,
			wantDomain: DomainAstrology,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.text, "en")
			if got.Intent != tc.wantIntent {
				t.Fatalf("Classify(%q) intent=%q, want %q", tc.text, got.Intent, tc.wantIntent)
			}
			if got.Domain != tc.wantDomain {
				t.Fatalf("Classify(%q) domain=%q, want %q", tc.text, got.Domain, tc.wantDomain)
			}
		})
	}
}

func TestClassifyIsTotal(t *testing.T) {
	c := newTestClassifier(t)

	inputs := []string{
		"", "   ", "?!#@", "a", "1234567890 and 12345 together",
		"pnr", "train", "horoscope weather news reminder tarot",
	}
	for _, text := range inputs {
		got := c.Classify(text, "en")
		if got.Intent == "" || got.Domain == "" {
			t.Fatalf("Classify(%q) produced empty intent or domain: %+v", text, got)
		}
		if got.Entities == nil {
			t.Fatalf("Classify(%q) produced nil entities", text)
		}
	}
}

func TestClassifyPNRPrecedence(t *testing.T) {
	c := newTestClassifier(t)

	cases := []struct {
		name       string
		text       string
		wantIntent string
		wantPNR    string
	}{
		{
			name:       "ten_digits_with_pnr_keyword",
			text:       "pnr 4528167390",
			wantIntent: IntentPNRStatus,
			wantPNR:    "4528167390",
		},
		{
			name:       "bare_ten_digits_short_message",
			text:       "4528167390",
			wantIntent: IntentPNRStatus,
			wantPNR:    "4528167390",
		},
		{
			name:       "ten_digits_in_long_sentence_without_keyword",
			text:       "my phone number is 4528167390 call me about the hotel",
			wantIntent: IntentChat,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.text, "en")
			if got.Intent != tc.wantIntent {
				t.Fatalf("Classify(%q) intent=%q, want %q", tc.text, got.Intent, tc.wantIntent)
			}
			if tc.wantPNR != "" && got.Entities["pnr"] != tc.wantPNR {
				t.Fatalf("Classify(%q) pnr=%q, want %q", tc.text, got.Entities["pnr"], tc.wantPNR)
			}
		})
	}
}

func TestClassifyEntities(t *testing.T) {
	c := newTestClassifier(t)

	t.Run("horoscope_sign_and_period", func(t *testing.T) {
		got := c.Classify("weekly horoscope for taurus", "en")
		if got.Entities["astro_sign"] != "taurus" {
			t.Fatalf("astro_sign=%q, want taurus", got.Entities["astro_sign"])
		}
		if got.Entities["astro_period"] != "weekly" {
			t.Fatalf("astro_period=%q, want weekly", got.Entities["astro_period"])
		}
	})

	t.Run("train_number_and_date", func(t *testing.T) {
		got := c.Classify("running status of train 12951 on 14-02-2026", "en")
		if got.Entities["train_number"] != "12951" {
			t.Fatalf("train_number=%q, want 12951", got.Entities["train_number"])
		}
		if got.Entities["date"] != "14-02-2026" {
			t.Fatalf("date=%q, want 14-02-2026", got.Entities["date"])
		}
	})

	t.Run("weather_city", func(t *testing.T) {
		got := c.Classify("what's the weather in new delhi", "en")
		if got.Entities["city"] != "New Delhi" {
			t.Fatalf("city=%q, want New Delhi", got.Entities["city"])
		}
	})

	t.Run("reminder_time_and_message", func(t *testing.T) {
		got := c.Classify("remind me in 10 minutes to check the oven", "en")
		if got.Intent != IntentSetReminder {
			t.Fatalf("intent=%q, want %q", got.Intent, IntentSetReminder)
		}
		if got.Entities["reminder_time"] != "in 10 minutes" {
			t.Fatalf("reminder_time=%q, want %q", got.Entities["reminder_time"], "in 10 minutes")
		}
		if got.Entities["reminder_message"] != "check the oven" {
			t.Fatalf("reminder_message=%q, want %q", got.Entities["reminder_message"], "check the oven")
		}
	})

	t.Run("subscribe_preferred_time", func(t *testing.T) {
		got := c.Classify("subscribe to daily horoscope for leo at 8 am", "en")
		if got.Intent != IntentSubscribe {
			t.Fatalf("intent=%q, want %q", got.Intent, IntentSubscribe)
		}
		if got.Entities["preferred_time"] != "08:00" {
			t.Fatalf("preferred_time=%q, want 08:00", got.Entities["preferred_time"])
		}
	})
}

func TestNormalizeClock(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"8 am", "08:00"},
		{"8:30 pm", "20:30"},
		{"12 am", "00:00"},
		{"12 pm", "12:00"},
		{"", ""},
		{"notatime", ""},
	}
	for _, tc := range cases {
		if got := normalizeClock(tc.in); got != tc.want {
			t.Fatalf("normalizeClock(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}
