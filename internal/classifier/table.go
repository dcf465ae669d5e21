package classifier

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Domain names. Priority between them is fixed by the ordered DomainPriority
// list: astrology beats travel beats utility beats game for ambiguous
// multi-keyword queries, and conversation is the default when nothing matches.
const (
	DomainAstrology    = "astrology"
	DomainTravel       = "travel"
	DomainUtility      = "utility"
	DomainGame         = "game"
	DomainConversation = "conversation"
)

// Intent names.
const (
	IntentGetHoroscope   = "get_horoscope"
	IntentBirthChart     = "birth_chart"
	IntentKundliMatching = "kundli_matching"
	IntentAskAstrologer  = "ask_astrologer"
	IntentNumerology     = "numerology"
	IntentTarotReading   = "tarot_reading"
	IntentLifePrediction = "life_prediction"
	IntentGetPanchang    = "get_panchang"
	IntentDoshaCheck     = "dosha_check"
	IntentSubscribe      = "subscribe"
	IntentUnsubscribe    = "unsubscribe"

	IntentPNRStatus    = "pnr_status"
	IntentTrainStatus  = "train_status"
	IntentTrainJourney = "train_journey"
	IntentMetroTicket  = "metro_ticket"

	IntentWeather     = "weather"
	IntentGetNews     = "get_news"
	IntentSetReminder = "set_reminder"
	IntentImage       = "image"
	IntentLocalSearch = "local_search"
	IntentFactCheck   = "fact_check"
	IntentDBQuery     = "db_query"

	IntentWordGame = "word_game"

	IntentHelp = "help"
	IntentChat = "chat"
)

// IntentRule maps a keyword set to an intent. Rules inside a domain are
// consulted in order; the first rule with any matching keyword wins.
type IntentRule struct {
	Intent   string   `yaml:"intent"`
	Keywords []string `yaml:"keywords"`
}

// Tables is the full, data-driven matcher configuration.
type Tables struct {
	DomainPriority []string                `yaml:"domain_priority"`
	Domains        map[string][]IntentRule `yaml:"domains"`
}

// DefaultTables mirrors the production keyword sets. An external YAML file
// (CLASSIFIER_CONFIG) replaces them wholesale when provided.
func DefaultTables() Tables {
	return Tables{
		DomainPriority: []string{DomainAstrology, DomainTravel, DomainUtility, DomainGame},
		Domains: map[string][]IntentRule{
			DomainAstrology: {
				{Intent: IntentUnsubscribe, Keywords: []string{"unsubscribe", "stop daily", "stop sending", "cancel subscription"}},
				{Intent: IntentSubscribe, Keywords: []string{"subscribe", "sign me up", "daily updates"}},
				{Intent: IntentKundliMatching, Keywords: []string{"match kundli", "kundli matching", "gun milan", "marriage compatibility", "compatibility"}},
				{Intent: IntentBirthChart, Keywords: []string{"birth chart", "kundli", "janam patri", "janampatri"}},
				{Intent: IntentLifePrediction, Keywords: []string{"life prediction", "future prediction", "predict my"}},
				{Intent: IntentNumerology, Keywords: []string{"numerology", "lucky number", "life path number"}},
				{Intent: IntentTarotReading, Keywords: []string{"tarot"}},
				{Intent: IntentGetPanchang, Keywords: []string{"panchang", "muhurta", "tithi"}},
				{Intent: IntentDoshaCheck, Keywords: []string{"dosha", "dosh", "manglik", "sade sati", "kaal sarp"}},
				{Intent: IntentAskAstrologer, Keywords: []string{"astrologer", "astrology", "gemstone", "retrograde", "saturn return", "rahu", "ketu", "shani", "transit"}},
				{Intent: IntentGetHoroscope, Keywords: []string{"horoscope", "rashifal", "zodiac", "prediction today"}},
			},
			DomainTravel: {
				{Intent: IntentPNRStatus, Keywords: []string{"pnr"}},
				{Intent: IntentTrainJourney, Keywords: []string{"train from", "trains from", "train between"}},
				{Intent: IntentTrainStatus, Keywords: []string{"train", "running status", "rajdhani", "shatabdi", "irctc"}},
				{Intent: IntentMetroTicket, Keywords: []string{"metro", "dmrc"}},
			},
			DomainUtility: {
				{Intent: IntentWeather, Keywords: []string{"weather", "temperature", "mausam", "forecast"}},
				{Intent: IntentFactCheck, Keywords: []string{"fact check", "is this true", "is it true", "fake news", "true or false", "verify this", "sach hai", "jhooth hai"}},
				{Intent: IntentGetNews, Keywords: []string{"news", "headlines", "breaking"}},
				{Intent: IntentSetReminder, Keywords: []string{"remind", "reminder", "set alarm", "alarm me"}},
				{Intent: IntentImage, Keywords: []string{"generate image", "create image", "make image", "generate picture", "create picture", "draw", "image of"}},
				{Intent: IntentLocalSearch, Keywords: []string{"near me", "nearby", "nearest", "around me", "close to me", "restaurants in", "hospitals in", "cafes in"}},
				{Intent: IntentDBQuery, Keywords: []string{"database", "registered users", "total number", "how many users"}},
			},
			DomainGame: {
				{Intent: IntentWordGame, Keywords: []string{"word game", "play a game", "play game", "lets play", "let's play", "anagram"}},
			},
		},
	}
}

// LoadTables reads tables from a YAML file, or returns the defaults when path
// is empty.
func LoadTables(path string) (Tables, error) {
	if path == "" {
		return DefaultTables(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read classifier config: %w", err)
	}
	var t Tables
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Tables{}, fmt.Errorf("parse classifier config: %w", err)
	}
	if len(t.DomainPriority) == 0 || len(t.Domains) == 0 {
		return Tables{}, fmt.Errorf("classifier config %s missing domain_priority or domains", path)
	}
	return t, nil
}
