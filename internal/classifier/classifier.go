package classifier

import (
	"strings"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
)

// Result is what classification always produces; there is no error path.
type Result struct {
	Intent     string
	Domain     string
	Entities   map[string]string
	Confidence float64
}

type Classifier struct {
	tables Tables
	log    *logger.Logger
}

func New(tables Tables, baseLog *logger.Logger) *Classifier {
	return &Classifier{tables: tables, log: baseLog.With("service", "Classifier")}
}

var helpKeywords = []string{
	"what can you do", "what do you do", "what are your features",
	"how can you help", "what can i ask", "help me",
}

// Classify maps free text to (intent, domain, entities, confidence).
// Matching order: structural patterns, then the help pre-check, then domain
// keyword sets in the fixed priority order, then the chat default. It never
// returns an error; an unmatched query is a chat, not a failure.
func (c *Classifier) Classify(text, locale string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return chatResult(1.0)
	}
	lower := strings.ToLower(trimmed)

	// Structural patterns take precedence over every keyword set. A 10-digit
	// number is a PNR when the message says so or is nothing but the number.
	if pnr := extractPNR(trimmed); pnr != "" {
		if strings.Contains(lower, "pnr") || len(strings.ReplaceAll(trimmed, " ", "")) <= 15 {
			return Result{
				Intent:     IntentPNRStatus,
				Domain:     DomainTravel,
				Entities:   map[string]string{"pnr": pnr},
				Confidence: 0.95,
			}
		}
	}
	if hasAny(lower, []string{"train", "running status", "where is"}) {
		if num := extractTrainNumber(trimmed); num != "" {
			entities := map[string]string{"train_number": num}
			if date := datePattern.FindString(trimmed); date != "" {
				entities["date"] = date
			}
			return Result{
				Intent:     IntentTrainStatus,
				Domain:     DomainTravel,
				Entities:   entities,
				Confidence: 0.9,
			}
		}
	}

	if hasAny(lower, helpKeywords) {
		return Result{
			Intent:     IntentHelp,
			Domain:     DomainConversation,
			Entities:   map[string]string{},
			Confidence: 0.95,
		}
	}

	for _, domain := range c.tables.DomainPriority {
		rules := c.tables.Domains[domain]
		for _, rule := range rules {
			if hasAny(lower, rule.Keywords) {
				return Result{
					Intent:     rule.Intent,
					Domain:     domain,
					Entities:   extractEntities(rule.Intent, trimmed, lower),
					Confidence: 0.9,
				}
			}
		}
	}

	return chatResult(0)
}

func chatResult(confidence float64) Result {
	return Result{
		Intent:     IntentChat,
		Domain:     DomainConversation,
		Entities:   map[string]string{},
		Confidence: confidence,
	}
}

func hasAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
