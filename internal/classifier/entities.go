package classifier

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	pnrPattern    = regexp.MustCompile(`\b(\d{10})\b`)
	trainPattern  = regexp.MustCompile(`\b(\d{5})\b`)
	datePattern   = regexp.MustCompile(`\b(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})\b`)
	timePattern   = regexp.MustCompile(`\b(\d{1,2}(?::\d{2})?\s*(?:am|pm))\b`)
	cityAfterPrep = regexp.MustCompile(`(?:weather|temperature|mausam|forecast)\s+(?:in|of|for|at)\s+([a-z][a-z\s]+?)(?:\s+today|\s+tomorrow|\s+now|\?|$)`)
	relativeTime  = regexp.MustCompile(`\bin\s+(\d+)\s+(minute|minutes|hour|hours|day|days)\b`)
)

var zodiacSigns = []string{
	"aries", "taurus", "gemini", "cancer", "leo", "virgo",
	"libra", "scorpio", "sagittarius", "capricorn", "aquarius", "pisces",
}

var horoscopePeriods = []string{"today", "tomorrow", "weekly", "monthly", "yearly"}

// Filler words that regexes can capture where a city name is expected.
var nonCityWords = map[string]bool{
	"the": true, "today": true, "tomorrow": true, "current": true, "now": true,
	"what": true, "how": true, "me": true, "please": true, "a": true, "an": true,
}

func extractPNR(text string) string {
	m := pnrPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

func extractTrainNumber(text string) string {
	m := trainPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// ExtractFor re-runs entity extraction for a specific intent. Used when a
// pending conversation context reroutes a turn to an intent the keyword pass
// did not pick.
func ExtractFor(intent, text string) map[string]string {
	return extractEntities(intent, text, strings.ToLower(text))
}

// extractEntities is best-effort and never fails; absent entities are simply
// omitted and downstream handlers ask the user for missing required fields.
func extractEntities(intent, text, lower string) map[string]string {
	entities := map[string]string{}

	switch intent {
	case IntentPNRStatus:
		if pnr := extractPNR(text); pnr != "" {
			entities["pnr"] = pnr
		}
	case IntentTrainStatus, IntentTrainJourney:
		if num := extractTrainNumber(text); num != "" {
			entities["train_number"] = num
		}
		if date := datePattern.FindString(text); date != "" {
			entities["date"] = date
		}
	case IntentWeather:
		if m := cityAfterPrep.FindStringSubmatch(lower); m != nil {
			city := strings.TrimSpace(m[1])
			if city != "" && !nonCityWords[city] {
				entities["city"] = titleCase(city)
			}
		}
	case IntentGetHoroscope, IntentSubscribe, IntentUnsubscribe:
		for _, sign := range zodiacSigns {
			if strings.Contains(lower, sign) {
				entities["astro_sign"] = sign
				break
			}
		}
		for _, period := range horoscopePeriods {
			if strings.Contains(lower, period) {
				entities["astro_period"] = period
				break
			}
		}
		if intent == IntentSubscribe {
			if clock := normalizeClock(timePattern.FindString(lower)); clock != "" {
				entities["preferred_time"] = clock
			}
		}
	case IntentBirthChart, IntentNumerology, IntentLifePrediction, IntentKundliMatching:
		if date := datePattern.FindString(text); date != "" {
			entities["birth_date"] = date
		}
		if t := timePattern.FindString(lower); t != "" {
			entities["birth_time"] = t
		}
	case IntentSetReminder:
		if m := relativeTime.FindStringSubmatch(lower); m != nil {
			entities["reminder_time"] = m[0]
		} else if t := timePattern.FindString(lower); t != "" {
			entities["reminder_time"] = t
		}
		if msg := reminderMessage(lower); msg != "" {
			entities["reminder_message"] = msg
		}
	case IntentGetNews:
		q := strings.TrimSpace(strings.ReplaceAll(lower, "news about", ""))
		q = strings.TrimSpace(strings.ReplaceAll(q, "latest news", ""))
		if q != "" && q != lower {
			entities["news_query"] = q
		}
	case IntentFactCheck:
		entities["fact_check_claim"] = text
	case IntentImage:
		entities["image_prompt"] = text
	case IntentLocalSearch:
		entities["search_query"] = text
	}

	return entities
}

// normalizeClock turns "8 am" or "8:30 pm" into 24-hour "HH:MM".
func normalizeClock(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}
	pm := strings.HasSuffix(raw, "pm")
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(raw, "pm"), "am"))

	hourPart, minutePart := raw, "00"
	if idx := strings.Index(raw, ":"); idx >= 0 {
		hourPart, minutePart = raw[:idx], raw[idx+1:]
	}
	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 || hour > 23 {
		return ""
	}
	if pm && hour < 12 {
		hour += 12
	}
	if !pm && hour == 12 {
		hour = 0
	}
	return fmt.Sprintf("%02d:%s", hour, minutePart)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// reminderMessage pulls the "to ..." clause out of a reminder request.
func reminderMessage(lower string) string {
	idx := strings.Index(lower, " to ")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(lower[idx+4:])
}
