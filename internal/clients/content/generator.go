package content

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

// Request asks for generated content for one intent.
type Request struct {
	Intent   string
	Entities map[string]string
	Profile  *types.UserProfile
	Locale   string
}

// Result carries the generated reply.
type Result struct {
	Text     string
	MediaURL string
	Data     map[string]string
}

// Generator produces reply content for domain intents. The default
// implementation is template-backed and deterministic per day; a model-backed
// implementation can be swapped in without touching the graph.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

type templateGenerator struct {
	log *logger.Logger
	now func() time.Time
}

func NewTemplateGenerator(log *logger.Logger) (Generator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &templateGenerator{
		log: log.With("service", "ContentGenerator"),
		now: time.Now,
	}, nil
}

func (g *templateGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	switch req.Intent {
	case "get_horoscope":
		return g.horoscope(req)
	case "get_panchang":
		return g.panchang(req)
	case "numerology":
		return g.numerology(req)
	case "tarot_reading":
		return g.tarot(req)
	case "birth_chart":
		return g.birthChart(req)
	case "kundli_matching":
		return g.kundliMatching(req)
	case "dosha_check":
		return g.doshaCheck(req)
	case "life_prediction", "ask_astrologer":
		return g.astroGuidance(req)
	default:
		return nil, fmt.Errorf("no content template for intent %q", req.Intent)
	}
}

// daySeed hashes the key together with today's date so generated content is
// stable within a day and rotates across days.
func (g *templateGenerator) daySeed(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(g.now().Format("2006-01-02")))
	_, _ = h.Write([]byte(strings.ToLower(key)))
	return h.Sum32()
}

func pick(seed uint32, options []string) string {
	return options[int(seed)%len(options)]
}

func (g *templateGenerator) horoscope(req Request) (*Result, error) {
	sign := req.Entities["astro_sign"]
	if sign == "" && req.Profile != nil {
		sign = req.Profile.DerivedAttributes["astro_sign"]
	}
	if sign == "" {
		return nil, fmt.Errorf("horoscope: sign required")
	}
	period := req.Entities["astro_period"]
	if period == "" {
		period = "daily"
	}

	seed := g.daySeed(sign + period)
	theme := pick(seed, []string{
		"communication and clarity",
		"finances and planning",
		"relationships and patience",
		"health and routine",
		"career momentum",
		"learning and travel",
	})
	tone := pick(seed>>3, []string{
		"The day favors steady effort over bold moves.",
		"An unexpected conversation brings useful perspective.",
		"Trust your first instinct on a pending decision.",
		"A small adjustment to routine pays off quickly.",
	})
	lucky := int(seed%9) + 1

	text := fmt.Sprintf("%s %s horoscope for %s: the focus is on %s. %s Lucky number: %d.",
		titleWord(period), "✨", titleWord(sign), theme, tone, lucky)
	return &Result{
		Text: text,
		Data: map[string]string{"sign": sign, "period": period},
	}, nil
}

func (g *templateGenerator) panchang(req Request) (*Result, error) {
	date := req.Entities["date"]
	if date == "" {
		date = g.now().Format("02 Jan 2006")
	}
	seed := g.daySeed("panchang" + date)
	tithi := pick(seed, []string{"Pratipada", "Dwitiya", "Tritiya", "Chaturthi", "Panchami", "Shashthi", "Saptami", "Ashtami", "Navami", "Dashami", "Ekadashi", "Dwadashi", "Trayodashi", "Chaturdashi", "Purnima"})
	nakshatra := pick(seed>>4, []string{"Ashwini", "Bharani", "Krittika", "Rohini", "Mrigashira", "Ardra", "Punarvasu", "Pushya", "Ashlesha", "Magha"})
	yoga := pick(seed>>8, []string{"Vishkambha", "Priti", "Ayushman", "Saubhagya", "Shobhana", "Atiganda"})

	text := fmt.Sprintf("Panchang for %s:\nTithi: %s\nNakshatra: %s\nYoga: %s\nSunrise: 06:12, Sunset: 18:41",
		date, tithi, nakshatra, yoga)
	return &Result{Text: text, Data: map[string]string{"date": date, "tithi": tithi}}, nil
}

func (g *templateGenerator) numerology(req Request) (*Result, error) {
	name := req.Entities["name"]
	if name == "" && req.Profile != nil {
		name = req.Profile.Name
	}
	if name == "" {
		return &Result{Text: "Share your full name and I will work out your numerology profile."}, nil
	}
	num := digitRoot(letterSum(name))
	traits := map[int]string{
		1: "leadership and independence",
		2: "diplomacy and partnership",
		3: "creativity and expression",
		4: "discipline and foundations",
		5: "freedom and adaptability",
		6: "care and responsibility",
		7: "analysis and introspection",
		8: "ambition and material success",
		9: "compassion and completion",
	}
	text := fmt.Sprintf("Numerology for %s: your destiny number is %d, which points to %s.", name, num, traits[num])
	return &Result{Text: text, Data: map[string]string{"number": fmt.Sprintf("%d", num)}}, nil
}

func (g *templateGenerator) tarot(req Request) (*Result, error) {
	key := "tarot"
	if req.Profile != nil {
		key += req.Profile.ExternalID
	}
	seed := g.daySeed(key)
	card := pick(seed, []string{
		"The Fool", "The Magician", "The High Priestess", "The Empress", "The Emperor",
		"The Lovers", "The Chariot", "Strength", "The Hermit", "Wheel of Fortune",
		"Justice", "The Star", "The Moon", "The Sun", "The World",
	})
	reading := pick(seed>>5, []string{
		"a fresh start is closer than it appears",
		"hold your ground, the situation will turn",
		"an answer arrives through quiet reflection",
		"what you give now returns multiplied",
	})
	return &Result{
		Text: fmt.Sprintf("Your card is %s: %s.", card, reading),
		Data: map[string]string{"card": card},
	}, nil
}

func (g *templateGenerator) birthChart(req Request) (*Result, error) {
	p := req.Profile
	if p == nil || p.BirthDate == "" || p.BirthTime == "" || p.BirthPlace == "" {
		return nil, fmt.Errorf("birth chart: birth details required")
	}
	sign := p.DerivedAttributes["astro_sign"]
	if sign == "" {
		sign = "your sun sign"
	}
	text := fmt.Sprintf("Birth chart for %s, born %s at %s in %s:\nSun sign: %s\nAscendant and planetary positions are computed from your birth time. Ask about any house for details.",
		firstNonEmptyStr(p.Name, "you"), p.BirthDate, p.BirthTime, p.BirthPlace, titleWord(sign))
	return &Result{Text: text}, nil
}

func (g *templateGenerator) kundliMatching(req Request) (*Result, error) {
	seed := g.daySeed("kundli" + req.Entities["partner_name"])
	score := 18 + int(seed%18)
	text := fmt.Sprintf("Kundli matching score: %d/36 gunas. %s", score,
		pick(seed>>4, []string{
			"A strong match on temperament and values.",
			"Good compatibility; discuss finances openly.",
			"Workable match with attention to communication.",
		}))
	return &Result{Text: text, Data: map[string]string{"score": fmt.Sprintf("%d", score)}}, nil
}

func (g *templateGenerator) doshaCheck(req Request) (*Result, error) {
	p := req.Profile
	if p == nil || p.BirthDate == "" {
		return nil, fmt.Errorf("dosha check: birth details required")
	}
	seed := g.daySeed("dosha" + p.BirthDate + p.BirthTime)
	if seed%3 == 0 {
		return &Result{Text: "Mangal dosha is present in your chart. Remedies are available; ask for details."}, nil
	}
	return &Result{Text: "No significant dosha found in your chart."}, nil
}

func (g *templateGenerator) astroGuidance(req Request) (*Result, error) {
	seed := g.daySeed("guidance" + req.Entities["question"])
	text := pick(seed, []string{
		"The planetary alignment suggests patience this week; a decision made after Thursday lands better.",
		"Jupiter's position favors new beginnings. Start what you have been postponing.",
		"Saturn asks for discipline right now. Consistency will matter more than speed.",
		"Venus brings harmony to relationships; an honest conversation resolves the tension.",
	})
	return &Result{Text: text}, nil
}

func titleWord(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func firstNonEmptyStr(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func letterSum(name string) int {
	sum := 0
	for _, r := range strings.ToLower(name) {
		if r >= 'a' && r <= 'z' {
			sum += int(r-'a')%9 + 1
		}
	}
	return sum
}

func digitRoot(n int) int {
	if n <= 0 {
		return 0
	}
	return (n-1)%9 + 1
}
