package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ohgrt/ohgrt-backend/internal/classifier"
	"github.com/ohgrt/ohgrt-backend/internal/session"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

// ContextAwaitingBirthDetails marks a multi-turn birth detail collection in
// flight. ContextAwaitingReminderTime does the same for reminders.
const (
	ContextAwaitingBirthDetails = "awaiting_birth_details"
	ContextAwaitingReminderTime = "awaiting_reminder_time"
)

// SubscriptionManager is the engine-side surface for conversational opt-in
// and opt-out. Implemented by the scheduler service.
type SubscriptionManager interface {
	Subscribe(ctx context.Context, id types.Identity, kind, schedule string, params map[string]string) error
	Unsubscribe(ctx context.Context, id types.Identity, kind string) (bool, error)
}

// ReminderScheduler creates one-shot reminder tasks.
type ReminderScheduler interface {
	CreateReminder(ctx context.Context, id types.Identity, message string, dueAt time.Time) error
}

// funcNode adapts a function to a Node.
type funcNode struct {
	name string
	run  func(ctx context.Context, st State) Delta
}

func (n *funcNode) Name() string { return n.name }

func (n *funcNode) Run(ctx context.Context, st State) Delta { return n.run(ctx, st) }

// NewNode wraps a function as a named Node.
func NewNode(name string, run func(ctx context.Context, st State) Delta) Node {
	return &funcNode{name: name, run: run}
}

// handlerNode bridges an external domain handler into the graph.
type handlerNode struct {
	name    string
	handler Handler
}

func (n *handlerNode) Name() string { return n.name }

func (n *handlerNode) Run(ctx context.Context, st State) Delta {
	delta, err := n.handler.Handle(ctx, st)
	if err != nil {
		delta.Err = err
	}
	return delta
}

// newUnboundIntentNode stands in for a handler intent the deployment did not
// wire. Answering with the capability message keeps an unbound domain from
// registering as an engine fault.
func newUnboundIntentNode(intent string) Node {
	return NewNode(intent, func(ctx context.Context, st State) Delta {
		return Delta{ResponseText: unavailableMessage(st.Locale)}
	})
}

func newFallbackNode() Node {
	// Pure and side-effect free so it can never fail.
	return NewNode(NodeFallback, func(ctx context.Context, st State) Delta {
		return Delta{ResponseText: fallbackMessage(st.Locale), ShouldFallback: true}
	})
}

func newChatNode(chatHandler Handler) Node {
	return NewNode(NodeChat, func(ctx context.Context, st State) Delta {
		if st.Intent == classifier.IntentHelp {
			return Delta{ResponseText: helpMessage(st.Locale)}
		}
		if chatHandler != nil {
			delta, err := chatHandler.Handle(ctx, st)
			if err == nil && delta.ResponseText != "" {
				return delta
			}
			// Conversational handler trouble is not worth a fallback; the
			// static capability message is a fine answer.
		}
		return Delta{ResponseText: chatMessage(st.Locale)}
	})
}

// newAstroRouterNode is the astrology domain entry. It dispatches to the
// intent's handler node, gating birth-data intents behind the detail
// collection flow.
func newAstroRouterNode() Node {
	return NewNode("astro_router", func(ctx context.Context, st State) Delta {
		switch st.Intent {
		case classifier.IntentSubscribe:
			return Delta{Next: "subscribe"}
		case classifier.IntentUnsubscribe:
			return Delta{Next: "unsubscribe"}
		case classifier.IntentBirthChart, classifier.IntentLifePrediction, classifier.IntentKundliMatching:
			return Delta{Next: "birth_details"}
		case classifier.IntentGetHoroscope, classifier.IntentAskAstrologer, classifier.IntentNumerology,
			classifier.IntentTarotReading, classifier.IntentGetPanchang, classifier.IntentDoshaCheck:
			return Delta{Next: st.Intent}
		default:
			return Delta{Next: classifier.IntentAskAstrologer}
		}
	})
}

// newBirthDetailsNode asks only for the birth fields that are still missing,
// merging entities from this turn into the profile write. When everything is
// present it forwards to the intent's handler.
func newBirthDetailsNode() Node {
	return NewNode("birth_details", func(ctx context.Context, st State) Delta {
		birthDate := firstNonEmpty(st.Entities["birth_date"], st.Profile.BirthDate)
		birthTime := firstNonEmpty(st.Entities["birth_time"], st.Profile.BirthTime)
		birthPlace := firstNonEmpty(st.Entities["birth_place"], st.Profile.BirthPlace)

		var write *session.ProfileDelta
		if st.Entities["birth_date"] != "" || st.Entities["birth_time"] != "" || st.Entities["birth_place"] != "" {
			write = &session.ProfileDelta{
				BirthDate:  st.Entities["birth_date"],
				BirthTime:  st.Entities["birth_time"],
				BirthPlace: st.Entities["birth_place"],
			}
		}

		var missing []string
		if birthDate == "" {
			missing = append(missing, "birth date (DD-MM-YYYY)")
		}
		if birthTime == "" {
			missing = append(missing, "birth time")
		}
		if birthPlace == "" {
			missing = append(missing, "birth place")
		}

		if len(missing) > 0 {
			return Delta{
				ResponseText: fmt.Sprintf("To prepare that I still need your %s. Please share it.", strings.Join(missing, ", ")),
				ProfileWrite: write,
				ContextWrites: []session.ContextDelta{{
					Type:    ContextAwaitingBirthDetails,
					Payload: types.JSONMap{"intent": st.Intent},
				}},
			}
		}

		return Delta{
			Next:         st.Intent,
			ProfileWrite: write,
			ContextWrites: []session.ContextDelta{{
				Type:  ContextAwaitingBirthDetails,
				Clear: true,
			}},
		}
	})
}

// newTravelRouterNode mirrors the production travel routing: classified
// intent first, query keywords as the tie-break, train status as the default.
func newTravelRouterNode() Node {
	return NewNode("travel_router", func(ctx context.Context, st State) Delta {
		switch st.Intent {
		case classifier.IntentPNRStatus, classifier.IntentTrainStatus,
			classifier.IntentTrainJourney, classifier.IntentMetroTicket:
			return Delta{Next: st.Intent}
		}
		query := strings.ToLower(st.Query)
		switch {
		case strings.Contains(query, "pnr"):
			return Delta{Next: classifier.IntentPNRStatus}
		case strings.Contains(query, "from") && strings.Contains(query, "to"):
			return Delta{Next: classifier.IntentTrainJourney}
		case strings.Contains(query, "metro"):
			return Delta{Next: classifier.IntentMetroTicket}
		default:
			return Delta{Next: classifier.IntentTrainStatus}
		}
	})
}

func newUtilityRouterNode() Node {
	return NewNode("utility_router", func(ctx context.Context, st State) Delta {
		switch st.Intent {
		case classifier.IntentWeather, classifier.IntentGetNews, classifier.IntentImage,
			classifier.IntentLocalSearch, classifier.IntentFactCheck, classifier.IntentDBQuery:
			return Delta{Next: st.Intent}
		case classifier.IntentSetReminder:
			return Delta{Next: "reminder"}
		}
		query := strings.ToLower(st.Query)
		switch {
		case strings.Contains(query, "weather") || strings.Contains(query, "temperature"):
			return Delta{Next: classifier.IntentWeather}
		case strings.Contains(query, "news") || strings.Contains(query, "headlines"):
			return Delta{Next: classifier.IntentGetNews}
		case strings.Contains(query, "remind"):
			return Delta{Next: "reminder"}
		default:
			return Delta{Next: classifier.IntentDBQuery}
		}
	})
}

// newSubscribeNode opts an identity into recurring delivery. It needs a
// zodiac sign for the daily digest and asks for one when it has none.
func newSubscribeNode(subs SubscriptionManager) Node {
	return NewNode("subscribe", func(ctx context.Context, st State) Delta {
		kind := types.SubscriptionDailyDigest
		if strings.Contains(strings.ToLower(st.Query), "transit") {
			kind = types.SubscriptionTransitAlert
		}

		sign := firstNonEmpty(st.Entities["astro_sign"], st.Profile.DerivedAttributes["astro_sign"])
		if kind == types.SubscriptionDailyDigest && sign == "" {
			return Delta{ResponseText: "Which zodiac sign should I send the daily horoscope for?"}
		}

		schedule := "07:00"
		if t := st.Entities["preferred_time"]; t != "" {
			schedule = t
		}

		params := map[string]string{"astro_sign": sign}
		if err := subs.Subscribe(ctx, st.Identity, kind, schedule, params); err != nil {
			return Delta{Err: fmt.Errorf("subscribe %s: %w", kind, err)}
		}

		optIn := true
		return Delta{
			ResponseText: fmt.Sprintf("Done! You are subscribed to %s at %s. Reply \"stop daily\" anytime to unsubscribe.", strings.ReplaceAll(kind, "_", " "), schedule),
			ProfileWrite: &session.ProfileDelta{
				NotificationOptIn: &optIn,
				DerivedAttributes: types.JSONMap{"astro_sign": sign},
			},
		}
	})
}

func newUnsubscribeNode(subs SubscriptionManager) Node {
	return NewNode("unsubscribe", func(ctx context.Context, st State) Delta {
		kind := types.SubscriptionDailyDigest
		if strings.Contains(strings.ToLower(st.Query), "transit") {
			kind = types.SubscriptionTransitAlert
		}

		removed, err := subs.Unsubscribe(ctx, st.Identity, kind)
		if err != nil {
			return Delta{Err: fmt.Errorf("unsubscribe %s: %w", kind, err)}
		}
		if !removed {
			return Delta{ResponseText: "You don't have an active subscription of that kind."}
		}
		return Delta{ResponseText: "You are unsubscribed. You can subscribe again anytime."}
	})
}

// newReminderNode creates a one-shot scheduled task from a parsed time
// phrase, asking for the time when the query lacks one.
func newReminderNode(reminders ReminderScheduler) Node {
	return NewNode("reminder", func(ctx context.Context, st State) Delta {
		message := st.Entities["reminder_message"]
		if message == "" {
			message = st.Query
		}

		dueAt, ok := parseReminderTime(st.Entities["reminder_time"], time.Now().UTC())
		if !ok {
			return Delta{
				ResponseText: "When should I remind you? Try \"in 10 minutes\" or \"in 2 hours\".",
				ContextWrites: []session.ContextDelta{{
					Type:    ContextAwaitingReminderTime,
					Payload: types.JSONMap{"reminder_message": message},
				}},
			}
		}

		if err := reminders.CreateReminder(ctx, st.Identity, message, dueAt); err != nil {
			return Delta{Err: fmt.Errorf("create reminder: %w", err)}
		}
		return Delta{
			ResponseText: fmt.Sprintf("Reminder set for %s.", dueAt.Format("15:04 MST, Jan 2")),
			ContextWrites: []session.ContextDelta{{
				Type:  ContextAwaitingReminderTime,
				Clear: true,
			}},
		}
	})
}

// parseReminderTime understands the relative phrases the entity extractor
// produces ("in 5 minutes", "in 2 hours", "in 1 day").
func parseReminderTime(phrase string, now time.Time) (time.Time, bool) {
	m := relativeReminder.FindStringSubmatch(strings.ToLower(phrase))
	if m == nil {
		return time.Time{}, false
	}
	n := 0
	fmt.Sscanf(m[1], "%d", &n)
	if n <= 0 {
		return time.Time{}, false
	}
	switch {
	case strings.HasPrefix(m[2], "minute"):
		return now.Add(time.Duration(n) * time.Minute), true
	case strings.HasPrefix(m[2], "hour"):
		return now.Add(time.Duration(n) * time.Hour), true
	default:
		return now.Add(time.Duration(n) * 24 * time.Hour), true
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
