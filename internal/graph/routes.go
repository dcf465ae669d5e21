package graph

import (
	"regexp"

	"github.com/ohgrt/ohgrt-backend/internal/classifier"
)

var relativeReminder = regexp.MustCompile(`in\s+(\d+)\s+(minute|minutes|hour|hours|day|days)`)

// handlerIntents are the intents served by injected external handlers rather
// than built-in nodes.
var handlerIntents = []string{
	classifier.IntentGetHoroscope,
	classifier.IntentBirthChart,
	classifier.IntentKundliMatching,
	classifier.IntentAskAstrologer,
	classifier.IntentNumerology,
	classifier.IntentTarotReading,
	classifier.IntentLifePrediction,
	classifier.IntentGetPanchang,
	classifier.IntentDoshaCheck,
	classifier.IntentPNRStatus,
	classifier.IntentTrainStatus,
	classifier.IntentTrainJourney,
	classifier.IntentMetroTicket,
	classifier.IntentWeather,
	classifier.IntentGetNews,
	classifier.IntentImage,
	classifier.IntentLocalSearch,
	classifier.IntentFactCheck,
	classifier.IntentDBQuery,
	classifier.IntentWordGame,
}

// RouteDeps is everything BuildRoutes needs: the external domain handlers by
// intent and the engine-side subscription/reminder surfaces.
type RouteDeps struct {
	Handlers  map[string]Handler
	Chat      Handler
	Subs      SubscriptionManager
	Reminders ReminderScheduler
}

// BuildRoutes constructs the static routing table consulted by the executor.
// Built once at startup; never mutated afterwards.
func BuildRoutes(deps RouteDeps) Routes {
	nodes := map[string]Node{
		NodeFallback:     newFallbackNode(),
		NodeChat:         newChatNode(deps.Chat),
		"astro_router":   newAstroRouterNode(),
		"birth_details":  newBirthDetailsNode(),
		"travel_router":  newTravelRouterNode(),
		"utility_router": newUtilityRouterNode(),
		"subscribe":      newSubscribeNode(deps.Subs),
		"unsubscribe":    newUnsubscribeNode(deps.Subs),
		"reminder":       newReminderNode(deps.Reminders),
	}

	// Intents with no injected handler still get a node so the routers never
	// emit an edge into nothing; a deployment that leaves a domain unbound
	// answers with the capability message instead of a fallback.
	for _, intent := range handlerIntents {
		handler, ok := deps.Handlers[intent]
		if !ok {
			nodes[intent] = newUnboundIntentNode(intent)
			continue
		}
		nodes[intent] = &handlerNode{name: intent, handler: handler}
	}

	return Routes{
		Entry: map[string]string{
			classifier.DomainAstrology:    "astro_router",
			classifier.DomainTravel:       "travel_router",
			classifier.DomainUtility:      "utility_router",
			classifier.DomainGame:         classifier.IntentWordGame,
			classifier.DomainConversation: NodeChat,
		},
		Nodes: nodes,
	}
}
