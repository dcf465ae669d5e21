package content

import (
	"context"

	"github.com/ohgrt/ohgrt-backend/internal/classifier"
	"github.com/ohgrt/ohgrt-backend/internal/graph"
)

// DefaultHandlers wraps the generator into graph handlers for the astrology
// intents it can serve. Travel and utility intents need external data
// providers and are left to deployment-specific wiring.
func DefaultHandlers(gen Generator) map[string]graph.Handler {
	wrap := func(intent string) graph.Handler {
		return graph.HandlerFunc(func(ctx context.Context, st graph.State) (graph.Delta, error) {
			res, err := gen.Generate(ctx, Request{
				Intent:   intent,
				Entities: st.Entities,
				Profile:  &st.Profile,
				Locale:   st.Locale,
			})
			if err != nil {
				return graph.Delta{}, err
			}
			return graph.Delta{
				ResponseText:   res.Text,
				MediaURL:       res.MediaURL,
				StructuredData: res.Data,
			}, nil
		})
	}

	handlers := map[string]graph.Handler{
		classifier.IntentBirthChart:     wrap(classifier.IntentBirthChart),
		classifier.IntentKundliMatching: wrap(classifier.IntentKundliMatching),
		classifier.IntentAskAstrologer:  wrap(classifier.IntentAskAstrologer),
		classifier.IntentNumerology:     wrap(classifier.IntentNumerology),
		classifier.IntentTarotReading:   wrap(classifier.IntentTarotReading),
		classifier.IntentLifePrediction: wrap(classifier.IntentLifePrediction),
		classifier.IntentGetPanchang:    wrap(classifier.IntentGetPanchang),
		classifier.IntentDoshaCheck:     wrap(classifier.IntentDoshaCheck),
	}

	// The horoscope handler asks for the sign instead of erroring when it is
	// neither in the query nor derivable from the profile.
	horoscope := wrap(classifier.IntentGetHoroscope)
	handlers[classifier.IntentGetHoroscope] = graph.HandlerFunc(func(ctx context.Context, st graph.State) (graph.Delta, error) {
		if st.Entities["astro_sign"] == "" && st.Profile.DerivedAttributes["astro_sign"] == "" {
			return graph.Delta{
				ResponseText: "Which zodiac sign should I read for? You can also share your birth date and I will work it out.",
			}, nil
		}
		return horoscope.Handle(ctx, st)
	})

	return handlers
}
