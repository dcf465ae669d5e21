package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ohgrt/ohgrt-backend/internal/classifier"
	"github.com/ohgrt/ohgrt-backend/internal/graph"
	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/normalizer"
	"github.com/ohgrt/ohgrt-backend/internal/ratelimit"
	"github.com/ohgrt/ohgrt-backend/internal/session"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

// Engine is the inbound pipeline: normalize, admit, load session, classify,
// execute the routing graph, persist writes, respond. One call per message.
type Engine struct {
	log        *logger.Logger
	limiter    *ratelimit.Limiter
	store      *session.Store
	classifier *classifier.Classifier
	executor   *graph.Executor
}

func New(
	baseLog *logger.Logger,
	limiter *ratelimit.Limiter,
	store *session.Store,
	cls *classifier.Classifier,
	executor *graph.Executor,
) (*Engine, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("logger required")
	}
	if limiter == nil || store == nil || cls == nil || executor == nil {
		return nil, fmt.Errorf("limiter, store, classifier and executor required")
	}
	return &Engine{
		log:        baseLog.With("service", "Engine"),
		limiter:    limiter,
		store:      store,
		classifier: cls,
		executor:   executor,
	}, nil
}

// Process handles one raw inbound message end to end. The only error it
// returns is a normalization failure; everything past that boundary degrades
// to a response instead of an error.
func (e *Engine) Process(ctx context.Context, channel types.Channel, raw normalizer.RawMessage) (types.Response, error) {
	msg, err := normalizer.Normalize(channel, raw)
	if err != nil {
		return types.Response{}, err
	}
	id := msg.Identity()

	admitted, info := e.limiter.Admit(ctx, id)
	if !admitted {
		e.log.Info("Message throttled", "identity", id.Key(), "reason", info.Reason, "retry_after", info.RetryAfter)
		return throttledResponse(msg.Locale, info), nil
	}

	snap := e.store.Load(ctx, id)
	result := e.classifier.Classify(msg.Text, msg.Locale)
	result = e.applyPendingContexts(snap, msg.Text, result)

	outcome := e.executor.Execute(ctx, graph.State{
		Identity: id,
		Query:    msg.Text,
		Locale:   msg.Locale,
		Intent:   result.Intent,
		Domain:   result.Domain,
		Entities: result.Entities,
		Profile:  snap.Profile,
		Contexts: snap.Contexts,
	})

	// Persistence trouble must not cost the user their answer.
	if err := e.store.Save(ctx, id, outcome.ProfileWrite, outcome.ContextWrites); err != nil {
		e.log.Warn("Session save failed, response still sent", "identity", id.Key(), "error", err)
	}

	return outcome.Response, nil
}

// applyPendingContexts reroutes a conversational turn into the flow that is
// waiting on it. A user answering "14-02-1995" to a birth-date question must
// land back in the astrology flow, not in chat.
func (e *Engine) applyPendingContexts(snap session.Snapshot, text string, result classifier.Result) classifier.Result {
	if result.Domain != classifier.DomainConversation || result.Intent == classifier.IntentHelp {
		return result
	}

	if cc, ok := snap.Contexts[graph.ContextAwaitingBirthDetails]; ok {
		intent := cc.Payload["intent"]
		if intent == "" {
			intent = classifier.IntentBirthChart
		}
		return classifier.Result{
			Intent:     intent,
			Domain:     classifier.DomainAstrology,
			Entities:   classifier.ExtractFor(intent, text),
			Confidence: result.Confidence,
		}
	}

	if cc, ok := snap.Contexts[graph.ContextAwaitingReminderTime]; ok {
		entities := classifier.ExtractFor(classifier.IntentSetReminder, text)
		if entities["reminder_message"] == "" {
			entities["reminder_message"] = cc.Payload["reminder_message"]
		}
		return classifier.Result{
			Intent:     classifier.IntentSetReminder,
			Domain:     classifier.DomainUtility,
			Entities:   entities,
			Confidence: result.Confidence,
		}
	}

	return result
}

func throttledResponse(locale string, info ratelimit.Info) types.Response {
	retry := info.RetryAfter.Round(time.Second)
	text := "You're sending messages a bit fast. Please wait a moment and try again."
	if locale == "hi" {
		text = "आप बहुत तेज़ी से संदेश भेज रहे हैं। कृपया थोड़ी देर रुक कर फिर से कोशिश करें।"
	}
	if retry > 0 {
		text = fmt.Sprintf("%s (retry in %s)", text, retry)
	}
	return types.Response{
		Text:           text,
		Intent:         "rate_limited",
		StructuredData: map[string]string{"reason": info.Reason},
	}
}
