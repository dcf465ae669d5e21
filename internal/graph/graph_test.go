package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/session"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

func testState(domain, intent string) State {
	return State{
		Identity: types.Identity{Channel: types.ChannelMessaging, ExternalID: "+911234567890"},
		Query:    "test query",
		Locale:   "en",
		Intent:   intent,
		Domain:   domain,
		Entities: map[string]string{},
		Contexts: map[string]*types.ConversationContext{},
	}
}

func newTestExecutor(t *testing.T, routes Routes) *Executor {
	t.Helper()
	e, err := NewExecutor(routes, logger.NewNop(), 200*time.Millisecond, 10)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return e
}

func baseNodes() map[string]Node {
	return map[string]Node{
		NodeFallback: newFallbackNode(),
		NodeChat:     newChatNode(nil),
	}
}

func TestExecuteFallsBackOnNodeError(t *testing.T) {
	nodes := baseNodes()
	nodes["boom"] = NewNode("boom", func(ctx context.Context, st State) Delta {
		return Delta{Err: errors.New("handler exploded")}
	})
	e := newTestExecutor(t, Routes{
		Entry: map[string]string{"astrology": "boom"},
		Nodes: nodes,
	})

	out := e.Execute(context.Background(), testState("astrology", "get_horoscope"))
	if !out.Response.ShouldFallback {
		t.Fatalf("expected fallback response, got %+v", out.Response)
	}
	if out.Response.Text == "" {
		t.Fatal("fallback produced empty text")
	}
}

func TestExecuteFallsBackOnPanic(t *testing.T) {
	nodes := baseNodes()
	nodes["panicky"] = NewNode("panicky", func(ctx context.Context, st State) Delta {
		panic("nil map write")
	})
	e := newTestExecutor(t, Routes{
		Entry: map[string]string{"utility": "panicky"},
		Nodes: nodes,
	})

	out := e.Execute(context.Background(), testState("utility", "weather"))
	if !out.Response.ShouldFallback || out.Response.Text == "" {
		t.Fatalf("panic did not fall back cleanly: %+v", out.Response)
	}
}

func TestExecuteFallsBackOnTimeout(t *testing.T) {
	nodes := baseNodes()
	nodes["slow"] = NewNode("slow", func(ctx context.Context, st State) Delta {
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
		return Delta{ResponseText: "too late"}
	})
	e := newTestExecutor(t, Routes{
		Entry: map[string]string{"travel": "slow"},
		Nodes: nodes,
	})

	start := time.Now()
	out := e.Execute(context.Background(), testState("travel", "pnr_status"))
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("execution did not respect the handler timeout, took %s", elapsed)
	}
	if !out.Response.ShouldFallback {
		t.Fatalf("timeout did not fall back: %+v", out.Response)
	}
	if out.Response.Text == "too late" {
		t.Fatal("timed-out node's response surfaced")
	}
}

func TestExecuteTerminatesOnRoutingCycle(t *testing.T) {
	nodes := baseNodes()
	nodes["a"] = NewNode("a", func(ctx context.Context, st State) Delta { return Delta{Next: "b"} })
	nodes["b"] = NewNode("b", func(ctx context.Context, st State) Delta { return Delta{Next: "a"} })
	e := newTestExecutor(t, Routes{
		Entry: map[string]string{"astrology": "a"},
		Nodes: nodes,
	})

	done := make(chan Outcome, 1)
	go func() { done <- e.Execute(context.Background(), testState("astrology", "birth_chart")) }()

	select {
	case out := <-done:
		if !out.Response.ShouldFallback || out.Response.Text == "" {
			t.Fatalf("cycle did not force fallback: %+v", out.Response)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("execution did not terminate on routing cycle")
	}
}

func TestExecuteUnknownNodeAndUnknownDomain(t *testing.T) {
	e := newTestExecutor(t, Routes{
		Entry: map[string]string{"astrology": NodeChat},
		Nodes: baseNodes(),
	})

	// Unmapped domain lands in chat, not in an error.
	out := e.Execute(context.Background(), testState("no_such_domain", "chat"))
	if out.Response.Text == "" {
		t.Fatalf("unknown domain produced empty response: %+v", out.Response)
	}
}

func TestExecuteDiscardsWritesFromFailedNode(t *testing.T) {
	nodes := baseNodes()
	nodes["writer"] = NewNode("writer", func(ctx context.Context, st State) Delta {
		return Delta{
			Err:          errors.New("late failure"),
			ProfileWrite: &session.ProfileDelta{Name: "should not persist"},
		}
	})
	e := newTestExecutor(t, Routes{
		Entry: map[string]string{"astrology": "writer"},
		Nodes: nodes,
	})

	out := e.Execute(context.Background(), testState("astrology", "birth_chart"))
	if out.ProfileWrite != nil {
		t.Fatalf("failed node's profile write surfaced: %+v", out.ProfileWrite)
	}
	if !out.Response.ShouldFallback {
		t.Fatalf("failed node did not fall back: %+v", out.Response)
	}
}

func TestExecuteMergesDeltasAcrossChain(t *testing.T) {
	nodes := baseNodes()
	nodes["first"] = NewNode("first", func(ctx context.Context, st State) Delta {
		return Delta{ResponseText: "partial", Next: "second"}
	})
	nodes["second"] = NewNode("second", func(ctx context.Context, st State) Delta {
		return Delta{ResponseText: "final answer", StructuredData: map[string]string{"k": "v"}}
	})
	e := newTestExecutor(t, Routes{
		Entry: map[string]string{"utility": "first"},
		Nodes: nodes,
	})

	out := e.Execute(context.Background(), testState("utility", "weather"))
	if out.Response.Text != "final answer" {
		t.Fatalf("last writer should win: got %q", out.Response.Text)
	}
	if out.Response.StructuredData["k"] != "v" {
		t.Fatalf("structured data lost: %+v", out.Response.StructuredData)
	}
	if out.Response.ShouldFallback {
		t.Fatal("clean chain marked as fallback")
	}
}

func TestHelpIntentGetsCapabilityMessage(t *testing.T) {
	e := newTestExecutor(t, Routes{
		Entry: map[string]string{"conversation": NodeChat},
		Nodes: baseNodes(),
	})

	st := testState("conversation", "help")
	out := e.Execute(context.Background(), st)
	if out.Response.Text != helpMessage("en") {
		t.Fatalf("help text=%q, want capability message", out.Response.Text)
	}
}

func TestBuildRoutesCoversEveryHandlerIntent(t *testing.T) {
	routes := BuildRoutes(RouteDeps{})

	for _, intent := range handlerIntents {
		if _, ok := routes.Nodes[intent]; !ok {
			t.Fatalf("no node registered for intent %q", intent)
		}
	}
	for domain, entry := range routes.Entry {
		if _, ok := routes.Nodes[entry]; !ok {
			t.Fatalf("entry for domain %q points at missing node %q", domain, entry)
		}
	}
}

func TestUnboundIntentAnswersWithoutFallback(t *testing.T) {
	// A deployment with no travel or utility handlers wired still answers
	// those queries with the capability message.
	e := newTestExecutor(t, BuildRoutes(RouteDeps{}))

	cases := []struct {
		domain, intent string
	}{
		{"travel", "pnr_status"},
		{"utility", "weather"},
		{"game", "word_game"},
	}
	for _, tc := range cases {
		out := e.Execute(context.Background(), testState(tc.domain, tc.intent))
		if out.Response.ShouldFallback {
			t.Fatalf("%s/%s: unbound intent reported as fallback", tc.domain, tc.intent)
		}
		if out.Response.Text != unavailableMessage("en") {
			t.Fatalf("%s/%s: text=%q, want unavailable message", tc.domain, tc.intent, out.Response.Text)
		}
	}
}
