package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/session"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

// NodeFallback is the shared terminal node every failure path converges on.
const NodeFallback = "fallback"

// NodeChat handles anything no domain claimed.
const NodeChat = "chat"

// State is the immutable snapshot a node receives. Nodes communicate only
// through returned deltas; they never mutate the snapshot.
type State struct {
	Identity types.Identity
	Query    string
	Locale   string
	Intent   string
	Domain   string
	Entities map[string]string
	Profile  types.UserProfile
	Contexts map[string]*types.ConversationContext
}

// Delta is a node's contribution to the execution outcome. Next selects the
// following node; an empty Next terminates unless ShouldFallback routes to
// the fallback node.
type Delta struct {
	ResponseText   string
	MediaURL       string
	StructuredData map[string]string
	Next           string
	ShouldFallback bool
	Err            error
	ProfileWrite   *session.ProfileDelta
	ContextWrites  []session.ContextDelta
}

// Node is a named unit of the routing graph.
type Node interface {
	Name() string
	Run(ctx context.Context, st State) Delta
}

// Handler is the boundary to external domain logic. Handlers are pure with
// respect to the engine: they cannot touch the session store directly, only
// request writes through the returned delta.
type Handler interface {
	Handle(ctx context.Context, st State) (Delta, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, st State) (Delta, error)

func (f HandlerFunc) Handle(ctx context.Context, st State) (Delta, error) {
	return f(ctx, st)
}

// Routes is the static routing table, built once at startup and injected.
// It is never mutated at runtime.
type Routes struct {
	Entry map[string]string
	Nodes map[string]Node
}

func (r Routes) validate() error {
	if _, ok := r.Nodes[NodeFallback]; !ok {
		return fmt.Errorf("routing table has no %s node", NodeFallback)
	}
	if _, ok := r.Nodes[NodeChat]; !ok {
		return fmt.Errorf("routing table has no %s node", NodeChat)
	}
	for domain, entry := range r.Entry {
		if _, ok := r.Nodes[entry]; !ok {
			return fmt.Errorf("domain %s routes to unknown node %s", domain, entry)
		}
	}
	return nil
}

// Outcome is the merged result of one execution.
type Outcome struct {
	Response      types.Response
	ProfileWrite  *session.ProfileDelta
	ContextWrites []session.ContextDelta
}

// Executor walks the routing table for one query. Execution always
// terminates: each node is visited at most once and a visit budget forces the
// fallback transition even against a broken routing table.
type Executor struct {
	routes         Routes
	log            *logger.Logger
	handlerTimeout time.Duration
	visitBudget    int
}

func NewExecutor(routes Routes, baseLog *logger.Logger, handlerTimeout time.Duration, visitBudget int) (*Executor, error) {
	if err := routes.validate(); err != nil {
		return nil, err
	}
	if visitBudget <= 0 {
		visitBudget = 10
	}
	if handlerTimeout <= 0 {
		handlerTimeout = 30 * time.Second
	}
	return &Executor{
		routes:         routes,
		log:            baseLog.With("service", "GraphExecutor"),
		handlerTimeout: handlerTimeout,
		visitBudget:    visitBudget,
	}, nil
}

// Execute routes a classified query from its domain entry node to a terminal
// response. No node failure ever aborts the request; failures transition to
// fallback, which always succeeds.
func (e *Executor) Execute(ctx context.Context, st State) Outcome {
	nodeName, ok := e.routes.Entry[st.Domain]
	if !ok {
		nodeName = NodeChat
	}

	out := Outcome{}
	visited := map[string]bool{}
	visits := 0

	for {
		if nodeName == "" {
			break
		}
		node, ok := e.routes.Nodes[nodeName]
		if !ok {
			e.log.Error("Route points at unknown node", "node", nodeName, "identity", st.Identity.Key(), "intent", st.Intent)
			nodeName = e.forceFallback(visited, &out)
			continue
		}
		if visited[nodeName] || visits >= e.visitBudget {
			// Engine fault: either a routing cycle or a runaway chain.
			e.log.Error("Node visit budget exhausted, forcing fallback",
				"node", nodeName, "visits", visits, "identity", st.Identity.Key(), "intent", st.Intent)
			nodeName = e.forceFallback(visited, &out)
			continue
		}
		visited[nodeName] = true
		visits++

		delta, failed := e.runNode(ctx, node, st)
		if failed {
			e.log.Warn("Node failed, routing to fallback",
				"node", nodeName, "identity", st.Identity.Key(), "intent", st.Intent, "error", delta.Err)
			nodeName = e.forceFallback(visited, &out)
			continue
		}

		mergeDelta(&out, delta)

		if delta.Next != "" {
			nodeName = delta.Next
			continue
		}
		if delta.ShouldFallback && nodeName != NodeFallback {
			out.Response.ShouldFallback = true
			nodeName = e.forceFallback(visited, &out)
			continue
		}
		break
	}

	if out.Response.Text == "" {
		// Fallback must always succeed; this is the last-resort copy if even
		// the fallback node produced nothing.
		out.Response.Text = fallbackMessage(st.Locale)
		out.Response.ShouldFallback = true
	}
	out.Response.Intent = st.Intent
	return out
}

// forceFallback re-arms the fallback node even if it was already visited and
// discards pending state writes from the failed path.
func (e *Executor) forceFallback(visited map[string]bool, out *Outcome) string {
	out.Response.ShouldFallback = true
	if visited[NodeFallback] {
		return ""
	}
	return NodeFallback
}

// runNode invokes a node with a bounded timeout and panic containment. A
// timeout is treated identically to any other handler failure. Writes from a
// failed node are never surfaced: the delta is discarded wholesale.
func (e *Executor) runNode(ctx context.Context, node Node, st State) (Delta, bool) {
	runCtx, cancel := context.WithTimeout(ctx, e.handlerTimeout)
	defer cancel()

	done := make(chan Delta, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("Node panic", "node", node.Name(), "identity", st.Identity.Key(), "panic", r)
				done <- Delta{Err: fmt.Errorf("panic in node %s", node.Name())}
			}
		}()
		done <- node.Run(runCtx, st)
	}()

	select {
	case delta := <-done:
		if delta.Err != nil {
			return delta, true
		}
		return delta, false
	case <-runCtx.Done():
		return Delta{Err: fmt.Errorf("node %s: %w", node.Name(), runCtx.Err())}, true
	}
}

// mergeDelta folds a successful node's delta into the outcome. Response
// fields are last-writer-wins; requested writes accumulate and are applied by
// the caller after execution, preserving per-request ordering.
func mergeDelta(out *Outcome, delta Delta) {
	if delta.ResponseText != "" {
		out.Response.Text = delta.ResponseText
	}
	if delta.MediaURL != "" {
		out.Response.MediaURL = delta.MediaURL
	}
	if len(delta.StructuredData) > 0 {
		out.Response.StructuredData = delta.StructuredData
	}
	if delta.ShouldFallback {
		out.Response.ShouldFallback = true
	}
	if delta.ProfileWrite != nil {
		if out.ProfileWrite == nil {
			out.ProfileWrite = &session.ProfileDelta{}
		}
		mergeProfileDelta(out.ProfileWrite, delta.ProfileWrite)
	}
	out.ContextWrites = append(out.ContextWrites, delta.ContextWrites...)
}

func mergeProfileDelta(dst, src *session.ProfileDelta) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.BirthDate != "" {
		dst.BirthDate = src.BirthDate
	}
	if src.BirthTime != "" {
		dst.BirthTime = src.BirthTime
	}
	if src.BirthPlace != "" {
		dst.BirthPlace = src.BirthPlace
	}
	if src.Locale != "" {
		dst.Locale = src.Locale
	}
	if src.NotificationOptIn != nil {
		dst.NotificationOptIn = src.NotificationOptIn
	}
	if len(src.DerivedAttributes) > 0 {
		if dst.DerivedAttributes == nil {
			dst.DerivedAttributes = map[string]string{}
		}
		for k, v := range src.DerivedAttributes {
			dst.DerivedAttributes[k] = v
		}
	}
}
