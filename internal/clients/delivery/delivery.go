package delivery

import (
	"context"
	"fmt"

	"github.com/ohgrt/ohgrt-backend/internal/types"
)

// Content is what the scheduler pushes out.
type Content struct {
	Text     string
	MediaURL string
}

// Adapter sends proactive content on one channel. Adapters are external
// collaborators and may fail; failures feed the scheduler's retry accounting.
type Adapter interface {
	Deliver(ctx context.Context, id types.Identity, content Content) error
}

// Registry resolves the adapter for an identity's channel.
type Registry struct {
	adapters map[types.Channel]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[types.Channel]Adapter{}}
}

func (r *Registry) Register(channel types.Channel, adapter Adapter) {
	r.adapters[channel] = adapter
}

func (r *Registry) Deliver(ctx context.Context, id types.Identity, content Content) error {
	adapter, ok := r.adapters[id.Channel]
	if !ok {
		return fmt.Errorf("no delivery adapter for channel %s", id.Channel)
	}
	return adapter.Deliver(ctx, id, content)
}
