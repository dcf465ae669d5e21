package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/ohgrt/ohgrt-backend/internal/clients/redis"
	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

type inboxAdapter struct {
	log *logger.Logger
	rdb redis.Client
	now func() time.Time
}

// NewInboxAdapter stores web-channel deliveries in the redis inbox so the
// web client can pick them up on its next poll.
func NewInboxAdapter(log *logger.Logger, rdb redis.Client) (Adapter, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &inboxAdapter{
		log: log.With("client", "InboxAdapter"),
		rdb: rdb,
		now: time.Now,
	}, nil
}

func (a *inboxAdapter) Deliver(ctx context.Context, id types.Identity, content Content) error {
	if id.ExternalID == "" {
		return fmt.Errorf("inbox: session id required")
	}
	return a.rdb.PushInbox(ctx, id.ExternalID, redis.InboxItem{
		Text:      content.Text,
		MediaURL:  content.MediaURL,
		CreatedAt: a.now(),
	})
}
