package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
)

// Client wraps the redis connection used for delivery dedupe guards and the
// web-channel inbox. Both features degrade gracefully when redis is absent,
// so callers treat a nil Client as "not configured".
type Client interface {
	// AcquireOnce sets a guard key if it does not exist yet. Returns true
	// when this caller won the guard.
	AcquireOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	PushInbox(ctx context.Context, externalID string, item InboxItem) error
	ReadInbox(ctx context.Context, externalID string, limit int) ([]InboxItem, error)
	Close() error
}

// InboxItem is one stored web-channel delivery, drained when the web client
// next polls.
type InboxItem struct {
	Text      string    `json:"text"`
	MediaURL  string    `json:"media_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type client struct {
	log         *logger.Logger
	rdb         *goredis.Client
	inboxPrefix string
	inboxCap    int64
}

// NewFromEnv connects using REDIS_ADDR. Returns (nil, nil) when REDIS_ADDR is
// unset so the app can run without redis.
func NewFromEnv(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    os.Getenv("REDIS_PASSWORD"),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &client{
		log:         log.With("client", "Redis"),
		rdb:         rdb,
		inboxPrefix: "inbox:",
		inboxCap:    50,
	}, nil
}

func (c *client) AcquireOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, fmt.Errorf("redis client not initialized")
	}
	ok, err := c.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (c *client) PushInbox(ctx context.Context, externalID string, item InboxItem) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("redis client not initialized")
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return err
	}
	key := c.inboxPrefix + externalID
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, c.inboxCap-1)
	pipe.Expire(ctx, key, 7*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis inbox push: %w", err)
	}
	return nil
}

func (c *client) ReadInbox(ctx context.Context, externalID string, limit int) ([]InboxItem, error) {
	if c == nil || c.rdb == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}
	if limit <= 0 {
		limit = int(c.inboxCap)
	}
	key := c.inboxPrefix + externalID
	rows, err := c.rdb.LRange(ctx, key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis inbox read: %w", err)
	}
	items := make([]InboxItem, 0, len(rows))
	for _, row := range rows {
		var it InboxItem
		if err := json.Unmarshal([]byte(row), &it); err != nil {
			c.log.Warn("bad inbox payload", "error", err)
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func (c *client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
