package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/types"
	"github.com/ohgrt/ohgrt-backend/internal/utils"
)

// PushConfig drives the mobile push gateway.
type PushConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func PushConfigFromEnv(log *logger.Logger) PushConfig {
	timeoutSec := utils.GetEnvAsInt("PUSH_TIMEOUT_SECONDS", 15, log)
	return PushConfig{
		BaseURL: strings.TrimSpace(os.Getenv("PUSH_BASE_URL")),
		APIKey:  strings.TrimSpace(os.Getenv("PUSH_API_KEY")),
		Timeout: time.Duration(timeoutSec) * time.Second,
	}
}

type pushAdapter struct {
	log        *logger.Logger
	cfg        PushConfig
	httpClient *http.Client
}

// NewPushAdapter sends notifications to mobile devices through a push
// gateway keyed by device token.
func NewPushAdapter(log *logger.Logger, cfg PushConfig) (Adapter, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing PUSH_BASE_URL")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing PUSH_API_KEY")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &pushAdapter{
		log:        log.With("client", "PushAdapter"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type pushPayload struct {
	DeviceToken string `json:"device_token"`
	Body        string `json:"body"`
	MediaURL    string `json:"media_url,omitempty"`
}

func (a *pushAdapter) Deliver(ctx context.Context, id types.Identity, content Content) error {
	if id.ExternalID == "" {
		return fmt.Errorf("push: device token required")
	}
	raw, err := json.Marshal(pushPayload{
		DeviceToken: id.ExternalID,
		Body:        content.Text,
		MediaURL:    content.MediaURL,
	})
	if err != nil {
		return err
	}

	endpoint := strings.TrimRight(a.cfg.BaseURL, "/") + "/v1/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("push send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
