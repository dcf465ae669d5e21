package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/types"
	"github.com/ohgrt/ohgrt-backend/internal/utils"
)

// MessagingConfig drives the messaging-channel send API (a Twilio-style form
// POST endpoint).
type MessagingConfig struct {
	BaseURL     string
	AccountSID  string
	AuthToken   string
	DefaultFrom string
	Timeout     time.Duration
	MaxRetries  int
}

func MessagingConfigFromEnv(log *logger.Logger) MessagingConfig {
	timeoutSec := utils.GetEnvAsInt("MESSAGING_TIMEOUT_SECONDS", 30, log)
	return MessagingConfig{
		BaseURL:     strings.TrimSpace(os.Getenv("MESSAGING_BASE_URL")),
		AccountSID:  strings.TrimSpace(os.Getenv("MESSAGING_ACCOUNT_SID")),
		AuthToken:   strings.TrimSpace(os.Getenv("MESSAGING_AUTH_TOKEN")),
		DefaultFrom: strings.TrimSpace(os.Getenv("MESSAGING_FROM_NUMBER")),
		Timeout:     time.Duration(timeoutSec) * time.Second,
		MaxRetries:  utils.GetEnvAsInt("MESSAGING_MAX_RETRIES", 2, log),
	}
}

type messagingAdapter struct {
	log        *logger.Logger
	cfg        MessagingConfig
	httpClient *http.Client
}

// NewMessagingAdapter sends outbound messages on the messaging channel.
func NewMessagingAdapter(log *logger.Logger, cfg MessagingConfig) (Adapter, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing MESSAGING_BASE_URL")
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("missing MESSAGING_ACCOUNT_SID or MESSAGING_AUTH_TOKEN")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &messagingAdapter{
		log:        log.With("client", "MessagingAdapter"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (a *messagingAdapter) Deliver(ctx context.Context, id types.Identity, content Content) error {
	if id.ExternalID == "" {
		return fmt.Errorf("messaging: recipient required")
	}
	if content.Text == "" && content.MediaURL == "" {
		return fmt.Errorf("messaging: content required")
	}

	form := url.Values{}
	form.Set("To", id.ExternalID)
	form.Set("From", a.cfg.DefaultFrom)
	if content.Text != "" {
		form.Set("Body", content.Text)
	}
	if content.MediaURL != "" {
		form.Set("MediaUrl", content.MediaURL)
	}

	endpoint := strings.TrimRight(a.cfg.BaseURL, "/") + "/Accounts/" + a.cfg.AccountSID + "/Messages.json"

	var lastErr error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		lastErr = a.post(ctx, endpoint, form)
		if lastErr == nil {
			return nil
		}
		a.log.Warn("Messaging send attempt failed", "to", id.ExternalID, "attempt", attempt+1, "error", lastErr)
	}
	return lastErr
}

func (a *messagingAdapter) post(ctx context.Context, endpoint string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(a.cfg.AccountSID, a.cfg.AuthToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("messaging send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
