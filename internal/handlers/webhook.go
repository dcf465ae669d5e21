package handlers

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ohgrt/ohgrt-backend/internal/engine"
	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/normalizer"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

// WebhookHandler is the messaging-channel intake. The provider calls GET
// once to verify the endpoint and POSTs every inbound message afterwards.
type WebhookHandler struct {
	log         *logger.Logger
	engine      *engine.Engine
	verifyToken string
}

func NewWebhookHandler(baseLog *logger.Logger, eng *engine.Engine) *WebhookHandler {
	return &WebhookHandler{
		log:         baseLog.With("Handler", "WebhookHandler"),
		engine:      eng,
		verifyToken: strings.TrimSpace(os.Getenv("WEBHOOK_VERIFY_TOKEN")),
	}
}

func (wh *WebhookHandler) Verify(c *gin.Context) {
	if wh.verifyToken == "" || c.Query("hub.verify_token") != wh.verifyToken {
		c.JSON(http.StatusForbidden, gin.H{"error": "verification failed"})
		return
	}
	c.String(http.StatusOK, c.Query("hub.challenge"))
}

func (wh *WebhookHandler) Receive(c *gin.Context) {
	if wh.verifyToken != "" && c.GetHeader("X-Verify-Token") != wh.verifyToken {
		c.JSON(http.StatusForbidden, gin.H{"error": "verification failed"})
		return
	}

	var req struct {
		From        string   `json:"from"`
		Text        string   `json:"text"`
		Locale      string   `json:"locale"`
		Attachments []string `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := wh.engine.Process(c.Request.Context(), types.ChannelMessaging, normalizer.RawMessage{
		ExternalID:  req.From,
		Text:        req.Text,
		Locale:      req.Locale,
		Attachments: req.Attachments,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}
