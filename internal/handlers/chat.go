package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ohgrt/ohgrt-backend/internal/clients/redis"
	"github.com/ohgrt/ohgrt-backend/internal/engine"
	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/middleware"
	"github.com/ohgrt/ohgrt-backend/internal/normalizer"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

// ChatHandler serves the mobile (authenticated) and web (anonymous session)
// channels.
type ChatHandler struct {
	log    *logger.Logger
	engine *engine.Engine
	rdb    redis.Client
}

func NewChatHandler(baseLog *logger.Logger, eng *engine.Engine, rdb redis.Client) *ChatHandler {
	return &ChatHandler{
		log:    baseLog.With("Handler", "ChatHandler"),
		engine: eng,
		rdb:    rdb,
	}
}

// MobileChat handles POST /api/chat; the identity comes from the JWT subject.
func (ch *ChatHandler) MobileChat(c *gin.Context) {
	externalID := c.GetString(middleware.ContextKeyExternalID)
	if externalID == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var req struct {
		Text   string `json:"text"`
		Locale string `json:"locale"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := ch.engine.Process(c.Request.Context(), types.ChannelMobile, normalizer.RawMessage{
		ExternalID: externalID,
		Text:       req.Text,
		Locale:     req.Locale,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// WebChat handles POST /web/chat. An empty session id mints a new one, which
// the client keeps for the rest of the conversation.
func (ch *ChatHandler) WebChat(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
		Locale    string `json:"locale"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	resp, err := ch.engine.Process(c.Request.Context(), types.ChannelWeb, normalizer.RawMessage{
		ExternalID: req.SessionID,
		Text:       req.Text,
		Locale:     req.Locale,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": req.SessionID, "response": resp})
}

// WebInbox drains proactive deliveries queued for a web session.
func (ch *ChatHandler) WebInbox(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}
	if ch.rdb == nil {
		c.JSON(http.StatusOK, gin.H{"items": []redis.InboxItem{}})
		return
	}
	items, err := ch.rdb.ReadInbox(c.Request.Context(), sessionID, 50)
	if err != nil {
		ch.log.Warn("Inbox read failed", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "inbox unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
