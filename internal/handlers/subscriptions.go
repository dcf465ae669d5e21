package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/middleware"
	"github.com/ohgrt/ohgrt-backend/internal/repos"
	"github.com/ohgrt/ohgrt-backend/internal/scheduler"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

// SubscriptionHandler is the authenticated management surface for recurring
// deliveries and pending reminders.
type SubscriptionHandler struct {
	log       *logger.Logger
	scheduler *scheduler.Service
	subs      repos.SubscriptionRepo
	tasks     repos.ScheduledTaskRepo
}

func NewSubscriptionHandler(baseLog *logger.Logger, sched *scheduler.Service, subs repos.SubscriptionRepo, tasks repos.ScheduledTaskRepo) *SubscriptionHandler {
	return &SubscriptionHandler{
		log:       baseLog.With("Handler", "SubscriptionHandler"),
		scheduler: sched,
		subs:      subs,
		tasks:     tasks,
	}
}

func (sh *SubscriptionHandler) identity(c *gin.Context) (types.Identity, bool) {
	externalID := c.GetString(middleware.ContextKeyExternalID)
	if externalID == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return types.Identity{}, false
	}
	return types.Identity{Channel: types.ChannelMobile, ExternalID: externalID}, true
}

func (sh *SubscriptionHandler) List(c *gin.Context) {
	id, ok := sh.identity(c)
	if !ok {
		return
	}
	subs, err := sh.subs.ListByIdentity(c.Request.Context(), nil, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list subscriptions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

func (sh *SubscriptionHandler) Create(c *gin.Context) {
	id, ok := sh.identity(c)
	if !ok {
		return
	}
	var req struct {
		Kind     string            `json:"kind"`
		Schedule string            `json:"schedule"`
		Params   map[string]string `json:"params"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Schedule == "" {
		req.Schedule = "07:00"
	}
	if err := sh.scheduler.Subscribe(c.Request.Context(), id, req.Kind, req.Schedule, req.Params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "true"})
}

func (sh *SubscriptionHandler) Delete(c *gin.Context) {
	id, ok := sh.identity(c)
	if !ok {
		return
	}
	removed, err := sh.scheduler.Unsubscribe(c.Request.Context(), id, c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not unsubscribe"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "true"})
}

func (sh *SubscriptionHandler) Pause(c *gin.Context) {
	id, ok := sh.identity(c)
	if !ok {
		return
	}
	paused, err := sh.scheduler.Pause(c.Request.Context(), id, c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not pause subscription"})
		return
	}
	if !paused {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "true"})
}

func (sh *SubscriptionHandler) Resume(c *gin.Context) {
	id, ok := sh.identity(c)
	if !ok {
		return
	}
	resumed, err := sh.scheduler.Resume(c.Request.Context(), id, c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resume subscription"})
		return
	}
	if !resumed {
		c.JSON(http.StatusNotFound, gin.H{"error": "no paused subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "true"})
}

func (sh *SubscriptionHandler) ListReminders(c *gin.Context) {
	id, ok := sh.identity(c)
	if !ok {
		return
	}
	tasks, err := sh.tasks.ListPendingByIdentity(c.Request.Context(), nil, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list reminders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminders": tasks})
}

func (sh *SubscriptionHandler) CancelReminder(c *gin.Context) {
	id, ok := sh.identity(c)
	if !ok {
		return
	}
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reminder id"})
		return
	}
	task, err := sh.tasks.GetByID(c.Request.Context(), nil, taskID)
	if err != nil || task == nil || task.Identity() != id {
		c.JSON(http.StatusNotFound, gin.H{"error": "reminder not found"})
		return
	}
	if err := sh.scheduler.CancelReminder(c.Request.Context(), taskID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not cancel reminder"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "true"})
}
