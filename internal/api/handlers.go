// Package api is the HTTP surface for clients: listing notifications,
// acknowledging them, and read-state bookkeeping. Delivery never goes
// through here.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NordCoder/Remindus/internal/domain/notification"
	"github.com/NordCoder/Remindus/internal/services/ack"
)

type Handlers struct {
	Store notification.Repo
	Ack   *ack.Handler
	Clock notification.Clock
	Log   *zap.Logger
}

type ackRequest struct {
	Action        string `json:"action"`
	SnoozeMinutes int    `json:"snooze_minutes"`
}

func (h *Handlers) acknowledge(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid_id", "notification id must be a UUID")
		return
	}
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_body", "malformed request body")
		return
	}

	res, err := h.Ack.Acknowledge(c.Request.Context(), id, currentUser(c), req.Action, req.SnoozeMinutes)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, notification.ErrNotFound):
		abortError(c, http.StatusNotFound, "not_found", "notification not found")
	case errors.Is(err, ack.ErrForbidden):
		abortError(c, http.StatusForbidden, "forbidden", "notification belongs to another user")
	case errors.Is(err, ack.ErrInvalidAction):
		abortError(c, http.StatusUnprocessableEntity, "invalid_action", "action not available for this notification")
	case errors.Is(err, ack.ErrTerminal):
		abortError(c, http.StatusConflict, "already_finalized", "notification already finalized")
	default:
		h.Log.Error("acknowledge failed", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func (h *Handlers) list(c *gin.Context) {
	f := notification.ListFilter{
		UserID: currentUser(c),
		Kind:   notification.Kind(c.Query("type")),
		Status: notification.Status(c.Query("status")),
	}
	f.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	f.UnreadOnly = c.Query("unread_only") == "true"

	items, total, err := h.Store.List(c.Request.Context(), f)
	if err != nil {
		h.Log.Error("list failed", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	if items == nil {
		items = []*notification.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": items,
		"total":         total,
		"page":          f.Page,
		"limit":         f.Limit,
	})
}

func (h *Handlers) unreadCount(c *gin.Context) {
	count, err := h.Store.UnreadCount(c.Request.Context(), currentUser(c))
	if err != nil {
		h.Log.Error("unread count failed", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

func (h *Handlers) markRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid_id", "notification id must be a UUID")
		return
	}
	err = h.Store.MarkRead(c.Request.Context(), id, currentUser(c))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "notification marked as read"})
	case errors.Is(err, notification.ErrNotFound):
		abortError(c, http.StatusNotFound, "not_found", "notification not found")
	default:
		h.Log.Error("mark read failed", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func (h *Handlers) markAllRead(c *gin.Context) {
	n, err := h.Store.MarkAllRead(c.Request.Context(), currentUser(c))
	if err != nil {
		h.Log.Error("mark all read failed", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "all notifications marked as read", "updated": n})
}

func (h *Handlers) stats(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 {
		days = 30
	}
	since := h.Clock.Now().Add(-time.Duration(days) * 24 * time.Hour)

	buckets, err := h.Store.Stats(c.Request.Context(), currentUser(c), since)
	if err != nil {
		h.Log.Error("stats failed", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	byStatus := map[notification.Status]int64{}
	byKind := map[notification.Kind]int64{}
	var total int64
	for _, b := range buckets {
		byStatus[b.Status] += b.Count
		byKind[b.Kind] += b.Count
		total += b.Count
	}
	c.JSON(http.StatusOK, gin.H{
		"total":     total,
		"by_status": byStatus,
		"by_type":   byKind,
		"days":      days,
	})
}
