// Package ack processes user responses to delivered notifications and
// drives the acknowledged side of the notification lifecycle.
package ack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/NordCoder/Remindus/internal/domain/event"
	"github.com/NordCoder/Remindus/internal/domain/notification"
	"github.com/NordCoder/Remindus/internal/obs"
)

var (
	ErrForbidden     = errors.New("notification belongs to another user")
	ErrInvalidAction = errors.New("action not available for this notification")
	ErrTerminal      = errors.New("notification already finalized")
)

const (
	// DefaultSnoozeMinutes applies when a snooze request carries no duration.
	DefaultSnoozeMinutes = 10
	// MaxSnoozeMinutes bounds how far a snooze may push a reminder.
	MaxSnoozeMinutes = 24 * 60
)

var mAcks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ack_actions_total", Help: "Acknowledgment actions processed.",
}, []string{"action"})

// Echo pushes an acknowledgment confirmation back to the user's live
// connection. Optional; a nil Echo disables it.
type Echo interface {
	Publish(ctx context.Context, userID int64, payload any) error
}

type Handler struct {
	Store  notification.Repo
	Events event.Repo
	Clock  notification.Clock
	Log    *zap.Logger
	Echo   Echo
}

// Result is what the acknowledging client gets back.
type Result struct {
	Message        string     `json:"message"`
	AcknowledgedAt time.Time  `json:"acknowledged_at"`
	SnoozedUntil   *time.Time `json:"snoozed_until,omitempty"`
}

// Acknowledge applies one user action to a notification. Only advance
// reminders respond to actions (snooze schedules a follow-up, ready cancels
// the pending start reminder for the same event); every other kind is
// acknowledged generically.
func (h *Handler) Acknowledge(ctx context.Context, id uuid.UUID, userID int64, action string, snoozeMinutes int) (*Result, error) {
	n, err := h.Store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, ErrForbidden
	}
	if n.Status == notification.StatusAcknowledged || n.Status == notification.StatusCancelled {
		return nil, ErrTerminal
	}

	log := obs.WithTrace(ctx, h.Log).With(
		zap.String("notification_id", id.String()),
		zap.String("action", action),
	)

	now := h.Clock.Now()

	// Only advance reminders respond to actions; any other kind is
	// acknowledged as-is, whatever the client named.
	if n.Kind != notification.KindAdvanceReminder {
		if err := h.Store.MarkAcknowledged(ctx, id, now); err != nil {
			return nil, fmt.Errorf("mark acknowledged: %w", err)
		}
		mAcks.WithLabelValues("plain").Inc()
		h.echo(ctx, log, id, userID, action, now)
		return &Result{AcknowledgedAt: now, Message: "Notification acknowledged."}, nil
	}

	// The side-effecting actions additionally need to be offered by the
	// notification; dismissed or anything unrecognized degrades to a plain
	// acknowledgment.
	switch action {
	case notification.ActionConfirmed, notification.ActionSnooze, notification.ActionReady:
		if !n.AllowsAction(action) {
			return nil, ErrInvalidAction
		}
	}

	if err := h.Store.MarkAcknowledged(ctx, id, now); err != nil {
		return nil, fmt.Errorf("mark acknowledged: %w", err)
	}

	res := &Result{AcknowledgedAt: now}
	switch action {
	case notification.ActionSnooze:
		until, err := h.snooze(ctx, n, now, snoozeMinutes)
		if err != nil {
			return nil, err
		}
		res.SnoozedUntil = &until
		res.Message = fmt.Sprintf("Snoozed until %s.", until.UTC().Format("15:04"))
	case notification.ActionReady:
		cancelled, err := h.Store.CancelPendingStart(ctx, n.EventID, userID)
		if err != nil {
			return nil, fmt.Errorf("cancel start reminder: %w", err)
		}
		if cancelled {
			log.Info("start reminder cancelled by ready")
		}
		res.Message = fmt.Sprintf("Great, you're ready for %s.", h.eventTitle(ctx, n))
	case notification.ActionConfirmed:
		res.Message = fmt.Sprintf("Attendance confirmed for %s.", h.eventTitle(ctx, n))
	case notification.ActionDismissed:
		res.Message = "Notification dismissed."
	default:
		res.Message = "Notification acknowledged."
	}

	switch action {
	case notification.ActionConfirmed, notification.ActionSnooze,
		notification.ActionReady, notification.ActionDismissed:
		mAcks.WithLabelValues(action).Inc()
	default:
		mAcks.WithLabelValues("plain").Inc()
	}

	h.echo(ctx, log, id, userID, action, now)
	return res, nil
}

func (h *Handler) echo(ctx context.Context, log *zap.Logger, id uuid.UUID, userID int64, action string, at time.Time) {
	if h.Echo == nil {
		return
	}
	payload := map[string]any{
		"type":            "notification_acknowledged",
		"notification_id": id.String(),
		"action":          action,
		"acknowledged_at": at,
	}
	if err := h.Echo.Publish(ctx, userID, payload); err != nil {
		log.Warn("ack echo failed", zap.Error(err))
	}
}

// snooze enqueues a one-shot follow-up reminder inheriting the original's
// channels. The snooze counter rides along so clients can cap repeats.
func (h *Handler) snooze(ctx context.Context, n *notification.Notification, now time.Time, minutes int) (time.Time, error) {
	if minutes <= 0 {
		minutes = DefaultSnoozeMinutes
	}
	if minutes > MaxSnoozeMinutes {
		minutes = MaxSnoozeMinutes
	}
	until := now.Add(time.Duration(minutes) * time.Minute)

	follow := &notification.Notification{
		UserID:      n.UserID,
		EventID:     n.EventID,
		Kind:        notification.KindSnoozeReminder,
		ScheduledAt: until,
		Channels:    append([]notification.ChannelKind(nil), n.Channels...),
		Metadata: notification.Metadata{
			Title:         n.Metadata.Title,
			SnoozeCount:   n.Metadata.SnoozeCount + 1,
			OffsetMinutes: n.Metadata.OffsetMinutes,
		},
	}
	if err := h.Store.Create(ctx, follow); err != nil {
		return time.Time{}, fmt.Errorf("create snooze reminder: %w", err)
	}
	return until, nil
}

func (h *Handler) eventTitle(ctx context.Context, n *notification.Notification) string {
	if ev, err := h.Events.GetByID(ctx, n.EventID); err == nil && ev.Title != "" {
		return ev.Title
	}
	if n.Metadata.Title != "" {
		return n.Metadata.Title
	}
	return "your event"
}
