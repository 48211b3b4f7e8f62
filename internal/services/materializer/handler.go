// Package materializer turns an event plus user preferences into concrete
// notification rows. It is the authoritative scheduling path: one advance
// reminder per preference offset plus one start reminder, minus anything in
// the past or inside quiet hours.
package materializer

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/NordCoder/Remindus/internal/domain/event"
	"github.com/NordCoder/Remindus/internal/domain/notification"
	"github.com/NordCoder/Remindus/internal/domain/preference"
)

var (
	mMaterialized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "materializer_rows_created_total", Help: "Notification rows written.",
	})
	mSkippedQuiet = promauto.NewCounter(prometheus.CounterOpts{
		Name: "materializer_skipped_quiet_total", Help: "Reminder times discarded by quiet hours.",
	})
	mSkippedPast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "materializer_skipped_past_total", Help: "Reminder times discarded as already past.",
	})
)

type Handler struct {
	Prefs preference.Resolver
	Store notification.Repo
	Clock notification.Clock
	Log   *zap.Logger
}

// MaterializeForEvent writes the notification rows for every given user and
// returns how many were created. No delivery happens here. When allowActions
// is set, advance reminders carry the user-action set in their metadata.
func (h *Handler) MaterializeForEvent(ctx context.Context, ev *event.Event, userIDs []int64, allowActions bool) (int, error) {
	now := h.Clock.Now()
	loc := ev.Location()
	created := 0

	for _, userID := range userIDs {
		prefs, err := h.Prefs.GetPreferences(ctx, userID)
		if err != nil {
			return created, fmt.Errorf("resolve preferences for user %d: %w", userID, err)
		}

		for _, offset := range prefs.AdvanceOffsets {
			at := ev.StartAt.Add(-time.Duration(offset) * time.Minute)
			if !h.schedulable(at, now, prefs.Quiet, loc) {
				continue
			}
			n := &notification.Notification{
				UserID:      userID,
				EventID:     ev.ID,
				Kind:        notification.KindAdvanceReminder,
				ScheduledAt: at,
				Channels:    prefs.Channels,
				Metadata: notification.Metadata{
					Title:         ev.Title,
					OffsetMinutes: offset,
				},
				CreatedAt: now,
			}
			if allowActions {
				n.Metadata.Actions = []string{
					notification.ActionConfirmed,
					notification.ActionSnooze,
					notification.ActionReady,
				}
			}
			if err := h.Store.Create(ctx, n); err != nil {
				return created, fmt.Errorf("create advance reminder: %w", err)
			}
			created++
			mMaterialized.Inc()
		}

		if h.schedulable(ev.StartAt, now, prefs.Quiet, loc) {
			n := &notification.Notification{
				UserID:      userID,
				EventID:     ev.ID,
				Kind:        notification.KindStartReminder,
				ScheduledAt: ev.StartAt,
				Channels:    prefs.Channels,
				Metadata:    notification.Metadata{Title: ev.Title},
				CreatedAt:   now,
			}
			if err := h.Store.Create(ctx, n); err != nil {
				return created, fmt.Errorf("create start reminder: %w", err)
			}
			created++
			mMaterialized.Inc()
		}
	}

	h.Log.Debug("materialized event",
		zap.Int64("event_id", ev.ID),
		zap.Int("users", len(userIDs)),
		zap.Int("created", created),
	)
	return created, nil
}

func (h *Handler) schedulable(at, now time.Time, quiet preference.QuietHours, loc *time.Location) bool {
	if at.Before(now) {
		mSkippedPast.Inc()
		return false
	}
	if quiet.Contains(at.In(loc)) {
		mSkippedQuiet.Inc()
		return false
	}
	return true
}

// CancelEventNotifications backs the event-cancellation flow: every pending
// row for the event is cancelled, and each affected user gets one immediate
// cancellation notice.
func (h *Handler) CancelEventNotifications(ctx context.Context, ev *event.Event, userIDs []int64) (int64, error) {
	cancelled, err := h.Store.CancelPendingForEvent(ctx, ev.ID)
	if err != nil {
		return 0, fmt.Errorf("cancel pending rows: %w", err)
	}

	now := h.Clock.Now()
	for _, userID := range userIDs {
		prefs, err := h.Prefs.GetPreferences(ctx, userID)
		if err != nil {
			return cancelled, fmt.Errorf("resolve preferences for user %d: %w", userID, err)
		}
		n := &notification.Notification{
			UserID:      userID,
			EventID:     ev.ID,
			Kind:        notification.KindCancellation,
			ScheduledAt: now,
			Channels:    prefs.Channels,
			Metadata:    notification.Metadata{Title: ev.Title},
			CreatedAt:   now,
		}
		if err := h.Store.Create(ctx, n); err != nil {
			return cancelled, fmt.Errorf("create cancellation notice: %w", err)
		}
	}

	h.Log.Info("event notifications cancelled",
		zap.Int64("event_id", ev.ID),
		zap.Int64("cancelled", cancelled),
		zap.Int("notices", len(userIDs)),
	)
	return cancelled, nil
}
