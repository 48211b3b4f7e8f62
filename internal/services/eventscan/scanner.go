// Package eventscan is the reconciliation pass: any upcoming event that
// somehow has no notification rows (a missed hook, a crash between event
// creation and materialization) gets them backfilled here.
package eventscan

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/NordCoder/Remindus/internal/dedup"
	"github.com/NordCoder/Remindus/internal/domain/event"
	"github.com/NordCoder/Remindus/internal/domain/notification"
	"github.com/NordCoder/Remindus/internal/services/materializer"
)

const DefaultHorizon = 24 * time.Hour

var mBackfilled = promauto.NewCounter(prometheus.CounterOpts{
	Name: "eventscan_backfilled_total", Help: "Notifications created by the reconciliation scan.",
})

type Scanner struct {
	Events event.Repo
	Store  notification.Repo
	Mat    *materializer.Handler
	Guard  *dedup.Guard
	Clock  notification.Clock
	Log    *zap.Logger

	Horizon time.Duration
}

// Scan walks events starting within the horizon and materializes rows for
// participants that have none. The guard suppresses re-materializing a pair
// this process already handled, so a scan racing the materializer's own
// write cannot double up.
func (s *Scanner) Scan(ctx context.Context) (int, error) {
	horizon := s.Horizon
	if horizon <= 0 {
		horizon = DefaultHorizon
	}

	ctx, span := otel.Tracer("eventscan").Start(ctx, "eventscan.scan")
	defer span.End()

	now := s.Clock.Now()
	events, err := s.Events.ListStartingBetween(ctx, now, now.Add(horizon))
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("list upcoming events: %w", err)
	}
	span.SetAttributes(attribute.Int("events", len(events)))

	backfilled := 0
	for _, ev := range events {
		participants, err := s.Events.ParticipantIDs(ctx, ev.ID)
		if err != nil {
			s.Log.Error("list participants failed", zap.Int64("event_id", ev.ID), zap.Error(err))
			continue
		}

		var missing []int64
		for _, uid := range participants {
			key := dedup.Key{EventID: ev.ID, UserID: uid}
			if s.Guard.Seen(key) {
				continue
			}
			has, err := s.Store.HasAnyForEvent(ctx, ev.ID, uid)
			if err != nil {
				s.Log.Error("existence check failed",
					zap.Int64("event_id", ev.ID),
					zap.Int64("user_id", uid),
					zap.Error(err),
				)
				continue
			}
			if has {
				s.Guard.Mark(key)
				continue
			}
			missing = append(missing, uid)
		}
		if len(missing) == 0 {
			continue
		}

		created, err := s.Mat.MaterializeForEvent(ctx, ev, missing, true)
		if err != nil {
			s.Log.Error("backfill failed", zap.Int64("event_id", ev.ID), zap.Error(err))
			continue
		}
		for _, uid := range missing {
			s.Guard.Mark(dedup.Key{EventID: ev.ID, UserID: uid})
		}
		if created > 0 {
			s.Log.Info("backfilled notifications",
				zap.Int64("event_id", ev.ID),
				zap.Int("created", created),
			)
		}
		backfilled += created
	}

	mBackfilled.Add(float64(backfilled))
	span.SetAttributes(attribute.Int("backfilled", backfilled))
	return backfilled, nil
}
