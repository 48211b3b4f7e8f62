// Package retention holds the lifecycle maintenance jobs: the retry
// coordinator that redelivers recently failed notifications and the sweeper
// that deletes terminal records past the retention window.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/NordCoder/Remindus/internal/domain/notification"
	"github.com/NordCoder/Remindus/internal/services/dispatch"
)

const (
	DefaultRetryWindow = time.Hour
	DefaultMaxPerRun   = 50
)

var (
	mRetried = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_notifications_total", Help: "Failed notifications picked up for retry.",
	}, []string{"result"})
	mSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retention_swept_total", Help: "Terminal notifications deleted by the sweeper.",
	})
)

// RetryCoordinator redelivers failed notifications whose retry budget is not
// exhausted. Failures older than Window are left alone; the sweeper owns
// them from there.
type RetryCoordinator struct {
	Store    notification.Repo
	Dispatch *dispatch.Dispatcher
	Clock    notification.Clock
	Log      *zap.Logger

	Window    time.Duration
	MaxPerRun int
}

// Tick requeues one batch of retryable notifications and redispatches them.
// Each requeue bumps the retry counter, so a notification that keeps failing
// drops out of the retryable set once the counter hits its cap.
func (r *RetryCoordinator) Tick(ctx context.Context) (int, error) {
	window := r.Window
	if window <= 0 {
		window = DefaultRetryWindow
	}
	limit := r.MaxPerRun
	if limit <= 0 {
		limit = DefaultMaxPerRun
	}

	ctx, span := otel.Tracer("retention.retry").Start(ctx, "retry.tick")
	defer span.End()

	oldest := r.Clock.Now().Add(-window)
	batch, err := r.Store.FetchRetryable(ctx, oldest, limit)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("fetch retryable: %w", err)
	}
	span.SetAttributes(attribute.Int("batch.fetched", len(batch)))

	retried := 0
	for _, n := range batch {
		if err := r.Store.Requeue(ctx, n.ID); err != nil {
			mRetried.WithLabelValues("error").Inc()
			r.Log.Error("requeue failed",
				zap.String("notification_id", n.ID.String()),
				zap.Error(err),
			)
			continue
		}
		n.Status = notification.StatusPending
		n.RetryCount++
		if err := r.Dispatch.Dispatch(ctx, n); err != nil {
			mRetried.WithLabelValues("error").Inc()
			r.Log.Error("retry dispatch failed",
				zap.String("notification_id", n.ID.String()),
				zap.Error(err),
			)
			continue
		}
		mRetried.WithLabelValues("ok").Inc()
		retried++
	}
	return retried, nil
}
