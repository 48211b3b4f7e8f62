package retention

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/NordCoder/Remindus/internal/domain/notification"
)

const DefaultRetention = 30 * 24 * time.Hour

// Sweeper deletes acknowledged and cancelled notifications, plus failed ones
// whose retries ran out, once they age past Retention.
type Sweeper struct {
	Store notification.Repo
	Clock notification.Clock
	Log   *zap.Logger

	Retention time.Duration
}

func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	retention := s.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}

	ctx, span := otel.Tracer("retention.sweep").Start(ctx, "retention.sweep")
	defer span.End()

	cutoff := s.Clock.Now().Add(-retention)
	deleted, dist, err := s.Store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("sweep terminal: %w", err)
	}
	mSwept.Add(float64(deleted))
	span.SetAttributes(attribute.Int64("swept", deleted))

	if deleted > 0 {
		fields := []zap.Field{
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		}
		for _, b := range dist {
			fields = append(fields, zap.Int64(fmt.Sprintf("status_%s", b.Status), b.Count))
		}
		s.Log.Info("retention sweep", fields...)
	}
	return deleted, nil
}
