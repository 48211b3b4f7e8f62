package dispatch

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/Remindus/internal/domain/notification"
)

// Ticker fetches notifications whose scheduled time has arrived and fans
// them out to the dispatcher over a bounded worker pool.
type Ticker struct {
	Store    notification.Repo
	Dispatch *Dispatcher
	Clock    notification.Clock
	Log      *zap.Logger

	BatchLimit int
	Workers    int
}

// Tick processes one due batch. Returns the number fetched and the number
// whose dispatch errored (storage errors, not channel failures).
func (t *Ticker) Tick(ctx context.Context) (int, int, error) {
	limit := t.BatchLimit
	if limit <= 0 {
		limit = 100
	}
	workers := t.Workers
	if workers <= 0 {
		workers = 8
	}

	tr := otel.Tracer("dispatch.ticker")
	ctxTick, span := tr.Start(ctx, "dispatch.tick",
		trace.WithAttributes(attribute.Int("batch.limit", limit)),
	)
	defer span.End()

	due, err := t.Store.FetchDue(ctxTick, t.Clock.Now(), limit)
	if err != nil {
		span.RecordError(err)
		return 0, 0, fmt.Errorf("fetch due: %w", err)
	}
	span.SetAttributes(attribute.Int("batch.fetched", len(due)))
	if len(due) == 0 {
		return 0, 0, nil
	}

	jobs := make(chan *notification.Notification)
	var wg sync.WaitGroup
	var mu sync.Mutex
	errs := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				_, sp := tr.Start(ctxTick, "dispatch.one",
					trace.WithAttributes(
						attribute.String("notification.id", n.ID.String()),
						attribute.String("notification.kind", string(n.Kind)),
					),
				)
				if dErr := t.Dispatch.Dispatch(ctxTick, n); dErr != nil {
					sp.RecordError(dErr)
					t.Log.Error("dispatch failed",
						zap.String("notification_id", n.ID.String()),
						zap.Error(dErr),
					)
					mu.Lock()
					errs++
					mu.Unlock()
				}
				sp.End()
			}
		}()
	}

	for _, n := range due {
		select {
		case jobs <- n:
		case <-ctxTick.Done():
		}
	}
	close(jobs)
	wg.Wait()

	span.SetAttributes(attribute.Int("batch.errors", errs))
	return len(due), errs, nil
}
