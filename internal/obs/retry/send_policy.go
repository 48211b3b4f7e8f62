package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// SendPolicy is the transport-level policy channel integrations wrap one
// delivery attempt with. It smooths over blips on a single attempt; requeueing
// a failed notification as a whole is the retry coordinator's job, not this.
func SendPolicy(name string, log *zap.Logger) Policy {
	return Policy{
		Name:     name,
		Attempts: 2,
		Backoff:  ExpoJitter{Base: 300 * time.Millisecond, Max: 2 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("send attempt failed", zap.String("channel", name), zap.Int("attempt", i+1), zap.Error(err))
			}
		},
	}
}
