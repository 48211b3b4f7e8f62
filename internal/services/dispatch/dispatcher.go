// Package dispatch attempts delivery of due notifications across their
// configured channels and records the outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/NordCoder/Remindus/internal/channel"
	"github.com/NordCoder/Remindus/internal/domain/notification"
	"github.com/NordCoder/Remindus/internal/domain/user"
	"github.com/NordCoder/Remindus/internal/obs"
)

// DefaultSendTimeout bounds one channel attempt so a hung integration never
// stalls the tick.
const DefaultSendTimeout = 10 * time.Second

var (
	mAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_channel_attempts_total", Help: "Channel send attempts.",
	}, []string{"channel", "result"})
	mDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_notifications_total", Help: "Notifications dispatched, by final status.",
	}, []string{"status"})
)

type Dispatcher struct {
	Store    notification.Repo
	Users    user.Repo
	Registry *channel.Registry
	Clock    notification.Clock
	Log      *zap.Logger

	// SendTimeout overrides DefaultSendTimeout when positive.
	SendTimeout time.Duration
}

// Dispatch attempts delivery of one notification over every enabled channel.
// Any single success marks the record sent; only a full sweep of failures
// marks it failed. Per-channel failures never abort the remaining channels,
// and no retry happens here.
func (d *Dispatcher) Dispatch(ctx context.Context, n *notification.Notification) error {
	if n.Status != notification.StatusPending {
		return nil
	}
	if len(n.Channels) == 0 {
		now := d.Clock.Now()
		mDispatched.WithLabelValues(string(notification.StatusFailed)).Inc()
		return d.Store.MarkFailed(ctx, n.ID, now, "no channels enabled", nil)
	}

	rcpt := d.recipient(ctx, n)

	receipt := make(notification.DeliveryReceipt, len(n.Channels))
	anyOK := false
	var reasons []string

	for _, kind := range n.Channels {
		out := d.attempt(ctx, kind, n, rcpt)
		receipt[kind] = notification.ChannelOutcome{
			Success: out.Success,
			Detail:  out.Detail,
			At:      d.Clock.Now(),
		}
		if out.Success {
			anyOK = true
			mAttempts.WithLabelValues(string(kind), "ok").Inc()
		} else {
			reasons = append(reasons, fmt.Sprintf("%s: %s", kind, out.Detail))
			mAttempts.WithLabelValues(string(kind), "error").Inc()
		}
	}

	now := d.Clock.Now()
	if anyOK {
		mDispatched.WithLabelValues(string(notification.StatusSent)).Inc()
		if err := d.Store.MarkSent(ctx, n.ID, now, receipt); err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
		return nil
	}

	mDispatched.WithLabelValues(string(notification.StatusFailed)).Inc()
	reason := strings.Join(reasons, "; ")
	obs.WithTrace(ctx, d.Log).Warn("all channels failed",
		zap.String("notification_id", n.ID.String()),
		zap.String("reason", reason),
	)
	if err := d.Store.MarkFailed(ctx, n.ID, now, reason, receipt); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// attempt runs one channel send under its own timeout. The send runs in a
// goroutine so an integration that ignores its context cannot stall the
// caller past the deadline.
func (d *Dispatcher) attempt(ctx context.Context, kind notification.ChannelKind, n *notification.Notification, rcpt channel.Recipient) channel.Outcome {
	sender, found := d.Registry.Get(kind)
	if !found {
		return channel.Outcome{Success: false, Detail: "channel not configured"}
	}

	timeout := d.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan channel.Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- channel.Outcome{Success: false, Detail: fmt.Sprintf("channel panic: %v", r)}
			}
		}()
		done <- sender.Send(ctx, n, rcpt)
	}()

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		return channel.Outcome{Success: false, Detail: "send timed out"}
	}
}

// recipient resolves addressing once per notification. A lookup failure is
// not fatal: channels that need no address (realtime) still get their try.
func (d *Dispatcher) recipient(ctx context.Context, n *notification.Notification) channel.Recipient {
	rcpt := channel.Recipient{UserID: n.UserID}
	u, err := d.Users.GetByID(ctx, n.UserID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			d.Log.Warn("user lookup failed", zap.Int64("user_id", n.UserID), zap.Error(err))
		}
		return rcpt
	}
	rcpt.Email = u.Email
	rcpt.FCMToken = u.FCMToken
	return rcpt
}
