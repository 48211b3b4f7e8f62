package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/Remindus/internal/channel"
	"github.com/NordCoder/Remindus/internal/domain/notification"
	"github.com/NordCoder/Remindus/internal/domain/user"
	"github.com/NordCoder/Remindus/internal/repository/memory"
	"github.com/NordCoder/Remindus/internal/services/dispatch"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

type stubUsers struct{}

func (stubUsers) GetByID(context.Context, int64) (*user.User, error) {
	return &user.User{ID: 7, Email: "a@b.c"}, nil
}

type flakySender struct {
	kind  notification.ChannelKind
	fails int
	calls int
}

func (s *flakySender) Kind() notification.ChannelKind { return s.kind }

func (s *flakySender) Send(context.Context, *notification.Notification, channel.Recipient) channel.Outcome {
	s.calls++
	if s.calls <= s.fails {
		return channel.Outcome{Success: false, Detail: "temporary outage"}
	}
	return channel.Outcome{Success: true}
}

func failedNotif(clk *testClock) *notification.Notification {
	at := clk.Now().Add(-time.Minute)
	failedAt := clk.Now().Add(-30 * time.Second)
	return &notification.Notification{
		UserID:        7,
		EventID:       42,
		Kind:          notification.KindAdvanceReminder,
		Status:        notification.StatusFailed,
		ScheduledAt:   at,
		Channels:      []notification.ChannelKind{notification.ChannelEmail},
		FailureReason: "email: temporary outage",
		FailedAt:      &failedAt,
	}
}

func newCoordinator(store notification.Repo, clk *testClock, sender channel.Sender) *RetryCoordinator {
	d := &dispatch.Dispatcher{
		Store:       store,
		Users:       stubUsers{},
		Registry:    channel.NewRegistry(sender),
		Clock:       clk,
		Log:         zap.NewNop(),
		SendTimeout: time.Second,
	}
	return &RetryCoordinator{Store: store, Dispatch: d, Clock: clk, Log: zap.NewNop()}
}

func TestRetry_EventualSuccess(t *testing.T) {
	ctx := context.Background()
	store := memory.NewNotificationRepo()
	clk := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	sender := &flakySender{kind: notification.ChannelEmail, fails: 1}

	n := failedNotif(clk)
	require.NoError(t, store.Create(ctx, n))

	rc := newCoordinator(store, clk, sender)

	retried, err := rc.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, retried)

	got, err := store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, notification.StatusFailed, got.Status)
	require.Equal(t, 1, got.RetryCount)

	retried, err = rc.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, retried)

	got, err = store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, notification.StatusSent, got.Status)
	require.Equal(t, 2, got.RetryCount)
}

func TestRetry_StopsAtMaxRetries(t *testing.T) {
	ctx := context.Background()
	store := memory.NewNotificationRepo()
	clk := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	sender := &flakySender{kind: notification.ChannelEmail, fails: 1 << 30}

	n := failedNotif(clk)
	require.NoError(t, store.Create(ctx, n))

	rc := newCoordinator(store, clk, sender)
	for i := 0; i < 10; i++ {
		_, err := rc.Tick(ctx)
		require.NoError(t, err)
	}

	got, err := store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, notification.StatusFailed, got.Status)
	require.Equal(t, notification.DefaultMaxRetries, got.RetryCount)
	require.Equal(t, notification.DefaultMaxRetries, sender.calls)
}

func TestRetry_SkipsStaleFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.NewNotificationRepo()
	clk := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	sender := &flakySender{kind: notification.ChannelEmail}

	n := failedNotif(clk)
	stale := clk.Now().Add(-2 * time.Hour)
	n.FailedAt = &stale
	require.NoError(t, store.Create(ctx, n))

	rc := newCoordinator(store, clk, sender)
	retried, err := rc.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, retried)
	require.Equal(t, 0, sender.calls)
}

func TestSweep_DeletesOnlyAgedTerminal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewNotificationRepo()
	clk := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}

	// Straddle the 30-day retention cutoff by a day each way.
	old := clk.Now().Add(-31 * 24 * time.Hour)
	fresh := clk.Now().Add(-29 * 24 * time.Hour)

	mk := func(status notification.Status, created time.Time) *notification.Notification {
		n := &notification.Notification{
			UserID:      7,
			EventID:     42,
			Kind:        notification.KindAdvanceReminder,
			Status:      status,
			ScheduledAt: created,
			Channels:    []notification.ChannelKind{notification.ChannelPush},
			CreatedAt:   created,
		}
		require.NoError(t, store.Create(ctx, n))
		return n
	}

	agedAcked := mk(notification.StatusAcknowledged, old)
	agedCancelled := mk(notification.StatusCancelled, old)
	freshAcked := mk(notification.StatusAcknowledged, fresh)
	agedPending := mk(notification.StatusPending, old)

	sw := &Sweeper{Store: store, Clock: clk, Log: zap.NewNop()}
	deleted, err := sw.Sweep(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	_, err = store.GetByID(ctx, agedAcked.ID)
	require.ErrorIs(t, err, notification.ErrNotFound)
	_, err = store.GetByID(ctx, agedCancelled.ID)
	require.ErrorIs(t, err, notification.ErrNotFound)

	_, err = store.GetByID(ctx, freshAcked.ID)
	require.NoError(t, err)
	_, err = store.GetByID(ctx, agedPending.ID)
	require.NoError(t, err)
}
