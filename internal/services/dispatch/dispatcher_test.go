package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/Remindus/internal/channel"
	"github.com/NordCoder/Remindus/internal/domain/notification"
	"github.com/NordCoder/Remindus/internal/domain/user"
	"github.com/NordCoder/Remindus/internal/repository/memory"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

type stubUsers struct{ u user.User }

func (s *stubUsers) GetByID(context.Context, int64) (*user.User, error) {
	u := s.u
	return &u, nil
}

type stubSender struct {
	kind    notification.ChannelKind
	outcome channel.Outcome
	block   bool
	doPanic bool

	mu    sync.Mutex
	calls int
}

func (s *stubSender) Kind() notification.ChannelKind { return s.kind }

func (s *stubSender) Send(ctx context.Context, _ *notification.Notification, _ channel.Recipient) channel.Outcome {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.doPanic {
		panic("sender blew up")
	}
	if s.block {
		<-ctx.Done()
	}
	return s.outcome
}

func (s *stubSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func pendingNotif(channels ...notification.ChannelKind) *notification.Notification {
	return &notification.Notification{
		ID:          uuid.New(),
		UserID:      7,
		EventID:     42,
		Kind:        notification.KindAdvanceReminder,
		Status:      notification.StatusPending,
		ScheduledAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Channels:    channels,
		MaxRetries:  notification.DefaultMaxRetries,
		Metadata:    notification.Metadata{Title: "Standup", OffsetMinutes: 15},
	}
}

func newDispatcher(store notification.Repo, senders ...channel.Sender) *Dispatcher {
	return &Dispatcher{
		Store:       store,
		Users:       &stubUsers{u: user.User{ID: 7, Email: "a@b.c", FCMToken: "tok"}},
		Registry:    channel.NewRegistry(senders...),
		Clock:       &testClock{t: time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC)},
		Log:         zap.NewNop(),
		SendTimeout: 200 * time.Millisecond,
	}
}

func TestDispatch_PartialChannelFailureStillSent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewNotificationRepo()
	push := &stubSender{kind: notification.ChannelPush, outcome: channel.Outcome{Success: false, Detail: "invalid token"}}
	email := &stubSender{kind: notification.ChannelEmail, outcome: channel.Outcome{Success: true}}

	n := pendingNotif(notification.ChannelPush, notification.ChannelEmail)
	require.NoError(t, store.Create(ctx, n))

	d := newDispatcher(store, push, email)
	require.NoError(t, d.Dispatch(ctx, n))

	got, err := store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, notification.StatusSent, got.Status)
	require.NotNil(t, got.SentAt)
	require.False(t, got.Receipt[notification.ChannelPush].Success)
	require.Equal(t, "invalid token", got.Receipt[notification.ChannelPush].Detail)
	require.True(t, got.Receipt[notification.ChannelEmail].Success)
	require.Equal(t, 1, push.callCount())
	require.Equal(t, 1, email.callCount())
}

func TestDispatch_AllChannelsFailedMarksFailed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewNotificationRepo()
	push := &stubSender{kind: notification.ChannelPush, outcome: channel.Outcome{Success: false, Detail: "invalid token"}}
	email := &stubSender{kind: notification.ChannelEmail, outcome: channel.Outcome{Success: false, Detail: "smtp refused"}}

	n := pendingNotif(notification.ChannelPush, notification.ChannelEmail)
	require.NoError(t, store.Create(ctx, n))

	d := newDispatcher(store, push, email)
	require.NoError(t, d.Dispatch(ctx, n))

	got, err := store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, notification.StatusFailed, got.Status)
	require.NotNil(t, got.FailedAt)
	require.Contains(t, got.FailureReason, "push: invalid token")
	require.Contains(t, got.FailureReason, "email: smtp refused")
}

func TestDispatch_HungAndPanickingChannelsAreContained(t *testing.T) {
	ctx := context.Background()
	store := memory.NewNotificationRepo()
	push := &stubSender{kind: notification.ChannelPush, block: true}
	email := &stubSender{kind: notification.ChannelEmail, doPanic: true}
	rt := &stubSender{kind: notification.ChannelRealtime, outcome: channel.Outcome{Success: true}}

	n := pendingNotif(notification.ChannelPush, notification.ChannelEmail, notification.ChannelRealtime)
	require.NoError(t, store.Create(ctx, n))

	d := newDispatcher(store, push, email, rt)
	require.NoError(t, d.Dispatch(ctx, n))

	got, err := store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, notification.StatusSent, got.Status)
	require.Equal(t, "send timed out", got.Receipt[notification.ChannelPush].Detail)
	require.Contains(t, got.Receipt[notification.ChannelEmail].Detail, "channel panic")
}

func TestDispatch_UnconfiguredChannelFails(t *testing.T) {
	ctx := context.Background()
	store := memory.NewNotificationRepo()

	n := pendingNotif(notification.ChannelPush)
	require.NoError(t, store.Create(ctx, n))

	d := newDispatcher(store)
	require.NoError(t, d.Dispatch(ctx, n))

	got, err := store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, notification.StatusFailed, got.Status)
	require.Contains(t, got.FailureReason, "channel not configured")
}

func TestDispatch_SkipsNonPending(t *testing.T) {
	ctx := context.Background()
	store := memory.NewNotificationRepo()
	push := &stubSender{kind: notification.ChannelPush, outcome: channel.Outcome{Success: true}}

	n := pendingNotif(notification.ChannelPush)
	n.Status = notification.StatusCancelled
	require.NoError(t, store.Create(ctx, n))

	d := newDispatcher(store, push)
	require.NoError(t, d.Dispatch(ctx, n))
	require.Equal(t, 0, push.callCount())
}

func TestTicker_DispatchesOnlyDue(t *testing.T) {
	ctx := context.Background()
	store := memory.NewNotificationRepo()
	rt := &stubSender{kind: notification.ChannelRealtime, outcome: channel.Outcome{Success: true}}
	d := newDispatcher(store, rt)

	due := pendingNotif(notification.ChannelRealtime)
	due.ScheduledAt = d.Clock.Now().Add(-time.Minute)
	future := pendingNotif(notification.ChannelRealtime)
	future.ScheduledAt = d.Clock.Now().Add(time.Hour)
	require.NoError(t, store.Create(ctx, due))
	require.NoError(t, store.Create(ctx, future))

	tick := &Ticker{Store: store, Dispatch: d, Clock: d.Clock, Log: zap.NewNop(), BatchLimit: 10, Workers: 2}
	fetched, errs, err := tick.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, fetched)
	require.Equal(t, 0, errs)

	gotDue, err := store.GetByID(ctx, due.ID)
	require.NoError(t, err)
	require.Equal(t, notification.StatusSent, gotDue.Status)

	gotFuture, err := store.GetByID(ctx, future.ID)
	require.NoError(t, err)
	require.Equal(t, notification.StatusPending, gotFuture.Status)
}
