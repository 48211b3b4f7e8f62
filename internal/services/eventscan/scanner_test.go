package eventscan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/Remindus/internal/dedup"
	"github.com/NordCoder/Remindus/internal/domain/event"
	"github.com/NordCoder/Remindus/internal/domain/notification"
	"github.com/NordCoder/Remindus/internal/domain/preference"
	"github.com/NordCoder/Remindus/internal/repository/memory"
	"github.com/NordCoder/Remindus/internal/services/materializer"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

type defaultPrefs struct{}

func (defaultPrefs) GetPreferences(_ context.Context, userID int64) (*preference.Preferences, error) {
	return preference.Default(userID), nil
}

type stubEvents struct {
	events       []*event.Event
	participants map[int64][]int64
}

func (s *stubEvents) GetByID(_ context.Context, id int64) (*event.Event, error) {
	for _, ev := range s.events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return nil, event.ErrNotFound
}

func (s *stubEvents) ListStartingBetween(_ context.Context, from, to time.Time) ([]*event.Event, error) {
	var out []*event.Event
	for _, ev := range s.events {
		if !ev.StartAt.Before(from) && ev.StartAt.Before(to) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *stubEvents) ParticipantIDs(_ context.Context, eventID int64) ([]int64, error) {
	return s.participants[eventID], nil
}

func TestScan_BackfillsMissingAndSkipsExisting(t *testing.T) {
	ctx := context.Background()
	store := memory.NewNotificationRepo()
	clk := &testClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}

	evs := &stubEvents{
		events: []*event.Event{
			{ID: 1, OwnerID: 7, Title: "Standup", StartAt: clk.t.Add(2 * time.Hour)},
			{ID: 2, OwnerID: 8, Title: "Review", StartAt: clk.t.Add(3 * time.Hour)},
			{ID: 3, OwnerID: 9, Title: "Next week", StartAt: clk.t.Add(48 * time.Hour)},
		},
		participants: map[int64][]int64{1: {7}, 2: {8}, 3: {9}},
	}

	// Event 2 already has its rows.
	require.NoError(t, store.Create(ctx, &notification.Notification{
		UserID:      8,
		EventID:     2,
		Kind:        notification.KindStartReminder,
		ScheduledAt: clk.t.Add(3 * time.Hour),
		Channels:    []notification.ChannelKind{notification.ChannelPush},
	}))

	mat := &materializer.Handler{Prefs: defaultPrefs{}, Store: store, Clock: clk, Log: zap.NewNop()}
	sc := &Scanner{
		Events: evs,
		Store:  store,
		Mat:    mat,
		Guard:  dedup.NewGuard(time.Hour, clk),
		Clock:  clk,
		Log:    zap.NewNop(),
	}

	created, err := sc.Scan(ctx)
	require.NoError(t, err)
	// Default prefs: offsets 15 and 60 plus the start reminder, one user.
	require.Equal(t, 3, created)

	list, total, err := store.List(ctx, notification.ListFilter{UserID: 7, Limit: 10})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	for _, n := range list {
		require.EqualValues(t, 1, n.EventID)
	}

	// Event 3 starts beyond the horizon; nothing was made for it.
	has, err := store.HasAnyForEvent(ctx, 3, 9)
	require.NoError(t, err)
	require.False(t, has)

	// A second pass is a no-op: the guard remembers handled pairs.
	created, err = sc.Scan(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, created)
}

func TestScan_GuardSuppressesRepeatBackfill(t *testing.T) {
	ctx := context.Background()
	store := memory.NewNotificationRepo()
	clk := &testClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}

	evs := &stubEvents{
		events:       []*event.Event{{ID: 1, OwnerID: 7, Title: "Standup", StartAt: clk.t.Add(2 * time.Hour)}},
		participants: map[int64][]int64{1: {7}},
	}
	guard := dedup.NewGuard(time.Hour, clk)
	guard.Mark(dedup.Key{EventID: 1, UserID: 7})

	mat := &materializer.Handler{Prefs: defaultPrefs{}, Store: store, Clock: clk, Log: zap.NewNop()}
	sc := &Scanner{Events: evs, Store: store, Mat: mat, Guard: guard, Clock: clk, Log: zap.NewNop()}

	created, err := sc.Scan(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, created)
}
