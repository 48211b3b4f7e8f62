package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/Remindus/internal/domain/event"
	"github.com/NordCoder/Remindus/internal/domain/notification"
	"github.com/NordCoder/Remindus/internal/repository/memory"
	"github.com/NordCoder/Remindus/internal/services/ack"
)

const testSecret = "test-secret"

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

type noEvents struct{}

func (noEvents) GetByID(context.Context, int64) (*event.Event, error) {
	return nil, event.ErrNotFound
}

func (noEvents) ListStartingBetween(context.Context, time.Time, time.Time) ([]*event.Event, error) {
	return nil, nil
}

func (noEvents) ParticipantIDs(context.Context, int64) ([]int64, error) { return nil, nil }

func newTestRouter(store notification.Repo) *gin.Engine {
	clk := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	h := &Handlers{
		Store: store,
		Ack:   &ack.Handler{Store: store, Events: noEvents{}, Clock: clk, Log: zap.NewNop()},
		Clock: clk,
		Log:   zap.NewNop(),
	}
	return NewRouter(h, testSecret, zap.NewNop())
}

func tokenFor(t *testing.T, userID int64) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func doRequest(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func seed(t *testing.T, store notification.Repo, userID int64, status notification.Status) *notification.Notification {
	t.Helper()
	n := &notification.Notification{
		UserID:      userID,
		EventID:     42,
		Kind:        notification.KindAdvanceReminder,
		Status:      status,
		ScheduledAt: time.Date(2026, 3, 1, 9, 45, 0, 0, time.UTC),
		Channels:    []notification.ChannelKind{notification.ChannelPush},
		Metadata: notification.Metadata{
			Title:   "Standup",
			Actions: []string{notification.ActionConfirmed, notification.ActionSnooze, notification.ActionReady},
		},
	}
	require.NoError(t, store.Create(context.Background(), n))
	return n
}

func TestAuthRequired(t *testing.T) {
	r := newTestRouter(memory.NewNotificationRepo())

	w := doRequest(t, r, http.MethodGet, "/api/v1/notifications", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, r, http.MethodGet, "/api/v1/notifications", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListAndUnreadCount(t *testing.T) {
	store := memory.NewNotificationRepo()
	r := newTestRouter(store)
	seed(t, store, 7, notification.StatusPending)
	seed(t, store, 7, notification.StatusSent)
	seed(t, store, 7, notification.StatusSent)
	seed(t, store, 99, notification.StatusPending)

	w := doRequest(t, r, http.MethodGet, "/api/v1/notifications", tokenFor(t, 7), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Notifications []json.RawMessage `json:"notifications"`
		Total         int64             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, 3, resp.Total)
	require.Len(t, resp.Notifications, 3)

	w = doRequest(t, r, http.MethodGet, "/api/v1/notifications?status=sent", tokenFor(t, 7), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, 2, resp.Total)

	// Only the pending row counts as unread; delivered rows do not.
	w = doRequest(t, r, http.MethodGet, "/api/v1/notifications/unread-count", tokenFor(t, 7), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var uc struct {
		UnreadCount int64 `json:"unread_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uc))
	require.EqualValues(t, 1, uc.UnreadCount)
}

func TestAcknowledgeEndpoint(t *testing.T) {
	store := memory.NewNotificationRepo()
	r := newTestRouter(store)
	n := seed(t, store, 7, notification.StatusSent)

	path := fmt.Sprintf("/api/v1/notifications/%s/acknowledge", n.ID)

	w := doRequest(t, r, http.MethodPost, path, tokenFor(t, 99), gin.H{"action": "confirmed"})
	require.Equal(t, http.StatusForbidden, w.Code)

	noSnooze := &notification.Notification{
		UserID:      7,
		EventID:     42,
		Kind:        notification.KindAdvanceReminder,
		Status:      notification.StatusSent,
		ScheduledAt: time.Date(2026, 3, 1, 9, 45, 0, 0, time.UTC),
		Channels:    []notification.ChannelKind{notification.ChannelPush},
		Metadata: notification.Metadata{
			Title:   "Standup",
			Actions: []string{notification.ActionConfirmed},
		},
	}
	require.NoError(t, store.Create(context.Background(), noSnooze))
	noSnoozePath := fmt.Sprintf("/api/v1/notifications/%s/acknowledge", noSnooze.ID)
	w = doRequest(t, r, http.MethodPost, noSnoozePath, tokenFor(t, 7), gin.H{"action": "snooze"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doRequest(t, r, http.MethodPost, path, tokenFor(t, 7), gin.H{"action": "confirmed"})
	require.Equal(t, http.StatusOK, w.Code)
	var res ack.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Contains(t, res.Message, "confirmed")

	w = doRequest(t, r, http.MethodPost, path, tokenFor(t, 7), gin.H{"action": "confirmed"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(t, r, http.MethodPost, "/api/v1/notifications/not-a-uuid/acknowledge", tokenFor(t, 7), gin.H{"action": "confirmed"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadStateEndpoints(t *testing.T) {
	store := memory.NewNotificationRepo()
	r := newTestRouter(store)
	n1 := seed(t, store, 7, notification.StatusSent)
	seed(t, store, 7, notification.StatusSent)

	w := doRequest(t, r, http.MethodPut, fmt.Sprintf("/api/v1/notifications/%s/read", n1.ID), tokenFor(t, 7), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Notifications []json.RawMessage `json:"notifications"`
		Total         int64             `json:"total"`
	}
	w = doRequest(t, r, http.MethodGet, "/api/v1/notifications?unread_only=true", tokenFor(t, 7), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, 1, resp.Total)

	w = doRequest(t, r, http.MethodPut, fmt.Sprintf("/api/v1/notifications/%s/read", n1.ID), tokenFor(t, 99), nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, r, http.MethodPut, "/api/v1/notifications/read-all", tokenFor(t, 7), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, r, http.MethodGet, "/api/v1/notifications?unread_only=true", tokenFor(t, 7), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, 0, resp.Total)

	// Read-marking never feeds the unread counter: it counts pending rows.
	w = doRequest(t, r, http.MethodGet, "/api/v1/notifications/unread-count", tokenFor(t, 7), nil)
	var uc struct {
		UnreadCount int64 `json:"unread_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uc))
	require.EqualValues(t, 0, uc.UnreadCount)
}

func TestStatsEndpoint(t *testing.T) {
	store := memory.NewNotificationRepo()
	r := newTestRouter(store)
	seed(t, store, 7, notification.StatusSent)
	seed(t, store, 7, notification.StatusSent)
	seed(t, store, 7, notification.StatusAcknowledged)

	w := doRequest(t, r, http.MethodGet, "/api/v1/notifications/stats?days=7", tokenFor(t, 7), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Total    int64            `json:"total"`
		ByStatus map[string]int64 `json:"by_status"`
		Days     int              `json:"days"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, 3, resp.Total)
	require.EqualValues(t, 2, resp.ByStatus["sent"])
	require.Equal(t, 7, resp.Days)
}
