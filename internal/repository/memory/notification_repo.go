// Package memory holds an in-memory notification store with the same
// semantics as the postgres implementation, including the status guards on
// the Mark* methods. It backs unit tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NordCoder/Remindus/internal/domain/notification"
)

var _ notification.Repo = (*NotificationRepo)(nil)

type NotificationRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*notification.Notification
}

func NewNotificationRepo() *NotificationRepo {
	return &NotificationRepo{rows: make(map[uuid.UUID]*notification.Notification)}
}

func clone(n *notification.Notification) *notification.Notification {
	cp := *n
	cp.Channels = append([]notification.ChannelKind(nil), n.Channels...)
	cp.Metadata.Actions = append([]string(nil), n.Metadata.Actions...)
	if n.Receipt != nil {
		cp.Receipt = make(notification.DeliveryReceipt, len(n.Receipt))
		for k, v := range n.Receipt {
			cp.Receipt[k] = v
		}
	}
	return &cp
}

func (r *NotificationRepo) Create(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Status == "" {
		n.Status = notification.StatusPending
	}
	if n.MaxRetries == 0 {
		n.MaxRetries = notification.DefaultMaxRetries
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	r.rows[n.ID] = clone(n)
	return nil
}

func (r *NotificationRepo) GetByID(_ context.Context, id uuid.UUID) (*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.rows[id]
	if !ok {
		return nil, notification.ErrNotFound
	}
	return clone(n), nil
}

func (r *NotificationRepo) FetchDue(_ context.Context, now time.Time, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.filter(limit, func(n *notification.Notification) bool {
		return n.Status == notification.StatusPending && !n.ScheduledAt.After(now)
	}), nil
}

func (r *NotificationRepo) FetchRetryable(_ context.Context, oldest time.Time, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.filter(limit, func(n *notification.Notification) bool {
		return n.Status == notification.StatusFailed &&
			n.RetryCount < n.MaxRetries &&
			n.FailedAt != nil && !n.FailedAt.Before(oldest)
	}), nil
}

func (r *NotificationRepo) filter(limit int, keep func(*notification.Notification) bool) []*notification.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*notification.Notification
	for _, n := range r.rows {
		if keep(n) {
			out = append(out, clone(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *NotificationRepo) Requeue(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.rows[id]
	if !ok || n.Status != notification.StatusFailed || n.RetryCount >= n.MaxRetries {
		return notification.ErrNotFound
	}
	n.Status = notification.StatusPending
	n.RetryCount++
	return nil
}

func (r *NotificationRepo) MarkSent(_ context.Context, id uuid.UUID, at time.Time, receipt notification.DeliveryReceipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.rows[id]
	if !ok || n.Status != notification.StatusPending {
		return nil
	}
	n.Status = notification.StatusSent
	n.SentAt = &at
	n.Receipt = receipt
	n.FailureReason = ""
	return nil
}

func (r *NotificationRepo) MarkFailed(_ context.Context, id uuid.UUID, at time.Time, reason string, receipt notification.DeliveryReceipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.rows[id]
	if !ok || n.Status != notification.StatusPending {
		return nil
	}
	n.Status = notification.StatusFailed
	n.FailedAt = &at
	n.FailureReason = reason
	n.Receipt = receipt
	return nil
}

func (r *NotificationRepo) MarkAcknowledged(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.rows[id]
	if !ok {
		return notification.ErrNotFound
	}
	switch n.Status {
	case notification.StatusPending, notification.StatusSent, notification.StatusFailed:
	default:
		return notification.ErrNotFound
	}
	n.Status = notification.StatusAcknowledged
	n.AcknowledgedAt = &at
	n.Read = true
	return nil
}

func (r *NotificationRepo) CancelPendingStart(_ context.Context, eventID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for _, n := range r.rows {
		if n.EventID == eventID && n.UserID == userID &&
			n.Kind == notification.KindStartReminder && n.Status == notification.StatusPending {
			n.Status = notification.StatusCancelled
			found = true
		}
	}
	return found, nil
}

func (r *NotificationRepo) CancelPendingForEvent(_ context.Context, eventID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, n := range r.rows {
		if n.EventID == eventID && n.Status == notification.StatusPending {
			n.Status = notification.StatusCancelled
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepo) HasAnyForEvent(_ context.Context, eventID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.rows {
		if n.EventID == eventID && n.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *NotificationRepo) List(_ context.Context, f notification.ListFilter) ([]*notification.Notification, int64, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var all []*notification.Notification
	for _, n := range r.rows {
		if n.UserID != f.UserID {
			continue
		}
		if f.Kind != "" && n.Kind != f.Kind {
			continue
		}
		if f.Status != "" && n.Status != f.Status {
			continue
		}
		if f.UnreadOnly && n.Read {
			continue
		}
		all = append(all, clone(n))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ScheduledAt.After(all[j].ScheduledAt) })

	total := int64(len(all))
	start := (f.Page - 1) * f.Limit
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *NotificationRepo) UnreadCount(_ context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, n := range r.rows {
		if n.UserID == userID && n.Status == notification.StatusPending {
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepo) MarkRead(_ context.Context, id uuid.UUID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.rows[id]
	if !ok || n.UserID != userID {
		return notification.ErrNotFound
	}
	n.Read = true
	return nil
}

func (r *NotificationRepo) MarkAllRead(_ context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, n := range r.rows {
		if n.UserID == userID && !n.Read {
			n.Read = true
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepo) Stats(_ context.Context, userID int64, since time.Time) ([]notification.StatBucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return bucketize(r.rows, func(n *notification.Notification) bool {
		return n.UserID == userID && !n.CreatedAt.Before(since)
	}), nil
}

func (r *NotificationRepo) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, []notification.StatBucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := func(n *notification.Notification) bool {
		return n.Status.Terminal() && n.CreatedAt.Before(cutoff)
	}
	buckets := bucketize(r.rows, old)

	var count int64
	for id, n := range r.rows {
		if old(n) {
			delete(r.rows, id)
			count++
		}
	}
	return count, buckets, nil
}

func bucketize(rows map[uuid.UUID]*notification.Notification, keep func(*notification.Notification) bool) []notification.StatBucket {
	type key struct {
		status notification.Status
		kind   notification.Kind
	}
	counts := make(map[key]int64)
	for _, n := range rows {
		if keep(n) {
			counts[key{n.Status, n.Kind}]++
		}
	}
	out := make([]notification.StatBucket, 0, len(counts))
	for k, c := range counts {
		out = append(out, notification.StatBucket{Status: k.status, Kind: k.kind, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status < out[j].Status
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
