package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/Remindus/internal/domain/notification"
)

var _ notification.Repo = (*NotificationRepo)(nil)

type NotificationRepo struct{ db *DB }

func NewNotificationRepo(db *DB) *NotificationRepo { return &NotificationRepo{db: db} }

const notifColumns = `
id, user_id, event_id, kind, status, scheduled_at, channels,
retry_count, max_retries, failure_reason, sent_at, failed_at, acknowledged_at,
metadata, receipt, is_read, created_at`

const (
	qNotifInsert = `
INSERT INTO notifications (
    id, user_id, event_id, kind, status, scheduled_at, channels,
    retry_count, max_retries, failure_reason, metadata, receipt, is_read, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, FALSE, $13);`

	qNotifByID = `
SELECT` + notifColumns + `
FROM notifications
WHERE id = $1;`

	qNotifDue = `
SELECT` + notifColumns + `
FROM notifications
WHERE status = 'pending' AND scheduled_at <= $1
ORDER BY scheduled_at
LIMIT $2;`

	qNotifRetryable = `
SELECT` + notifColumns + `
FROM notifications
WHERE status = 'failed' AND retry_count < max_retries AND failed_at >= $1
ORDER BY failed_at
LIMIT $2;`

	qNotifRequeue = `
UPDATE notifications
SET status = 'pending', retry_count = retry_count + 1
WHERE id = $1 AND status = 'failed' AND retry_count < max_retries;`

	qNotifMarkSent = `
UPDATE notifications
SET status = 'sent', sent_at = $2, receipt = $3, failure_reason = ''
WHERE id = $1 AND status = 'pending';`

	qNotifMarkFailed = `
UPDATE notifications
SET status = 'failed', failed_at = $2, failure_reason = $3, receipt = $4
WHERE id = $1 AND status = 'pending';`

	qNotifMarkAcked = `
UPDATE notifications
SET status = 'acknowledged', acknowledged_at = $2, is_read = TRUE
WHERE id = $1 AND status IN ('pending', 'sent', 'failed');`

	qNotifCancelStart = `
UPDATE notifications
SET status = 'cancelled'
WHERE event_id = $1 AND user_id = $2 AND kind = 'start_reminder' AND status = 'pending';`

	qNotifCancelForEvent = `
UPDATE notifications
SET status = 'cancelled'
WHERE event_id = $1 AND status = 'pending';`

	qNotifExists = `
SELECT EXISTS (SELECT 1 FROM notifications WHERE event_id = $1 AND user_id = $2);`

	qNotifUnreadCount = `
SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND status = 'pending';`

	qNotifMarkRead = `
UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2;`

	qNotifMarkAllRead = `
UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE;`

	qNotifStats = `
SELECT status, kind, COUNT(*)
FROM notifications
WHERE user_id = $1 AND created_at >= $2
GROUP BY status, kind;`

	qNotifSweepStats = `
SELECT status, kind, COUNT(*)
FROM notifications
WHERE status IN ('sent', 'acknowledged', 'failed', 'cancelled') AND created_at < $1
GROUP BY status, kind;`

	qNotifSweepDelete = `
DELETE FROM notifications
WHERE status IN ('sent', 'acknowledged', 'failed', 'cancelled') AND created_at < $1;`
)

func (r *NotificationRepo) Create(ctx context.Context, n *notification.Notification) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

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

	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	receipt, err := marshalReceipt(n.Receipt)
	if err != nil {
		return err
	}

	if _, err := r.db.Pool.Exec(ctx, qNotifInsert,
		n.ID, n.UserID, n.EventID, n.Kind, n.Status, n.ScheduledAt, channelStrings(n.Channels),
		n.RetryCount, n.MaxRetries, n.FailureReason, meta, receipt, n.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) GetByID(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanNotification(r.db.Pool.QueryRow(ctx, qNotifByID, id))
}

func (r *NotificationRepo) FetchDue(ctx context.Context, now time.Time, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.fetch(ctx, qNotifDue, now, limit)
}

func (r *NotificationRepo) FetchRetryable(ctx context.Context, oldest time.Time, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.fetch(ctx, qNotifRetryable, oldest, limit)
}

func (r *NotificationRepo) fetch(ctx context.Context, query string, args ...any) ([]*notification.Notification, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *NotificationRepo) Requeue(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, qNotifRequeue, id)
	if err != nil {
		return fmt.Errorf("requeue notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (r *NotificationRepo) MarkSent(ctx context.Context, id uuid.UUID, at time.Time, receipt notification.DeliveryReceipt) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	b, err := marshalReceipt(receipt)
	if err != nil {
		return err
	}
	if _, err := r.db.Pool.Exec(ctx, qNotifMarkSent, id, at, b); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

func (r *NotificationRepo) MarkFailed(ctx context.Context, id uuid.UUID, at time.Time, reason string, receipt notification.DeliveryReceipt) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	b, err := marshalReceipt(receipt)
	if err != nil {
		return err
	}
	if _, err := r.db.Pool.Exec(ctx, qNotifMarkFailed, id, at, reason, b); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func (r *NotificationRepo) MarkAcknowledged(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, qNotifMarkAcked, id, at)
	if err != nil {
		return fmt.Errorf("mark acknowledged: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (r *NotificationRepo) CancelPendingStart(ctx context.Context, eventID, userID int64) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, qNotifCancelStart, eventID, userID)
	if err != nil {
		return false, fmt.Errorf("cancel start reminder: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *NotificationRepo) CancelPendingForEvent(ctx context.Context, eventID int64) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, qNotifCancelForEvent, eventID)
	if err != nil {
		return 0, fmt.Errorf("cancel event notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepo) HasAnyForEvent(ctx context.Context, eventID, userID int64) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var exists bool
	if err := r.db.Pool.QueryRow(ctx, qNotifExists, eventID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists for event: %w", err)
	}
	return exists, nil
}

func (r *NotificationRepo) List(ctx context.Context, f notification.ListFilter) ([]*notification.Notification, int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	where := "user_id = $1"
	args := []any{f.UserID}
	if f.Kind != "" {
		args = append(args, f.Kind)
		where += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.UnreadOnly {
		where += " AND is_read = FALSE"
	}

	var total int64
	if err := r.db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM notifications WHERE "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := fmt.Sprintf(
		"SELECT%s\nFROM notifications\nWHERE %s\nORDER BY scheduled_at DESC\nLIMIT $%d OFFSET $%d;",
		notifColumns, where, len(args)-1, len(args),
	)
	out, err := r.fetch(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *NotificationRepo) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var n int64
	if err := r.db.Pool.QueryRow(ctx, qNotifUnreadCount, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return n, nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id uuid.UUID, userID int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, qNotifMarkRead, id, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, qNotifMarkAllRead, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepo) Stats(ctx context.Context, userID int64, since time.Time) ([]notification.StatBucket, error) {
	return r.statQuery(ctx, qNotifStats, userID, since)
}

func (r *NotificationRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, []notification.StatBucket, error) {
	// Distribution first, delete second. The sweeper is single-flight, so
	// rows appearing between the two queries only shift into the next sweep.
	buckets, err := r.statQuery(ctx, qNotifSweepStats, cutoff)
	if err != nil {
		return 0, nil, err
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	tag, err := r.db.Pool.Exec(ctx, qNotifSweepDelete, cutoff)
	if err != nil {
		return 0, nil, fmt.Errorf("sweep delete: %w", err)
	}
	return tag.RowsAffected(), buckets, nil
}

func (r *NotificationRepo) statQuery(ctx context.Context, query string, args ...any) ([]notification.StatBucket, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stats query: %w", err)
	}
	defer rows.Close()

	var out []notification.StatBucket
	for rows.Next() {
		var b notification.StatBucket
		if err := rows.Scan(&b.Status, &b.Kind, &b.Count); err != nil {
			return nil, fmt.Errorf("scan stat bucket: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	var (
		n        notification.Notification
		channels []string
		meta     []byte
		receipt  []byte
	)
	if err := row.Scan(
		&n.ID, &n.UserID, &n.EventID, &n.Kind, &n.Status, &n.ScheduledAt, &channels,
		&n.RetryCount, &n.MaxRetries, &n.FailureReason, &n.SentAt, &n.FailedAt, &n.AcknowledgedAt,
		&meta, &receipt, &n.Read, &n.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notification.ErrNotFound
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	for _, c := range channels {
		n.Channels = append(n.Channels, notification.ChannelKind(c))
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &n.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if len(receipt) > 0 {
		if err := json.Unmarshal(receipt, &n.Receipt); err != nil {
			return nil, fmt.Errorf("unmarshal receipt: %w", err)
		}
	}
	return &n, nil
}

func marshalReceipt(r notification.DeliveryReceipt) ([]byte, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal receipt: %w", err)
	}
	return b, nil
}

func channelStrings(in []notification.ChannelKind) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		out = append(out, string(c))
	}
	return out
}
