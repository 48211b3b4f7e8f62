package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by every Repo implementation when a lookup or a
// status-guarded update matches no row.
var ErrNotFound = errors.New("notification not found")

// ListFilter narrows and pages a per-user listing.
type ListFilter struct {
	UserID     int64
	Kind       Kind
	Status     Status
	UnreadOnly bool
	Page       int
	Limit      int
}

// StatBucket is one row of a grouped status/kind count.
type StatBucket struct {
	Status Status `json:"status"`
	Kind   Kind   `json:"kind"`
	Count  int64  `json:"count"`
}

// Repo is the durable notification record store. Single-record updates are
// last-writer-wins at the field level; the status-guarded Mark* methods are
// no-ops when the record already left the guarded status.
type Repo interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*Notification, error)

	// FetchDue returns pending notifications whose scheduled time has arrived.
	FetchDue(ctx context.Context, now time.Time, limit int) ([]*Notification, error)
	// FetchRetryable returns failed notifications still under their retry cap
	// that failed no earlier than oldest.
	FetchRetryable(ctx context.Context, oldest time.Time, limit int) ([]*Notification, error)
	// Requeue moves a failed notification back to pending and increments its
	// retry count. Guarded by retry_count < max_retries.
	Requeue(ctx context.Context, id uuid.UUID) error

	MarkSent(ctx context.Context, id uuid.UUID, at time.Time, receipt DeliveryReceipt) error
	MarkFailed(ctx context.Context, id uuid.UUID, at time.Time, reason string, receipt DeliveryReceipt) error
	MarkAcknowledged(ctx context.Context, id uuid.UUID, at time.Time) error

	// CancelPendingStart cancels the pending start reminder for (event, user),
	// reporting whether one was found.
	CancelPendingStart(ctx context.Context, eventID, userID int64) (bool, error)
	CancelPendingForEvent(ctx context.Context, eventID int64) (int64, error)

	// HasAnyForEvent reports whether any notification rows exist for the pair,
	// regardless of status. Used by the safety-net event scan.
	HasAnyForEvent(ctx context.Context, eventID, userID int64) (bool, error)

	List(ctx context.Context, f ListFilter) ([]*Notification, int64, error)

	// UnreadCount is the user's count of pending rows: reminders materialized
	// but not yet delivered. The is_read flag is a separate client-side
	// surface and does not feed it.
	UnreadCount(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, id uuid.UUID, userID int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	Stats(ctx context.Context, userID int64, since time.Time) ([]StatBucket, error)

	// DeleteTerminalBefore removes terminal-state rows created before cutoff
	// and returns the count plus the status/kind distribution of what was
	// deleted.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, []StatBucket, error)
}

// Clock abstracts time so periodic jobs and tests control it.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock Clock used outside tests.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
