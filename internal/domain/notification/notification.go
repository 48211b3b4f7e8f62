package notification

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies what a scheduled notification is about.
type Kind string

const (
	KindAdvanceReminder Kind = "advance_reminder"
	KindStartReminder   Kind = "start_reminder"
	KindSnoozeReminder  Kind = "snooze_reminder"
	KindCancellation    Kind = "cancellation"
)

// Status is the delivery state machine of a notification.
type Status string

const (
	StatusPending      Status = "pending"
	StatusSent         Status = "sent"
	StatusFailed       Status = "failed"
	StatusAcknowledged Status = "acknowledged"
	StatusCancelled    Status = "cancelled"
)

// Terminal reports whether no engine-driven transition leaves this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSent, StatusFailed, StatusAcknowledged, StatusCancelled:
		return true
	}
	return false
}

// ChannelKind names a delivery channel.
type ChannelKind string

const (
	ChannelPush     ChannelKind = "push"
	ChannelEmail    ChannelKind = "email"
	ChannelRealtime ChannelKind = "realtime"
)

// User actions accepted on an advance reminder.
const (
	ActionConfirmed = "confirmed"
	ActionSnooze    = "snooze"
	ActionReady     = "ready"
	ActionDismissed = "dismissed"
)

// ChannelOutcome is the result of one channel attempt.
type ChannelOutcome struct {
	Success bool      `json:"success"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// DeliveryReceipt keeps the last per-channel outcome, for observability.
type DeliveryReceipt map[ChannelKind]ChannelOutcome

// Metadata is free-form per-notification data persisted as jsonb.
type Metadata struct {
	Title         string   `json:"title,omitempty"`
	Actions       []string `json:"actions,omitempty"`
	SnoozeCount   int      `json:"snooze_count,omitempty"`
	OffsetMinutes int      `json:"offset_minutes,omitempty"`
}

// Notification is one unit of scheduled delivery work.
type Notification struct {
	ID             uuid.UUID       `json:"id"`
	UserID         int64           `json:"user_id"`
	EventID        int64           `json:"event_id"`
	Kind           Kind            `json:"kind"`
	Status         Status          `json:"status"`
	ScheduledAt    time.Time       `json:"scheduled_at"`
	Channels       []ChannelKind   `json:"channels"`
	RetryCount     int             `json:"retry_count"`
	MaxRetries     int             `json:"max_retries"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`
	FailedAt       *time.Time      `json:"failed_at,omitempty"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
	Metadata       Metadata        `json:"metadata"`
	Receipt        DeliveryReceipt `json:"delivery_receipt,omitempty"`
	Read           bool            `json:"read"`
	CreatedAt      time.Time       `json:"created_at"`
}

// DefaultMaxRetries bounds automatic redelivery of a failed notification.
const DefaultMaxRetries = 3

// AllowsAction reports whether the user may respond to this notification
// with the given action.
func (n *Notification) AllowsAction(action string) bool {
	for _, a := range n.Metadata.Actions {
		if a == action {
			return true
		}
	}
	return false
}
