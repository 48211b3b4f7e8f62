// Package channel defines the delivery capability the dispatcher fans out
// over: one Sender per channel kind, looked up through a Registry by the
// notification's channel set.
package channel

import (
	"context"
	"fmt"

	"github.com/NordCoder/Remindus/internal/domain/notification"
)

// Outcome is one channel attempt's result. Failures are values, not errors:
// the dispatcher aggregates them into the delivery receipt.
type Outcome struct {
	Success bool
	Detail  string
}

func ok() Outcome                { return Outcome{Success: true} }
func fail(detail string) Outcome { return Outcome{Success: false, Detail: detail} }
func failErr(err error) Outcome  { return Outcome{Success: false, Detail: err.Error()} }

// Recipient carries the addressing data a sender may need. Fields a given
// channel does not use stay empty.
type Recipient struct {
	UserID   int64
	Email    string
	FCMToken string
}

// Sender delivers one notification over one channel.
type Sender interface {
	Kind() notification.ChannelKind
	Send(ctx context.Context, n *notification.Notification, rcpt Recipient) Outcome
}

// Registry maps channel kinds to their senders.
type Registry struct {
	senders map[notification.ChannelKind]Sender
}

func NewRegistry(senders ...Sender) *Registry {
	m := make(map[notification.ChannelKind]Sender, len(senders))
	for _, s := range senders {
		m[s.Kind()] = s
	}
	return &Registry{senders: m}
}

func (r *Registry) Get(k notification.ChannelKind) (Sender, bool) {
	s, ok := r.senders[k]
	return s, ok
}

// Render produces the user-facing title and body for a notification.
func Render(n *notification.Notification) (title, body string) {
	name := n.Metadata.Title
	if name == "" {
		name = "your event"
	}
	switch n.Kind {
	case notification.KindAdvanceReminder:
		if n.Metadata.OffsetMinutes > 0 {
			return "Upcoming event", fmt.Sprintf("%s starts in %d minutes.", name, n.Metadata.OffsetMinutes)
		}
		return "Upcoming event", fmt.Sprintf("%s is coming up.", name)
	case notification.KindStartReminder:
		return "Starting now", fmt.Sprintf("%s is starting now.", name)
	case notification.KindSnoozeReminder:
		return "Snoozed reminder", fmt.Sprintf("Reminder: %s.", name)
	case notification.KindCancellation:
		return "Event cancelled", fmt.Sprintf("%s was cancelled.", name)
	}
	return "Notification", name
}
