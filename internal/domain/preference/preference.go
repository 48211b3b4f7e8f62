package preference

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/Remindus/internal/domain/notification"
)

// QuietHours is a user-configured local-time window during which no new
// reminder is scheduled. Start and End are "HH:MM" wall-clock strings; the
// window may wrap midnight (Start > End).
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// Contains reports whether t's local time-of-day falls inside the window.
// A wrapping window (start > end) contains t when t >= start OR t <= end;
// otherwise containment is the plain closed interval.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, err := parseClock(q.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(q.End)
	if err != nil {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	if start > end {
		return m >= start || m <= end
	}
	return m >= start && m <= end
}

// parseClock turns "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return h*60 + m, nil
}

// Preferences is what the engine needs to know about a user to materialize
// reminders: which channels to try, how far in advance, and when to keep
// quiet.
type Preferences struct {
	UserID         int64                      `json:"user_id"`
	Channels       []notification.ChannelKind `json:"channels"`
	AdvanceOffsets []int                      `json:"advance_offsets"`
	Quiet          QuietHours                 `json:"quiet_hours"`
}

// Default is applied for users who never saved preferences.
func Default(userID int64) *Preferences {
	return &Preferences{
		UserID:         userID,
		Channels:       []notification.ChannelKind{notification.ChannelPush, notification.ChannelRealtime},
		AdvanceOffsets: []int{15, 60},
	}
}

// Resolver is the external-data-backed preference lookup.
type Resolver interface {
	GetPreferences(ctx context.Context, userID int64) (*Preferences, error)
}
