package event

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Repo implementations for unknown event IDs.
var ErrNotFound = errors.New("event not found")

// Event is the calendar entity the engine schedules reminders for. Event
// CRUD is an external collaborator; the engine only reads.
type Event struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	Title     string    `json:"title"`
	StartAt   time.Time `json:"start_at"`
	Timezone  string    `json:"timezone"`
	Cancelled bool      `json:"cancelled"`
	CreatedAt time.Time `json:"created_at"`
}

// Location resolves the event's timezone, falling back to UTC when the
// name is empty or unknown.
func (e *Event) Location() *time.Location {
	if e.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Repo interface {
	GetByID(ctx context.Context, id int64) (*Event, error)
	// ListStartingBetween returns non-cancelled events with a start time in
	// [from, to). Used by the safety-net scan.
	ListStartingBetween(ctx context.Context, from, to time.Time) ([]*Event, error)
	// ParticipantIDs returns the owner plus invited users of an event.
	ParticipantIDs(ctx context.Context, eventID int64) ([]int64, error)
}
