// Package dedup holds the short-lived guard that keeps the safety-net event
// scan from re-sending a reminder the materializer's records already cover.
// The guard is advisory and process-local; the notification row's status
// stays the durable source of truth.
package dedup

import (
	"sync"
	"time"

	"github.com/NordCoder/Remindus/internal/domain/notification"
)

// Key identifies one materialized reminder set: which event, which user. The
// scan backfills a pair's whole offset set in one shot, so the guard never
// needs per-offset granularity.
type Key struct {
	EventID int64
	UserID  int64
}

// Guard is a TTL'd set of reminder keys. It is injected, never a package
// singleton, so tests control its clock and engine instances don't share
// hidden state.
type Guard struct {
	mu    sync.Mutex
	seen  map[Key]time.Time
	ttl   time.Duration
	clock notification.Clock
}

func NewGuard(ttl time.Duration, clock notification.Clock) *Guard {
	return &Guard{
		seen:  make(map[Key]time.Time),
		ttl:   ttl,
		clock: clock,
	}
}

// Seen reports whether the key was marked within the TTL. Expired entries
// are dropped lazily.
func (g *Guard) Seen(k Key) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	at, ok := g.seen[k]
	if !ok {
		return false
	}
	if g.clock.Now().Sub(at) > g.ttl {
		delete(g.seen, k)
		return false
	}
	return true
}

func (g *Guard) Mark(k Key) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[k] = g.clock.Now()
}

// Clear wipes the whole set and returns how many entries were dropped. The
// scheduler runs it hourly.
func (g *Guard) Clear() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.seen)
	g.seen = make(map[Key]time.Time)
	return n
}

// Len is test-facing.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
