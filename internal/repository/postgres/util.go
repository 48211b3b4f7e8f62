package postgres

import "errors"

// ErrNotFound covers lookups of externally owned rows (users, events).
// Notification lookups return the domain sentinel instead.
var ErrNotFound = errors.New("not found")
