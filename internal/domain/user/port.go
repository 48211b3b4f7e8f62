package user

import (
	"context"
	"time"
)

// User is the slice of account data the engine needs to address a person:
// an email for the mail channel and a device token for push. Account
// management itself lives outside the engine.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FCMToken  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type Repo interface {
	GetByID(ctx context.Context, id int64) (*User, error)
}
