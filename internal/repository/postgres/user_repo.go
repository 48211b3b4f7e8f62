package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/Remindus/internal/domain/user"
)

var _ user.Repo = (*UserRepo)(nil)

// UserRepo reads the account rows the engine needs for addressing. Account
// writes belong to the CRUD side.
type UserRepo struct{ db *DB }

func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const qUserByID = `
SELECT id, email, COALESCE(fcm_token, ''), created_at
FROM users
WHERE id = $1;`

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var u user.User
	if err := r.db.Pool.QueryRow(ctx, qUserByID, id).
		Scan(&u.ID, &u.Email, &u.FCMToken, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
