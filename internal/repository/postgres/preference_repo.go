package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/Remindus/internal/domain/notification"
	"github.com/NordCoder/Remindus/internal/domain/preference"
)

var _ preference.Resolver = (*PreferenceRepo)(nil)

type PreferenceRepo struct{ db *DB }

func NewPreferenceRepo(db *DB) *PreferenceRepo { return &PreferenceRepo{db: db} }

const qPrefByUser = `
SELECT user_id, channels, advance_offsets, quiet_enabled, quiet_start, quiet_end
FROM notification_preferences
WHERE user_id = $1;`

// GetPreferences resolves a user's delivery preferences. Users without a
// saved row get the engine defaults.
func (r *PreferenceRepo) GetPreferences(ctx context.Context, userID int64) (*preference.Preferences, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		p        preference.Preferences
		channels []string
		offsets  []int32
	)
	err := r.db.Pool.QueryRow(ctx, qPrefByUser, userID).Scan(
		&p.UserID, &channels, &offsets, &p.Quiet.Enabled, &p.Quiet.Start, &p.Quiet.End,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return preference.Default(userID), nil
		}
		return nil, fmt.Errorf("query preferences: %w", err)
	}

	for _, c := range channels {
		p.Channels = append(p.Channels, notification.ChannelKind(c))
	}
	for _, o := range offsets {
		p.AdvanceOffsets = append(p.AdvanceOffsets, int(o))
	}
	if len(p.AdvanceOffsets) == 0 {
		p.AdvanceOffsets = preference.Default(userID).AdvanceOffsets
	}
	return &p, nil
}
