package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type UsageRepositoryInterface interface {
	IncrementLifetime(ctx context.Context, userID string, n int) error
}

type UsageRepository struct {
	DB *sqlx.DB
}

// IncrementLifetime adds n to the user's lifetime media counter, creating the row on first use.
func (r *UsageRepository) IncrementLifetime(ctx context.Context, userID string, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := r.DB.ExecContext(ctx, `
        INSERT INTO user_usage (user_id, lifetime_media_sent)
        VALUES ($1, $2)
        ON CONFLICT (user_id)
        DO UPDATE SET lifetime_media_sent = user_usage.lifetime_media_sent + EXCLUDED.lifetime_media_sent`,
		userID, n)
	return err
}

var _ UsageRepositoryInterface = (*UsageRepository)(nil)
