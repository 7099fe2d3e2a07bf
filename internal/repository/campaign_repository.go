package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/unclebandit/broadcast-dispatcher/internal/errors"
	"github.com/unclebandit/broadcast-dispatcher/internal/model"
)

type CampaignRepositoryInterface interface {
	// Reservation. Each returns nil, nil when nothing is eligible.
	SelectAndReserve(ctx context.Context, leaseTTL time.Duration) (*model.Campaign, error)
	ReserveStalled(ctx context.Context, idleFor, leaseTTL time.Duration) (*model.Campaign, error)
	ReserveByID(ctx context.Context, id string, offset int, leaseTTL time.Duration) (*model.Campaign, error)

	// Ledger writes
	CommitChunk(ctx context.Context, c *model.Campaign, prevSentCount int) (bool, error)
	MarkCompleted(ctx context.Context, id string, progress int) error
	MarkFailed(ctx context.Context, id, message string) error
	Release(ctx context.Context, id string) error
}

type CampaignRepository struct {
	DB *sqlx.DB
}

const campaignColumns = `
    id, user_id, destination_id, media_pack_id, use_private_storage, caption,
    total_count, sent_count, success_count, error_count, progress, avg_send_time_ms,
    status, delay_seconds, errors_log, error_message, leased_until,
    created_at, updated_at, completed_at`

// ====================== Reservation ======================

// SelectAndReserve leases the running campaign with the oldest updated_at in
// a single statement. Rows locked by a concurrent claimer are skipped, so two
// callers never reserve the same campaign.
func (r *CampaignRepository) SelectAndReserve(ctx context.Context, leaseTTL time.Duration) (*model.Campaign, error) {
	query := `
        UPDATE campaigns
        SET updated_at = NOW(), leased_until = NOW() + make_interval(secs => $1)
        WHERE status = 'running' AND id = (
            SELECT id FROM campaigns
            WHERE status = 'running' AND (leased_until IS NULL OR leased_until < NOW())
            ORDER BY updated_at
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING` + campaignColumns
	return r.reserve(ctx, query, leaseTTL.Seconds())
}

// ReserveStalled is SelectAndReserve restricted to campaigns nobody touched for idleFor.
func (r *CampaignRepository) ReserveStalled(ctx context.Context, idleFor, leaseTTL time.Duration) (*model.Campaign, error) {
	query := `
        UPDATE campaigns
        SET updated_at = NOW(), leased_until = NOW() + make_interval(secs => $1)
        WHERE status = 'running' AND id = (
            SELECT id FROM campaigns
            WHERE status = 'running'
              AND (leased_until IS NULL OR leased_until < NOW())
              AND updated_at < NOW() - make_interval(secs => $2)
            ORDER BY updated_at
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING` + campaignColumns
	return r.reserve(ctx, query, leaseTTL.Seconds(), idleFor.Seconds())
}

// ReserveByID leases campaign id only while it is running, unleased and its
// sent_count still equals offset. Otherwise it returns ErrStaleContinuation,
// or ErrCampaignNotFound when the row is gone.
func (r *CampaignRepository) ReserveByID(ctx context.Context, id string, offset int, leaseTTL time.Duration) (*model.Campaign, error) {
	query := `
        UPDATE campaigns
        SET updated_at = NOW(), leased_until = NOW() + make_interval(secs => $3)
        WHERE id = $1 AND status = 'running' AND sent_count = $2
          AND (leased_until IS NULL OR leased_until < NOW())
        RETURNING` + campaignColumns
	c, err := r.reserve(ctx, query, id, offset, leaseTTL.Seconds())
	if err != nil || c != nil {
		return c, err
	}

	var exists bool
	if err := r.DB.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, id); err != nil {
		return nil, err
	}
	if !exists {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return nil, appErrors.ErrStaleContinuation
}

func (r *CampaignRepository) reserve(ctx context.Context, query string, args ...any) (*model.Campaign, error) {
	var c model.Campaign
	if err := r.DB.GetContext(ctx, &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ====================== Ledger writes ======================

// CommitChunk writes the chunk outcome and releases the lease. The write only
// applies while sent_count still equals prevSentCount; false means another
// writer advanced the campaign first and nothing was changed. An external
// status change made while the chunk ran is kept.
func (r *CampaignRepository) CommitChunk(ctx context.Context, c *model.Campaign, prevSentCount int) (bool, error) {
	query := `
        UPDATE campaigns
        SET sent_count = $2,
            success_count = $3,
            error_count = $4,
            progress = $5,
            avg_send_time_ms = $6,
            errors_log = $7,
            status = CASE WHEN status = 'running' THEN $8::text ELSE status END,
            completed_at = CASE WHEN status = 'running' AND $8::text = 'completed' THEN NOW() ELSE completed_at END,
            leased_until = NULL,
            updated_at = NOW()
        WHERE id = $1 AND sent_count = $9
    `
	res, err := r.DB.ExecContext(ctx, query,
		c.ID, c.SentCount, c.SuccessCount, c.ErrorCount, c.Progress, c.AvgSendTimeMs,
		c.ErrorsLog, string(c.Status), prevSentCount,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *CampaignRepository) MarkCompleted(ctx context.Context, id string, progress int) error {
	query := `
        UPDATE campaigns
        SET status = 'completed', progress = $2, completed_at = NOW(), leased_until = NULL, updated_at = NOW()
        WHERE id = $1 AND status = 'running'
    `
	_, err := r.DB.ExecContext(ctx, query, id, progress)
	return err
}

func (r *CampaignRepository) MarkFailed(ctx context.Context, id, message string) error {
	query := `
        UPDATE campaigns
        SET status = 'failed', error_message = $2, leased_until = NULL, updated_at = NOW()
        WHERE id = $1 AND status = 'running'
    `
	_, err := r.DB.ExecContext(ctx, query, id, message)
	return err
}

// Release drops the lease without touching progress so the campaign can be
// picked up again right away.
func (r *CampaignRepository) Release(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE campaigns SET leased_until = NULL WHERE id = $1`, id)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
