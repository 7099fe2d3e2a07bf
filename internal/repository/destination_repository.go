package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/unclebandit/broadcast-dispatcher/internal/model"
)

// DestinationRepositoryInterface resolves a campaign's chat.
type DestinationRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Destination, error)
}

type DestinationRepository struct {
	DB *sqlx.DB
}

// GetByID returns nil, nil when the destination does not exist.
func (r *DestinationRepository) GetByID(ctx context.Context, id string) (*model.Destination, error) {
	var d model.Destination
	err := r.DB.GetContext(ctx, &d, `
        SELECT id, user_id, chat_id, integration_id
        FROM destinations
        WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// CredentialRepositoryInterface looks up connected bot integrations.
type CredentialRepositoryInterface interface {
	GetConnected(ctx context.Context, integrationID string) (*model.Integration, error)
	LatestConnected(ctx context.Context, userID string) (*model.Integration, error)
}

type CredentialRepository struct {
	DB *sqlx.DB
}

const integrationColumns = `id, user_id, bot_token, is_connected, created_at`

// GetConnected returns the integration only while it is connected; nil, nil otherwise.
func (r *CredentialRepository) GetConnected(ctx context.Context, integrationID string) (*model.Integration, error) {
	return r.one(ctx, `
        SELECT `+integrationColumns+`
        FROM integrations
        WHERE id = $1 AND is_connected`, integrationID)
}

// LatestConnected returns the user's most recently created connected integration.
func (r *CredentialRepository) LatestConnected(ctx context.Context, userID string) (*model.Integration, error) {
	return r.one(ctx, `
        SELECT `+integrationColumns+`
        FROM integrations
        WHERE user_id = $1 AND is_connected
        ORDER BY created_at DESC
        LIMIT 1`, userID)
}

func (r *CredentialRepository) one(ctx context.Context, query string, args ...any) (*model.Integration, error) {
	var in model.Integration
	if err := r.DB.GetContext(ctx, &in, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &in, nil
}

var _ DestinationRepositoryInterface = (*DestinationRepository)(nil)
var _ CredentialRepositoryInterface = (*CredentialRepository)(nil)
