package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/unclebandit/broadcast-dispatcher/internal/media"
	"github.com/unclebandit/broadcast-dispatcher/internal/model"
)

type MediaPackRepository struct {
	DB *sqlx.DB
}

// GetMediaPack returns nil, nil when the pack does not exist.
func (r *MediaPackRepository) GetMediaPack(ctx context.Context, id string) (*model.MediaPack, error) {
	var p model.MediaPack
	err := r.DB.GetContext(ctx, &p, `SELECT id, name, files FROM media_packs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

var _ media.PackSource = (*MediaPackRepository)(nil)
