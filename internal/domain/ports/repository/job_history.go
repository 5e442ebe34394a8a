package repository

import (
	"context"

	"telegram-media-relay/internal/domain/model"
)

type JobHistoryRepository interface {
	Save(ctx context.Context, tx Tx, rec *model.JobRecord) error
	// ListRecent returns the newest records first.
	ListRecent(ctx context.Context, tx Tx, tgID int64, limit int) ([]*model.JobRecord, error)
}
