package adapter

import (
	"context"

	"telegram-media-relay/internal/domain/model"
)

// SourceFetcher writes the bytes behind a job input to dest.
type SourceFetcher interface {
	Fetch(ctx context.Context, in model.Input, dest string, progress *model.ProgressStream) (model.FetchedFile, error)
}

// RemoteUploader sends a local file to the remote storage endpoint.
// A failure is always reported as an error; a nil error implies a non-empty token.
type RemoteUploader interface {
	Name() string
	Upload(ctx context.Context, req model.UploadRequest, progress *model.ProgressStream) (model.UploadResult, error)
}
