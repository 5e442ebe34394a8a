package usecase

import "context"

// UploadTargetResolver supplies the upload destination for a requester.
// The relay worker calls it once per job, right before uploading.
type UploadTargetResolver interface {
	UploadTarget(ctx context.Context, tgID int64) (string, error)
}
