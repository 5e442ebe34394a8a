package uploader

import (
	"context"
	"fmt"
	"io"

	"telegram-media-relay/internal/config"
	"telegram-media-relay/internal/domain"
	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/domain/ports/adapter"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

var _ adapter.RemoteUploader = (*GCS)(nil)

// GCS streams files into a Cloud Storage bucket. The token is the object name.
type GCS struct {
	client *storage.Client
	bucket string
	log    *zerolog.Logger
}

// NewGCS uses the credentials file when set and application default credentials otherwise.
func NewGCS(ctx context.Context, cfg config.GCSConfig, log *zerolog.Logger) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, &domain.ConfigError{Key: "upload.gcs.bucket"}
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCS{client: client, bucket: cfg.Bucket, log: log}, nil
}

func (u *GCS) Name() string { return "gcs" }

func (u *GCS) Close() error { return u.client.Close() }

func (u *GCS) Upload(ctx context.Context, req model.UploadRequest, progress *model.ProgressStream) (model.UploadResult, error) {
	f, size, err := openLocal(req.LocalPath)
	if err != nil {
		return model.UploadResult{}, domain.NewUploadError(u.Name(), err)
	}
	defer f.Close()

	name := objectKey(req.Target, req.FileName)
	progress.Send(model.Progress{Done: 0, Total: size})

	// Cancelling ctx aborts the resumable upload.
	wc := u.client.Bucket(u.bucket).Object(name).NewWriter(ctx)
	wc.ContentType = req.ContentType
	if _, err := io.Copy(wc, newProgressReader(f, size, progress)); err != nil {
		_ = wc.Close()
		return model.UploadResult{}, domain.NewUploadError(u.Name(), fmt.Errorf("io.Copy: %w", err))
	}
	if err := wc.Close(); err != nil {
		return model.UploadResult{}, domain.NewUploadError(u.Name(), fmt.Errorf("Writer.Close: %w", err))
	}

	progress.Send(model.Progress{Done: size, Total: size})
	u.log.Debug().Str("bucket", u.bucket).Str("object", name).Msg("gcs upload complete")
	return model.UploadResult{Token: name}, nil
}
