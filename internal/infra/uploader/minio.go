package uploader

import (
	"context"
	"fmt"

	"telegram-media-relay/internal/config"
	"telegram-media-relay/internal/domain"
	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/domain/ports/adapter"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

var _ adapter.RemoteUploader = (*Minio)(nil)

// Minio stores files in an S3-compatible bucket, creating the bucket on first use.
type Minio struct {
	client *minio.Client
	bucket string
	log    *zerolog.Logger
}

func NewMinio(ctx context.Context, cfg config.MinioConfig, log *zerolog.Logger) (*Minio, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, &domain.ConfigError{Key: "upload.minio.endpoint/bucket"}
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return &Minio{client: client, bucket: cfg.Bucket, log: log}, nil
}

func (u *Minio) Name() string { return "minio" }

func (u *Minio) Upload(ctx context.Context, req model.UploadRequest, progress *model.ProgressStream) (model.UploadResult, error) {
	f, size, err := openLocal(req.LocalPath)
	if err != nil {
		return model.UploadResult{}, domain.NewUploadError(u.Name(), err)
	}
	defer f.Close()

	key := objectKey(req.Target, req.FileName)
	progress.Send(model.Progress{Done: 0, Total: size})
	info, err := u.client.PutObject(ctx, u.bucket, key, newProgressReader(f, size, progress), size, minio.PutObjectOptions{
		ContentType: req.ContentType,
	})
	if err != nil {
		return model.UploadResult{}, domain.NewUploadError(u.Name(), err)
	}
	progress.Send(model.Progress{Done: size, Total: size})
	u.log.Debug().Str("bucket", u.bucket).Str("key", info.Key).Str("etag", info.ETag).Msg("minio upload complete")
	return model.UploadResult{Token: info.Key}, nil
}
