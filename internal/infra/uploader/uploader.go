// Package uploader implements the remote storage backends a relay job can deliver to.
package uploader

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"telegram-media-relay/internal/config"
	"telegram-media-relay/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// New builds the configured backend wrapped in the retry and timeout policy.
func New(ctx context.Context, cfg config.UploadConfig, uploadTimeout time.Duration, log *zerolog.Logger) (adapter.RemoteUploader, error) {
	var (
		backend adapter.RemoteUploader
		err     error
	)
	switch cfg.Backend {
	case "", "hydrax":
		backend = NewHydrax(cfg.Hydrax.BaseURL, &http.Client{}, log)
	case "s3":
		backend, err = NewS3(cfg.S3, log)
	case "minio":
		backend, err = NewMinio(ctx, cfg.Minio, log)
	case "gcs":
		backend, err = NewGCS(ctx, cfg.GCS, log)
	case "sftp":
		backend, err = NewSFTP(cfg.SFTP, log)
	default:
		return nil, fmt.Errorf("unknown upload backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s uploader: %w", cfg.Backend, err)
	}
	return NewPolicy(backend, cfg.Attempts, cfg.RetryDelay, uploadTimeout, log), nil
}
