package uploader

import (
	"context"
	"errors"

	"telegram-media-relay/internal/config"
	"telegram-media-relay/internal/domain"
	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/domain/ports/adapter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

var _ adapter.RemoteUploader = (*S3)(nil)

// S3 stores files as objects under <target>/ in a bucket. The token is the object key.
type S3 struct {
	bucket   string
	uploader *manager.Uploader
	log      *zerolog.Logger
}

func NewS3(cfg config.S3Config, log *zerolog.Logger) (*S3, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, &domain.ConfigError{Key: "upload.s3.bucket/region"}
	}
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.AccessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	client := s3.New(opts)
	return &S3{bucket: cfg.Bucket, uploader: manager.NewUploader(client), log: log}, nil
}

func (u *S3) Name() string { return "s3" }

func (u *S3) Upload(ctx context.Context, req model.UploadRequest, progress *model.ProgressStream) (model.UploadResult, error) {
	f, size, err := openLocal(req.LocalPath)
	if err != nil {
		return model.UploadResult{}, domain.NewUploadError(u.Name(), err)
	}
	defer f.Close()

	key := objectKey(req.Target, req.FileName)
	progress.Send(model.Progress{Done: 0, Total: size})
	out, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        newProgressReader(f, size, progress),
		ContentType: aws.String(req.ContentType),
	})
	if err != nil {
		return model.UploadResult{}, domain.NewUploadError(u.Name(), err)
	}
	if out == nil || out.Key == nil || *out.Key == "" {
		return model.UploadResult{}, domain.NewUploadError(u.Name(), errors.New("no object key returned"))
	}
	progress.Send(model.Progress{Done: size, Total: size})
	u.log.Debug().Str("bucket", u.bucket).Str("key", *out.Key).Msg("s3 upload complete")
	return model.UploadResult{Token: *out.Key}, nil
}
