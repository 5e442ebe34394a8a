package uploader

import (
	"context"
	"errors"
	"io"
	"time"

	"telegram-media-relay/internal/domain"
	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/domain/ports/adapter"
	"telegram-media-relay/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.RemoteUploader = (*Policy)(nil)

// Policy bounds each attempt with a timeout and retries failed uploads up to attempts times.
// Configuration errors are never retried.
type Policy struct {
	next     adapter.RemoteUploader
	attempts int
	delay    time.Duration
	timeout  time.Duration
	log      *zerolog.Logger
}

func NewPolicy(next adapter.RemoteUploader, attempts int, delay, timeout time.Duration, log *zerolog.Logger) *Policy {
	if attempts <= 0 {
		attempts = 1
	}
	return &Policy{next: next, attempts: attempts, delay: delay, timeout: timeout, log: log}
}

func (p *Policy) Name() string { return p.next.Name() }

// Upload reports progress across attempts as one non-decreasing sequence: a retry starting
// again from 0% is not shown until it passes the furthest point already reported.
func (p *Policy) Upload(ctx context.Context, req model.UploadRequest, progress *model.ProgressStream) (model.UploadResult, error) {
	var (
		lastErr error
		mark    highWater
	)
	for attempt := 1; attempt <= p.attempts; attempt++ {
		res, err := p.once(ctx, req, progress, &mark)
		if err == nil && !res.Empty() {
			metrics.IncUploadAttempt(p.Name(), "ok")
			return res, nil
		}
		if err == nil {
			err = domain.NewUploadError(p.Name(), errors.New("empty result"))
		}
		metrics.IncUploadAttempt(p.Name(), "error")
		lastErr = err

		if errors.Is(err, domain.ErrConfig) || ctx.Err() != nil || attempt == p.attempts {
			break
		}
		p.log.Warn().Err(err).Int("attempt", attempt).Str("backend", p.Name()).Msg("upload failed, retrying")
		select {
		case <-ctx.Done():
			return model.UploadResult{}, domain.NewUploadError(p.Name(), ctx.Err())
		case <-time.After(p.delay):
		}
	}
	if !errors.Is(lastErr, domain.ErrUpload) {
		lastErr = domain.NewUploadError(p.Name(), lastErr)
	}
	return model.UploadResult{}, lastErr
}

func (p *Policy) once(ctx context.Context, req model.UploadRequest, progress *model.ProgressStream, mark *highWater) (model.UploadResult, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if progress == nil {
		return p.next.Upload(ctx, req, nil)
	}

	attempt := model.NewProgressStream()
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for v := range attempt.C() {
			mark.forward(progress, v)
		}
	}()
	res, err := p.next.Upload(ctx, req, attempt)
	attempt.Close()
	<-forwarded
	return res, err
}

// highWater drops progress values below the highest percentage already forwarded.
type highWater struct {
	max  float64
	sent bool
}

func (h *highWater) forward(out *model.ProgressStream, v model.Progress) {
	pct := v.Percent()
	if h.sent && pct < h.max {
		return
	}
	h.max, h.sent = pct, true
	out.Send(v)
}

// Close releases the backend's client when it holds one (GCS).
func (p *Policy) Close() error {
	if c, ok := p.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
