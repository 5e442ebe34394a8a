package usecase

import (
	"context"
	"strings"

	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/domain/ports/repository"
	"telegram-media-relay/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ RelayUseCase = (*relayUC)(nil)

// RelayQueue is the worker-side registry the use case feeds.
type RelayQueue interface {
	Submit(job model.Job) (int, error)
	Cancel(requesterID int64) int
	IsBusy(requesterID int64) bool
	Pending(requesterID int64) int
}

// RelayUseCase is what the chat front-end and the admin API call to queue and manage jobs.
type RelayUseCase interface {
	EnqueueJob(ctx context.Context, job model.Job) (int, error)
	EnqueueURL(ctx context.Context, tgID, chatID int64, rawURL string) (model.Job, int, error)
	EnqueueAttachment(ctx context.Context, tgID, chatID int64, ref model.AttachmentRef) (model.Job, int, error)
	Cancel(ctx context.Context, tgID int64) int
	IsBusy(ctx context.Context, tgID int64) bool
	Pending(ctx context.Context, tgID int64) int
	History(ctx context.Context, tgID int64, limit int) ([]*model.JobRecord, error)
}

type relayUC struct {
	queue   RelayQueue
	history repository.JobHistoryRepository
	log     *zerolog.Logger
}

func NewRelayUseCase(queue RelayQueue, history repository.JobHistoryRepository, logger *zerolog.Logger) *relayUC {
	return &relayUC{queue: queue, history: history, log: logger}
}

func (r *relayUC) EnqueueJob(ctx context.Context, job model.Job) (int, error) {
	defer logging.TraceDuration(r.log, "RelayUC.EnqueueJob")()
	return r.queue.Submit(job)
}

func (r *relayUC) EnqueueURL(ctx context.Context, tgID, chatID int64, rawURL string) (model.Job, int, error) {
	job := model.NewJob(tgID, chatID, model.RemoteURL(strings.TrimSpace(rawURL)))
	pos, err := r.EnqueueJob(ctx, job)
	return job, pos, err
}

func (r *relayUC) EnqueueAttachment(ctx context.Context, tgID, chatID int64, ref model.AttachmentRef) (model.Job, int, error) {
	job := model.NewJob(tgID, chatID, model.Attachment(ref))
	pos, err := r.EnqueueJob(ctx, job)
	return job, pos, err
}

func (r *relayUC) Cancel(ctx context.Context, tgID int64) int {
	return r.queue.Cancel(tgID)
}

func (r *relayUC) IsBusy(ctx context.Context, tgID int64) bool {
	return r.queue.IsBusy(tgID)
}

func (r *relayUC) Pending(ctx context.Context, tgID int64) int {
	return r.queue.Pending(tgID)
}

func (r *relayUC) History(ctx context.Context, tgID int64, limit int) ([]*model.JobRecord, error) {
	if r.history == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	return r.history.ListRecent(ctx, nil, tgID, limit)
}
