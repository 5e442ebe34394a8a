package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"telegram-media-relay/internal/domain"
	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/domain/ports/adapter"
	"telegram-media-relay/internal/domain/ports/repository"
	"telegram-media-relay/internal/domain/ports/usecase"
	"telegram-media-relay/internal/infra/metrics"
	"telegram-media-relay/internal/infra/progress"
	"telegram-media-relay/internal/infra/storage"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

type RelayProcessorDeps struct {
	Fetcher  adapter.SourceFetcher
	Uploader adapter.RemoteUploader
	Targets  usecase.UploadTargetResolver
	Sink     adapter.StatusSink
	Texts    adapter.Localizer
	Storage  *storage.Dir
	History  repository.JobHistoryRepository // optional
}

type RelayProcessorOptions struct {
	// Pause between two jobs of the same requester.
	JobPause     time.Duration
	EditInterval time.Duration
}

// RelayProcessor owns the per-requester queues and runs one worker per busy requester.
type RelayProcessor struct {
	queue    *Queue
	pool     *Pool
	deps     RelayProcessorDeps
	reporter *progress.Reporter
	pause    time.Duration
	log      *zerolog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

func NewRelayProcessor(deps RelayProcessorDeps, opts RelayProcessorOptions, log *zerolog.Logger) *RelayProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	return &RelayProcessor{
		queue:    NewQueue(),
		pool:     NewPool(log),
		deps:     deps,
		reporter: progress.NewReporter(deps.Sink, opts.EditInterval, log),
		pause:    opts.JobPause,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Submit queues job and starts a worker if the requester had none. It returns the job's
// position among the requester's pending jobs.
func (p *RelayProcessor) Submit(job model.Job) (int, error) {
	if err := job.Input.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if p.stopping.Load() {
		return 0, domain.ErrNotAllowed
	}
	pos, h := p.queue.Enqueue(job)
	p.log.Info().Str("job_id", job.ID).Int64("tg_id", job.RequesterID).Str("kind", string(job.Input.Kind)).Int("position", pos).Msg("job queued")
	if h != nil && !p.pool.Go(p.ctx, h, p.drain) {
		p.queue.release(h)
	}
	p.refreshGauges()
	return pos, nil
}

// Cancel drops the requester's pending jobs. A job already in progress is not interrupted.
func (p *RelayProcessor) Cancel(requesterID int64) int {
	n := p.queue.Clear(requesterID)
	if n > 0 {
		metrics.AddCancelledJobs(n)
		p.log.Info().Int64("tg_id", requesterID).Int("dropped", n).Msg("queue cleared")
	}
	p.refreshGauges()
	return n
}

func (p *RelayProcessor) IsBusy(requesterID int64) bool { return p.queue.Active(requesterID) }

func (p *RelayProcessor) Pending(requesterID int64) int { return p.queue.Len(requesterID) }

// Shutdown stops accepting jobs and lets running workers finish their current job.
// When ctx ends first, in-flight jobs are cancelled.
func (p *RelayProcessor) Shutdown(ctx context.Context) error {
	p.stopping.Store(true)
	err := p.pool.Stop(ctx)
	if err != nil {
		p.cancel()
		wait, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.pool.Stop(wait)
		return err
	}
	p.cancel()
	return nil
}

func (p *RelayProcessor) drain(ctx context.Context, h *Handle) {
	defer p.refreshGauges()
	defer p.queue.release(h)

	for {
		if ctx.Err() != nil || p.stopping.Load() {
			return
		}
		job, ok := p.queue.next(h)
		if !ok {
			return
		}
		p.refreshGauges()
		p.processOne(ctx, job)

		if p.pause > 0 && p.queue.HasPending(h.RequesterID) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.pause):
			}
		}
	}
}

// processOne runs one job to a terminal state. The transient file is released on every path.
func (p *RelayProcessor) processOne(ctx context.Context, job model.Job) {
	log := p.log.With().Str("job_id", job.ID).Int64("tg_id", job.RequesterID).Str("kind", string(job.Input.Kind)).Logger()
	rec := model.NewJobRecord(job)
	file := p.deps.Storage.Acquire(job.ID)
	start := time.Now()

	var status model.MessageHandle
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("relay job panicked")
			rec.Fail(fmt.Errorf("panic: %v", r))
			p.report(ctx, job, status, p.text(ctx, job, "video_error"))
		}
		if err := file.Release(); err != nil {
			log.Warn().Err(err).Str("path", file.Path).Msg("could not remove transient file")
		}
		metrics.IncJob(string(job.Input.Kind), string(rec.Status))
		p.saveHistory(rec, &log)
		log.Info().Str("status", string(rec.Status)).Dur("duration_ms", time.Since(start)).Msg("relay job finished")
	}()

	status = p.startStatus(ctx, job, &log)

	res, fetched, err := p.handleJob(ctx, job, file.Path, status)
	if err != nil {
		rec.Fail(err)
		key := "video_error"
		if errors.Is(err, domain.ErrConfig) && !errors.Is(err, domain.ErrFetch) {
			key = "target_missing"
		}
		log.Error().Err(err).Msg("relay job failed")
		p.report(ctx, job, status, p.text(ctx, job, key))
		return
	}

	rec.Complete(fetched.Name, res.Token)
	p.report(ctx, job, status, p.text(ctx, job, "video_done", res.Token, fetched.Name, humanize.Bytes(uint64(fetched.Size))))
}

func (p *RelayProcessor) handleJob(ctx context.Context, job model.Job, dest string, status model.MessageHandle) (model.UploadResult, model.FetchedFile, error) {
	var fetched model.FetchedFile
	err := p.tracked(ctx, job, status, "video_downloading", "fetch", func(stream *model.ProgressStream) error {
		var err error
		fetched, err = p.deps.Fetcher.Fetch(ctx, job.Input, dest, stream)
		return err
	})
	if err != nil {
		return model.UploadResult{}, fetched, err
	}

	// Resolved per job so a /target change applies to the next job.
	target, err := p.deps.Targets.UploadTarget(ctx, job.RequesterID)
	if err != nil {
		return model.UploadResult{}, fetched, err
	}

	req := model.UploadRequest{
		LocalPath:   fetched.Path,
		FileName:    fetched.Name,
		ContentType: fetched.ContentType,
		Target:      target,
	}
	var res model.UploadResult
	err = p.tracked(ctx, job, status, "video_uploading", "upload", func(stream *model.ProgressStream) error {
		var err error
		res, err = p.deps.Uploader.Upload(ctx, req, stream)
		return err
	})
	if err == nil && res.Empty() {
		err = domain.NewUploadError(p.deps.Uploader.Name(), errors.New("empty result"))
	}
	return res, fetched, err
}

// tracked runs stage while a reporter publishes its progress under the label for key.
func (p *RelayProcessor) tracked(ctx context.Context, job model.Job, status model.MessageHandle, key, stage string, run func(*model.ProgressStream) error) error {
	stream := model.NewProgressStream()
	label := p.text(ctx, job, key)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.reporter.Track(ctx, status, label, stream.C())
	}()

	start := time.Now()
	err := func() error {
		defer wg.Wait()
		defer stream.Close()
		return run(stream)
	}()
	metrics.ObserveStage(stage, time.Since(start), err == nil)
	return err
}

func (p *RelayProcessor) startStatus(ctx context.Context, job model.Job, log *zerolog.Logger) model.MessageHandle {
	h, err := p.deps.Sink.Send(ctx, job.ChatID, p.text(ctx, job, "video_starting"))
	if err != nil {
		// The job still runs; the outcome is sent as a new message.
		log.Warn().Err(err).Msg("could not send status message")
		return model.MessageHandle{}
	}
	return h
}

// report shows a terminal outcome, editing the status message when there is one.
func (p *RelayProcessor) report(ctx context.Context, job model.Job, status model.MessageHandle, text string) {
	if status.Valid() {
		if err := p.deps.Sink.Edit(ctx, status, text); err == nil {
			metrics.IncStatusEdit(true)
			return
		}
		metrics.IncStatusEdit(false)
	}
	if _, err := p.deps.Sink.Send(ctx, job.ChatID, text); err != nil {
		p.log.Warn().Err(err).Str("job_id", job.ID).Msg("could not report job outcome")
	}
}

func (p *RelayProcessor) text(ctx context.Context, job model.Job, key string, args ...interface{}) string {
	return p.deps.Texts.T(ctx, job.RequesterID, key, args...)
}

func (p *RelayProcessor) saveHistory(rec *model.JobRecord, log *zerolog.Logger) {
	if p.deps.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.deps.History.Save(ctx, nil, rec); err != nil {
		log.Warn().Err(err).Msg("could not save job history")
	}
}

func (p *RelayProcessor) refreshGauges() {
	active, pending := p.queue.Stats()
	metrics.SetActiveWorkers(active)
	metrics.SetPendingJobs(pending)
}
