package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper removes transient files older than maxAge and reports how many it deleted.
type Sweeper interface {
	Sweep(maxAge time.Duration) (int, error)
}

// SweepWorker periodically clears transient downloads that no job owns anymore,
// e.g. files left behind when the process was killed mid-job.
type SweepWorker struct {
	interval time.Duration
	maxAge   time.Duration
	dir      Sweeper
	log      *zerolog.Logger
}

func NewSweepWorker(interval, maxAge time.Duration, dir Sweeper, logger *zerolog.Logger) *SweepWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	if maxAge <= 0 {
		maxAge = 6 * time.Hour
	}
	sweepLog := logger.With().Str("component", "SweepWorker").Logger()
	return &SweepWorker{
		interval: interval,
		maxAge:   maxAge,
		dir:      dir,
		log:      &sweepLog,
	}
}

// RunOnce performs a single sweep; Run calls it on every tick.
func (w *SweepWorker) RunOnce() int {
	n, err := w.dir.Sweep(w.maxAge)
	if err != nil {
		w.log.Error().Err(err).Msg("sweep failed")
		return 0
	}
	if n > 0 {
		w.log.Info().Int("count", n).Dur("max_age", w.maxAge).Msg("stale transient files removed")
	}
	return n
}

func (w *SweepWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting sweep worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping sweep worker")
			return ctx.Err()
		case <-ticker.C:
			w.RunOnce()
		}
	}
}
