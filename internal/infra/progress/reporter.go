package progress

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultWidth = 20

	filledCell = "█"
	emptyCell  = "-"
)

// Render draws a fixed-width bar followed by the percentage, e.g. "[██████--------------] 30.0%".
func Render(percent float64, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	p := clamp(percent)
	filled := int(math.Floor(p * float64(width) / 100))
	if filled > width {
		filled = width
	}
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(strings.Repeat(filledCell, filled))
	b.WriteString(strings.Repeat(emptyCell, width-filled))
	b.WriteString("] ")
	b.WriteString(fmt.Sprintf("%.1f%%", p))
	return b.String()
}

func clamp(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Text is the full status message body for a label and percentage.
func Text(label string, percent float64) string {
	return label + "\n" + Render(percent, DefaultWidth)
}

// Publish replaces the sink message content with label and bar.
func Publish(ctx context.Context, sink adapter.StatusSink, h model.MessageHandle, label string, percent float64) error {
	if !h.Valid() {
		return nil
	}
	return sink.Edit(ctx, h, Text(label, percent))
}

// Reporter turns a progress stream into coalesced sink edits.
type Reporter struct {
	sink     adapter.StatusSink
	interval time.Duration
	log      *zerolog.Logger
}

// NewReporter builds a reporter that edits at most once per interval (0 disables the limit).
func NewReporter(sink adapter.StatusSink, interval time.Duration, log *zerolog.Logger) *Reporter {
	return &Reporter{sink: sink, interval: interval, log: log}
}

// Track publishes updates from stream until it is closed. Edits happen only when the whole
// percentage changes and the rate limit allows; the last value seen is always flushed on close.
// Sink errors are logged and otherwise ignored.
func (r *Reporter) Track(ctx context.Context, h model.MessageHandle, label string, stream <-chan model.Progress) {
	limit := rate.Inf
	if r.interval > 0 {
		limit = rate.Every(r.interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	published := -1.0
	pending := -1.0
	for p := range stream {
		pct := p.Percent()
		whole := math.Floor(pct)
		if whole == math.Floor(published) && published >= 0 {
			continue
		}
		pending = pct
		if !limiter.Allow() {
			continue
		}
		r.publish(ctx, h, label, pct)
		published = pct
		pending = -1
	}
	if pending >= 0 {
		r.publish(ctx, h, label, pending)
	}
}

func (r *Reporter) publish(ctx context.Context, h model.MessageHandle, label string, pct float64) {
	if err := Publish(ctx, r.sink, h, label, pct); err != nil {
		r.log.Debug().Err(err).Int64("chat_id", h.ChatID).Float64("percent", pct).Msg("progress edit rejected")
	}
}
