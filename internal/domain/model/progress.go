package model

import "sync"

// Progress is a byte counter. Total <= 0 means the size is unknown.
type Progress struct {
	Done  int64
	Total int64
}

// Percent returns completion in [0,100]; unknown totals report 0.
func (p Progress) Percent() float64 {
	if p.Total <= 0 || p.Done <= 0 {
		return 0
	}
	if p.Done >= p.Total {
		return 100
	}
	return float64(p.Done) * 100 / float64(p.Total)
}

// ProgressStream is a latest-value channel: Send never blocks and the consumer always
// observes the most recent update. A single producer may send at a time.
type ProgressStream struct {
	ch   chan Progress
	once sync.Once
}

func NewProgressStream() *ProgressStream {
	return &ProgressStream{ch: make(chan Progress, 1)}
}

// Send replaces any unread value with p. Safe to call on a nil stream.
func (s *ProgressStream) Send(p Progress) {
	if s == nil {
		return
	}
	for {
		select {
		case s.ch <- p:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *ProgressStream) C() <-chan Progress { return s.ch }

// Close must be called by the producer once it is done sending.
func (s *ProgressStream) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() { close(s.ch) })
}
