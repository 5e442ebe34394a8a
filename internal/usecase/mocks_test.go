// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"

	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/domain/ports/repository"
	"telegram-media-relay/internal/infra/logging"

	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger { return logging.Nop() }

// memSettings is a small in-memory settings store used by unit tests.
type memSettings struct {
	mu      sync.RWMutex
	langs   map[int64]string
	targets map[int64]string
	getErr  error
}

func newMemSettings() *memSettings {
	return &memSettings{langs: map[int64]string{}, targets: map[int64]string{}}
}

func (m *memSettings) GetLang(ctx context.Context, tgID int64) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.langs[tgID], nil
}

func (m *memSettings) SetLang(ctx context.Context, tgID int64, lang string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.langs[tgID] = lang
	return nil
}

func (m *memSettings) GetUploadTarget(ctx context.Context, tgID int64) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.targets[tgID], nil
}

func (m *memSettings) SetUploadTarget(ctx context.Context, tgID int64, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[tgID] = target
	return nil
}

type memAccess struct {
	mu  sync.RWMutex
	ids map[int64]bool
}

func newMemAccess(ids ...int64) *memAccess {
	m := &memAccess{ids: map[int64]bool{}}
	for _, id := range ids {
		m.ids[id] = true
	}
	return m
}

func (m *memAccess) IsAllowed(ctx context.Context, tgID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ids[tgID], nil
}

func (m *memAccess) Allow(ctx context.Context, tgID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[tgID] = true
	return nil
}

func (m *memAccess) Revoke(ctx context.Context, tgID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ids, tgID)
	return nil
}

func (m *memAccess) List(ctx context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int64, 0, len(m.ids))
	for id := range m.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// fakeQueue records submissions instead of running workers.
type fakeQueue struct {
	mu        sync.Mutex
	submitted []model.Job
	busy      map[int64]bool
	err       error
}

func (q *fakeQueue) Submit(job model.Job) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return 0, q.err
	}
	q.submitted = append(q.submitted, job)
	n := 0
	for _, j := range q.submitted {
		if j.RequesterID == job.RequesterID {
			n++
		}
	}
	return n, nil
}

func (q *fakeQueue) Cancel(requesterID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept, dropped := q.submitted[:0], 0
	for _, j := range q.submitted {
		if j.RequesterID == requesterID {
			dropped++
			continue
		}
		kept = append(kept, j)
	}
	q.submitted = kept
	return dropped
}

func (q *fakeQueue) IsBusy(requesterID int64) bool { return q.busy[requesterID] }

func (q *fakeQueue) Pending(requesterID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, j := range q.submitted {
		if j.RequesterID == requesterID {
			n++
		}
	}
	return n
}

type memHistory struct {
	recs []*model.JobRecord
	err  error
}

func (h *memHistory) Save(ctx context.Context, tx repository.Tx, rec *model.JobRecord) error {
	h.recs = append(h.recs, rec)
	return nil
}

func (h *memHistory) ListRecent(ctx context.Context, tx repository.Tx, tgID int64, limit int) ([]*model.JobRecord, error) {
	if h.err != nil {
		return nil, h.err
	}
	var out []*model.JobRecord
	for i := len(h.recs) - 1; i >= 0 && len(out) < limit; i-- {
		if h.recs[i].RequesterID == tgID {
			out = append(out, h.recs[i])
		}
	}
	return out, nil
}

var errStore = errors.New("store unavailable")
