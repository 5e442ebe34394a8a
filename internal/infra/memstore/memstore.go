// Package memstore holds process-local fallbacks used when Redis or Postgres are not configured.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/domain/ports/repository"

	"golang.org/x/time/rate"
)

var (
	_ repository.SettingsRepository   = (*Settings)(nil)
	_ repository.AccessRepository     = (*Access)(nil)
	_ repository.JobHistoryRepository = (*History)(nil)
)

type userSettings struct {
	lang   string
	target string
}

type Settings struct {
	mu    sync.RWMutex
	users map[int64]userSettings
}

func NewSettings() *Settings {
	return &Settings{users: make(map[int64]userSettings)}
}

func (s *Settings) GetLang(ctx context.Context, tgID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[tgID].lang, nil
}

func (s *Settings) SetLang(ctx context.Context, tgID int64, lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[tgID]
	u.lang = lang
	s.users[tgID] = u
	return nil
}

func (s *Settings) GetUploadTarget(ctx context.Context, tgID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[tgID].target, nil
}

func (s *Settings) SetUploadTarget(ctx context.Context, tgID int64, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[tgID]
	u.target = target
	s.users[tgID] = u
	return nil
}

type Access struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

func NewAccess(seed ...int64) *Access {
	a := &Access{ids: make(map[int64]struct{})}
	for _, id := range seed {
		a.ids[id] = struct{}{}
	}
	return a
}

func (a *Access) IsAllowed(ctx context.Context, tgID int64) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.ids[tgID]
	return ok, nil
}

func (a *Access) Allow(ctx context.Context, tgID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids[tgID] = struct{}{}
	return nil
}

func (a *Access) Revoke(ctx context.Context, tgID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.ids, tgID)
	return nil
}

func (a *Access) List(ctx context.Context) ([]int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]int64, 0, len(a.ids))
	for id := range a.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// History keeps the newest records per user, capped at perUser entries.
type History struct {
	mu      sync.RWMutex
	perUser int
	recs    map[int64][]*model.JobRecord
}

func NewHistory(perUser int) *History {
	if perUser <= 0 {
		perUser = 50
	}
	return &History{perUser: perUser, recs: make(map[int64][]*model.JobRecord)}
}

func (h *History) Save(ctx context.Context, tx repository.Tx, rec *model.JobRecord) error {
	cp := *rec
	h.mu.Lock()
	defer h.mu.Unlock()
	list := append(h.recs[rec.RequesterID], &cp)
	if len(list) > h.perUser {
		list = list[len(list)-h.perUser:]
	}
	h.recs[rec.RequesterID] = list
	return nil
}

func (h *History) ListRecent(ctx context.Context, tx repository.Tx, tgID int64, limit int) ([]*model.JobRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := h.recs[tgID]
	out := make([]*model.JobRecord, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *list[i]
		out = append(out, &cp)
	}
	return out, nil
}

// RateLimiter is a per-key token bucket that refills limit tokens per window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*rate.Limiter)}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	l, ok := r.buckets[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(window/time.Duration(max(limit, 1))), max(limit, 1))
		r.buckets[key] = l
	}
	r.mu.Unlock()
	return l.Allow(), nil
}
