package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"telegram-media-relay/internal/domain/ports/repository"
	"telegram-media-relay/internal/infra/metrics"
)

var (
	_ repository.SettingsRepository = (*SettingsRepo)(nil)
	_ repository.AccessRepository   = (*AccessRepo)(nil)
)

const (
	fieldLang   = "lang"
	fieldTarget = "target"

	allowedUsersKey = "allowed_users"
)

// SettingsRepo keeps per-user preferences in one hash per user, refreshed on every write.
type SettingsRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewSettingsRepo(client RedisClient, ttl time.Duration) *SettingsRepo {
	return &SettingsRepo{client: client, ttl: ttl}
}

func (s *SettingsRepo) settingsKey(tgID int64) string {
	return fmt.Sprintf("user_settings:%d", tgID)
}

func (s *SettingsRepo) get(ctx context.Context, tgID int64, field string) (string, error) {
	v, err := s.client.HGet(ctx, s.settingsKey(tgID), field)
	if IsNil(err) {
		metrics.IncCacheRequest("settings", "miss")
		return "", nil
	}
	if err != nil {
		return "", err
	}
	metrics.IncCacheRequest("settings", "hit")
	return v, nil
}

func (s *SettingsRepo) set(ctx context.Context, tgID int64, field, value string) error {
	key := s.settingsKey(tgID)
	if err := s.client.HSet(ctx, key, field, value); err != nil {
		return err
	}
	if s.ttl > 0 {
		return s.client.Expire(ctx, key, s.ttl)
	}
	return nil
}

func (s *SettingsRepo) GetLang(ctx context.Context, tgID int64) (string, error) {
	return s.get(ctx, tgID, fieldLang)
}

func (s *SettingsRepo) SetLang(ctx context.Context, tgID int64, lang string) error {
	return s.set(ctx, tgID, fieldLang, lang)
}

func (s *SettingsRepo) GetUploadTarget(ctx context.Context, tgID int64) (string, error) {
	return s.get(ctx, tgID, fieldTarget)
}

func (s *SettingsRepo) SetUploadTarget(ctx context.Context, tgID int64, target string) error {
	return s.set(ctx, tgID, fieldTarget, target)
}

// AccessRepo is the allow-list kept as a Redis set of Telegram IDs.
type AccessRepo struct {
	client RedisClient
}

func NewAccessRepo(client RedisClient) *AccessRepo {
	return &AccessRepo{client: client}
}

func (a *AccessRepo) IsAllowed(ctx context.Context, tgID int64) (bool, error) {
	return a.client.SIsMember(ctx, allowedUsersKey, strconv.FormatInt(tgID, 10))
}

func (a *AccessRepo) Allow(ctx context.Context, tgID int64) error {
	return a.client.SAdd(ctx, allowedUsersKey, strconv.FormatInt(tgID, 10))
}

func (a *AccessRepo) Revoke(ctx context.Context, tgID int64) error {
	return a.client.SRem(ctx, allowedUsersKey, strconv.FormatInt(tgID, 10))
}

func (a *AccessRepo) List(ctx context.Context) ([]int64, error) {
	members, err := a.client.SMembers(ctx, allowedUsersKey)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
