package repository

import "context"

// SettingsRepository stores per-user preferences. Missing values are returned as "".
type SettingsRepository interface {
	GetLang(ctx context.Context, tgID int64) (string, error)
	SetLang(ctx context.Context, tgID int64, lang string) error
	GetUploadTarget(ctx context.Context, tgID int64) (string, error)
	SetUploadTarget(ctx context.Context, tgID int64, target string) error
}

// AccessRepository is the allow-list of users permitted to use the bot.
type AccessRepository interface {
	IsAllowed(ctx context.Context, tgID int64) (bool, error)
	Allow(ctx context.Context, tgID int64) error
	Revoke(ctx context.Context, tgID int64) error
	List(ctx context.Context) ([]int64, error)
}
