package usecase

import (
	"context"
	"fmt"
	"strings"

	"telegram-media-relay/internal/domain"
	"telegram-media-relay/internal/domain/ports/repository"
	ucport "telegram-media-relay/internal/domain/ports/usecase"
	"telegram-media-relay/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time checks
var (
	_ UserUseCase                 = (*userUC)(nil)
	_ ucport.UploadTargetResolver = (*userUC)(nil)
)

// UserUseCase covers access control and per-user settings used by the bot and admin flows.
type UserUseCase interface {
	IsCreator(tgID int64) bool
	IsAllowed(ctx context.Context, tgID int64) (bool, error)
	Allow(ctx context.Context, actorID, tgID int64) error
	Revoke(ctx context.Context, actorID, tgID int64) error
	ListAllowed(ctx context.Context) ([]int64, error)

	Lang(ctx context.Context, tgID int64) string
	SetLang(ctx context.Context, tgID int64, lang string) error

	UploadTarget(ctx context.Context, tgID int64) (string, error)
	SetUploadTarget(ctx context.Context, tgID int64, target string) error
}

type userUC struct {
	creatorID     int64
	defaultLang   string
	langs         map[string]bool
	defaultTarget string

	access   repository.AccessRepository
	settings repository.SettingsRepository
	log      *zerolog.Logger
}

func NewUserUseCase(
	creatorID int64,
	defaultLang string,
	supportedLangs []string,
	defaultTarget string,
	access repository.AccessRepository,
	settings repository.SettingsRepository,
	logger *zerolog.Logger,
) *userUC {
	langs := make(map[string]bool, len(supportedLangs))
	for _, l := range supportedLangs {
		langs[strings.ToLower(l)] = true
	}
	return &userUC{
		creatorID:     creatorID,
		defaultLang:   defaultLang,
		langs:         langs,
		defaultTarget: strings.TrimSpace(defaultTarget),
		access:        access,
		settings:      settings,
		log:           logger,
	}
}

func (u *userUC) IsCreator(tgID int64) bool { return tgID == u.creatorID }

// IsAllowed is always true for the creator, whatever the allow-list says.
func (u *userUC) IsAllowed(ctx context.Context, tgID int64) (bool, error) {
	if u.IsCreator(tgID) {
		return true, nil
	}
	return u.access.IsAllowed(ctx, tgID)
}

func (u *userUC) Allow(ctx context.Context, actorID, tgID int64) error {
	defer logging.TraceDuration(u.log, "UserUC.Allow")()
	if !u.IsCreator(actorID) {
		return domain.ErrNotAllowed
	}
	if tgID <= 0 {
		return domain.ErrInvalidArgument
	}
	if err := u.access.Allow(ctx, tgID); err != nil {
		return err
	}
	u.log.Info().Int64("actor", actorID).Int64("tg_id", tgID).Msg("user added to allow-list")
	return nil
}

func (u *userUC) Revoke(ctx context.Context, actorID, tgID int64) error {
	defer logging.TraceDuration(u.log, "UserUC.Revoke")()
	if !u.IsCreator(actorID) {
		return domain.ErrNotAllowed
	}
	if tgID <= 0 || u.IsCreator(tgID) {
		return domain.ErrInvalidArgument
	}
	if err := u.access.Revoke(ctx, tgID); err != nil {
		return err
	}
	u.log.Info().Int64("actor", actorID).Int64("tg_id", tgID).Msg("user removed from allow-list")
	return nil
}

func (u *userUC) ListAllowed(ctx context.Context) ([]int64, error) {
	ids, err := u.access.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if id == u.creatorID {
			return ids, nil
		}
	}
	return append([]int64{u.creatorID}, ids...), nil
}

// Lang falls back to the default language on a miss or a storage error.
func (u *userUC) Lang(ctx context.Context, tgID int64) string {
	lang, err := u.settings.GetLang(ctx, tgID)
	if err != nil {
		u.log.Debug().Err(err).Int64("tg_id", tgID).Msg("lang lookup failed")
		return u.defaultLang
	}
	if lang == "" || !u.langs[lang] {
		return u.defaultLang
	}
	return lang
}

func (u *userUC) SetLang(ctx context.Context, tgID int64, lang string) error {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if !u.langs[lang] {
		return fmt.Errorf("%w: unsupported language %q", domain.ErrInvalidArgument, lang)
	}
	return u.settings.SetLang(ctx, tgID, lang)
}

// UploadTarget returns the user's own target, else the deployment default.
func (u *userUC) UploadTarget(ctx context.Context, tgID int64) (string, error) {
	target, err := u.settings.GetUploadTarget(ctx, tgID)
	if err != nil {
		return "", err
	}
	if target = strings.TrimSpace(target); target != "" {
		return target, nil
	}
	if u.defaultTarget != "" {
		return u.defaultTarget, nil
	}
	return "", &domain.ConfigError{Key: "upload.default_target"}
}

func (u *userUC) SetUploadTarget(ctx context.Context, tgID int64, target string) error {
	target = strings.TrimSpace(target)
	if target == "" || strings.ContainsAny(target, " \t\n/\\") {
		return domain.ErrInvalidArgument
	}
	return u.settings.SetUploadTarget(ctx, tgID, target)
}
