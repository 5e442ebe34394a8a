package application

import (
	"context"
	"errors"
	"os"
	"regexp"
	"strconv"
	"strings"

	"telegram-media-relay/internal/domain"
	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/domain/ports/adapter"
	"telegram-media-relay/internal/infra/logging"
	"telegram-media-relay/internal/usecase"

	"github.com/rs/zerolog"
)

// BotFacade composes usecases into high-level bot commands.
// Methods return already localized text so the Telegram adapter just forwards it to the chat.
type BotFacade struct {
	UserUC  usecase.UserUseCase
	RelayUC usecase.RelayUseCase
	Texts   adapter.Localizer

	langs        []string
	logFile      string
	historyLimit int
	log          *zerolog.Logger
}

func NewBotFacade(
	userUC usecase.UserUseCase,
	relayUC usecase.RelayUseCase,
	texts adapter.Localizer,
	langs []string,
	logFile string,
	historyLimit int,
	logger *zerolog.Logger,
) *BotFacade {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &BotFacade{
		UserUC:       userUC,
		RelayUC:      relayUC,
		Texts:        texts,
		langs:        langs,
		logFile:      logFile,
		historyLimit: historyLimit,
		log:          logger,
	}
}

func (b *BotFacade) t(ctx context.Context, tgID int64, key string, args ...interface{}) string {
	return b.Texts.T(ctx, tgID, key, args...)
}

// Allowed treats a storage failure as "not allowed".
func (b *BotFacade) Allowed(ctx context.Context, tgID int64) bool {
	ok, err := b.UserUC.IsAllowed(ctx, tgID)
	if err != nil {
		b.log.Error().Err(err).Int64("tg_id", tgID).Msg("allow-list lookup failed")
		return false
	}
	return ok
}

func (b *BotFacade) IsCreator(tgID int64) bool { return b.UserUC.IsCreator(tgID) }

func (b *BotFacade) NotAllowed(ctx context.Context, tgID int64) string {
	return b.t(ctx, tgID, "not_allowed")
}

func (b *BotFacade) RateLimited(ctx context.Context, tgID int64) string {
	return b.t(ctx, tgID, "rate_limited")
}

func (b *BotFacade) InternalError(ctx context.Context, tgID int64) string {
	return b.t(ctx, tgID, "internal_error")
}

// HandleStart greets allowed users and logs denied attempts.
func (b *BotFacade) HandleStart(ctx context.Context, tgID int64) string {
	if !b.Allowed(ctx, tgID) {
		b.log.Info().Int64("tg_id", tgID).Msg("access denied")
		return b.NotAllowed(ctx, tgID)
	}
	b.log.Info().Int64("tg_id", tgID).Msg("user started the bot")
	return b.t(ctx, tgID, "welcome")
}

func (b *BotFacade) HandleHelp(ctx context.Context, tgID int64) string {
	return b.t(ctx, tgID, "help")
}

var langLabels = map[string]string{
	"es": "🇪🇸 Español",
	"en": "🇺🇸 English",
}

// LangCallbackPrefix prefixes the callback data of the language keyboard.
const LangCallbackPrefix = "lang_"

// LanguageMenu is the prompt and one-row keyboard offered by /setlang.
func (b *BotFacade) LanguageMenu(ctx context.Context, tgID int64) (string, [][]adapter.InlineButton) {
	row := make([]adapter.InlineButton, 0, len(b.langs))
	for _, code := range b.langs {
		label, ok := langLabels[code]
		if !ok {
			label = strings.ToUpper(code)
		}
		row = append(row, adapter.InlineButton{Text: label, Data: LangCallbackPrefix + code})
	}
	return b.t(ctx, tgID, "choose_lang"), [][]adapter.InlineButton{row}
}

// HandleSetLang stores the language picked from the keyboard and confirms in that language.
func (b *BotFacade) HandleSetLang(ctx context.Context, tgID int64, data string) (string, error) {
	code := strings.TrimPrefix(data, LangCallbackPrefix)
	if err := b.UserUC.SetLang(ctx, tgID, code); err != nil {
		return "", err
	}
	b.log.Info().Int64("tg_id", tgID).Str("lang", code).Msg("language changed")
	return b.t(ctx, tgID, "lang_set"), nil
}

// LogFile returns the path and caption of the activity log for the creator.
func (b *BotFacade) LogFile(ctx context.Context, actorID int64) (string, string, error) {
	if !b.UserUC.IsCreator(actorID) {
		return "", "", domain.ErrNotAllowed
	}
	if b.logFile == "" {
		return "", b.t(ctx, actorID, "log_missing"), domain.ErrNotFound
	}
	if _, err := os.Stat(b.logFile); err != nil {
		return "", b.t(ctx, actorID, "log_missing"), domain.ErrNotFound
	}
	return b.logFile, b.t(ctx, actorID, "log_caption"), nil
}

func (b *BotFacade) HandleAdd(ctx context.Context, actorID int64, args string) string {
	id, err := parseUserID(args)
	if err != nil {
		return b.t(ctx, actorID, "usage_add")
	}
	switch err := b.UserUC.Allow(ctx, actorID, id); {
	case errors.Is(err, domain.ErrNotAllowed):
		return b.NotAllowed(ctx, actorID)
	case errors.Is(err, domain.ErrInvalidArgument):
		return b.t(ctx, actorID, "usage_add")
	case err != nil:
		b.log.Error().Err(err).Int64("tg_id", id).Msg("allow user")
		return b.InternalError(ctx, actorID)
	}
	return b.t(ctx, actorID, "user_added", id)
}

func (b *BotFacade) HandleRemove(ctx context.Context, actorID int64, args string) string {
	id, err := parseUserID(args)
	if err != nil {
		return b.t(ctx, actorID, "usage_remove")
	}
	switch err := b.UserUC.Revoke(ctx, actorID, id); {
	case errors.Is(err, domain.ErrNotAllowed):
		return b.NotAllowed(ctx, actorID)
	case errors.Is(err, domain.ErrInvalidArgument):
		return b.t(ctx, actorID, "usage_remove")
	case err != nil:
		b.log.Error().Err(err).Int64("tg_id", id).Msg("revoke user")
		return b.InternalError(ctx, actorID)
	}
	return b.t(ctx, actorID, "user_removed", id)
}

func parseUserID(args string) (int64, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, domain.ErrInvalidArgument
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	return id, nil
}

// HandleCancel drops pending jobs; the job being processed is left alone.
func (b *BotFacade) HandleCancel(ctx context.Context, tgID int64) string {
	n := b.RelayUC.Cancel(ctx, tgID)
	if n == 0 {
		return b.t(ctx, tgID, "video_nothing_to_cancel")
	}
	return b.t(ctx, tgID, "video_cancelled", n)
}

func (b *BotFacade) HandleQueue(ctx context.Context, tgID int64) string {
	busy := b.t(ctx, tgID, "queue_busy_no")
	if b.RelayUC.IsBusy(ctx, tgID) {
		busy = b.t(ctx, tgID, "queue_busy_yes")
	}
	return b.t(ctx, tgID, "queue_status", b.RelayUC.Pending(ctx, tgID), busy)
}

func (b *BotFacade) HandleTarget(ctx context.Context, tgID int64, args string) string {
	target := strings.TrimSpace(args)
	if target == "" {
		return b.t(ctx, tgID, "usage_target")
	}
	if err := b.UserUC.SetUploadTarget(ctx, tgID, target); err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			return b.t(ctx, tgID, "usage_target")
		}
		b.log.Error().Err(err).Int64("tg_id", tgID).Msg("set upload target")
		return b.InternalError(ctx, tgID)
	}
	return b.t(ctx, tgID, "target_set", target)
}

const historyTimeLayout = "2006-01-02 15:04"

func (b *BotFacade) HandleHistory(ctx context.Context, tgID int64) string {
	recs, err := b.RelayUC.History(ctx, tgID, b.historyLimit)
	if err != nil {
		b.log.Error().Err(err).Int64("tg_id", tgID).Msg("load history")
		return b.InternalError(ctx, tgID)
	}
	if len(recs) == 0 {
		return b.t(ctx, tgID, "history_empty")
	}
	var sb strings.Builder
	sb.WriteString(b.t(ctx, tgID, "history_header"))
	for _, r := range recs {
		sb.WriteString("\n")
		when := r.FinishedAt.UTC().Format(historyTimeLayout)
		if r.Status == model.JobStatusCompleted {
			sb.WriteString(b.t(ctx, tgID, "history_line_ok", displayName(r), r.Result, when))
		} else {
			sb.WriteString(b.t(ctx, tgID, "history_line_failed", displayName(r), when))
		}
	}
	return sb.String()
}

func displayName(r *model.JobRecord) string {
	if r.FileName != "" {
		return r.FileName
	}
	return r.Source
}

var httpURLRe = regexp.MustCompile(`https?://[^\s<>"]+`)

// ExtractFirstURL returns the first http(s) URL in s, without trailing punctuation.
func ExtractFirstURL(s string) string {
	m := httpURLRe.FindString(s)
	return strings.TrimRight(m, ".,;:!?)]}'")
}

// HandleText queues the first link in a plain message.
func (b *BotFacade) HandleText(ctx context.Context, tgID, chatID int64, text string) string {
	link := ExtractFirstURL(text)
	if link == "" {
		return b.t(ctx, tgID, "unsupported_input")
	}
	_, pos, err := b.RelayUC.EnqueueURL(ctx, tgID, chatID, link)
	return b.queuedReply(ctx, tgID, pos, err)
}

func (b *BotFacade) HandleAttachment(ctx context.Context, tgID, chatID int64, ref model.AttachmentRef) string {
	_, pos, err := b.RelayUC.EnqueueAttachment(ctx, tgID, chatID, ref)
	return b.queuedReply(ctx, tgID, pos, err)
}

func (b *BotFacade) queuedReply(ctx context.Context, tgID int64, pos int, err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return b.t(ctx, tgID, "unsupported_input")
	case err != nil:
		logging.With(ctx, b.log).Error().Err(err).Int64("tg_id", tgID).Msg("enqueue job")
		return b.InternalError(ctx, tgID)
	}
	return b.t(ctx, tgID, "video_queued", pos)
}
