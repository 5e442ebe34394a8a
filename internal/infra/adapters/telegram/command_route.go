package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-media-relay/internal/domain"
	"telegram-media-relay/internal/infra/metrics"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// commandRoutes maps command names (without the slash) to handlers.
func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":   r.handleStartCommand,
		"help":    r.allowedOnly(r.handleHelpCommand),
		"ayuda":   r.allowedOnly(r.handleHelpCommand),
		"setlang": r.allowedOnly(r.handleSetLangCommand),
		"cancel":  r.allowedOnly(r.handleCancelCommand),
		"queue":   r.allowedOnly(r.handleQueueCommand),
		"target":  r.allowedOnly(r.handleTargetCommand),
		"history": r.allowedOnly(r.handleHistoryCommand),

		"log":    r.creatorOnly(r.handleLogCommand),
		"add":    r.creatorOnly(r.handleAddCommand),
		"remove": r.creatorOnly(r.handleRemoveCommand),
	}
}

func (r *RealTelegramBotAdapter) allowedOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if !r.facade.Allowed(ctx, message.From.ID) {
			return r.reply(ctx, message.Chat.ID, r.facade.NotAllowed(ctx, message.From.ID))
		}
		return next(ctx, message)
	}
}

func (r *RealTelegramBotAdapter) creatorOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if !r.facade.IsCreator(message.From.ID) {
			metrics.IncAdminCommand("/"+message.Command(), "unauthorized")
			return r.reply(ctx, message.Chat.ID, r.facade.NotAllowed(ctx, message.From.ID))
		}
		metrics.IncAdminCommand("/"+message.Command(), "authorized")
		return next(ctx, message)
	}
}

func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	text := r.facade.HandleStart(ctx, message.From.ID)
	if r.facade.Allowed(ctx, message.From.ID) {
		if err := r.client.SetMenuCommands(ctx, message.Chat.ID, r.facade.IsCreator(message.From.ID)); err != nil {
			r.log.Warn().Err(err).Int64("tg_id", message.From.ID).Msg("failed to set menu commands")
		}
	}
	return r.reply(ctx, message.Chat.ID, text)
}

func (r *RealTelegramBotAdapter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.reply(ctx, message.Chat.ID, r.facade.HandleHelp(ctx, message.From.ID))
}

func (r *RealTelegramBotAdapter) handleSetLangCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, rows := r.facade.LanguageMenu(ctx, message.From.ID)
	return r.client.SendButtons(ctx, message.Chat.ID, text, rows)
}

func (r *RealTelegramBotAdapter) handleCancelCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.reply(ctx, message.Chat.ID, r.facade.HandleCancel(ctx, message.From.ID))
}

func (r *RealTelegramBotAdapter) handleQueueCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.reply(ctx, message.Chat.ID, r.facade.HandleQueue(ctx, message.From.ID))
}

func (r *RealTelegramBotAdapter) handleTargetCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.reply(ctx, message.Chat.ID, r.facade.HandleTarget(ctx, message.From.ID, message.CommandArguments()))
}

func (r *RealTelegramBotAdapter) handleHistoryCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.reply(ctx, message.Chat.ID, r.facade.HandleHistory(ctx, message.From.ID))
}

func (r *RealTelegramBotAdapter) handleLogCommand(ctx context.Context, message *tgbotapi.Message) error {
	path, caption, err := r.facade.LogFile(ctx, message.From.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return r.reply(ctx, message.Chat.ID, caption)
	case err != nil:
		return r.reply(ctx, message.Chat.ID, r.facade.NotAllowed(ctx, message.From.ID))
	}
	r.log.Info().Int64("tg_id", message.From.ID).Msg("log file requested")
	return r.client.SendDocument(ctx, message.Chat.ID, path, caption)
}

func (r *RealTelegramBotAdapter) handleAddCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.reply(ctx, message.Chat.ID, r.facade.HandleAdd(ctx, message.From.ID, strings.TrimSpace(message.CommandArguments())))
}

func (r *RealTelegramBotAdapter) handleRemoveCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.reply(ctx, message.Chat.ID, r.facade.HandleRemove(ctx, message.From.ID, strings.TrimSpace(message.CommandArguments())))
}
