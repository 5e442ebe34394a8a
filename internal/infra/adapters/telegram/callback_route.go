package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-media-relay/internal/application"
	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/infra/logging"
	"telegram-media-relay/internal/infra/metrics"
)

type cbHandler func(ctx context.Context, query *tgbotapi.CallbackQuery, chatID int64) error
type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

// Prefix-match callbacks
func (r *RealTelegramBotAdapter) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: application.LangCallbackPrefix, Fn: r.langPrefixCBRoute},
	}
}

func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}
	ctx = logging.WithTgID(ctx, query.From.ID)

	chatID := query.From.ID
	if query.Message != nil && query.Message.Chat != nil {
		chatID = query.Message.Chat.ID
	}
	data := strings.TrimSpace(query.Data)

	if !r.allow(ctx, query.From.ID, "cb:"+data, callbackLimit) {
		r.client.AnswerCallback(query.ID, r.facade.RateLimited(ctx, query.From.ID))
		return nil
	}
	if !r.facade.Allowed(ctx, query.From.ID) {
		r.client.AnswerCallback(query.ID, r.facade.NotAllowed(ctx, query.From.ID))
		return nil
	}
	metrics.IncTelegramCommand("callback")

	for _, pr := range r.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			return pr.Fn(ctx, query, chatID)
		}
	}
	r.client.AnswerCallback(query.ID, "")
	return errors.New("unknown callback data")
}

// langPrefixCBRoute stores the chosen language and rewrites the keyboard message in it.
func (r *RealTelegramBotAdapter) langPrefixCBRoute(ctx context.Context, query *tgbotapi.CallbackQuery, chatID int64) error {
	text, err := r.facade.HandleSetLang(ctx, query.From.ID, query.Data)
	if err != nil {
		r.client.AnswerCallback(query.ID, r.facade.InternalError(ctx, query.From.ID))
		return err
	}
	r.client.AnswerCallback(query.ID, "")
	if query.Message != nil {
		return r.client.Edit(ctx, model.MessageHandle{ChatID: chatID, MessageID: query.Message.MessageID}, text)
	}
	return r.reply(ctx, chatID, text)
}
