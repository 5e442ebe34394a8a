package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-media-relay/internal/application"
	"telegram-media-relay/internal/infra/logging"
	"telegram-media-relay/internal/infra/metrics"
	red "telegram-media-relay/internal/infra/redis"
)

// RateLimiter is satisfied by the Redis limiter and the in-memory fallback.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

const (
	commandLimit  = 20
	callbackLimit = 30
	limitWindow   = time.Minute
)

// RealTelegramBotAdapter polls updates and delegates to BotFacade.
type RealTelegramBotAdapter struct {
	client      *Client
	facade      *application.BotFacade
	rateLimiter RateLimiter

	updateWorkers int
	log           *zerolog.Logger
}

func NewRealTelegramBotAdapter(client *Client, facade *application.BotFacade, rateLimiter RateLimiter, updateWorkers int, log *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if client == nil {
		return nil, errors.New("telegram client is nil")
	}
	if facade == nil {
		return nil, errors.New("bot facade is nil")
	}
	if updateWorkers <= 0 {
		updateWorkers = 5
	}
	return &RealTelegramBotAdapter{
		client:        client,
		facade:        facade,
		rateLimiter:   rateLimiter,
		updateWorkers: updateWorkers,
		log:           log,
	}, nil
}

// StartPolling blocks until ctx is done. Updates from one user always land on the same
// worker, so a user's messages are handled in the order they were sent.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.client.api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	shards := make([]chan tgbotapi.Update, r.updateWorkers)
	for i := range shards {
		shards[i] = make(chan tgbotapi.Update, 32)
		wg.Add(1)
		go func(id int, in <-chan tgbotapi.Update) {
			defer wg.Done()
			for up := range in {
				if err := r.handleUpdate(ctx, up); err != nil {
					r.log.Warn().Err(err).Int("worker", id).Int("update_id", up.UpdateID).Msg("update handling failed")
				}
			}
		}(i, shards[i])
	}

	r.log.Info().Int("workers", r.updateWorkers).Msg("telegram polling started")
	defer func() {
		r.client.api.StopReceivingUpdates()
		for _, ch := range shards {
			close(ch)
		}
		wg.Wait()
		r.log.Info().Msg("telegram polling stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			shard := shards[shardOf(senderID(up), len(shards))]
			select {
			case shard <- up:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func senderID(up tgbotapi.Update) int64 {
	switch {
	case up.Message != nil && up.Message.From != nil:
		return up.Message.From.ID
	case up.CallbackQuery != nil && up.CallbackQuery.From != nil:
		return up.CallbackQuery.From.ID
	}
	return 0
}

func shardOf(id int64, n int) int {
	if id < 0 {
		id = -id
	}
	return int(id % int64(n))
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return r.handleQuery(ctx, update.CallbackQuery)
	}
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return nil
	}
	ctx = logging.WithTgID(ctx, msg.From.ID)

	command := "message"
	if msg.IsCommand() {
		command = "/" + strings.ToLower(msg.Command())
	}
	if !r.allow(ctx, msg.From.ID, command, commandLimit) {
		return r.reply(ctx, msg.Chat.ID, r.facade.RateLimited(ctx, msg.From.ID))
	}
	metrics.IncTelegramCommand(command)

	if msg.IsCommand() {
		if fn, ok := r.commandRoutes()[strings.ToLower(msg.Command())]; ok {
			return fn(ctx, msg)
		}
		return r.allowedOnly(r.handleHelpCommand)(ctx, msg)
	}
	return r.allowedOnly(r.handleMediaOrLink)(ctx, msg)
}

// allow applies the per-user, per-command limit. Limiter failures let the update through.
func (r *RealTelegramBotAdapter) allow(ctx context.Context, tgID int64, command string, limit int) bool {
	if r.rateLimiter == nil {
		return true
	}
	ok, err := r.rateLimiter.Allow(ctx, red.UserCommandKey(tgID, command), limit, limitWindow)
	if err != nil {
		r.log.Warn().Err(err).Msg("rate limit error")
		return true
	}
	if !ok {
		metrics.IncRateLimitTriggered()
	}
	return ok
}

func (r *RealTelegramBotAdapter) reply(ctx context.Context, chatID int64, text string) error {
	_, err := r.client.Send(ctx, chatID, text)
	return err
}

func (r *RealTelegramBotAdapter) handleMediaOrLink(ctx context.Context, msg *tgbotapi.Message) error {
	if ref, ok := attachmentFromMessage(msg); ok {
		return r.reply(ctx, msg.Chat.ID, r.facade.HandleAttachment(ctx, msg.From.ID, msg.Chat.ID, ref))
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	return r.reply(ctx, msg.Chat.ID, r.facade.HandleText(ctx, msg.From.ID, msg.Chat.ID, text))
}
