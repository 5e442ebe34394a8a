package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-media-relay/internal/config"
	"telegram-media-relay/internal/domain"
	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/domain/ports/adapter"
	"telegram-media-relay/internal/infra/fetcher"
	"telegram-media-relay/internal/infra/metrics"
)

// CloudDownloadLimit is the largest file the public Bot API lets a bot download.
const CloudDownloadLimit = 20 << 20

var (
	_ adapter.StatusSink          = (*Client)(nil)
	_ adapter.AttachmentRetriever = (*Client)(nil)
)

// botAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client talks to the Bot API: status messages, attachment downloads and documents.
type Client struct {
	api          botAPI
	token        string
	fileEndpoint string
	session      bool
	http         *fetcher.HTTPDownloader
	log          *zerolog.Logger
}

// NewClient connects to the cloud Bot API, or to a local Bot API server when
// cfg.APIEndpoint is set (which lifts the 20 MB download limit).
func NewClient(cfg config.BotConfig, http *fetcher.HTTPDownloader, log *zerolog.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("bot token is empty")
	}
	var (
		bot *tgbotapi.BotAPI
		err error
	)
	if cfg.SessionConfigured() {
		bot, err = tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, cfg.APIEndpoint)
	} else {
		bot, err = tgbotapi.NewBotAPI(cfg.Token)
	}
	if err != nil {
		return nil, fmt.Errorf("telegram client: %w", err)
	}
	log.Info().Str("username", bot.Self.UserName).Bool("local_api", cfg.SessionConfigured()).Msg("telegram client ready")
	return newClient(bot, cfg, http, log), nil
}

func newClient(api botAPI, cfg config.BotConfig, http *fetcher.HTTPDownloader, log *zerolog.Logger) *Client {
	if http == nil {
		http = fetcher.NewHTTPDownloader(nil, fetcher.DefaultChunkSize, 0)
	}
	fileEndpoint := cfg.FileEndpoint
	if fileEndpoint == "" {
		fileEndpoint = tgbotapi.FileEndpoint
	}
	return &Client{
		api:          api,
		token:        cfg.Token,
		fileEndpoint: fileEndpoint,
		session:      cfg.SessionConfigured(),
		http:         http,
		log:          log,
	}
}

func (c *Client) Send(ctx context.Context, chatID int64, text string) (model.MessageHandle, error) {
	if err := ctx.Err(); err != nil {
		return model.MessageHandle{}, err
	}
	msg, err := c.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return model.MessageHandle{}, err
	}
	return model.MessageHandle{ChatID: chatID, MessageID: msg.MessageID}, nil
}

// Edit replaces the text of a status message. Re-sending identical text is not an error.
func (c *Client) Edit(ctx context.Context, h model.MessageHandle, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.api.Request(tgbotapi.NewEditMessageText(h.ChatID, h.MessageID, text))
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

// SendButtons sends a message with inline buttons.
// A button with a URL opens a link, otherwise it sends its Data (or Text) as callback data.
func (c *Client) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, r)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	_, err := c.api.Send(msg)
	return err
}

func (c *Client) SendDocument(ctx context.Context, chatID int64, path, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = caption
	_, err := c.api.Send(doc)
	return err
}

// AnswerCallback stops the client spinner; a non-empty text is shown as an alert.
func (c *Client) AnswerCallback(queryID, text string) {
	cb := tgbotapi.NewCallback(queryID, "")
	if text != "" {
		cb = tgbotapi.NewCallbackWithAlert(queryID, text)
	}
	if _, err := c.api.Request(cb); err != nil {
		c.log.Debug().Err(err).Msg("answer callback")
	}
}

func (c *Client) SetMenuCommands(ctx context.Context, chatID int64, creator bool) error {
	cmds := []tgbotapi.BotCommand{
		{Command: "start", Description: "Start the bot"},
		{Command: "help", Description: "How to use the bot"},
		{Command: "queue", Description: "Show pending jobs"},
		{Command: "cancel", Description: "Cancel pending jobs"},
		{Command: "target", Description: "Set upload destination"},
		{Command: "history", Description: "Last relayed files"},
		{Command: "setlang", Description: "Change language"},
	}
	if creator {
		cmds = append(cmds,
			tgbotapi.BotCommand{Command: "add", Description: "Allow a user"},
			tgbotapi.BotCommand{Command: "remove", Description: "Revoke a user"},
			tgbotapi.BotCommand{Command: "log", Description: "Download the activity log"},
		)
	}
	_, err := c.api.Request(tgbotapi.NewSetMyCommandsWithScope(tgbotapi.NewBotCommandScopeChat(chatID), cmds...))
	return err
}

// RetrieveAttachment downloads a Telegram file into dest. Without a local Bot API server,
// files above CloudDownloadLimit fail with a ConfigError naming bot.api_endpoint.
func (c *Client) RetrieveAttachment(ctx context.Context, ref model.AttachmentRef, dest string, progress *model.ProgressStream) error {
	if !c.session && ref.Size > CloudDownloadLimit {
		return tooBig(ref.Size)
	}
	file, err := c.api.GetFile(tgbotapi.FileConfig{FileID: ref.FileID})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "file is too big") {
			return tooBig(ref.Size)
		}
		return fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return errors.New("telegram returned no file path")
	}

	// A local Bot API server running with --local hands out paths on its own disk.
	if filepath.IsAbs(file.FilePath) {
		return copyLocal(ctx, file.FilePath, dest, int64(file.FileSize), progress)
	}
	link := fmt.Sprintf(c.fileEndpoint, c.token, file.FilePath)
	_, err = c.http.Download(ctx, link, dest, progress)
	if err != nil {
		// the link embeds the bot token
		return errors.New(strings.ReplaceAll(err.Error(), c.token, "<token>"))
	}
	return nil
}

func tooBig(size int64) error {
	return fmt.Errorf("attachment of %s exceeds the %s cloud download limit: %w",
		humanize.Bytes(uint64(max(size, 0))), humanize.Bytes(CloudDownloadLimit), &domain.ConfigError{Key: "bot.api_endpoint"})
}

func copyLocal(ctx context.Context, src, dest string, total int64, progress *model.ProgressStream) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer in.Close()
	if total <= 0 {
		if info, err := in.Stat(); err == nil {
			total = info.Size()
		}
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	pw := &progressWriter{w: out, total: total, progress: progress}
	progress.Send(model.Progress{Done: 0, Total: total})
	_, copyErr := io.Copy(pw, &ctxReader{ctx: ctx, r: in})
	if closeErr := out.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(dest)
		return copyErr
	}
	progress.Send(model.Progress{Done: pw.done, Total: pw.done})
	return nil
}

type progressWriter struct {
	w        io.Writer
	done     int64
	total    int64
	progress *model.ProgressStream
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.done += int64(n)
	metrics.AddBytes("fetch", n)
	p.progress.Send(model.Progress{Done: p.done, Total: p.total})
	return n, err
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(b []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(b)
}
