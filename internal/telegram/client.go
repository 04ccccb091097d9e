// Package telegram implements the relay's messaging capability on the
// Telegram Bot API: outbound replies, inline-keyboard folder choices,
// and attachment downloads by file id. Inbound updates arrive either
// through the long-poll runner or the webhook handler.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ferryhq/ferry/internal/relay"
)

// Dispatcher consumes parsed incoming updates; the relay router
// implements it.
type Dispatcher interface {
	Handle(ctx context.Context, in relay.Incoming)
}

// Client wraps one bot connection and implements relay.Messenger.
type Client struct {
	logger *slog.Logger
	bot    *tgbotapi.BotAPI
	http   *http.Client
}

// New creates a Client and verifies the token against the Bot API.
func New(log *slog.Logger, token string) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	log = log.With(slog.String("component", "telegram"))
	log.Info("bot connected", slog.String("username", bot.Self.UserName))
	return &Client{
		logger: log,
		bot:    bot,
		http:   &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Ping verifies the Bot API is still reachable with the stored token.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.bot.GetMe(); err != nil {
		return fmt.Errorf("get me: %w", err)
	}
	return nil
}

// SendText delivers a plain text message to the chat.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendChoices delivers a message with one inline button per choice;
// each button press comes back as a callback update carrying the
// choice token.
func (c *Client) SendChoices(ctx context.Context, chatID int64, text string, choices []relay.Choice) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = buildChoiceKeyboard(choices)
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("send choices: %w", err)
	}
	return nil
}

func buildChoiceKeyboard(choices []relay.Choice) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(choices))
	for _, choice := range choices {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(choice.Label, choice.Token),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// FetchAttachment resolves the file id to a download URL and streams
// the payload. The caller closes the reader.
func (c *Client) FetchAttachment(ctx context.Context, fileID string) (io.ReadCloser, error) {
	url, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("download attachment status: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// AckCallback acknowledges an inline-button press so the client stops
// showing its progress spinner.
func (c *Client) AckCallback(callbackID string) {
	if callbackID == "" {
		return
	}
	if _, err := c.bot.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		c.logger.Warn("ack callback failed", slog.Any("error", err))
	}
}

// RegisterWebhook points the Bot API at url, guarding deliveries with
// the secret token when one is configured.
func (c *Client) RegisterWebhook(url, secret string) error {
	params := tgbotapi.Params{}
	params.AddNonEmpty("url", url)
	params.AddNonEmpty("secret_token", secret)
	if _, err := c.bot.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	c.logger.Info("webhook registered", slog.String("url", url))
	return nil
}

// DeleteWebhook removes a previously registered webhook; long polling
// conflicts with an active webhook, so the poller calls this first.
func (c *Client) DeleteWebhook() error {
	if _, err := c.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}
