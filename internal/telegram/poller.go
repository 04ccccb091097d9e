package telegram

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const pollTimeoutSeconds = 30

// Poller receives updates by long-polling the Bot API and hands each
// one to the dispatcher on its own goroutine.
type Poller struct {
	logger     *slog.Logger
	client     *Client
	dispatcher Dispatcher
}

// NewPoller creates a long-poll runner.
func NewPoller(log *slog.Logger, client *Client, dispatcher Dispatcher) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		logger:     log.With(slog.String("component", "telegram_poller")),
		client:     client,
		dispatcher: dispatcher,
	}
}

// Run polls until ctx is cancelled. An active webhook is removed
// first; polling and webhooks are mutually exclusive on the Bot API.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.client.DeleteWebhook(); err != nil {
		p.logger.Warn("delete webhook before polling failed", slog.Any("error", err))
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = pollTimeoutSeconds
	updates := p.client.bot.GetUpdatesChan(updateConfig)
	p.logger.Info("long polling started")

	for {
		select {
		case <-ctx.Done():
			p.client.bot.StopReceivingUpdates()
			// Drain so the library's polling goroutine can finish its
			// in-flight request and exit; otherwise the old getUpdates
			// session lingers and conflicts with the next start.
			go func() {
				for range updates {
				}
			}()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				p.logger.Info("updates channel closed")
				return nil
			}
			in, callbackID, ok := ToIncoming(update)
			if !ok {
				continue
			}
			p.client.AckCallback(callbackID)
			go func() {
				handleCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
				defer cancel()
				p.dispatcher.Handle(handleCtx, in)
			}()
		}
	}
}
