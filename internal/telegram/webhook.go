package telegram

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"
)

const webhookMaxBodyBytes int64 = 1 << 20 // 1 MiB

// secretTokenHeader is sent by the Bot API on every webhook delivery
// when a secret token was registered.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler receives Bot API webhook deliveries over HTTP.
type WebhookHandler struct {
	logger     *slog.Logger
	client     *Client
	dispatcher Dispatcher
	path       string
	secret     string
}

// NewWebhookHandler creates the webhook route handler. secret may be
// empty, in which case deliveries are not authenticated.
func NewWebhookHandler(log *slog.Logger, client *Client, dispatcher Dispatcher, path, secret string) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	if path == "" {
		path = "/telegram/webhook"
	}
	return &WebhookHandler{
		logger:     log.With(slog.String("handler", "telegram_webhook")),
		client:     client,
		dispatcher: dispatcher,
		path:       path,
		secret:     secret,
	}
}

// Register registers the webhook routes.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET(h.path, h.HandleProbe)
	e.POST(h.path, h.Handle)
}

// HandleProbe responds to health probes on the webhook URL.
func (h *WebhookHandler) HandleProbe(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Handle decodes one update and dispatches it asynchronously; the Bot
// API only needs a prompt 200.
func (h *WebhookHandler) Handle(c echo.Context) error {
	if h.secret != "" && c.Request().Header.Get(secretTokenHeader) != h.secret {
		return echo.NewHTTPError(http.StatusUnauthorized, "bad secret token")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, webhookMaxBodyBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body failed")
	}
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		h.logger.Warn("decode update failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, "malformed update")
	}

	in, callbackID, ok := ToIncoming(update)
	if !ok {
		return c.NoContent(http.StatusOK)
	}
	h.client.AckCallback(callbackID)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		h.dispatcher.Handle(ctx, in)
	}()
	return c.NoContent(http.StatusOK)
}
