package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/ferryhq/ferry/internal/config"
	"github.com/ferryhq/ferry/internal/health"
	"github.com/ferryhq/ferry/internal/logger"
	"github.com/ferryhq/ferry/internal/relay"
	"github.com/ferryhq/ferry/internal/server"
	"github.com/ferryhq/ferry/internal/storage"
	s3provider "github.com/ferryhq/ferry/internal/storage/providers/s3"
	"github.com/ferryhq/ferry/internal/telegram"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			relay.NewSessions,
			provideTelegramClient,
			provideMessenger,
			provideBackend,
			provideSelector,
			providePipeline,
			provideRouter,
			provideDispatcher,
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(provideHealthHandler),
			fx.Annotate(provideServer, fx.ParamTags("", "", `group:"server_handlers"`)),
			telegram.NewPoller,
		),
		fx.Invoke(
			startInbound,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideTelegramClient(log *slog.Logger, cfg config.Config) (*telegram.Client, error) {
	return telegram.New(log, cfg.Telegram.BotToken)
}

func provideMessenger(client *telegram.Client) relay.Messenger { return client }

func provideBackend(log *slog.Logger, cfg config.Config) storage.Backend {
	return s3provider.NewBackend(log, s3provider.Config{
		Endpoint:   cfg.Storage.Endpoint,
		Region:     cfg.Storage.Region,
		Bucket:     cfg.Storage.Bucket,
		LinkExpiry: time.Duration(cfg.Storage.LinkExpiryMin) * time.Minute,
	})
}

func provideSelector(log *slog.Logger, sessions *relay.Sessions, messenger relay.Messenger) *relay.Selector {
	return relay.NewSelector(log, sessions, messenger)
}

func providePipeline(log *slog.Logger, cfg config.Config, sessions *relay.Sessions, messenger relay.Messenger, selector *relay.Selector) *relay.Pipeline {
	return relay.NewPipeline(log, sessions, messenger, selector, relay.PipelineConfig{
		StagingDir:    cfg.Staging.Dir,
		MaxFileBytes:  cfg.Staging.MaxFileBytes,
		DefaultFolder: cfg.Storage.DefaultFolder,
		MaxConcurrent: cfg.Relay.MaxConcurrentUploads,
	})
}

func provideRouter(log *slog.Logger, sessions *relay.Sessions, messenger relay.Messenger, backend storage.Backend, selector *relay.Selector, pipeline *relay.Pipeline) *relay.Router {
	return relay.NewRouter(log, sessions, messenger, backend, selector, pipeline)
}

func provideDispatcher(router *relay.Router) telegram.Dispatcher { return router }

func provideWebhookHandler(log *slog.Logger, cfg config.Config, client *telegram.Client, dispatcher telegram.Dispatcher) *telegram.WebhookHandler {
	return telegram.NewWebhookHandler(log, client, dispatcher, cfg.Telegram.WebhookPath, cfg.Telegram.WebhookSecret)
}

func provideHealthHandler(log *slog.Logger, cfg config.Config, client *telegram.Client) *health.Handler {
	stagingDir := cfg.Staging.Dir
	if stagingDir == "" {
		stagingDir = os.TempDir()
	}
	return health.NewHandler(log, []health.Checker{
		health.StagingChecker{Dir: stagingDir},
		health.PingChecker{ID: "telegram", Pinger: client},
	})
}

func provideServer(log *slog.Logger, cfg config.Config, handlers []server.Handler) *server.Server {
	return server.New(log, cfg.Server.Addr, handlers)
}

func startInbound(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, client *telegram.Client, poller *telegram.Poller) {
	if cfg.Telegram.Mode == "webhook" {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return client.RegisterWebhook(cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret)
			},
		})
		return
	}

	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())
			go func() {
				if err := poller.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("poller stopped", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server stopped", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})
}
