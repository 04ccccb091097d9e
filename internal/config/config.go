package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath    = "config.toml"
	DefaultHTTPAddr      = ":8080"
	DefaultTelegramMode  = "poll"
	DefaultWebhookPath   = "/telegram/webhook"
	DefaultRegion        = "us-east-1"
	DefaultFolder        = "uploads"
	DefaultLinkExpiryMin = 60
	DefaultMaxFileBytes  = 50 * 1024 * 1024
	DefaultMaxUploads    = 8
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Telegram TelegramConfig `toml:"telegram"`
	Storage  StorageConfig  `toml:"storage"`
	Staging  StagingConfig  `toml:"staging"`
	Relay    RelayConfig    `toml:"relay"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type TelegramConfig struct {
	BotToken string `toml:"bot_token" validate:"required"`
	// Mode selects how updates arrive: "poll" long-polls the Bot API,
	// "webhook" registers WebhookURL and serves the webhook route.
	Mode          string `toml:"mode" validate:"oneof=poll webhook"`
	WebhookURL    string `toml:"webhook_url" validate:"required_if=Mode webhook,omitempty,url"`
	WebhookPath   string `toml:"webhook_path"`
	WebhookSecret string `toml:"webhook_secret"`
}

type StorageConfig struct {
	// Endpoint overrides the S3 endpoint for S3-compatible backends
	// (MinIO and the like). Empty means the default AWS endpoint.
	Endpoint      string `toml:"endpoint" validate:"omitempty,url"`
	Region        string `toml:"region" validate:"required"`
	Bucket        string `toml:"bucket" validate:"required"`
	DefaultFolder string `toml:"default_folder" validate:"required"`
	LinkExpiryMin int    `toml:"link_expiry_minutes" validate:"gt=0"`
}

type StagingConfig struct {
	// Dir is where attachment bytes are spooled before upload. Empty
	// means the OS temp directory.
	Dir          string `toml:"dir"`
	MaxFileBytes int64  `toml:"max_file_bytes" validate:"gt=0"`
}

type RelayConfig struct {
	MaxConcurrentUploads int64 `toml:"max_concurrent_uploads" validate:"gt=0"`
}

// Load reads the TOML config at path, layered over built-in defaults.
// A missing file is not an error; the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Telegram: TelegramConfig{
			Mode:        DefaultTelegramMode,
			WebhookPath: DefaultWebhookPath,
		},
		Storage: StorageConfig{
			Region:        DefaultRegion,
			DefaultFolder: DefaultFolder,
			LinkExpiryMin: DefaultLinkExpiryMin,
		},
		Staging: StagingConfig{
			MaxFileBytes: DefaultMaxFileBytes,
		},
		Relay: RelayConfig{
			MaxConcurrentUploads: DefaultMaxUploads,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the loaded config for completeness. Load does not
// validate so that tooling can inspect a partial config; serve calls
// Validate before wiring anything up.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
