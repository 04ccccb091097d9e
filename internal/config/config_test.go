package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, "poll", cfg.Telegram.Mode)
	assert.Equal(t, DefaultWebhookPath, cfg.Telegram.WebhookPath)
	assert.Equal(t, DefaultRegion, cfg.Storage.Region)
	assert.Equal(t, DefaultFolder, cfg.Storage.DefaultFolder)
	assert.Equal(t, DefaultLinkExpiryMin, cfg.Storage.LinkExpiryMin)
	assert.EqualValues(t, DefaultMaxFileBytes, cfg.Staging.MaxFileBytes)
	assert.EqualValues(t, DefaultMaxUploads, cfg.Relay.MaxConcurrentUploads)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[log]
level = "debug"

[telegram]
bot_token = "123:abc"
mode = "webhook"
webhook_url = "https://bot.example.com/telegram/webhook"

[storage]
bucket = "relay-files"
default_folder = "inbox"

[staging]
max_file_bytes = 1048576
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "webhook", cfg.Telegram.Mode)
	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, "relay-files", cfg.Storage.Bucket)
	assert.Equal(t, "inbox", cfg.Storage.DefaultFolder)
	assert.EqualValues(t, 1048576, cfg.Staging.MaxFileBytes)
	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultRegion, cfg.Storage.Region)
}

func TestLoadMalformedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
		require.NoError(t, err)
		cfg.Telegram.BotToken = "123:abc"
		cfg.Storage.Bucket = "relay-files"
		return cfg
	}

	assert.NoError(t, base().Validate())

	noToken := base()
	noToken.Telegram.BotToken = ""
	assert.Error(t, noToken.Validate())

	noBucket := base()
	noBucket.Storage.Bucket = ""
	assert.Error(t, noBucket.Validate())

	badMode := base()
	badMode.Telegram.Mode = "carrier-pigeon"
	assert.Error(t, badMode.Validate())

	webhookNoURL := base()
	webhookNoURL.Telegram.Mode = "webhook"
	assert.Error(t, webhookNoURL.Validate())

	webhookWithURL := base()
	webhookWithURL.Telegram.Mode = "webhook"
	webhookWithURL.Telegram.WebhookURL = "https://bot.example.com/hook"
	assert.NoError(t, webhookWithURL.Validate())

	badExpiry := base()
	badExpiry.Storage.LinkExpiryMin = 0
	assert.Error(t, badExpiry.Validate())
}
