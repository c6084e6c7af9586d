package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`
	OwnerID  int64  `envconfig:"OWNER_ID"`

	RequireSubscribe bool   `envconfig:"REQUIRE_SUBSCRIBE"`
	RequiredChannel  string `envconfig:"REQUIRED_CHANNEL"`

	DataDir string `envconfig:"DATA_DIR" default:"data"`
	DBPath  string `envconfig:"DB_PATH" default:"tgfetch.db"`

	CacheTTL       time.Duration `envconfig:"CACHE_TTL" default:"72h"`
	LockTTL        time.Duration `envconfig:"LOCK_TTL" default:"10m"`
	LockAcquireTTL time.Duration `envconfig:"LOCK_ACQUIRE_TTL" default:"30s"`

	// MaxUploadBytes stays under the Bot API hard cap with some margin.
	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"1992294400"`

	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`
	TelemetryEnabled  bool   `envconfig:"TELEMETRY_ENABLED" default:"true"`

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9092"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
