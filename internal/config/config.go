package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode      string `mapstructure:"mode"`
	Port      int    `mapstructure:"port"`
	Secret    string `mapstructure:"secret"`
	LogLevel  string `mapstructure:"log_level"`
	ReadLimit int64  `mapstructure:"read_limit"`

	// Per-connection outbound queue depth; overflow disconnects the client.
	SendQueueSize int `mapstructure:"send_queue_size"`
	// Whether a room broadcast is echoed back to its sender.
	BroadcastEcho bool          `mapstructure:"broadcast_echo"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`

	AdapterTimeout time.Duration `mapstructure:"adapter_timeout"`
	MessageRate    float64       `mapstructure:"message_rate"`
	MessageBurst   int           `mapstructure:"message_burst"`

	DatabasePath string        `mapstructure:"database_path"`
	RedisURL     string        `mapstructure:"redis_url"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`

	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`

	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	OpenAIModel  string `mapstructure:"openai_model"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("send_queue_size", 64)
	v.SetDefault("broadcast_echo", false)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("adapter_timeout", "10s")
	v.SetDefault("message_rate", 50.0)
	v.SetDefault("message_burst", 100)
	v.SetDefault("database_path", "voxd.db")
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache_ttl", "1h")
	v.SetDefault("access_token_ttl", "168h")
	v.SetDefault("refresh_token_ttl", "720h")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", "gpt-4o-mini")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
