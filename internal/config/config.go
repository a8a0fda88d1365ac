package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerCfg struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type AuthCfg struct {
	Token string `mapstructure:"token"`
	// UserID overrides the id derived from the token's subject claim.
	UserID string `mapstructure:"user_id"`
}

type ChatCfg struct {
	Counterparty        string `mapstructure:"counterparty"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
}

type LogCfg struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type Config struct {
	Server ServerCfg `mapstructure:"server"`
	Auth   AuthCfg   `mapstructure:"auth"`
	Chat   ChatCfg   `mapstructure:"chat"`
	Log    LogCfg    `mapstructure:"log"`
	// Derived
	RequestTimeout time.Duration
	PollInterval   time.Duration
}

// Load reads an optional YAML config file and GIGCHAT_* environment
// overrides (GIGCHAT_SERVER_BASE_URL, GIGCHAT_AUTH_TOKEN, ...). A missing
// file is fine; missing required values are the caller's problem to report.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GIGCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default registered or viper will not surface its
	// env override through Unmarshal.
	v.SetDefault("server.base_url", "http://localhost:8080/api")
	v.SetDefault("server.timeout_seconds", 10)
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.user_id", "")
	v.SetDefault("chat.counterparty", "")
	v.SetDefault("chat.poll_interval_seconds", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.TimeoutSeconds <= 0 {
		cfg.Server.TimeoutSeconds = 10
	}
	if cfg.Chat.PollIntervalSeconds <= 0 {
		cfg.Chat.PollIntervalSeconds = 5
	}
	cfg.RequestTimeout = time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	cfg.PollInterval = time.Duration(cfg.Chat.PollIntervalSeconds) * time.Second

	return &cfg, nil
}
