// Package config loads the process configuration from environment
// variables (optionally via a .env file), validates the fields the send
// pipeline cannot run without, and aborts startup when they're missing.
package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the process's enumerated env-bindable options.
type Config struct {
	Port int `mapstructure:"port"`

	Database struct {
		URL  string `mapstructure:"url"`
		Pool struct {
			Min int `mapstructure:"min"`
			Max int `mapstructure:"max"`
		} `mapstructure:"pool"`
	} `mapstructure:"database"`

	Redis struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"redis"`

	Provider struct {
		BaseURL             string `mapstructure:"base_url"`
		APIKey              string `mapstructure:"api_key"`
		PublicKey           string `mapstructure:"public_key"` // base64 Ed25519 key
		MessagingProfileID  string `mapstructure:"messaging_profile_id"`
		CostPerSegmentCents int    `mapstructure:"cost_per_segment_cents"`
	} `mapstructure:"provider"`

	Compliance struct {
		QuietHours struct {
			Start string `mapstructure:"start"`
			End   string `mapstructure:"end"`
		} `mapstructure:"quiet_hours"`
		MaxMessagesPerDayPerRecipient int      `mapstructure:"max_messages_per_day_per_recipient"`
		OptOutKeywords                []string `mapstructure:"opt_out_keywords"`
		OptInKeywords                 []string `mapstructure:"opt_in_keywords"`
	} `mapstructure:"compliance"`

	RateLimit struct {
		WindowMs int `mapstructure:"window_ms"`
		Max      int `mapstructure:"max"`
	} `mapstructure:"rate_limit"`

	Queue struct {
		AttemptsMax         int `mapstructure:"attempts_max"`
		BackoffBaseMs       int `mapstructure:"backoff_base_ms"`
		SMSConcurrency      int `mapstructure:"sms_concurrency"`
		CampaignConcurrency int `mapstructure:"campaign_concurrency"`
		RateMax             int `mapstructure:"rate_max"`
		RateIntervalMs      int `mapstructure:"rate_interval_ms"`
	} `mapstructure:"queue"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// keys lists every env-bindable config path, so viper's Unmarshal sees
// them even though nothing has set them yet — AutomaticEnv alone only
// resolves keys looked up with Get, not ones read through Unmarshal.
var keys = []string{
	"port",
	"database.url", "database.pool.min", "database.pool.max",
	"redis.url",
	"provider.base_url", "provider.api_key", "provider.public_key", "provider.messaging_profile_id", "provider.cost_per_segment_cents",
	"compliance.quiet_hours.start", "compliance.quiet_hours.end",
	"compliance.max_messages_per_day_per_recipient",
	"compliance.opt_out_keywords", "compliance.opt_in_keywords",
	"rate_limit.window_ms", "rate_limit.max",
	"queue.attempts_max", "queue.backoff_base_ms",
	"queue.sms_concurrency", "queue.campaign_concurrency",
	"queue.rate_max", "queue.rate_interval_ms",
	"log.level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("compliance.quiet_hours.start", "21:00")
	v.SetDefault("compliance.quiet_hours.end", "08:00")
	v.SetDefault("compliance.max_messages_per_day_per_recipient", 3)
	v.SetDefault("compliance.opt_out_keywords", []string{"STOP", "UNSUBSCRIBE", "CANCEL", "END", "QUIT"})
	v.SetDefault("compliance.opt_in_keywords", []string{"START", "YES", "SUBSCRIBE", "UNSTOP"})
	v.SetDefault("queue.attempts_max", 3)
	v.SetDefault("queue.backoff_base_ms", 5000)
	v.SetDefault("queue.sms_concurrency", 10)
	v.SetDefault("queue.campaign_concurrency", 2)
	v.SetDefault("queue.rate_max", 100)
	v.SetDefault("queue.rate_interval_ms", 1000)
	v.SetDefault("log.level", "info")
}

// Load reads a .env file if present, then env vars (DATABASE_URL,
// PROVIDER_API_KEY, COMPLIANCE_QUIET_HOURS_START, and so on — nested keys
// joined with underscores), and validates the fields the pipeline cannot
// start without.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// no .env file is the common case outside local development
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", k, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	var missing []string
	if cfg.Database.URL == "" {
		missing = append(missing, "database.url")
	}
	if cfg.Redis.URL == "" {
		missing = append(missing, "redis.url")
	}
	if cfg.Provider.BaseURL == "" {
		missing = append(missing, "provider.base_url")
	}
	if cfg.Provider.APIKey == "" {
		missing = append(missing, "provider.api_key")
	}
	if cfg.Provider.PublicKey == "" {
		missing = append(missing, "provider.public_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required fields: %v", missing)
	}
	return nil
}

// ProviderPublicKey decodes the configured base64 Ed25519 public key.
func (c *Config) ProviderPublicKey() (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(c.Provider.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("config: provider.public_key is not valid base64: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("config: provider.public_key is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}
