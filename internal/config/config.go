// Package config provides YAML-based configuration loading for Parley.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Parley configuration, loaded from parley.yaml.
type Config struct {
	ListenPort int            `yaml:"listen_port"`
	Database   DatabaseConfig `yaml:"database"`
	Feed       FeedConfig     `yaml:"feed"`
	Auth       AuthConfig     `yaml:"auth"`
	Redis      RedisConfig    `yaml:"redis"`
	Alerts     AlertsConfig   `yaml:"alerts"`
}

// DatabaseConfig holds connection settings for the durable store.
// Driver is "mysql" for production or "sqlite" for single-node setups.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Path     string `yaml:"path"` // sqlite only
}

// FeedConfig controls the change-feed poller.
type FeedConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// AuthConfig holds settings for the JWT identity provider.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// RedisConfig holds settings for the optional presence store. An empty Addr
// disables presence tracking.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AlertsConfig configures optional support-ticket alert delivery.
type AlertsConfig struct {
	Slack          SlackConfig   `yaml:"slack"`
	Discord        DiscordConfig `yaml:"discord"`
	DigestSchedule string        `yaml:"digest_schedule"` // cron expression
}

// SlackConfig holds credentials for the Slack alert adapter.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig holds credentials for the Discord alert adapter.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
// A .env file in the working directory, if present, is loaded first so that
// PARLEY_* environment overrides apply.
func Load(path string) (*Config, error) {
	godotenv.Load() // best-effort; absence of .env is not an error

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays PARLEY_* environment variables onto the parsed config.
// Secrets in particular are expected to arrive this way in production.
func (c *Config) applyEnv() {
	if v := os.Getenv("PARLEY_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("PARLEY_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("PARLEY_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("PARLEY_SLACK_BOT_TOKEN"); v != "" {
		c.Alerts.Slack.BotToken = v
	}
	if v := os.Getenv("PARLEY_DISCORD_BOT_TOKEN"); v != "" {
		c.Alerts.Discord.BotToken = v
	}
	if v := os.Getenv("PARLEY_LISTEN_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.ListenPort = p
		}
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.ListenPort == 0 {
		c.ListenPort = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Name == "" {
		c.Database.Name = "parley"
	}
	if c.Database.Path == "" {
		c.Database.Path = "parley.db"
	}
	if c.Feed.PollInterval <= 0 {
		c.Feed.PollInterval = 2 * time.Second
	}
	if c.Alerts.DigestSchedule == "" {
		c.Alerts.DigestSchedule = "0 9 * * *"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not one of mysql, sqlite", c.Database.Driver))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required (or PARLEY_JWT_SECRET)")
	}
	if c.Alerts.Slack.BotToken != "" && c.Alerts.Slack.Channel == "" {
		errs = append(errs, "alerts.slack.channel is required when a slack bot token is set")
	}
	if c.Alerts.Discord.BotToken != "" && c.Alerts.Discord.ChannelID == "" {
		errs = append(errs, "alerts.discord.channel_id is required when a discord bot token is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
