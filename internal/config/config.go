package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath          = "config.toml"
	DefaultHTTPAddr            = ":8080"
	DefaultJWTExpiresIn        = "24h"
	DefaultPGHost              = "127.0.0.1"
	DefaultPGPort              = 5432
	DefaultPGUser              = "postgres"
	DefaultPGDatabase          = "leadhub"
	DefaultPGSSLMode           = "disable"
	DefaultRedisAddr           = "127.0.0.1:6379"
	DefaultRedisKeyPrefix      = "leadhub:"
	DefaultWebhookMaxBodyBytes = 1 << 20
	DefaultPipelineTimeout     = "10s"
	DefaultNotifyQueueSize     = 256
	DefaultNotifyWorkers       = 4
	DefaultNotifyTimeout       = "5s"
	DefaultRateLimitRequests   = 120
	DefaultRateLimitWindow     = "1m"
	DefaultRateLimitMaxKeys    = 10000
	DefaultRateLimitSweep      = "@every 1m"
)

// DefaultTerminalStages are the lead stages that close a lead.
var DefaultTerminalStages = []string{"completed", "cancelled"}

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Webhook   WebhookConfig   `toml:"webhook"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Leads     LeadsConfig     `toml:"leads"`
	Notify    NotifyConfig    `toml:"notify"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
	MaxConns int32  `toml:"max_conns"`
}

// URL renders the connection string understood by pgx. The scheme is
// replaceable so the migrate driver can reuse it.
func (c PostgresConfig) URL(scheme string) string {
	if scheme == "" {
		scheme = "postgres"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type RedisConfig struct {
	// Enabled switches shared counters from the in-process store to Redis.
	Enabled   bool   `toml:"enabled"`
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
}

type WebhookConfig struct {
	// VerifyToken is the fallback hub.verify_token for challenge channels.
	VerifyToken  string            `toml:"verify_token"`
	VerifyTokens map[string]string `toml:"verify_tokens"`
	MaxBodyBytes int64             `toml:"max_body_bytes"`
}

// VerifyTokenFor returns the verification secret for a channel, falling back
// to the shared token.
func (c WebhookConfig) VerifyTokenFor(channel string) string {
	if token := strings.TrimSpace(c.VerifyTokens[strings.ToLower(channel)]); token != "" {
		return token
	}
	return strings.TrimSpace(c.VerifyToken)
}

type PipelineConfig struct {
	Timeout string `toml:"timeout"`
}

func (c PipelineConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, DefaultPipelineTimeout)
}

type LeadsConfig struct {
	TerminalStages []string `toml:"terminal_stages"`
}

type NotifyConfig struct {
	QueueSize int                  `toml:"queue_size"`
	Workers   int                  `toml:"workers"`
	Timeout   string               `toml:"timeout"`
	Telegram  TelegramNotifyConfig `toml:"telegram"`
	Mailgun   MailgunNotifyConfig  `toml:"mailgun"`
	SMTP      SMTPNotifyConfig     `toml:"smtp"`
}

func (c NotifyConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, DefaultNotifyTimeout)
}

type TelegramNotifyConfig struct {
	BotToken string `toml:"bot_token"`
}

type MailgunNotifyConfig struct {
	Domain string `toml:"domain"`
	APIKey string `toml:"api_key"`
	From   string `toml:"from"`
	Region string `toml:"region"`
}

type SMTPNotifyConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	UseTLS   bool   `toml:"use_tls"`
}

type RateLimitConfig struct {
	Enabled  bool   `toml:"enabled"`
	Requests int64  `toml:"requests"`
	Window   string `toml:"window"`
	MaxKeys  int    `toml:"max_keys"`
	Sweep    string `toml:"sweep"`
}

func (c RateLimitConfig) WindowDuration() time.Duration {
	return parseDuration(c.Window, DefaultRateLimitWindow)
}

func parseDuration(raw, fallback string) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Redis: RedisConfig{
			Addr:      DefaultRedisAddr,
			KeyPrefix: DefaultRedisKeyPrefix,
		},
		Webhook: WebhookConfig{
			MaxBodyBytes: DefaultWebhookMaxBodyBytes,
		},
		Pipeline: PipelineConfig{
			Timeout: DefaultPipelineTimeout,
		},
		Leads: LeadsConfig{
			TerminalStages: append([]string(nil), DefaultTerminalStages...),
		},
		Notify: NotifyConfig{
			QueueSize: DefaultNotifyQueueSize,
			Workers:   DefaultNotifyWorkers,
			Timeout:   DefaultNotifyTimeout,
			SMTP: SMTPNotifyConfig{
				Port:   587,
				UseTLS: true,
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: DefaultRateLimitRequests,
			Window:   DefaultRateLimitWindow,
			MaxKeys:  DefaultRateLimitMaxKeys,
			Sweep:    DefaultRateLimitSweep,
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

	if len(cfg.Leads.TerminalStages) == 0 {
		cfg.Leads.TerminalStages = append([]string(nil), DefaultTerminalStages...)
	}
	if cfg.Webhook.MaxBodyBytes <= 0 {
		cfg.Webhook.MaxBodyBytes = DefaultWebhookMaxBodyBytes
	}

	return cfg, nil
}
