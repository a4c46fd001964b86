package config

import "time"

// Config is the complete gateway configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Stats     StatsConfig     `mapstructure:"stats"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// LogConfig controls the line logger. Development enables DEBUG lines.
type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// RateLimitConfig configures the gatekeeper. PlatformHeader carries the
// client address set by the hosting edge; empty means use the connection's
// remote address.
type RateLimitConfig struct {
	Limit           int           `mapstructure:"limit" validate:"min=1"`
	Window          time.Duration `mapstructure:"window" validate:"gt=0"`
	APIPrefix       string        `mapstructure:"api_prefix" validate:"required,startswith=/"`
	PlatformHeader  string        `mapstructure:"platform_header"`
	HeaderMode      string        `mapstructure:"header_mode" validate:"oneof=never on_limit always"`
	Store           string        `mapstructure:"store" validate:"oneof=memory redis"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gte=0"`
}

// RedisConfig is shared by the redis ledger and stats recorder.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Prefix   string `mapstructure:"prefix"`
}

// UpstreamConfig points at the storefront renderer.
type UpstreamConfig struct {
	URL            string `mapstructure:"url" validate:"omitempty,url"`
	SanitizeErrors bool   `mapstructure:"sanitize_errors"`
}

// AuthConfig enables session refresh against the hosted auth provider.
type AuthConfig struct {
	URL           string        `mapstructure:"url" validate:"omitempty,url"`
	AnonKey       string        `mapstructure:"anon_key"`
	CookieName    string        `mapstructure:"cookie_name"`
	RefreshMargin time.Duration `mapstructure:"refresh_margin" validate:"gte=0"`
}

// Enabled reports whether session refresh is configured.
func (a AuthConfig) Enabled() bool {
	return a.URL != "" && a.AnonKey != ""
}

type TelegramConfig struct {
	Token   string  `mapstructure:"token"`
	ChatID  string  `mapstructure:"chat_id"`
	BaseURL string  `mapstructure:"base_url" validate:"omitempty,url"`
	Rate    float64 `mapstructure:"rate" validate:"gte=0"`
	Burst   int     `mapstructure:"burst" validate:"gte=0"`
}

// AdminConfig guards /admin. An empty token disables the admin routes.
type AdminConfig struct {
	Token string `mapstructure:"token"`
}

type StatsConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Store   string        `mapstructure:"store" validate:"oneof=memory redis"`
	TTL     time.Duration `mapstructure:"ttl" validate:"gt=0"`
}
