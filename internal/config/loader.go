// Package config loads the gateway configuration from defaults, an optional
// YAML file and FARMGATE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: ratelimit.limit is read
// from FARMGATE_RATELIMIT_LIMIT.
const EnvPrefix = "FARMGATE"

// SetDefaults registers every key with its default value. Keys without a
// default are invisible to environment overrides.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("log.development", false)
	v.SetDefault("log.level", "info")

	v.SetDefault("ratelimit.limit", 50)
	v.SetDefault("ratelimit.window", "60s")
	v.SetDefault("ratelimit.api_prefix", "/api")
	v.SetDefault("ratelimit.platform_header", "")
	v.SetDefault("ratelimit.header_mode", "never")
	v.SetDefault("ratelimit.store", "memory")
	v.SetDefault("ratelimit.cleanup_interval", "1m")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "farmgate:ratelimit:")

	v.SetDefault("upstream.url", "")
	v.SetDefault("upstream.sanitize_errors", true)

	v.SetDefault("auth.url", "")
	v.SetDefault("auth.anon_key", "")
	v.SetDefault("auth.cookie_name", "")
	v.SetDefault("auth.refresh_margin", "60s")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.rate", 1.0)
	v.SetDefault("telegram.burst", 3)

	v.SetDefault("admin.token", "")

	v.SetDefault("stats.enabled", true)
	v.SetDefault("stats.store", "memory")
	v.SetDefault("stats.ttl", "24h")
}

// Load reads the configuration. configFile may be empty.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// An empty variable is a value: FARMGATE_RATELIMIT_PLATFORM_HEADER="" selects RemoteAddr.
	v.AllowEmptyEnv(true)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field requirements.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	usesRedis := cfg.RateLimit.Store == "redis" || (cfg.Stats.Enabled && cfg.Stats.Store == "redis")
	if usesRedis && cfg.Redis.URL == "" {
		return errors.New("invalid config: redis.url is required when a redis store is selected")
	}
	if (cfg.Auth.URL == "") != (cfg.Auth.AnonKey == "") {
		return errors.New("invalid config: auth.url and auth.anon_key must be set together")
	}
	return nil
}
