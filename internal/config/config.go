package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/darkmoon-dice/internal/logging"
	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	HTTP      HTTPConfig      `koanf:"http"`
	Room      RoomConfig      `koanf:"room"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Audit     AuditConfig     `koanf:"audit"`
	Tracing   TracingConfig   `koanf:"tracing"`
	Log       logging.Config  `koanf:"log"`
}

type HTTPConfig struct {
	Host           string        `koanf:"host" env:"HTTP_HOST"`
	Port           uint16        `koanf:"port" env:"HTTP_PORT"`
	ReadTimeout    time.Duration `koanf:"read_timeout" env:"HTTP_READ_TIMEOUT"`
	WriteTimeout   time.Duration `koanf:"write_timeout" env:"HTTP_WRITE_TIMEOUT"`
	AllowedOrigins []string      `koanf:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

type RoomConfig struct {
	FeedLimit     int `koanf:"feed_limit" env:"FEED_LIMIT"`
	RollRetention int `koanf:"roll_retention" env:"ROLL_RETENTION"`
	ClientBuffer  int `koanf:"client_buffer" env:"CLIENT_BUFFER"`
}

type RateLimitConfig struct {
	PerSecond float64 `koanf:"per_second" env:"RATE_LIMIT_PER_SECOND"`
	Burst     int     `koanf:"burst" env:"RATE_LIMIT_BURST"`
}

type AuditConfig struct {
	DSN    string `koanf:"dsn" env:"AUDIT_DSN"`
	Buffer int    `koanf:"buffer" env:"AUDIT_BUFFER"`
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled" env:"TRACING_ENABLED"`
	Endpoint    string `koanf:"endpoint" env:"TRACING_ENDPOINT"`
	Environment string `koanf:"environment" env:"ENVIRONMENT"`
}

// Load reads the yaml file at path (if any), fills in defaults, then lets
// environment variables override individual keys.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	applyDefaults(k)

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	setDefault(k, "http.host", "0.0.0.0")
	setDefault(k, "http.port", 4000)
	setDefault(k, "http.read_timeout", 10*time.Second)
	setDefault(k, "http.write_timeout", 30*time.Second)
	setDefault(k, "http.allowed_origins", []string{"*"})

	setDefault(k, "room.feed_limit", 200)
	setDefault(k, "room.roll_retention", 200)
	setDefault(k, "room.client_buffer", 32)

	setDefault(k, "rate_limit.per_second", 20.0)
	setDefault(k, "rate_limit.burst", 40)

	setDefault(k, "audit.buffer", 256)

	setDefault(k, "tracing.enabled", false)
	setDefault(k, "tracing.endpoint", "http://localhost:4318/v1/traces")
	setDefault(k, "tracing.environment", "development")

	setDefault(k, "log.level", "info")
	setDefault(k, "log.encoding", "json")
}

func setDefault(k *koanf.Koanf, key string, value any) {
	if !k.Exists(key) {
		_ = k.Set(key, value)
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Room.FeedLimit <= 0 {
		errs = append(errs, errors.New("room.feed_limit must be positive"))
	}
	if c.Room.RollRetention <= 0 {
		errs = append(errs, errors.New("room.roll_retention must be positive"))
	}
	if c.Room.ClientBuffer <= 0 {
		errs = append(errs, errors.New("room.client_buffer must be positive"))
	}
	if c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate_limit.per_second and rate_limit.burst must be positive"))
	}
	if c.Audit.DSN != "" && c.Audit.Buffer <= 0 {
		errs = append(errs, errors.New("audit.buffer must be positive when audit.dsn is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
