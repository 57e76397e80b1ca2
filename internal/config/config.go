package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"lichtrinh-service/internal/logger"
	"lichtrinh-service/internal/schedule"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error, "warning" accepted
	// Substrings of log messages to drop, comma separated.
	LogSuppress []string `envconfig:"LOG_SUPPRESS"`

	// TargetTZ is the zone days and hours are judged in.
	TargetTZ string `envconfig:"TARGET_TZ" default:"Asia/Ho_Chi_Minh"`
	// StorageTZ is the zone offset-less stored timestamps are written in.
	StorageTZ string `envconfig:"STORAGE_TZ" default:"UTC"`

	JWTSecret    string        `envconfig:"JWT_HMAC_SECRET"`
	JWTTTL       time.Duration `envconfig:"JWT_TTL" default:"24h"`
	StaticTokens []string      `envconfig:"STATIC_TOKENS"`

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	TaskCacheTTL  time.Duration `envconfig:"TASK_CACHE_TTL" default:"10m"`

	RateLimitPerMin int `envconfig:"RATE_LIMIT_PER_MIN" default:"120"`

	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `envconfig:"GOOGLE_REDIRECT_URL"`
}

// Load reads an optional .env file and then the environment into Config.
func Load(envFiles ...string) (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return cfg, fmt.Errorf("DATABASE_URL required")
	}
	cfg.StaticTokens = trimAll(cfg.StaticTokens)
	cfg.LogSuppress = trimAll(cfg.LogSuppress)

	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return cfg, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	if _, err := cfg.TargetZone(); err != nil {
		return cfg, fmt.Errorf("TARGET_TZ: %w", err)
	}
	if _, err := cfg.StorageZone(); err != nil {
		return cfg, fmt.Errorf("STORAGE_TZ: %w", err)
	}
	if cfg.RateLimitPerMin <= 0 {
		return cfg, fmt.Errorf("RATE_LIMIT_PER_MIN must be positive, got %d", cfg.RateLimitPerMin)
	}
	return cfg, nil
}

func (c Config) TargetZone() (*time.Location, error) {
	return schedule.LoadZone(c.TargetTZ)
}

func (c Config) StorageZone() (*time.Location, error) {
	return schedule.LoadZone(c.StorageTZ)
}

// GoogleEnabled reports whether calendar import is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

func (c Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
