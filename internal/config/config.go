// Package config validates the broker's environment at startup, collecting
// every problem before returning instead of failing on the first one.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"os"

	"go.uber.org/zap"

	"github.com/vucinatim/air-jam/backend/go/internal/logging"
)

// Config holds validated environment configuration for the broker.
type Config struct {
	Port int

	MasterKey   string
	DatabaseURL string

	GoEnv    string
	LogLevel string

	AllowedOrigins []string

	RedisAddr string

	RateLimitWsConnectIP    string
	RateLimitControllerJoin string

	MasterGracePeriod time.Duration
	RosterReplayDelay time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// ValidateEnv validates all environment variables and returns a Config, or
// a single error joining every problem found.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	portStr := getEnvOrDefault("PORT", "4000")
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got %q)", portStr))
	}
	cfg.Port = port

	cfg.MasterKey = os.Getenv("AIR_JAM_MASTER_KEY")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	origins := getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	cfg.AllowedOrigins = strings.Split(origins, ",")

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")

	cfg.RateLimitWsConnectIP = getEnvOrDefault("RATE_LIMIT_WS_CONNECT_IP", "20-M")
	cfg.RateLimitControllerJoin = getEnvOrDefault("RATE_LIMIT_CONTROLLER_JOIN", "30-M")

	cfg.MasterGracePeriod = getEnvDurationOrDefault("AIR_JAM_MASTER_GRACE_PERIOD", 3*time.Second)
	cfg.RosterReplayDelay = getEnvDurationOrDefault("AIR_JAM_ROSTER_REPLAY_DELAY", 100*time.Millisecond)
	cfg.HeartbeatInterval = getEnvDurationOrDefault("AIR_JAM_HEARTBEAT_INTERVAL", 2*time.Second)
	cfg.HeartbeatTimeout = getEnvDurationOrDefault("AIR_JAM_HEARTBEAT_TIMEOUT", 5*time.Second)

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// AuthMode reports which of the three C2 modes this configuration selects.
func (c *Config) AuthMode() string {
	switch {
	case c.DatabaseURL != "":
		return "store"
	case c.MasterKey != "":
		return "master-key"
	default:
		return "dev"
	}
}

func logValidatedConfig(cfg *Config) {
	logging.Info(nil, "environment configuration validated",
		zap.Int("port", cfg.Port),
		zap.String("auth_mode", cfg.AuthMode()),
		zap.String("go_env", cfg.GoEnv),
		zap.String("log_level", cfg.LogLevel),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
		zap.Bool("redis_enabled", cfg.RedisAddr != ""),
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
