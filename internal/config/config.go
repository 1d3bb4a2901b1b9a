package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds application configuration values.
type Config struct {
	Env      string
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	SeedDir  string
}

type ServerConfig struct {
	Port        string
	Secret      string
	CORSOrigins []string
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

// RedisConfig is optional; an empty Addr disables the cache and the SOS channel.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	AlternativesTTL time.Duration
	SOSChannel      string
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() Config {
	cfg := Config{
		Env: getEnv("ENV", "development"),
		Server: ServerConfig{
			Port:        getEnv("HTTP_PORT", "8080"),
			Secret:      getEnv("SECRET", "dev_secret"),
			CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DATABASE_DRIVER", "sqlite"),
			DSN:    getEnv("DATABASE_DSN", "medlink.db"),
		},
		Redis: RedisConfig{
			Addr:            getEnv("REDIS_ADDR", ""),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getEnvAsInt("REDIS_DB", 0),
			AlternativesTTL: getEnvAsDuration("ALTERNATIVES_CACHE_TTL", 10*time.Minute),
			SOSChannel:      getEnv("SOS_CHANNEL", "medlink:sos"),
		},
		SeedDir: getEnv("SEED_DIR", "assets"),
	}

	// Validate that port is numeric.
	if _, err := strconv.Atoi(cfg.Server.Port); err != nil {
		log.Warn().Str("value", cfg.Server.Port).Msg("invalid HTTP_PORT, defaulting to 8080")
		cfg.Server.Port = "8080"
	}
	if cfg.IsProduction() && cfg.Server.Secret == "dev_secret" {
		log.Warn().Msg("SECRET is not set; tokens are signed with the development secret")
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("invalid integer, using default")
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("invalid duration, using default")
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
