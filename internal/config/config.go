// Package config loads server configuration from flags, environment
// variables and an optional .env file, then validates it, grounded on
// cmd/tarsy/main.go's flag+getEnv+godotenv.Load combination in the
// teacher. Validation itself switches from the teacher's hand-rolled,
// sequential validateX methods (pkg/config/validator.go) to struct-tag
// driven go-playground/validator/v10, already a dependency of the
// teacher's own stack via its `validate:` config tags (pkg/config/chain.go,
// pkg/config/agent.go) even though the teacher never actually calls it.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/masc-dev/masc/internal/room"
	"github.com/masc-dev/masc/internal/storage"
)

// Config is the fully-resolved, validated process configuration.
type Config struct {
	HTTPAddr string `validate:"required"`

	StorageKind  storage.Kind  `validate:"required,oneof=fs redis postgres"`
	BasePath     string        `validate:"required_if=StorageKind fs"`
	RedisURL     string        `validate:"required_if=StorageKind redis"`
	PostgresDSN  string        `validate:"required_if=StorageKind postgres"`
	LockTTL      time.Duration `validate:"gt=0"`
	RetryBound   int           `validate:"gte=1,lte=50"`
	RetryBackoff time.Duration `validate:"gt=0"`

	RoomName       string   `validate:"required"`
	AllowedOrigins []string `validate:"dive,url|eq=*"`
	AuthEnabled    bool
	SSERingSize    int `validate:"gte=0"`

	LogLevel string `validate:"oneof=debug info warn error"`

	RetentionInterval   time.Duration `validate:"gt=0"`
	TaskRetention       time.Duration `validate:"gt=0"`
	CheckpointRetention time.Duration `validate:"gt=0"`
	MessageKeepCount    int           `validate:"gte=0"`
}

// Defaults seeds every field a flag/env var doesn't override.
func Defaults() Config {
	return Config{
		HTTPAddr:     ":8765",
		StorageKind:  storage.KindFS,
		BasePath:     "./.masc",
		LockTTL:      30 * time.Second,
		RetryBound:   storage.DefaultRetryBound,
		RetryBackoff: storage.DefaultRetryBackoff,
		RoomName:     "default",
		AuthEnabled:  false,
		SSERingSize:  256,
		LogLevel:     "info",

		RetentionInterval:   time.Hour,
		TaskRetention:       30 * 24 * time.Hour,
		CheckpointRetention: 30 * 24 * time.Hour,
		MessageKeepCount:    room.MaxMessageRing,
	}
}

// Load resolves configuration from (in ascending priority) defaults,
// an optional .env file, environment variables and command-line flags,
// then validates the result. args is normally os.Args[1:].
func Load(args []string) (Config, error) {
	cfg := Defaults()

	fs := flag.NewFlagSet("mascd", flag.ContinueOnError)
	envFile := fs.String("env-file", getEnv("MASC_ENV_FILE", ""), "path to a .env file to load before reading environment variables")
	addr := fs.String("addr", "", "HTTP listen address, e.g. :8765")
	storageKind := fs.String("storage", "", "storage backend: fs | redis | postgres")
	basePath := fs.String("base-path", "", "filesystem backend root directory")
	redisURL := fs.String("redis-url", "", "Redis connection URL")
	postgresDSN := fs.String("postgres-dsn", "", "PostgreSQL connection string")
	roomName := fs.String("room", "", "name of the default room to host")
	authEnabled := fs.Bool("auth", false, "require bearer-token auth for X-MASC-Agent callers")
	allowedOrigins := fs.String("allowed-origins", "", "comma-separated Origin allowlist (empty = localhost only)")
	logLevel := fs.String("log-level", "", "debug | info | warn | error")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			return Config{}, fmt.Errorf("config: loading env file %q: %w", *envFile, err)
		}
	}

	applyEnvAndFlag(&cfg.HTTPAddr, "MASC_ADDR", *addr)
	applyEnvAndFlag((*string)(&cfg.StorageKind), "MASC_STORAGE", *storageKind)
	applyEnvAndFlag(&cfg.BasePath, "MASC_BASE_PATH", *basePath)
	applyEnvAndFlag(&cfg.RedisURL, "MASC_REDIS_URL", *redisURL)
	applyEnvAndFlag(&cfg.PostgresDSN, "MASC_POSTGRES_DSN", *postgresDSN)
	applyEnvAndFlag(&cfg.RoomName, "MASC_ROOM", *roomName)
	applyEnvAndFlag(&cfg.LogLevel, "MASC_LOG_LEVEL", *logLevel)

	if v := getEnv("MASC_AUTH_ENABLED", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AuthEnabled = b
		}
	}
	if *authEnabled {
		cfg.AuthEnabled = true
	}

	if v := getEnv("MASC_LOCK_TTL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LockTTL = d
		}
	}
	if v := getEnv("MASC_RETENTION_INTERVAL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RetentionInterval = d
		}
	}
	if v := getEnv("MASC_TASK_RETENTION", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TaskRetention = d
		}
	}
	if v := getEnv("MASC_CHECKPOINT_RETENTION", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CheckpointRetention = d
		}
	}
	if v := getEnv("MASC_MESSAGE_KEEP_COUNT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MessageKeepCount = n
		}
	}

	origins := getEnv("MASC_ALLOWED_ORIGINS", "")
	if *allowedOrigins != "" {
		origins = *allowedOrigins
	}
	if origins != "" {
		cfg.AllowedOrigins = splitAndTrim(origins)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnvAndFlag(dst *string, envKey, flagValue string) {
	if v := getEnv(envKey, ""); v != "" {
		*dst = v
	}
	if flagValue != "" {
		*dst = flagValue
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
