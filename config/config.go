package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	DefaultKeyPrefix     = "review_draft_"
	DefaultDebounce      = 3 * time.Second
	DefaultFlushInterval = 30 * time.Second
)

type Database struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
}

// DSN builds the postgres connection string the same way for every caller.
func (d Database) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type Draft struct {
	Store         string
	KeyPrefix     string
	Debounce      time.Duration
	FlushInterval time.Duration
	// FailureRate only applies to the memory store.
	FailureRate float64
}

type Config struct {
	ListenAddr string
	JWTSecret  string
	LogLevel   string
	Database   Database
	Draft      Draft
}

// Load reads a .env file if one is present and then the process environment.
// A missing .env file is not an error; loaded reports whether one was read.
func Load() (cfg Config, loaded bool, err error) {
	loaded = godotenv.Load() == nil
	cfg, err = FromEnv()
	return cfg, loaded, err
}

func FromEnv() (Config, error) {
	cfg := Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		JWTSecret:  getEnv("JWT_SECRET", getEnv("SUPABASE_JWT_SECRET", "")),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		Database: Database{
			User:     getEnv("user", ""),
			Password: getEnv("password", ""),
			Host:     getEnv("host", "localhost"),
			Port:     getEnv("port", "5432"),
			Name:     getEnv("dbname", ""),
			SSLMode:  getEnv("sslmode", "require"),
		},
		Draft: Draft{
			Store:     strings.ToLower(getEnv("DRAFT_STORE", StorePostgres)),
			KeyPrefix: getEnv("DRAFT_KEY_PREFIX", DefaultKeyPrefix),
		},
	}

	var err error
	if cfg.Draft.Debounce, err = getDuration("DRAFT_DEBOUNCE", DefaultDebounce); err != nil {
		return Config{}, err
	}
	if cfg.Draft.FlushInterval, err = getDuration("DRAFT_FLUSH_INTERVAL", DefaultFlushInterval); err != nil {
		return Config{}, err
	}
	if raw := getEnv("MEMORY_STORE_FAILURE_RATE", ""); raw != "" {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil || rate < 0 || rate > 1 {
			return Config{}, fmt.Errorf("MEMORY_STORE_FAILURE_RATE must be a number in [0,1], got %q", raw)
		}
		cfg.Draft.FailureRate = rate
	}

	switch cfg.Draft.Store {
	case StorePostgres, StoreMemory:
	default:
		return Config{}, fmt.Errorf("DRAFT_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, cfg.Draft.Store)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}
