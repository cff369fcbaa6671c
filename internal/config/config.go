package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	FetchModeList     = "list"
	FetchModeInformer = "informer"
)

type Config struct {
	// Version is the build version reported by the health endpoints. It is
	// set by main, not read from the environment.
	Version string

	HTTPAddr        string
	LogLevel        string
	StaticRoot      string
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	FetchMode       string
	InformerResync  time.Duration
	APIServer       string
	Kubeconfig      string
	Shell           bool
	HistoryFile     string
	HistorySize     int
}

// Load reads the configuration from the environment after merging an
// optional .env file from the working directory. Variables already set in
// the environment win over the file.
func Load() *Config {
	loadDotEnv(".env")
	return &Config{
		HTTPAddr:        envOr("KUBESQL_ADDR", ":8090"),
		LogLevel:        envOr("KUBESQL_LOG_LEVEL", "info"),
		StaticRoot:      envOr("KUBESQL_STATIC_ROOT", "."),
		RefreshInterval: envDurationOr("KUBESQL_REFRESH_INTERVAL", 10*time.Second),
		FetchTimeout:    envDurationOr("KUBESQL_FETCH_TIMEOUT", 30*time.Second),
		FetchMode:       strings.ToLower(envOr("KUBESQL_FETCH_MODE", FetchModeList)),
		InformerResync:  envDurationOr("KUBESQL_INFORMER_RESYNC", 10*time.Minute),
		APIServer:       envOr("KUBESQL_API_SERVER", ""),
		Kubeconfig:      envOr("KUBECONFIG", ""),
		Shell:           envBoolOr("KUBESQL_SHELL", true),
		HistoryFile:     envOr("KUBESQL_HISTORY_FILE", "/tmp/kubesql-history"),
		HistorySize:     envIntOr("KUBESQL_HISTORY_SIZE", 100),
	}
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func loadDotEnv(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			slog.Warn("failed to load env file", "file", f, "error", err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
