package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Generator providers.
const (
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Storage struct {
		Backend   string `yaml:"backend"`
		Namespace string `yaml:"namespace"`
		SQLite    struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
	} `yaml:"storage"`
	Redis struct {
		Addr       string `yaml:"addr"`
		Password   string `yaml:"password"`
		DB         int    `yaml:"db"`
		SessionTTL string `yaml:"session_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		SingleSize      int `yaml:"single_size"`
		SingleThreshold int `yaml:"single_threshold"`
		MixedSize       int `yaml:"mixed_size"`
		MixedThreshold  int `yaml:"mixed_threshold"`
		GenerateCount   int `yaml:"generate_count"`
	} `yaml:"quiz"`
	Seed struct {
		Target int `yaml:"target"`
	} `yaml:"seed"`
	Generator struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		APIKeyEnv string `yaml:"api_key_env"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"generator"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads YAML config from path. A missing file yields the defaults.
// Variables from a .env file in the working directory are loaded first so
// that the generator API key can live there.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	setString(&c.Server.Port, "8080")
	setString(&c.Server.ShutdownTimeout, "5s")
	setString(&c.Storage.Backend, BackendSQLite)
	setString(&c.Storage.Namespace, "mastery:")
	setString(&c.Storage.SQLite.Path, "data/mastery.db")
	setString(&c.Redis.SessionTTL, "2h")
	setInt(&c.Quiz.SingleSize, 10)
	setInt(&c.Quiz.SingleThreshold, 5)
	setInt(&c.Quiz.MixedSize, 20)
	setInt(&c.Quiz.MixedThreshold, 10)
	setInt(&c.Quiz.GenerateCount, 10)
	setInt(&c.Seed.Target, 100)
	setString(&c.Generator.Provider, ProviderGemini)
	setString(&c.Generator.APIKeyEnv, "GEMINI_API_KEY")
	setString(&c.Generator.Timeout, "45s")
	setString(&c.Log.Level, "info")
	setString(&c.Log.Format, "text")
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis backend requires redis.addr")
		}
	case BackendPostgres:
		if c.Postgres.URL == "" {
			return errors.New("postgres backend requires postgres.url")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Generator.Provider {
	case ProviderGemini, ProviderNone:
	default:
		return fmt.Errorf("unknown generator provider %q", c.Generator.Provider)
	}
	if c.Quiz.SingleSize < 1 || c.Quiz.MixedSize < 1 {
		return errors.New("quiz sizes must be positive")
	}
	return nil
}

// APIKey returns the generator key from the configured environment variable.
func (c Config) APIKey() string {
	return os.Getenv(c.Generator.APIKeyEnv)
}

// LogLevel maps log.level to a slog level; unknown values mean info.
func (c Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

func setString(dst *string, fallback string) {
	if *dst == "" {
		*dst = fallback
	}
}

func setInt(dst *int, fallback int) {
	if *dst == 0 {
		*dst = fallback
	}
}
