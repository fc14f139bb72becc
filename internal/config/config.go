// Package config reads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/talgya/clip-tycoon/internal/engine"
	"github.com/talgya/clip-tycoon/internal/persistence"
)

// MaxSpeed bounds the tick rate multiplier.
const MaxSpeed = 1000

type Config struct {
	Seed          int64
	TickInterval  time.Duration
	Speed         float64 // tick rate multiplier; fractions slow the clock down
	AutosaveTicks int
	APIPort       int
	AdminKey      string
	LogLevel      slog.Level

	DBDialect   persistence.Dialect
	SQLitePath  string
	PostgresDSN string

	RandomOrgKey string
	CORSOrigins  []string
}

// Load reads an optional .env file, then the environment. Unparseable numbers
// fall back to their defaults; everything else is checked by Validate.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env not loaded", "error", err)
	}

	cfg := &Config{
		Seed:          int64(envIntOrDefault("TYCOON_SEED", 0)),
		TickInterval:  envDurationOrZero("TYCOON_TICK_INTERVAL", engine.DefaultInterval),
		Speed:         envFloatOrDefault("TYCOON_SPEED", 1),
		AutosaveTicks: envIntOrDefault("TYCOON_AUTOSAVE_TICKS", engine.DefaultAutosaveTicks),
		APIPort:       envIntOrDefault("TYCOON_API_PORT", 8080),
		AdminKey:      os.Getenv("TYCOON_ADMIN_KEY"),
		LogLevel:      parseLevel(os.Getenv("TYCOON_LOG_LEVEL")),
		SQLitePath:    envOrDefault("DB_SQLITE_PATH", "data/tycoon.db"),
		PostgresDSN:   envOrDefault("DB_POSTGRES_DSN", os.Getenv("DATABASE_URL")),
		RandomOrgKey:  os.Getenv("RANDOM_ORG_API_KEY"),
	}
	cfg.DBDialect = persistence.Dialect(strings.ToLower(strings.TrimSpace(envOrDefault("DB_DIALECT", string(persistence.DialectSQLite)))))

	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, o := range strings.Split(env, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}
	return cfg
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if _, err := persistence.ParseDialect(string(c.DBDialect)); err != nil {
		return err
	}
	if c.DBDialect == persistence.DialectPostgres && c.PostgresDSN == "" {
		return errors.New("DB_DIALECT=postgres requires DB_POSTGRES_DSN or DATABASE_URL")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TYCOON_TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if math.IsNaN(c.Speed) || c.Speed < 0 || c.Speed > MaxSpeed {
		return fmt.Errorf("TYCOON_SPEED must be between 0 and %g, got %g", float64(MaxSpeed), c.Speed)
	}
	if c.AutosaveTicks < 0 {
		return fmt.Errorf("TYCOON_AUTOSAVE_TICKS must not be negative, got %d", c.AutosaveTicks)
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("TYCOON_API_PORT out of range: %d", c.APIPort)
	}
	return nil
}

// DSN returns the connection string for the selected dialect.
func (c *Config) DSN() string {
	if c.DBDialect == persistence.DialectPostgres {
		return c.PostgresDSN
	}
	return c.SQLitePath
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloatOrDefault(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// envDurationOrZero returns 0 for an unparseable value so Validate reports it.
func envDurationOrZero(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
