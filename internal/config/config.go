// Package config loads the application configuration.
//
// Values come from the process environment. A .env file in the working
// directory, if present, is loaded first (godotenv never overrides variables
// that are already set), which is convenient in development:
//
//	PORT=5001
//	JWT_SECRET=change-me-to-something-long
//	STORE_DRIVER=mongo
//	MONGODB_URI=mongodb://localhost:27017/customer_management
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config is the complete, validated configuration.
type Config struct {
	Port int

	StoreDriver   string // "sqlite" or "mongo"
	DBPath        string // sqlite file
	MongoURI      string
	MongoDatabase string

	JWTSecret  string
	JWTTTL     time.Duration
	BcryptCost int

	RedisAddr      string // empty disables the street cache
	RedisPassword  string
	RedisDB        int
	StreetCacheTTL time.Duration

	CORSOrigins    []string
	MaxUploadBytes int64

	LogLevel  slog.Level
	LogFormat string // "text" or "json"
}

// Load reads .env (if any) and the environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load() // a missing .env file is fine
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, which keeps it testable
// without touching the real environment.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}

	cfg := &Config{
		Port:           p.integer("PORT", 5001),
		StoreDriver:    strings.ToLower(p.str("STORE_DRIVER", DriverSQLite)),
		DBPath:         p.str("DB_PATH", "data/billing.db"),
		MongoURI:       p.str("MONGODB_URI", "mongodb://localhost:27017/customer_management"),
		MongoDatabase:  getenv("MONGODB_DATABASE"),
		JWTSecret:      getenv("JWT_SECRET"),
		JWTTTL:         p.dur("JWT_TTL", 7*24*time.Hour),
		BcryptCost:     p.integer("BCRYPT_COST", 10),
		RedisAddr:      getenv("REDIS_ADDR"),
		RedisPassword:  getenv("REDIS_PASSWORD"),
		RedisDB:        p.integer("REDIS_DB", 0),
		StreetCacheTTL: p.dur("STREET_CACHE_TTL", 5*time.Minute),
		CORSOrigins:    splitList(p.str("CORS_ORIGINS", "*")),
		MaxUploadBytes: int64(p.integer("MAX_UPLOAD_BYTES", 5<<20)),
		LogFormat:      strings.ToLower(p.str("LOG_FORMAT", "text")),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(p.str("LOG_LEVEL", "info"))); err != nil {
		p.errs = append(p.errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = databaseFromURI(cfg.MongoURI)
	}

	if err := errors.Join(append(p.errs, cfg.validate()...)...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	if c.StoreDriver != DriverSQLite && c.StoreDriver != DriverMongo {
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverMongo, c.StoreDriver))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be set and at least 16 characters"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	return errs
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// parser collects every malformed value instead of stopping at the first one,
// so a misconfigured deployment reports all its problems at once.
type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (p *parser) dur(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// databaseFromURI takes the database name from the URI path
// ("mongodb://host/customer_management"), falling back to customer_management.
func databaseFromURI(uri string) string {
	if u, err := url.Parse(uri); err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}
	return "customer_management"
}
