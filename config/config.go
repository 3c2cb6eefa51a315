/*
config.go - Runtime configuration

PURPOSE:
  Collects server settings from an optional .env file and the process
  environment. Command-line flags in cmd/server override what is loaded
  here.

ENVIRONMENT:
  PORT                HTTP port (default 8080)
  STORE_DRIVER        sqlite | gorm | memory (default sqlite)
  DATABASE_PATH       SQLite file or ":memory:" (default requests.db)
  JWT_SECRET          HS256 signing key (required unless SEED_DEMO)
  LOG_LEVEL           logrus level (default info)
  LOG_FORMAT          text | json (default text)
  REVIEW_PERMISSIONS  comma separated (default request.review)
  REVIEW_MODE         ALL | ANY (default ALL)
  DEDUCT_ON_APPROVAL  debit allowances on approval (default false)
  ALLOWED_ORIGINS     comma separated CORS origins
  SEED_DEMO           load demo roles, users and absence types (default false)
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/warp/request-engine/admission"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverGorm   = "gorm"
	DriverMemory = "memory"
)

// demoSecret is only accepted together with SEED_DEMO.
const demoSecret = "demo-secret-change-me"

type Config struct {
	Port           int
	StoreDriver    string
	DatabasePath   string
	JWTSecret      string
	LogLevel       string
	LogFormat      string
	ReviewPolicy   admission.Policy
	DeductOnReview bool
	AllowedOrigins []string
	SeedDemo       bool
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	mode, err := admission.ParseMode(getEnv("REVIEW_MODE", string(admission.ModeAll)))
	if err != nil {
		return nil, fmt.Errorf("REVIEW_MODE: %w", err)
	}

	cfg := &Config{
		Port:           getEnvAsInt("PORT", 8080),
		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		DatabasePath:   getEnv("DATABASE_PATH", "requests.db"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		DeductOnReview: getEnvAsBool("DEDUCT_ON_APPROVAL", false),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "")),
		SeedDemo:       getEnvAsBool("SEED_DEMO", false),
		ReviewPolicy: admission.Policy{
			Required: splitList(getEnv("REVIEW_PERMISSIONS", admission.PermRequestReview)),
			Mode:     mode,
		},
	}
	return cfg, nil
}

// Validate checks settings that can only be judged once flags are applied.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite, DriverGorm, DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.JWTSecret == "" {
		if !c.SeedDemo {
			return errors.New("JWT_SECRET is required")
		}
		c.JWTSecret = demoSecret
	}
	return nil
}

// NewLogger builds a logrus logger from level and format names.
func NewLogger(level, format string) (*logrus.Logger, error) {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return log, nil
}

func getEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valStr := getEnv(name, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsInt(name string, defaultVal int) int {
	valStr := getEnv(name, "")
	if val, err := strconv.Atoi(valStr); err == nil {
		return val
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
