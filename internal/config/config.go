package config // package config loads application configuration from environment variables

import (
	"os" // os provides access to environment variables
	"strings"
	"time"

	"github.com/joho/godotenv" // .env support for local runs

	"github.com/iliyamo/place-reservation/internal/logger"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds the core runtime configuration.  Each field corresponds to
// an environment variable.  Database settings are only required when the
// MySQL driver is selected.
type Config struct {
	Env         string // application environment (e.g. "dev", "prod")
	Port        string // HTTP port to listen on
	Timezone    string // IANA zone used for calendar days, weeks and months
	LogLevel    string // DEBUG, INFO, WARN or ERROR
	LogFormat   string // json or text
	StoreDriver string // mysql or memory
	DBUser      string // database username
	DBPass      string // database password (optional)
	DBHost      string // database host address
	DBPort      string // database port number
	DBName      string // database name
	DBMigrate   bool   // apply the embedded schema at startup
	SeedFile    string // JSON places and users loaded into the memory store
	JWTSecret   string // secret used to verify staff JWTs
}

// Load reads configuration values from the environment, after merging an
// optional .env file.  Missing required variables stop the process.
func Load() Config {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := Config{
		Env:         must("APP_ENV"),
		Port:        must("APP_PORT"),
		Timezone:    getenv("APP_TIMEZONE", "Local"),
		LogLevel:    getenv("LOG_LEVEL", "INFO"),
		LogFormat:   getenv("LOG_FORMAT", "json"),
		StoreDriver: strings.ToLower(getenv("STORE_DRIVER", DriverMySQL)),
		JWTSecret:   must("JWT_SECRET"),
	}
	if cfg.StoreDriver == DriverMySQL {
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
		cfg.DBMigrate = envBool("DB_MIGRATE", false)
	}
	if cfg.StoreDriver == DriverMemory {
		cfg.SeedFile = os.Getenv("STORE_SEED_FILE")
	}
	return cfg
}

// Location resolves Timezone, falling back to the process zone.
func (c Config) Location() *time.Location {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "Local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		logger.Get().Warn("unknown APP_TIMEZONE, using process zone", "tz", c.Timezone, "error", err)
		return time.Local
	}
	return loc
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logger.Fatal("missing required env var", "key", key)
	}
	return v
}
