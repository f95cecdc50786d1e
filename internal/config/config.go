package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	LocationProviderIPAPI  = "ipapi"
	LocationProviderStatic = "static"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	// HTTPHost is joined with the port given on the command line.
	HTTPHost string

	// StaticDir is the absolute path to the directory served at /css/.
	// Set via STATIC_DIR (relative paths are resolved against the process working directory at startup).
	StaticDir string

	DBDriver          string
	DBDSN             string
	SQLitePath        string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnectTimeout  time.Duration
	DBLogSQL          bool

	LocationProvider      string
	LocationURL           string
	LocationLat           float64
	LocationLong          float64
	LocationTimeout       time.Duration
	LocationRatePerMinute int

	// Redis is optional; empty RedisAddr disables the range-query cache.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// MQTT is optional; empty MQTTBroker disables record events.
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string
}

// Load reads an optional .env file from the working directory and then
// resolves the configuration from the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return LoadFromEnv()
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(getenvDefault("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	staticDir := getenvDefault("STATIC_DIR", "public/css")
	staticDir, err = filepath.Abs(staticDir)
	if err != nil {
		return Config{}, fmt.Errorf("STATIC_DIR %q: %w", staticDir, err)
	}

	cfg := Config{
		AppEnv:        appEnv,
		LogLevel:      level,
		HTTPHost:      strings.TrimSpace(os.Getenv("HTTP_HOST")),
		StaticDir:     staticDir,
		DBDSN:         strings.TrimSpace(os.Getenv("DB_DSN")),
		SQLitePath:    getenvDefault("SQLITE_PATH", "data/templog.db"),
		LocationURL:   getenvDefault("LOCATION_URL", "http://ip-api.com/json"),
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		MQTTBroker:    strings.TrimSpace(os.Getenv("MQTT_BROKER")),
		MQTTClientID:  getenvDefault("MQTT_CLIENT_ID", "templog-server"),
		MQTTTopic:     getenvDefault("MQTT_TOPIC", "templog/records"),
	}

	cfg.DBDriver = getenvDefault("DB_DRIVER", DriverSQLite)
	switch cfg.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if cfg.DBDSN == "" {
			return Config{}, fmt.Errorf("DB_DSN is required when DB_DRIVER=%s", DriverPostgres)
		}
	default:
		return Config{}, fmt.Errorf("invalid DB_DRIVER %q (allowed: %s, %s)", cfg.DBDriver, DriverSQLite, DriverPostgres)
	}

	if cfg.DBMaxOpenConns, err = getenvInt("DB_MAX_OPEN_CONNS", defaultMaxOpenConns(cfg.DBDriver)); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxIdleConns, err = getenvInt("DB_MAX_IDLE_CONNS", 1); err != nil {
		return Config{}, err
	}
	if cfg.DBConnMaxLifetime, err = getenvDuration("DB_CONN_MAX_LIFETIME", "0s"); err != nil {
		return Config{}, err
	}
	if cfg.DBConnectTimeout, err = getenvDuration("DB_CONNECT_TIMEOUT", "10s"); err != nil {
		return Config{}, err
	}
	if cfg.DBLogSQL, err = getenvBool("DB_LOG_SQL", false); err != nil {
		return Config{}, err
	}

	cfg.LocationProvider = getenvDefault("LOCATION_PROVIDER", LocationProviderIPAPI)
	switch cfg.LocationProvider {
	case LocationProviderIPAPI:
	case LocationProviderStatic:
		if cfg.LocationLat, err = getenvFloat("LOCATION_LAT"); err != nil {
			return Config{}, err
		}
		if cfg.LocationLong, err = getenvFloat("LOCATION_LONG"); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("invalid LOCATION_PROVIDER %q (allowed: %s, %s)", cfg.LocationProvider, LocationProviderIPAPI, LocationProviderStatic)
	}
	if cfg.LocationTimeout, err = getenvDuration("LOCATION_TIMEOUT", "10s"); err != nil {
		return Config{}, err
	}
	if cfg.LocationRatePerMinute, err = getenvInt("LOCATION_RATE_PER_MINUTE", 45); err != nil {
		return Config{}, err
	}
	if cfg.LocationRatePerMinute <= 0 {
		return Config{}, fmt.Errorf("LOCATION_RATE_PER_MINUTE must be > 0, got %d", cfg.LocationRatePerMinute)
	}

	if cfg.RedisDB, err = getenvInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", "5m"); err != nil {
		return Config{}, err
	}

	if cfg.MQTTPort, err = getenvInt("MQTT_PORT", 1883); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Addr returns the listen address for the given port.
func (c Config) Addr(port string) string {
	return c.HTTPHost + ":" + port
}

// ParsePort validates the command line port argument.
func ParsePort(s string) (string, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return "", fmt.Errorf("invalid port %q: %w", s, err)
	}
	if n < 0 || n > 65535 {
		return "", fmt.Errorf("invalid port %d (allowed: 0-65535)", n)
	}
	return strconv.Itoa(n), nil
}

func defaultMaxOpenConns(driver string) int {
	// SQLite is typically best with a single writer.
	if driver == DriverSQLite {
		return 1
	}
	return 10
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	s := getenvDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func getenvBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func getenvFloat(key string) (float64, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return 0, fmt.Errorf("%s is required when LOCATION_PROVIDER=%s", key, LocationProviderStatic)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return f, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
