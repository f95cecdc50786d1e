package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"templog-server/internal/config"

	"github.com/jackc/pgx/v5/stdlib"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database and validates connectivity.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sql.DB, error) {
	drv, dsn, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	if cfg.DBLogSQL {
		connector, err := NewLoggingConnector(drv, dsn, logger)
		if err != nil {
			return nil, fmt.Errorf("db connector: %w", err)
		}
		db = sql.OpenDB(connector)
	} else {
		connector, err := newConnector(drv, dsn)
		if err != nil {
			return nil, fmt.Errorf("db connector: %w", err)
		}
		db = sql.OpenDB(connector)
	}

	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns >= 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
	if cfg.DBConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	}

	// Validate connectivity early
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return db, nil
}

func Close(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

func resolve(cfg config.Config) (driver.Driver, string, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return stdlib.GetDefaultDriver(), cfg.DBDSN, nil
	case config.DriverSQLite:
		dsn, err := buildSQLiteDSN(cfg)
		if err != nil {
			return nil, "", err
		}
		return &sqlite3.SQLiteDriver{}, dsn, nil
	default:
		return nil, "", fmt.Errorf("unsupported driver %q", cfg.DBDriver)
	}
}

// newConnector adapts drv to driver.Connector, preferring the driver's own
// connector when it has one.
func newConnector(drv driver.Driver, dsn string) (driver.Connector, error) {
	if dc, ok := drv.(driver.DriverContext); ok {
		return dc.OpenConnector(dsn)
	}
	return &dsnConnector{drv: drv, dsn: dsn}, nil
}

type dsnConnector struct {
	drv driver.Driver
	dsn string
}

func (c *dsnConnector) Connect(context.Context) (driver.Conn, error) {
	return c.drv.Open(c.dsn)
}

func (c *dsnConnector) Driver() driver.Driver {
	return c.drv
}

func buildSQLiteDSN(cfg config.Config) (string, error) {
	if cfg.DBDSN != "" {
		return cfg.DBDSN, nil
	}

	// Ensure directory exists for file-backed sqlite db
	path := cfg.SQLitePath
	dir := filepath.Dir(path)
	if dir != "." && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	// - busy_timeout: concurrent submissions wait instead of failing with "database is locked"
	// - journal_mode=WAL: readers do not block the writer
	params := []string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}

	// If caller provided something like "file:/data/app.db?x=y" as Path, don't double-wrap
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}

	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}
