package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"templog-server/internal/modules/templog/types"
)

//go:embed sql/*/*.sql
var queriesFS embed.FS

var (
	// ErrConnectionUnavailable is returned by every operation when the
	// backing store could not be reached.
	ErrConnectionUnavailable = errors.New("storage: connection unavailable")

	// ErrStoreClosed is returned by operations issued after Close.
	ErrStoreClosed = errors.New("storage: closed")
)

// TemperatureRepository persists temperature records and answers inclusive
// temperature range queries. Implementations are safe for concurrent use.
type TemperatureRepository interface {
	Insert(ctx context.Context, record types.Record) (types.RecordID, error)
	QueryByTempRange(ctx context.Context, low int, high int) ([]types.Record, error)
	Ping(ctx context.Context) error
	Close() error
}

type queries struct {
	insertRecord      string
	getRecordsByRange string
}

func loadQueries(dialect string) (queries, error) {
	read := func(name string) (string, error) {
		b, err := queriesFS.ReadFile("sql/" + dialect + "/" + name)
		if err != nil {
			return "", fmt.Errorf("load query %s for dialect %q: %w", name, dialect, err)
		}
		return string(b), nil
	}
	var q queries
	var err error
	if q.insertRecord, err = read("insert-record.sql"); err != nil {
		return queries{}, err
	}
	if q.getRecordsByRange, err = read("get-records-by-temp.sql"); err != nil {
		return queries{}, err
	}
	return q, nil
}

type repositoryImpl struct {
	db      *sql.DB
	queries queries
}

// NewRepository returns a SQL-backed repository. dialect selects the
// embedded statements ("sqlite3" or "postgres").
func NewRepository(db *sql.DB, dialect string) (TemperatureRepository, error) {
	q, err := loadQueries(dialect)
	if err != nil {
		return nil, err
	}
	return &repositoryImpl{db: db, queries: q}, nil
}

// Insert writes all columns of the record in a single statement.
func (r *repositoryImpl) Insert(ctx context.Context, record types.Record) (types.RecordID, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, r.queries.insertRecord, record.Temp, record.Lat, record.Long).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	return types.RecordID(id), nil
}

// QueryByTempRange returns records with low <= temp <= high in insertion
// order. An inverted range yields an empty slice.
func (r *repositoryImpl) QueryByTempRange(ctx context.Context, low int, high int) ([]types.Record, error) {
	out := make([]types.Record, 0)
	if low > high {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, r.queries.getRecordsByRange, low, high)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close records rows", "error", err)
		}
	}()
	for rows.Next() {
		var rec types.Record
		var id int64
		if err := rows.Scan(&id, &rec.Temp, &rec.Lat, &rec.Long); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.ID = types.RecordID(id)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) Ping(ctx context.Context) error {
	var ok int
	if err := r.db.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		return err
	}
	if ok != 1 {
		return errors.New("database connection failed")
	}
	return nil
}

func (r *repositoryImpl) Close() error {
	return r.db.Close()
}
