package migrate

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	return db
}

func countVersions(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count versions: %v", err)
	}
	return n
}

func TestRun_sqliteCreatesSchema(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	if err := Run(ctx, db, "sqlite3"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO temperature_records (temp, lat, long) VALUES (72, 40.0, -105.0)`); err != nil {
		t.Fatalf("insert after migrate: %v", err)
	}
	if got := countVersions(t, db); got != 1 {
		t.Errorf("schema_migrations rows = %d; want 1", got)
	}
}

func TestRun_isIdempotent(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := Run(ctx, db, "sqlite3"); err != nil {
			t.Fatalf("Run #%d: %v", i+1, err)
		}
	}
	if got := countVersions(t, db); got != 1 {
		t.Errorf("schema_migrations rows = %d; want 1", got)
	}
}

func TestRun_unknownDialect(t *testing.T) {
	db := openMemory(t)
	if err := Run(context.Background(), db, "oracle"); err == nil {
		t.Fatal("Run(oracle) = nil; want error")
	}
}

func TestRun_appliesInVersionOrder(t *testing.T) {
	db := openMemory(t)
	fsys := fstest.MapFS{
		"sql/sqlite3/0002_add_row.sql": {Data: []byte(`INSERT INTO t (v) VALUES ('second');`)},
		"sql/sqlite3/0001_create.sql":  {Data: []byte(`CREATE TABLE t (v TEXT NOT NULL);`)},
		"sql/sqlite3/README.md":        {Data: []byte(`ignored`)},
	}

	if err := run(context.Background(), db, "sqlite3", fsys); err != nil {
		t.Fatalf("run: %v", err)
	}
	var v string
	if err := db.QueryRow(`SELECT v FROM t`).Scan(&v); err != nil {
		t.Fatalf("select: %v", err)
	}
	if v != "second" {
		t.Errorf("v = %q; want second", v)
	}
	if got := countVersions(t, db); got != 2 {
		t.Errorf("schema_migrations rows = %d; want 2", got)
	}
}

func TestRun_failedMigrationIsNotRecorded(t *testing.T) {
	db := openMemory(t)
	fsys := fstest.MapFS{
		"sql/sqlite3/0001_broken.sql": {Data: []byte(`CREATE TABLE (;`)},
	}

	if err := run(context.Background(), db, "sqlite3", fsys); err == nil {
		t.Fatal("run(broken) = nil; want error")
	}
	if got := countVersions(t, db); got != 0 {
		t.Errorf("schema_migrations rows = %d; want 0", got)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		in          string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{in: "0001_temperature_records.sql", wantVersion: "0001", wantName: "temperature_records", wantOK: true},
		{in: "12_short.sql"},
		{in: "0001_missing_ext"},
		{in: "abcd_name.sql"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.in)
			if ok != tt.wantOK || version != tt.wantVersion || name != tt.wantName {
				t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v); want (%q, %q, %v)",
					tt.in, version, name, ok, tt.wantVersion, tt.wantName, tt.wantOK)
			}
		})
	}
}
