package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteConfig configures the embedded secondary backend
type SQLiteConfig struct {
	Path           string
	AcquireTimeout time.Duration
}

// SQLiteBackend is the single-file fallback backend. It holds one
// connection, so writes are serialized by the pool itself.
type SQLiteBackend struct {
	*sqlBackend
}

// sqliteDSN builds the driver DSN with foreign keys, a busy timeout and WAL
func sqliteDSN(path string) string {
	params := url.Values{}
	params.Set("_foreign_keys", "1")
	params.Set("_busy_timeout", "5000")
	params.Set("_journal_mode", "WAL")

	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + params.Encode()
}

// OpenSQLite opens (creating if needed) the database file at cfg.Path
func OpenSQLite(ctx context.Context, cfg SQLiteConfig, observe Observer) (*SQLiteBackend, error) {
	if cfg.Path == "" {
		return nil, &Error{Kind: ErrNotConfigured, Backend: "sqlite", Err: fmt.Errorf("empty database path")}
	}
	if cfg.Path != ":memory:" && !strings.HasPrefix(cfg.Path, "file:") {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, &Error{Kind: ErrConnectivity, Backend: "sqlite", Err: err}
			}
		}
	}

	db, err := sql.Open("sqlite3", sqliteDSN(cfg.Path))
	if err != nil {
		return nil, &Error{Kind: ErrConnectivity, Backend: "sqlite", Err: err}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		if classified := classifySQLite(err); classified != err {
			return nil, classified
		}
		return nil, &Error{Kind: ErrConnectivity, Backend: "sqlite", Err: err}
	}

	return &SQLiteBackend{sqlBackend: &sqlBackend{
		db:             db,
		name:           "sqlite",
		dialect:        DialectSQLite,
		acquireTimeout: durationOr(cfg.AcquireTimeout, 5*time.Second),
		observe:        observe,
		hooks: driverHooks{
			classify: classifySQLite,
			insertID: sqliteInsertID,
			decode:   sqliteDecode,
		},
	}}, nil
}

// sqliteInsertID executes the plain insert and reads last_insert_rowid from
// the result, which the driver captures on the connection that ran it
func sqliteInsertID(ctx context.Context, q queryer, stmt Statement) (int64, error) {
	res, err := q.ExecContext(ctx, stmt.Text, stmt.Args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// sqliteDecode leaves values as stored: JSON stays text and booleans stay 0/1
func sqliteDecode(_ string, v any) any {
	return plainValue(v)
}
