package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PostgresConfig configures the primary backend pool
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AcquireTimeout  time.Duration
	ConnectTimeout  time.Duration
}

// PostgresBackend is the connection-pooled primary backend
type PostgresBackend struct {
	*sqlBackend
}

// OpenPostgres opens the pool and verifies the server answers within the
// connect timeout
func OpenPostgres(ctx context.Context, cfg PostgresConfig, observe Observer) (*PostgresBackend, error) {
	if cfg.DSN == "" {
		return nil, &Error{Kind: ErrNotConfigured, Backend: "postgres", Err: fmt.Errorf("neither DATABASE_URL nor DB_HOST is set")}
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, &Error{Kind: ErrMalformed, Backend: "postgres", Err: err}
	}

	// Configure connection pool
	db.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, 25))
	db.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, 5))
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, durationOr(cfg.ConnectTimeout, 5*time.Second))
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		if classified := classifyPostgres(err); classified != err {
			return nil, classified
		}
		return nil, &Error{Kind: ErrConnectivity, Backend: "postgres", Err: err}
	}

	return &PostgresBackend{sqlBackend: &sqlBackend{
		db:             db,
		name:           "postgres",
		dialect:        DialectPostgres,
		acquireTimeout: durationOr(cfg.AcquireTimeout, 5*time.Second),
		observe:        observe,
		hooks: driverHooks{
			classify: classifyPostgres,
			insertID: postgresInsertID,
			decode:   postgresDecode,
		},
	}}, nil
}

// postgresInsertID appends a RETURNING clause and reads the id in the same
// round trip
func postgresInsertID(ctx context.Context, q queryer, stmt Statement) (int64, error) {
	var id int64
	if err := q.QueryRowContext(ctx, returningID(stmt.Text), stmt.Args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func returningID(text string) string {
	return strings.TrimRight(strings.TrimSpace(text), "; \t\n") + " RETURNING id"
}

// postgresDecode turns JSON/JSONB columns into native structures and NUMERIC
// into its decimal text
func postgresDecode(typeName string, v any) any {
	raw, ok := v.([]byte)
	if !ok {
		return v
	}

	switch typeName {
	case "JSON", "JSONB":
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			// the mapper treats undecodable JSON as empty
			return string(raw)
		}
		return decoded
	}
	return plainValue(raw)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func durationOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
