package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// queryer is satisfied by both *sql.Conn and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// driverHooks carries the behavior that differs between database drivers
type driverHooks struct {
	classify func(error) error
	// insertID runs an insert and reports the new id on the same connection
	insertID func(ctx context.Context, q queryer, stmt Statement) (int64, error)
	// decode converts one scanned column value into its row representation
	decode func(typeName string, v any) any
}

// sqlBackend implements Backend on top of database/sql
type sqlBackend struct {
	db             *sql.DB
	name           string
	dialect        Dialect
	acquireTimeout time.Duration
	hooks          driverHooks
	observe        Observer
}

func (b *sqlBackend) Dialect() Dialect {
	return b.dialect
}

func (b *sqlBackend) Name() string {
	return b.name
}

// DB exposes the underlying pool, for tests and health probes
func (b *sqlBackend) DB() *sql.DB {
	return b.db
}

func (b *sqlBackend) Ping(ctx context.Context) error {
	return b.hooks.classify(b.db.PingContext(ctx))
}

func (b *sqlBackend) Close() error {
	return b.db.Close()
}

// acquire checks out one connection, bounded by the acquisition timeout
func (b *sqlBackend) acquire(ctx context.Context) (*sql.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, b.acquireTimeout)
	defer cancel()

	conn, err := b.db.Conn(acquireCtx)
	if err == nil {
		return conn, nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, &Error{
			Kind:    ErrUnavailable,
			Backend: b.name,
			Err:     fmt.Errorf("no connection within %s: %w", b.acquireTimeout, err),
		}
	}
	return nil, b.hooks.classify(err)
}

func (b *sqlBackend) Query(ctx context.Context, stmt Statement) (*Result, error) {
	if err := b.validate(stmt); err != nil {
		return nil, err
	}

	conn, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return b.run(ctx, conn, stmt)
}

func (b *sqlBackend) Insert(ctx context.Context, stmt Statement) (int64, error) {
	if err := b.validateInsert(stmt); err != nil {
		return 0, err
	}

	conn, err := b.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	return b.runInsert(ctx, conn, stmt)
}

func (b *sqlBackend) Begin(ctx context.Context) (Tx, error) {
	conn, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, b.hooks.classify(err)
	}
	return &sqlTx{backend: b, conn: conn, tx: tx}, nil
}

func (b *sqlBackend) validate(stmt Statement) error {
	if strings.TrimSpace(stmt.Text) == "" {
		return &Error{Kind: ErrMalformed, Backend: b.name, Err: errors.New("empty statement")}
	}
	if stmt.Returning && stmt.Kind != KindInsert {
		return &Error{Kind: ErrMalformed, Backend: b.name, Err: fmt.Errorf("returning is only supported on insert, got %s", stmt.Kind)}
	}
	if err := b.dialect.ValidateArgs(stmt.Text, len(stmt.Args)); err != nil {
		return &Error{Kind: ErrMalformed, Backend: b.name, Err: err}
	}
	return nil
}

func (b *sqlBackend) validateInsert(stmt Statement) error {
	if stmt.Kind != KindInsert {
		return &Error{Kind: ErrMalformed, Backend: b.name, Err: fmt.Errorf("insert called with %s statement", stmt.Kind)}
	}
	return b.validate(stmt)
}

// run dispatches on the statement kind
func (b *sqlBackend) run(ctx context.Context, q queryer, stmt Statement) (res *Result, err error) {
	start := time.Now()
	defer func() {
		if b.observe != nil {
			b.observe(b.name, stmt.Kind.String(), time.Since(start), err)
		}
	}()

	switch {
	case stmt.Kind == KindSelect:
		rows, err := q.QueryContext(ctx, stmt.Text, stmt.Args...)
		if err != nil {
			return nil, b.hooks.classify(err)
		}
		records, err := b.scan(rows)
		if err != nil {
			return nil, b.hooks.classify(err)
		}
		return &Result{Rows: records, RowsAffected: int64(len(records))}, nil

	case stmt.Kind == KindInsert && stmt.Returning:
		id, err := b.hooks.insertID(ctx, q, stmt)
		if err != nil {
			return nil, b.hooks.classify(err)
		}
		return &Result{Rows: []Record{{"id": id}}, RowsAffected: 1}, nil

	default:
		sqlRes, err := q.ExecContext(ctx, stmt.Text, stmt.Args...)
		if err != nil {
			return nil, b.hooks.classify(err)
		}
		affected, _ := sqlRes.RowsAffected()
		return &Result{RowsAffected: affected}, nil
	}
}

func (b *sqlBackend) runInsert(ctx context.Context, q queryer, stmt Statement) (id int64, err error) {
	start := time.Now()
	defer func() {
		if b.observe != nil {
			b.observe(b.name, stmt.Kind.String(), time.Since(start), err)
		}
	}()

	id, err = b.hooks.insertID(ctx, q, stmt)
	if err != nil {
		return 0, b.hooks.classify(err)
	}
	return id, nil
}

// scan reads every row into a Record keyed by column name
func (b *sqlBackend) scan(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		rec := make(Record, len(cols))
		for i, col := range cols {
			rec[col.Name()] = b.hooks.decode(col.DatabaseTypeName(), values[i])
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// sqlTx keeps its connection checked out until Commit or Rollback
type sqlTx struct {
	backend *sqlBackend
	conn    *sql.Conn
	tx      *sql.Tx
	done    bool
}

func (t *sqlTx) Dialect() Dialect {
	return t.backend.dialect
}

func (t *sqlTx) Query(ctx context.Context, stmt Statement) (*Result, error) {
	if err := t.backend.validate(stmt); err != nil {
		return nil, err
	}
	return t.backend.run(ctx, t.tx, stmt)
}

func (t *sqlTx) Insert(ctx context.Context, stmt Statement) (int64, error) {
	if err := t.backend.validateInsert(stmt); err != nil {
		return 0, err
	}
	return t.backend.runInsert(ctx, t.tx, stmt)
}

func (t *sqlTx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	defer t.conn.Close()
	return t.backend.hooks.classify(t.tx.Commit())
}

func (t *sqlTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.conn.Close()

	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return t.backend.hooks.classify(err)
}

// plainValue converts driver byte slices to strings so rows are comparable
// and JSON-encodable
func plainValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
