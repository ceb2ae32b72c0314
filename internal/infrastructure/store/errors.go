package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"syscall"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrConstraint is any integrity constraint violation
	ErrConstraint = errors.New("constraint violation")
	// ErrDuplicate is a unique constraint violation; it also matches ErrConstraint
	ErrDuplicate = errors.New("duplicate value violates unique constraint")
	// ErrConnectivity means the backend could not be reached or dropped the connection
	ErrConnectivity = errors.New("backend connectivity failure")
	// ErrMalformed means the statement text or its arguments are invalid
	ErrMalformed = errors.New("malformed statement")
	// ErrUnavailable means no connection could be acquired in time; callers may retry
	ErrUnavailable = errors.New("backend temporarily unavailable")
	// ErrNotConfigured means the primary backend has no connection settings
	ErrNotConfigured = errors.New("backend not configured")
	// ErrNoBackend means neither backend could be initialized
	ErrNoBackend = errors.New("no storage backend available")
)

// Error is a classified backend failure
type Error struct {
	Kind    error
	Backend string
	// Field is the column behind a constraint violation, when known
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %v (%s): %v", e.Backend, e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Backend, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error kind; duplicates are also constraint violations
func (e *Error) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	return e.Kind == ErrDuplicate && target == ErrConstraint
}

// DuplicateField returns the column of a unique violation, or "" if err is not one
func DuplicateField(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Kind == ErrDuplicate {
		return se.Field
	}
	return ""
}

// IsAlreadyExists reports whether err comes from idempotent DDL racing
// against an existing object
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42P07", "42710", "42P06", "42723":
			return true
		case "23505":
			// concurrent CREATE ... IF NOT EXISTS collides in the system catalogs
			return isCatalogConstraint(pqErr.Constraint) ||
				strings.Contains(strings.ToLower(pqErr.Detail), "already exists")
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// isCatalogConstraint reports whether a unique index belongs to pg_catalog,
// e.g. pg_type_typname_nsp_index or pg_class_relname_nsp_index
func isCatalogConstraint(name string) bool {
	return strings.HasPrefix(name, "pg_") && strings.HasSuffix(name, "_index")
}

func isConnectivity(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

var pqConstraintColumn = regexp.MustCompile(`^[a-z_]+?_([a-z_]+)_key$`)

// classifyPostgres maps lib/pq errors onto the shared error kinds
func classifyPostgres(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return &Error{Kind: ErrDuplicate, Backend: "postgres", Field: postgresField(pqErr), Err: err}
		case pqErr.Code.Class() == "23":
			return &Error{Kind: ErrConstraint, Backend: "postgres", Field: pqErr.Column, Err: err}
		case pqErr.Code.Class() == "08":
			return &Error{Kind: ErrConnectivity, Backend: "postgres", Err: err}
		case pqErr.Code.Class() == "53", pqErr.Code == "57P03":
			return &Error{Kind: ErrUnavailable, Backend: "postgres", Err: err}
		case pqErr.Code.Class() == "42", pqErr.Code.Class() == "22":
			return &Error{Kind: ErrMalformed, Backend: "postgres", Err: err}
		}
		return err
	}

	if isConnectivity(err) {
		return &Error{Kind: ErrConnectivity, Backend: "postgres", Err: err}
	}
	// lib/pq reports argument count mismatches as plain errors
	if strings.Contains(err.Error(), "parameters but the statement requires") {
		return &Error{Kind: ErrMalformed, Backend: "postgres", Err: err}
	}
	return err
}

// postgresField extracts the column from constraint names such as products_sku_key
func postgresField(pqErr *pq.Error) string {
	if pqErr.Column != "" {
		return pqErr.Column
	}
	if pqErr.Table != "" && strings.HasPrefix(pqErr.Constraint, pqErr.Table+"_") {
		return strings.TrimSuffix(strings.TrimPrefix(pqErr.Constraint, pqErr.Table+"_"), "_key")
	}
	if m := pqConstraintColumn.FindStringSubmatch(pqErr.Constraint); m != nil {
		return m[1]
	}
	return pqErr.Constraint
}

// classifySQLite maps go-sqlite3 errors onto the shared error kinds
func classifySQLite(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return &Error{Kind: ErrDuplicate, Backend: "sqlite", Field: sqliteField(err.Error()), Err: err}
		}
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			if strings.HasPrefix(err.Error(), "UNIQUE constraint failed") {
				return &Error{Kind: ErrDuplicate, Backend: "sqlite", Field: sqliteField(err.Error()), Err: err}
			}
			return &Error{Kind: ErrConstraint, Backend: "sqlite", Field: sqliteField(err.Error()), Err: err}
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return &Error{Kind: ErrUnavailable, Backend: "sqlite", Err: err}
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrNotADB, sqlite3.ErrCorrupt:
			return &Error{Kind: ErrConnectivity, Backend: "sqlite", Err: err}
		case sqlite3.ErrError, sqlite3.ErrRange, sqlite3.ErrMismatch:
			return &Error{Kind: ErrMalformed, Backend: "sqlite", Err: err}
		}
		return err
	}

	if errors.Is(err, driver.ErrBadConn) {
		return &Error{Kind: ErrConnectivity, Backend: "sqlite", Err: err}
	}
	if strings.Contains(err.Error(), "sql: expected") {
		return &Error{Kind: ErrMalformed, Backend: "sqlite", Err: err}
	}
	return err
}

// sqliteField extracts the column from "UNIQUE constraint failed: products.sku"
func sqliteField(msg string) string {
	idx := strings.Index(msg, "constraint failed: ")
	if idx < 0 {
		return ""
	}
	target := msg[idx+len("constraint failed: "):]
	if comma := strings.Index(target, ","); comma >= 0 {
		target = target[:comma]
	}
	if dot := strings.LastIndex(target, "."); dot >= 0 {
		target = target[dot+1:]
	}
	return strings.TrimSpace(target)
}
