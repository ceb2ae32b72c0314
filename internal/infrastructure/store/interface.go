package store

import (
	"context"
	"errors"
	"time"
)

// Executor runs statements against one backend or one transaction
type Executor interface {
	// Query runs any statement kind. An insert with Returning set yields a
	// single row {"id": <new id>}.
	Query(ctx context.Context, stmt Statement) (*Result, error)
	// Insert runs an insert and returns the new row id
	Insert(ctx context.Context, stmt Statement) (int64, error)
}

// Backend is a relational store the rest of the service talks to
type Backend interface {
	Executor
	Dialect() Dialect
	Name() string
	// Begin checks out one connection and starts a transaction on it
	Begin(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	Close() error
}

// Tx is a transaction bound to a single connection
type Tx interface {
	Executor
	Dialect() Dialect
	Commit() error
	Rollback() error
}

// Observer receives one call per executed statement
type Observer func(backend, kind string, elapsed time.Duration, err error)

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic
func WithTx(ctx context.Context, b Backend, fn func(tx Tx) error) (err error) {
	tx, err := b.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
