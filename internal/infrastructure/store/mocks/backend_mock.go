package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-storefront/internal/infrastructure/store"
)

// MockBackend is a mock implementation of store.Backend for testing
type MockBackend struct {
	mu      sync.Mutex
	name    string
	dialect store.Dialect
	nextID  int64

	// QueryFunc, when set, answers Query; the default is an empty result
	QueryFunc func(stmt store.Statement) (*store.Result, error)
	// InsertFunc, when set, answers Insert; the default is a sequential id
	InsertFunc func(stmt store.Statement) (int64, error)
	BeginErr   error
	PingErr    error

	// For tracking calls in tests
	QueryCalls  []store.Statement
	InsertCalls []store.Statement
	Commits     int
	Rollbacks   int
	Closed      bool
}

// NewMockBackend creates a MockBackend speaking the given dialect
func NewMockBackend(name string, dialect store.Dialect) *MockBackend {
	return &MockBackend{
		name:        name,
		dialect:     dialect,
		QueryCalls:  make([]store.Statement, 0),
		InsertCalls: make([]store.Statement, 0),
	}
}

// Query records the statement and answers through QueryFunc
func (m *MockBackend) Query(_ context.Context, stmt store.Statement) (*store.Result, error) {
	m.mu.Lock()
	m.QueryCalls = append(m.QueryCalls, stmt)
	fn := m.QueryFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(stmt)
	}
	if stmt.Kind == store.KindInsert && stmt.Returning {
		return &store.Result{Rows: []store.Record{{"id": m.newID()}}, RowsAffected: 1}, nil
	}
	return &store.Result{Rows: []store.Record{}}, nil
}

// Insert records the statement and answers through InsertFunc
func (m *MockBackend) Insert(_ context.Context, stmt store.Statement) (int64, error) {
	m.mu.Lock()
	m.InsertCalls = append(m.InsertCalls, stmt)
	fn := m.InsertFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(stmt)
	}
	return m.newID(), nil
}

func (m *MockBackend) newID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID
}

// Begin returns a transaction that records into the same backend
func (m *MockBackend) Begin(_ context.Context) (store.Tx, error) {
	if m.BeginErr != nil {
		return nil, m.BeginErr
	}
	return &MockTx{backend: m}, nil
}

func (m *MockBackend) Dialect() store.Dialect {
	return m.dialect
}

func (m *MockBackend) Name() string {
	return m.name
}

func (m *MockBackend) Ping(_ context.Context) error {
	return m.PingErr
}

func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Statements returns every statement seen by Query and Insert, Query first
func (m *MockBackend) Statements() []store.Statement {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Statement, 0, len(m.QueryCalls)+len(m.InsertCalls))
	out = append(out, m.QueryCalls...)
	return append(out, m.InsertCalls...)
}

// MockTx is the transaction handed out by MockBackend
type MockTx struct {
	backend *MockBackend
}

func (t *MockTx) Query(ctx context.Context, stmt store.Statement) (*store.Result, error) {
	return t.backend.Query(ctx, stmt)
}

func (t *MockTx) Insert(ctx context.Context, stmt store.Statement) (int64, error) {
	return t.backend.Insert(ctx, stmt)
}

func (t *MockTx) Dialect() store.Dialect {
	return t.backend.dialect
}

func (t *MockTx) Commit() error {
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()
	t.backend.Commits++
	return nil
}

func (t *MockTx) Rollback() error {
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()
	t.backend.Rollbacks++
	return nil
}
