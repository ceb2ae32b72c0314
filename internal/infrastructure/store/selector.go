package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Opener connects to one backend
type Opener func(ctx context.Context) (Backend, error)

// SelectorConfig holds the settings for both backends
type SelectorConfig struct {
	Primary   PostgresConfig
	Secondary SQLiteConfig
	Admin     AdminSeed
	Observer  Observer
}

// Selector decides once, at startup, which backend serves the process
type Selector struct {
	openPrimary   Opener
	openSecondary Opener
	admin         AdminSeed
	log           *zap.Logger
}

// NewSelector wires the PostgreSQL primary and the SQLite secondary
func NewSelector(cfg SelectorConfig, log *zap.Logger) *Selector {
	return NewSelectorWithOpeners(
		func(ctx context.Context) (Backend, error) {
			pg, err := OpenPostgres(ctx, cfg.Primary, cfg.Observer)
			if err != nil {
				return nil, err
			}
			return pg, nil
		},
		func(ctx context.Context) (Backend, error) {
			lite, err := OpenSQLite(ctx, cfg.Secondary, cfg.Observer)
			if err != nil {
				return nil, err
			}
			return lite, nil
		},
		cfg.Admin,
		log,
	)
}

// NewSelectorWithOpeners builds a selector over arbitrary backends
func NewSelectorWithOpeners(primary, secondary Opener, admin AdminSeed, log *zap.Logger) *Selector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Selector{
		openPrimary:   primary,
		openSecondary: secondary,
		admin:         admin,
		log:           log.Named("selector"),
	}
}

// Initialize brings up the primary backend, falling back to the secondary
// on any failure other than an already-existing schema object. It fails only
// when both backends fail.
func (s *Selector) Initialize(ctx context.Context) (*Handle, error) {
	primary, primaryErr := s.bringUp(ctx, s.openPrimary)
	if primaryErr == nil {
		s.log.Info("backend selected",
			zap.String("backend", primary.Name()),
			zap.Bool("fallback", false),
		)
		return &Handle{backend: primary}, nil
	}

	s.log.Warn("primary backend unavailable, falling back",
		zap.Error(primaryErr),
		zap.Bool("not_configured", errors.Is(primaryErr, ErrNotConfigured)),
	)

	secondary, secondaryErr := s.bringUp(ctx, s.openSecondary)
	if secondaryErr != nil {
		s.log.Error("secondary backend failed", zap.Error(secondaryErr))
		return nil, fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(
			fmt.Errorf("primary: %w", primaryErr),
			fmt.Errorf("secondary: %w", secondaryErr),
		))
	}

	s.log.Info("backend selected",
		zap.String("backend", secondary.Name()),
		zap.Bool("fallback", true),
		zap.String("reason", primaryErr.Error()),
	)
	return &Handle{backend: secondary, fallback: true, reason: primaryErr.Error()}, nil
}

// Attach is Initialize for secondary processes that share the API's data.
// A configured primary that cannot be brought up is an error rather than a
// reason to fall back, so a consumer never writes to a file the API does not
// read. The secondary is used only when no primary is configured at all.
func (s *Selector) Attach(ctx context.Context) (*Handle, error) {
	primary, primaryErr := s.bringUp(ctx, s.openPrimary)
	if primaryErr == nil {
		s.log.Info("backend attached", zap.String("backend", primary.Name()))
		return &Handle{backend: primary}, nil
	}
	if !errors.Is(primaryErr, ErrNotConfigured) {
		return nil, fmt.Errorf("%w: primary: %w", ErrNoBackend, primaryErr)
	}

	secondary, err := s.bringUp(ctx, s.openSecondary)
	if err != nil {
		return nil, fmt.Errorf("%w: secondary: %w", ErrNoBackend, err)
	}
	s.log.Info("backend attached", zap.String("backend", secondary.Name()))
	return &Handle{backend: secondary, fallback: true, reason: primaryErr.Error()}, nil
}

func (s *Selector) bringUp(ctx context.Context, open Opener) (Backend, error) {
	if open == nil {
		return nil, ErrNotConfigured
	}
	b, err := open(ctx)
	if err != nil {
		return nil, err
	}
	if err := Bootstrap(ctx, b, s.admin, s.log); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// Handle is the backend chosen at startup. It never changes afterwards and
// is passed explicitly to every consumer.
type Handle struct {
	backend  Backend
	fallback bool
	reason   string
}

// NewHandle wraps an already initialized backend
func NewHandle(b Backend) *Handle {
	return &Handle{backend: b}
}

// Fallback reports whether the secondary backend was selected
func (h *Handle) Fallback() bool {
	return h.fallback
}

// Reason is the primary failure that caused a fallback, if any
func (h *Handle) Reason() string {
	return h.reason
}

func (h *Handle) Query(ctx context.Context, stmt Statement) (*Result, error) {
	return h.backend.Query(ctx, stmt)
}

func (h *Handle) Insert(ctx context.Context, stmt Statement) (int64, error) {
	return h.backend.Insert(ctx, stmt)
}

func (h *Handle) Begin(ctx context.Context) (Tx, error) {
	return h.backend.Begin(ctx)
}

func (h *Handle) Dialect() Dialect {
	return h.backend.Dialect()
}

func (h *Handle) Name() string {
	return h.backend.Name()
}

func (h *Handle) Ping(ctx context.Context) error {
	return h.backend.Ping(ctx)
}

func (h *Handle) Close() error {
	return h.backend.Close()
}
