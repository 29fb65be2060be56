// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"
	"strings"
	"sync"

	"doubtdesk/internal/cache"
	"doubtdesk/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Repository is the full persistence surface used by the services.
type Repository interface {
	UserRepository
	DoubtRepository
	AnswerRepository

	// Transaction runs fn against a store bound to one database transaction.
	// Cache invalidations queued inside fn run only after commit. Calling
	// Transaction on a store that is already transactional reuses it.
	Transaction(ctx context.Context, fn func(Repository) error) error
}

// Store is the GORM-backed Repository.
type Store struct {
	UserRepository
	DoubtRepository
	AnswerRepository

	db    *gorm.DB
	cache *cache.Cache
	inv   *invalidator
}

// NewStore returns a Store over db. c may be nil to disable caching.
func NewStore(db *gorm.DB, c *cache.Cache) *Store {
	return newStore(db, c, &invalidator{cache: c})
}

func newStore(db *gorm.DB, c *cache.Cache, inv *invalidator) *Store {
	b := base{db: db, cache: c, inv: inv}
	return &Store{
		UserRepository:   &userRepository{base: b},
		DoubtRepository:  &doubtRepository{base: b},
		AnswerRepository: &answerRepository{base: b},
		db:               db,
		cache:            c,
		inv:              inv,
	}
}

// Transaction implements Repository.
func (s *Store) Transaction(ctx context.Context, fn func(Repository) error) error {
	if s.inv.deferred {
		return fn(s)
	}

	inv := &invalidator{cache: s.cache, deferred: true}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newStore(tx, s.cache, inv))
	})
	if err != nil {
		return asAppError(err)
	}
	inv.flush(ctx)
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type base struct {
	db    *gorm.DB
	cache *cache.Cache
	inv   *invalidator
}

// inTx reports whether the repository is bound to an outer transaction.
func (b base) inTx() bool {
	return b.inv.deferred
}

// mutate runs fn in its own transaction (a savepoint when already inside
// one) and queues keys for invalidation once it has committed.
func (b base) mutate(ctx context.Context, fn func(tx *gorm.DB) error, keys func() []string) error {
	if err := b.db.WithContext(ctx).Transaction(fn); err != nil {
		return asAppError(err)
	}
	if keys != nil {
		b.inv.invalidate(ctx, keys()...)
	}
	return nil
}

// invalidator either deletes cache keys immediately or, inside a
// transaction, holds them until flush is called after commit.
type invalidator struct {
	cache    *cache.Cache
	deferred bool

	mu   sync.Mutex
	keys []string
}

func (i *invalidator) invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if !i.deferred {
		i.cache.Invalidate(ctx, keys...)
		return
	}
	i.mu.Lock()
	i.keys = append(i.keys, keys...)
	i.mu.Unlock()
}

func (i *invalidator) flush(ctx context.Context) {
	i.mu.Lock()
	keys := i.keys
	i.keys = nil
	i.mu.Unlock()
	i.cache.Invalidate(ctx, keys...)
}

// asAppError leaves *models.AppError untouched and wraps everything else.
func asAppError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if isUniqueConstraintError(err) {
		return &models.AppError{Code: models.CodeConflict, Message: "Resource already exists", Err: err}
	}
	return models.NewInternalError(err)
}

// lookupError maps a single-row read error.
func lookupError(err error, resource string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return asAppError(err)
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}
