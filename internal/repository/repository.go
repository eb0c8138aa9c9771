package repository

import (
	"context"
	"database/sql"
	"errors"

	"gorm.io/gorm"
)

// ErrStaleWrite is returned when a guarded update matched no row
var ErrStaleWrite = errors.New("guarded update matched no rows")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Transaction runs fn against a repository bound to a single transaction.
// Any error returned by fn rolls the whole unit back.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// ReadConsistent runs fn inside a read-only transaction so that multi-query
// reads see a single committed state. On postgres this is REPEATABLE READ;
// sqlite transactions are already serializable.
func (r *Repository) ReadConsistent(ctx context.Context, fn func(tx *Repository) error) error {
	var opts *sql.TxOptions
	if r.isPostgres() {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	}, opts)
}

func (r *Repository) isPostgres() bool {
	return r.db.Dialector.Name() == "postgres"
}

// IsNotFound reports whether err means the record does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
