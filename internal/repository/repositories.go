package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories bundles every repository over one connection or transaction.
type Repositories struct {
	db       *gorm.DB
	Users    *UserRepository
	Sessions *SessionRepository
	Rollups  *RollupRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:       db,
		Users:    NewUserRepository(db),
		Sessions: NewSessionRepository(db),
		Rollups:  NewRollupRepository(db),
	}
}

// DB exposes the handle the repositories were built on.
func (r *Repositories) DB() *gorm.DB {
	return r.db
}

// WithinTx runs fn with repositories bound to a single transaction. Any
// error returned by fn rolls the whole unit back.
func (r *Repositories) WithinTx(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
