// Package store persists users, reminders and tags and enforces their
// invariants at the boundary.
//
// Every mutating call runs in its own transaction. There is no version
// column: two concurrent updates of the same reminder each read the row,
// merge their own fields and write the whole row back, so the transaction
// that commits last wins in full and the other update's fields are lost.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Store is the transactional repository over the reminder schema.
type Store struct {
	db *gorm.DB
}

// New wraps an open, migrated database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Optional distinguishes an absent field from an explicit null in partial updates.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Null returns a set Optional that clears the field.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (s *Store) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

func normalizeTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Microsecond)
	return &v
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
