package service

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrFolderNotFound  = errors.New("folder not found")
	ErrFolderExists    = errors.New("folder already exists")
	ErrUserExists      = errors.New("user already exists")
)

// Store is the record store for accounts, folders and operators. Uniqueness of
// account usernames and folder names is enforced by the database, never by a
// prior read.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an initialized gorm connection.
func NewStore(dbConn *gorm.DB) *Store {
	return &Store{db: dbConn}
}

// DB exposes the underlying connection for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}
