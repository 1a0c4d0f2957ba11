package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrOpen          = errors.New("open store failed")
	ErrMigrate       = errors.New("migrate store failed")
)
