package database

import "errors"

var (
	// ErrDatabaseNotFound is returned when the database must already exist but does not.
	ErrDatabaseNotFound = errors.New("database not found")

	// ErrNilResult is returned when SaveResult is called without a result.
	ErrNilResult = errors.New("nil analysis result")
)
