package repository

import "errors"

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateToken is returned when a token value is saved twice.
	ErrDuplicateToken = errors.New("duplicate token value")
	// ErrNotLive is returned by conditional updates when the row is already
	// revoked, consumed or expired.
	ErrNotLive = errors.New("token not live")
)
