package errors

import (
	"errors"
)

// Common error types
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrDatabaseError = errors.New("database error")
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInternal      = errors.New("internal error")
)

// RequireIDs reports ErrInvalidInput when any of the chat or user identifiers
// is unset.
func RequireIDs(ids ...int64) error {
	for _, id := range ids {
		if id == 0 {
			return ErrInvalidInput
		}
	}
	return nil
}
