package store

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

var (
	// ErrNotFound covers missing conversations, messages and directory
	// records. Pebble's own not-found is normalized onto it.
	ErrNotFound = errors.New("not found")
	// ErrSenderNotFound and ErrRecipientNotFound distinguish which end
	// of an append failed to resolve.
	ErrSenderNotFound    = errors.New("sender profile not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrForbidden marks a caller acting on a message not addressed to
	// them.
	ErrForbidden = errors.New("forbidden")
)

// IsNotFound reports whether err is any not-found condition, including
// pebble's.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSenderNotFound) ||
		errors.Is(err, ErrRecipientNotFound) ||
		errors.Is(err, pebble.ErrNotFound)
}

func normalizeNotFound(err error) error {
	if errors.Is(err, pebble.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
