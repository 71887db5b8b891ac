package objectstore

import "errors"

// Common errors returned by object stores.
var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("objectstore: not found")

	// ErrPermissionDenied is returned when access to a key is denied.
	ErrPermissionDenied = errors.New("objectstore: permission denied")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("objectstore: store closed")

	// ErrInvalidKey is returned when a key is empty or otherwise unusable.
	ErrInvalidKey = errors.New("objectstore: invalid key")

	// ErrUnknownStore is returned by Open when the store name is not registered.
	ErrUnknownStore = errors.New("objectstore: unknown store")
)

// IsNotFound returns true if the error indicates a key was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
