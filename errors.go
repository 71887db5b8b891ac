package bucketfs

import (
	"errors"

	"github.com/grokify/bucketfs/metacache"
)

// Common errors returned by the filesystem.
var (
	// ErrNotFound is returned when a URI resolves to nothing.
	ErrNotFound = metacache.ErrNotFound

	// ErrNotDirectory is returned when a directory operation hits a file.
	ErrNotDirectory = metacache.ErrNotDirectory

	// ErrIsDirectory is returned when a file operation hits a directory.
	ErrIsDirectory = metacache.ErrIsDirectory

	// ErrDirectoryNotEmpty is returned by Rmdir when descendants exist.
	ErrDirectoryNotEmpty = metacache.ErrDirectoryNotEmpty

	// ErrRootDirectory is returned when removing or replacing a scheme root.
	ErrRootDirectory = errors.New("bucketfs: operation not permitted on root")

	// ErrConsistencyTimeout is returned when an uploaded object did not
	// become visible within the wait budget.
	ErrConsistencyTimeout = errors.New("bucketfs: object not visible after write")

	// ErrBackingStore wraps live object-store failures when strict errors
	// are enabled.
	ErrBackingStore = errors.New("bucketfs: backing store failure")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("bucketfs: invalid config")
)

// IsNotFound returns true if the error indicates a URI was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNotDirectory returns true if the error indicates a file was found where
// a directory was required.
func IsNotDirectory(err error) bool {
	return errors.Is(err, ErrNotDirectory)
}

// IsDirectoryNotEmpty returns true if the error indicates a non-empty
// directory.
func IsDirectoryNotEmpty(err error) bool {
	return errors.Is(err, ErrDirectoryNotEmpty)
}

// IsConsistencyTimeout returns true if the error indicates an upload never
// became visible.
func IsConsistencyTimeout(err error) bool {
	return errors.Is(err, ErrConsistencyTimeout)
}
