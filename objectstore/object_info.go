package objectstore

import "time"

// ObjectInfo describes a stored object as reported by the backing store.
type ObjectInfo struct {
	// Key is the full object key, including any root folder.
	Key string

	// Size is the object's size in bytes.
	Size int64

	// LastModified is the time the object was last written.
	// Zero if the store did not report it.
	LastModified time.Time

	// VersionID is the store's version identifier for the object.
	// Empty when the bucket is not versioned.
	VersionID string

	// ContentType is the MIME type recorded for the object.
	ContentType string

	// ETag is the entity tag, without surrounding quotes.
	ETag string
}

// IsDirMarker reports whether the object is a zero-byte "folder/" marker
// created by tools that emulate directories on object storage.
func (o *ObjectInfo) IsDirMarker() bool {
	return len(o.Key) > 0 && o.Key[len(o.Key)-1] == '/'
}
