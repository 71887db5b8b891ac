package objectstore

// Canned ACLs understood by every store that supports ACLs.
const (
	ACLPrivate    = "private"
	ACLPublicRead = "public-read"
)

// PutOption configures an upload or copy performed by Store.Put and Store.Copy.
type PutOption func(*PutConfig)

// PutConfig holds configuration for an upload or copy.
type PutConfig struct {
	// ContentType is the MIME type stored with the object.
	ContentType string

	// CacheControl is the Cache-Control header stored with the object.
	CacheControl string

	// ACL is a canned ACL such as ACLPublicRead.
	// Empty means the bucket default.
	ACL string

	// Encryption is the server-side encryption algorithm, e.g. "AES256"
	// or "aws:kms". Empty disables server-side encryption.
	Encryption string

	// Metadata is user metadata stored with the object.
	Metadata map[string]string
}

// WithContentType sets the content type.
func WithContentType(contentType string) PutOption {
	return func(c *PutConfig) {
		c.ContentType = contentType
	}
}

// WithCacheControl sets the Cache-Control header.
func WithCacheControl(cacheControl string) PutOption {
	return func(c *PutConfig) {
		c.CacheControl = cacheControl
	}
}

// WithACL sets a canned ACL.
func WithACL(acl string) PutOption {
	return func(c *PutConfig) {
		c.ACL = acl
	}
}

// WithEncryption sets the server-side encryption algorithm.
func WithEncryption(algorithm string) PutOption {
	return func(c *PutConfig) {
		c.Encryption = algorithm
	}
}

// WithMetadata sets user metadata.
func WithMetadata(metadata map[string]string) PutOption {
	return func(c *PutConfig) {
		c.Metadata = metadata
	}
}

// ApplyPutOptions applies options to a PutConfig.
func ApplyPutOptions(opts ...PutOption) *PutConfig {
	config := &PutConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(config)
		}
	}
	return config
}
