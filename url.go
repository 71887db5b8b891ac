package bucketfs

import (
	"context"
	"net/url"
)

// URL returns the external URL of uri according to the configured policy.
// args are appended as query arguments after every policy argument.
func (f *Filesystem) URL(ctx context.Context, uri string, args url.Values) (string, error) {
	return f.urls.URL(ctx, uri, args)
}
