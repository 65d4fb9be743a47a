package storage

// Option configures Put operations.
type Option func(*putOptions)

type putOptions struct {
	key         string // explicit key, replaces the generated one
	prefix      string // path prefix, e.g. "artifacts/<docID>"
	contentType string
	acl         ACL
}

// WithKey sets an explicit storage key, replacing the generated ULID-based key.
func WithKey(key string) Option {
	return func(o *putOptions) {
		o.key = key
	}
}

// WithPrefix sets a path prefix for the uploaded object.
// Example: WithPrefix("artifacts/doc123") yields "artifacts/doc123/{ulid}.pdf".
func WithPrefix(prefix string) Option {
	return func(o *putOptions) {
		o.prefix = prefix
	}
}

// WithContentType sets the stored MIME type.
// Artifacts are renderer-produced, so the caller always knows the type.
func WithContentType(ct string) Option {
	return func(o *putOptions) {
		o.contentType = ct
	}
}

// WithACL overrides the default ACL for this upload.
func WithACL(acl ACL) Option {
	return func(o *putOptions) {
		o.acl = acl
	}
}

// URLOption configures URL generation.
type URLOption func(*urlOptions)

type urlOptions struct {
	expirySeconds int64
	forceSigned   bool
}

// WithExpiry sets the signed URL validity in seconds.
func WithExpiry(seconds int64) URLOption {
	return func(o *urlOptions) {
		if seconds > 0 {
			o.expirySeconds = seconds
		}
	}
}

// WithForceSigned returns a signed URL even when a public URL is configured.
func WithForceSigned() URLOption {
	return func(o *urlOptions) {
		o.forceSigned = true
	}
}
