// Package storage persists rendered document artifacts (invoice and quote
// PDFs) in S3-compatible object storage and produces the links embedded in
// outbound emails.
package storage

import (
	"context"
	"io"
)

// Storage defines the object storage operations the attachment pipeline uses.
type Storage interface {
	// Put uploads data from a reader under a collision-resistant key.
	// Options can set an explicit key, prefix, content type, or ACL.
	Put(ctx context.Context, r io.Reader, size int64, opts ...Option) (*ObjectInfo, error)

	// Get retrieves an object. The caller closes the returned reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object.
	Delete(ctx context.Context, key string) error

	// URL returns a link for the object: a signed URL for private objects,
	// the public URL otherwise.
	URL(ctx context.Context, key string, opts ...URLOption) (string, error)
}

// Config holds S3-compatible storage configuration.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string `env:"STORAGE_BUCKET,required"`

	// AccessKey and SecretKey are the static credentials (required).
	AccessKey string `env:"STORAGE_ACCESS_KEY,required"`
	SecretKey string `env:"STORAGE_SECRET_KEY,required"`

	// Endpoint is a custom S3 endpoint (optional; MinIO and friends).
	Endpoint string `env:"STORAGE_ENDPOINT"`

	// Region is the AWS region.
	Region string `env:"STORAGE_REGION" envDefault:"ap-southeast-2"`

	// PublicURL is a CDN or public URL prefix for public objects (optional).
	PublicURL string `env:"STORAGE_PUBLIC_URL"`

	// PathStyle enables path-style URLs (required for MinIO).
	PathStyle bool `env:"STORAGE_PATH_STYLE"`

	// DefaultACL applies when a Put does not override it (default: private).
	DefaultACL ACL
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	// Key is the storage key (path) of the object.
	Key string

	// ContentType is the stored MIME type.
	ContentType string

	// ACL is the access control setting.
	ACL ACL

	// Size is the object size in bytes.
	Size int64
}

// ACL represents access control levels for stored objects.
type ACL string

const (
	// ACLPrivate makes the object reachable only via signed URLs.
	ACLPrivate ACL = "private"

	// ACLPublicRead makes the object publicly readable.
	ACLPublicRead ACL = "public-read"
)

// DefaultSignedURLExpiry is how long signed artifact links stay valid.
// Long enough for a client to open an emailed link days later is not the
// goal; emails embed the attachment itself, the link is a convenience.
const DefaultSignedURLExpiry = 15 * 60 // seconds

func (c *Config) applyDefaults() {
	if c.Region == "" {
		c.Region = "ap-southeast-2"
	}
	if c.DefaultACL == "" {
		c.DefaultACL = ACLPrivate
	}
}

func (c *Config) validate() error {
	if c.Bucket == "" || c.AccessKey == "" || c.SecretKey == "" {
		return ErrInvalidConfig
	}
	return nil
}
