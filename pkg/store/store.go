// Package store defines the raw object-store capability consumed by the
// engine. Implementations live in subpackages: localstore (bbolt-backed,
// for development and tests) and s3store (AWS S3).
package store

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadNotFound = errors.New("upload not found")
	ErrInvalidPart    = errors.New("invalid part")
)

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
	StorageClass string
}

// ListOptions controls a single page of a listing.
type ListOptions struct {
	Prefix            string
	ContinuationToken string
	MaxKeys           int
	// Delimiter groups keys sharing a common segment into
	// CommonPrefixes, the way S3 folds folders.
	Delimiter string
}

// ListResult is one page of a listing. Keys preserve the store's
// lexicographic ordering; pagination is the store's own continuation
// protocol passed through untouched.
type ListResult struct {
	Objects        []ObjectInfo
	CommonPrefixes []string
	NextToken      string
	Truncated      bool
}

// CompletedPart references an uploaded part when completing a
// multipart upload.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// RawStore is the capability contract for the backing object store.
type RawStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (*ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	InitiateMultipartUpload(ctx context.Context, key, contentType string) (string, error)
	UploadPart(ctx context.Context, key, uploadID string, partNumber int, body io.Reader) (string, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) (*ObjectInfo, error)
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
}
