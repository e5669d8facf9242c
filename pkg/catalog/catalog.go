// Package catalog exposes tenant-scoped object listing, search and
// deletion on top of the raw store. Every key passes the access gate
// before it reaches storage.
package catalog

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/s3gate/s3gate/pkg/scope"
	"github.com/s3gate/s3gate/pkg/store"
)

// DefaultMaxKeys is the page size used when the caller does not ask
// for one.
const DefaultMaxKeys = 100

// ObjectEntry is one catalog entry. Folders are zero-byte objects
// whose key ends with a slash, plus the store's folded common prefixes.
type ObjectEntry struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ETag         string    `json:"etag"`
	StorageClass string    `json:"storageClass"`
	ContentType  string    `json:"contentType,omitempty"`
	IsFolder     bool      `json:"isFolder"`
}

// Page is one page of a listing.
type Page struct {
	Objects           []ObjectEntry `json:"objects"`
	Prefix            string        `json:"prefix"`
	ContinuationToken string        `json:"continuationToken,omitempty"`
	HasMore           bool          `json:"hasMore"`
}

// BatchError is a per-key failure inside a batch delete.
type BatchError struct {
	Key string
	Err error
}

// BatchResult reports the outcome of a batch delete. A batch partially
// succeeds; per-key failures are collected, never folded into a single
// all-or-nothing error.
type BatchResult struct {
	Deleted []string
	Errors  []BatchError
}

// Catalog lists, searches and deletes objects within a caller's prefix.
type Catalog struct {
	store store.RawStore
	gate  *scope.Gate
}

// New creates a catalog over the given store and gate.
func New(raw store.RawStore, gate *scope.Gate) *Catalog {
	return &Catalog{
		store: raw,
		gate:  gate,
	}
}

// resolvePrefix defaults to the caller's own prefix and gate-checks a
// supplied one.
func (c *Catalog) resolvePrefix(principal, prefix string) (string, error) {
	if prefix == "" {
		return scope.DerivePrefix(principal)
	}
	if err := c.gate.Authorize(principal, prefix); err != nil {
		return "", err
	}
	return prefix, nil
}

// List returns one page of objects under the given prefix, defaulting
// to the caller's own. Ordering and pagination are the raw store's,
// passed through untouched.
func (c *Catalog) List(ctx context.Context, principal, prefix, continuationToken string, maxKeys int) (*Page, error) {
	resolved, err := c.resolvePrefix(principal, prefix)
	if err != nil {
		return nil, err
	}
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	res, err := c.store.List(ctx, store.ListOptions{
		Prefix:            resolved,
		ContinuationToken: continuationToken,
		MaxKeys:           maxKeys,
		Delimiter:         "/",
	})
	if err != nil {
		return nil, err
	}

	page := &Page{
		Prefix:            resolved,
		ContinuationToken: res.NextToken,
		HasMore:           res.Truncated,
	}
	for _, cp := range res.CommonPrefixes {
		page.Objects = append(page.Objects, ObjectEntry{
			Key:      cp,
			IsFolder: true,
		})
	}
	for _, obj := range res.Objects {
		// Skip the marker object of the listed folder itself.
		if obj.Key == resolved {
			continue
		}
		page.Objects = append(page.Objects, newEntry(obj))
	}
	return page, nil
}

func newEntry(obj store.ObjectInfo) ObjectEntry {
	return ObjectEntry{
		Key:          obj.Key,
		Size:         obj.Size,
		LastModified: obj.LastModified,
		ETag:         obj.ETag,
		StorageClass: obj.StorageClass,
		ContentType:  obj.ContentType,
		IsFolder:     strings.HasSuffix(obj.Key, "/") && obj.Size == 0,
	}
}

// Search performs a case-insensitive substring match against key names
// within the authorized prefix. It is a linear scan over the listing;
// namespaces large enough to need an index are out of scope here.
func (c *Catalog) Search(ctx context.Context, principal, prefix, query string) ([]ObjectEntry, error) {
	resolved, err := c.resolvePrefix(principal, prefix)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)

	var matches []ObjectEntry
	token := ""
	for {
		res, err := c.store.List(ctx, store.ListOptions{
			Prefix:            resolved,
			ContinuationToken: token,
			MaxKeys:           DefaultMaxKeys,
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range res.Objects {
			if strings.Contains(strings.ToLower(obj.Key), needle) {
				matches = append(matches, newEntry(obj))
			}
		}
		if !res.Truncated {
			return matches, nil
		}
		token = res.NextToken
	}
}

// CreateFolder materializes a folder as a zero-byte object whose key
// ends with a slash.
func (c *Catalog) CreateFolder(ctx context.Context, principal, prefix string) error {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if err := c.gate.Authorize(principal, prefix); err != nil {
		return err
	}
	_, err := c.store.Put(ctx, prefix, strings.NewReader(""), "")
	return err
}

// Put stores a single object under the caller's prefix.
func (c *Catalog) Put(ctx context.Context, principal, key string, body io.Reader, contentType string) (*ObjectEntry, error) {
	if err := c.gate.Authorize(principal, key); err != nil {
		return nil, err
	}
	info, err := c.store.Put(ctx, key, body, contentType)
	if err != nil {
		return nil, err
	}
	entry := newEntry(*info)
	return &entry, nil
}

// Head returns metadata for a single object.
func (c *Catalog) Head(ctx context.Context, principal, key string) (*ObjectEntry, error) {
	if err := c.gate.Authorize(principal, key); err != nil {
		return nil, err
	}
	info, err := c.store.Head(ctx, key)
	if err != nil {
		return nil, err
	}
	entry := newEntry(*info)
	return &entry, nil
}

// Delete removes a single object.
func (c *Catalog) Delete(ctx context.Context, principal, key string) error {
	if err := c.gate.Authorize(principal, key); err != nil {
		return err
	}
	return c.store.Delete(ctx, key)
}

// DeleteMany removes a set of keys. Each key independently passes the
// gate; failures are collected per key with their own error kind.
func (c *Catalog) DeleteMany(ctx context.Context, principal string, keys []string) *BatchResult {
	res := &BatchResult{}
	for _, key := range keys {
		if err := c.gate.Authorize(principal, key); err != nil {
			res.Errors = append(res.Errors, BatchError{Key: key, Err: err})
			continue
		}
		if err := c.store.Delete(ctx, key); err != nil {
			res.Errors = append(res.Errors, BatchError{Key: key, Err: err})
			continue
		}
		res.Deleted = append(res.Deleted, key)
	}
	return res
}
