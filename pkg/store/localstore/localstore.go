// Package localstore implements the raw store capability on a single
// bbolt database. Keys are kept in one flat, lexicographically sorted
// keyspace, which makes continuation tokens a plain cursor position.
// Intended for development deployments and tests.
package localstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/s3gate/s3gate/pkg/store"
)

var ErrInvalidObjectKey = errors.New("invalid object key")

var (
	objectsBucket = []byte("objects")
	uploadsBucket = []byte("uploads")
	partsBucket   = []byte("parts")
	metaKey       = []byte("meta")
)

const (
	defaultMaxKeys = 1000
	maxPartNumber  = 10000
)

// objectRecord is the stored form of an object.
type objectRecord struct {
	ETag        string    `json:"etag"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"modTime"`
	Data        []byte    `json:"data,omitempty"`
}

// uploadMeta is the stored form of an in-progress multipart upload.
type uploadMeta struct {
	Key         string    `json:"key"`
	ContentType string    `json:"contentType,omitempty"`
	Created     time.Time `json:"created"`
}

// partRecord is one uploaded part of a multipart upload.
type partRecord struct {
	ETag string `json:"etag"`
	Data []byte `json:"data"`
}

// Store is a bbolt-backed object store.
type Store struct {
	db *bolt.DB
}

// NewStore opens (or creates) the database at path.
func NewStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(objectsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(uploadsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func validateKey(key string) error {
	if key == "" || strings.ContainsRune(key, 0) {
		return ErrInvalidObjectKey
	}
	return nil
}

// computeETag returns the store's content hash: URL-safe base64 of the
// SHA256 digest.
func computeETag(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.URLEncoding.EncodeToString(sum[:])
}

// Put stores an object.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, contentType string) (*store.ObjectInfo, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	rec := objectRecord{
		ETag:        computeETag(data),
		ContentType: contentType,
		Size:        int64(len(data)),
		ModTime:     time.Now().UTC(),
		Data:        data,
	}
	raw, err := json.Marshal(&rec)
	if err != nil {
		return nil, err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(objectsBucket).Put([]byte(key), raw)
	})
	if err != nil {
		return nil, err
	}
	return rec.info(key), nil
}

func (r *objectRecord) info(key string) *store.ObjectInfo {
	return &store.ObjectInfo{
		Key:          key,
		Size:         r.Size,
		ETag:         r.ETag,
		LastModified: r.ModTime,
		ContentType:  r.ContentType,
		StorageClass: "STANDARD",
	}
}

func (s *Store) loadRecord(key string) (*objectRecord, error) {
	var rec *objectRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(objectsBucket).Get([]byte(key))
		if raw == nil {
			return store.ErrObjectNotFound
		}
		rec = new(objectRecord)
		return json.Unmarshal(raw, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Get retrieves an object and its metadata.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, *store.ObjectInfo, error) {
	if err := validateKey(key); err != nil {
		return nil, nil, err
	}
	rec, err := s.loadRecord(key)
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(bytes.NewReader(rec.Data)), rec.info(key), nil
}

// Head retrieves object metadata without the body.
func (s *Store) Head(ctx context.Context, key string) (*store.ObjectInfo, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	rec, err := s.loadRecord(key)
	if err != nil {
		return nil, err
	}
	return rec.info(key), nil
}

// Delete removes an object. Missing keys report ErrObjectNotFound so
// callers can surface per-key failures in batch deletes.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(objectsBucket)
		if b.Get([]byte(key)) == nil {
			return store.ErrObjectNotFound
		}
		return b.Delete([]byte(key))
	})
}

// List returns one page of keys under a prefix in lexicographic order.
// The continuation token is the last item of the previous page; with a
// delimiter, keys sharing a segment are folded into CommonPrefixes the
// way S3 does.
func (s *Store) List(ctx context.Context, opts store.ListOptions) (*store.ListResult, error) {
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	res := &store.ListResult{}
	lastItem := ""

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(objectsBucket).Cursor()
		count := 0
		lastCommon := ""
		for k, v := c.Seek([]byte(opts.Prefix)); k != nil; k, v = c.Next() {
			key := string(k)
			if !strings.HasPrefix(key, opts.Prefix) {
				break
			}
			if skipForToken(key, opts.ContinuationToken, opts.Delimiter) {
				continue
			}
			item := key
			isCommon := false
			if opts.Delimiter != "" {
				rest := key[len(opts.Prefix):]
				if idx := strings.Index(rest, opts.Delimiter); idx >= 0 {
					item = opts.Prefix + rest[:idx+len(opts.Delimiter)]
					isCommon = true
				}
			}
			if isCommon && item == lastCommon {
				continue
			}
			if count == maxKeys {
				res.Truncated = true
				res.NextToken = lastItem
				return nil
			}
			if isCommon {
				res.CommonPrefixes = append(res.CommonPrefixes, item)
				lastCommon = item
			} else {
				var rec objectRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					return err
				}
				res.Objects = append(res.Objects, *rec.info(key))
			}
			lastItem = item
			count++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// skipForToken reports whether key precedes the resume position encoded
// by the continuation token. Tokens that name a folded common prefix
// skip the whole group.
func skipForToken(key, token, delimiter string) bool {
	if token == "" {
		return false
	}
	if delimiter != "" && strings.HasSuffix(token, delimiter) && strings.HasPrefix(key, token) {
		return true
	}
	return key <= token
}

// InitiateMultipartUpload starts a multipart upload and returns its id.
func (s *Store) InitiateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	uploadID := uuid.New().String()
	meta := uploadMeta{
		Key:         key,
		ContentType: contentType,
		Created:     time.Now().UTC(),
	}
	raw, err := json.Marshal(&meta)
	if err != nil {
		return "", err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		ub, err := tx.Bucket(uploadsBucket).CreateBucket([]byte(uploadID))
		if err != nil {
			return err
		}
		if _, err := ub.CreateBucket(partsBucket); err != nil {
			return err
		}
		return ub.Put(metaKey, raw)
	})
	if err != nil {
		return "", err
	}
	return uploadID, nil
}

func partKey(partNumber int) []byte {
	return []byte(fmt.Sprintf("%05d", partNumber))
}

// UploadPart stores one part of a multipart upload and returns its
// etag. Re-sending the same part number overwrites the previous part.
func (s *Store) UploadPart(ctx context.Context, key, uploadID string, partNumber int, body io.Reader) (string, error) {
	if partNumber < 1 || partNumber > maxPartNumber {
		return "", store.ErrInvalidPart
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	rec := partRecord{
		ETag: computeETag(data),
		Data: data,
	}
	raw, err := json.Marshal(&rec)
	if err != nil {
		return "", err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		ub := tx.Bucket(uploadsBucket).Bucket([]byte(uploadID))
		if ub == nil {
			return store.ErrUploadNotFound
		}
		return ub.Bucket(partsBucket).Put(partKey(partNumber), raw)
	})
	if err != nil {
		return "", err
	}
	return rec.ETag, nil
}

// CompleteMultipartUpload assembles the referenced parts into the final
// object and discards the upload. Each referenced part must exist with
// a matching etag.
func (s *Store) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []store.CompletedPart) (*store.ObjectInfo, error) {
	if len(parts) == 0 {
		return nil, store.ErrInvalidPart
	}
	ordered := make([]store.CompletedPart, len(parts))
	copy(ordered, parts)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].PartNumber < ordered[j].PartNumber
	})

	var info *store.ObjectInfo
	err := s.db.Update(func(tx *bolt.Tx) error {
		ub := tx.Bucket(uploadsBucket).Bucket([]byte(uploadID))
		if ub == nil {
			return store.ErrUploadNotFound
		}
		var meta uploadMeta
		if err := json.Unmarshal(ub.Get(metaKey), &meta); err != nil {
			return err
		}

		var body bytes.Buffer
		pb := ub.Bucket(partsBucket)
		for _, p := range ordered {
			raw := pb.Get(partKey(p.PartNumber))
			if raw == nil {
				return store.ErrInvalidPart
			}
			var rec partRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			if rec.ETag != strings.Trim(p.ETag, `"`) {
				return store.ErrInvalidPart
			}
			body.Write(rec.Data)
		}

		obj := objectRecord{
			ETag:        computeETag(body.Bytes()),
			ContentType: meta.ContentType,
			Size:        int64(body.Len()),
			ModTime:     time.Now().UTC(),
			Data:        body.Bytes(),
		}
		raw, err := json.Marshal(&obj)
		if err != nil {
			return err
		}
		if err := tx.Bucket(objectsBucket).Put([]byte(key), raw); err != nil {
			return err
		}
		info = obj.info(key)
		return tx.Bucket(uploadsBucket).DeleteBucket([]byte(uploadID))
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// AbortMultipartUpload discards an in-progress upload and its parts.
func (s *Store) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(uploadsBucket).Bucket([]byte(uploadID)) == nil {
			return store.ErrUploadNotFound
		}
		return tx.Bucket(uploadsBucket).DeleteBucket([]byte(uploadID))
	})
}
