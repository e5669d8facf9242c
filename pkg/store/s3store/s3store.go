// Package s3store implements the raw store capability on an AWS S3
// bucket using aws-sdk-go-v2.
package s3store

import (
	"context"
	"errors"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/s3gate/s3gate/pkg/store"
)

// Store wraps a single S3 bucket.
type Store struct {
	client *s3.Client
	bucket string
}

// NewStore creates a store over the given bucket.
func NewStore(client *s3.Client, bucket string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
	}
}

// Put stores an object.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, contentType string) (*store.ObjectInfo, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		return nil, err
	}
	return &store.ObjectInfo{
		Key:  key,
		ETag: trimETag(out.ETag),
	}, nil
}

// Get retrieves an object and its metadata.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, *store.ObjectInfo, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, mapNotFound(err)
	}
	info := &store.ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ETag:        trimETag(out.ETag),
		ContentType: aws.ToString(out.ContentType),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return out.Body, info, nil
}

// Head retrieves object metadata without the body.
func (s *Store) Head(ctx context.Context, key string) (*store.ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapNotFound(err)
	}
	info := &store.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         trimETag(out.ETag),
		ContentType:  aws.ToString(out.ContentType),
		StorageClass: string(out.StorageClass),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

// Delete removes an object. S3 deletes are idempotent, so a missing key
// is detected with a preceding head call to keep batch-delete error
// reporting faithful.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.Head(ctx, key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

// List returns one page of ListObjectsV2 results. The continuation
// token is S3's own, passed through untouched.
func (s *Store) List(ctx context.Context, opts store.ListOptions) (*store.ListResult, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(opts.Prefix),
	}
	if opts.MaxKeys > 0 {
		input.MaxKeys = aws.Int32(int32(opts.MaxKeys))
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}
	if opts.Delimiter != "" {
		input.Delimiter = aws.String(opts.Delimiter)
	}
	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, err
	}
	res := &store.ListResult{
		NextToken: aws.ToString(out.NextContinuationToken),
		Truncated: aws.ToBool(out.IsTruncated),
	}
	for _, cp := range out.CommonPrefixes {
		res.CommonPrefixes = append(res.CommonPrefixes, aws.ToString(cp.Prefix))
	}
	for _, obj := range out.Contents {
		info := store.ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         trimETag(obj.ETag),
			StorageClass: string(obj.StorageClass),
		}
		if obj.LastModified != nil {
			info.LastModified = *obj.LastModified
		}
		res.Objects = append(res.Objects, info)
	}
	return res, nil
}

// InitiateMultipartUpload starts a multipart upload and returns its id.
func (s *Store) InitiateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	out, err := s.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", err
	}
	return aws.ToString(out.UploadId), nil
}

// UploadPart uploads one part and returns its etag.
func (s *Store) UploadPart(ctx context.Context, key, uploadID string, partNumber int, body io.Reader) (string, error) {
	out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(int32(partNumber)),
		Body:       body,
	})
	if err != nil {
		return "", mapUploadNotFound(err)
	}
	return trimETag(out.ETag), nil
}

// CompleteMultipartUpload assembles the referenced parts into the
// final object.
func (s *Store) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []store.CompletedPart) (*store.ObjectInfo, error) {
	ordered := make([]store.CompletedPart, len(parts))
	copy(ordered, parts)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].PartNumber < ordered[j].PartNumber
	})
	completed := make([]types.CompletedPart, 0, len(ordered))
	for _, p := range ordered {
		completed = append(completed, types.CompletedPart{
			PartNumber: aws.Int32(int32(p.PartNumber)),
			ETag:       aws.String(p.ETag),
		})
	}
	out, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return nil, mapUploadNotFound(err)
	}
	return &store.ObjectInfo{
		Key:  key,
		ETag: trimETag(out.ETag),
	}, nil
}

// AbortMultipartUpload discards an in-progress upload.
func (s *Store) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return mapUploadNotFound(err)
	}
	return nil
}

func trimETag(etag *string) string {
	if etag == nil {
		return ""
	}
	e := *etag
	if len(e) >= 2 && e[0] == '"' && e[len(e)-1] == '"' {
		e = e[1 : len(e)-1]
	}
	return e
}

func mapNotFound(err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return store.ErrObjectNotFound
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return store.ErrObjectNotFound
	}
	return err
}

func mapUploadNotFound(err error) error {
	var nsu *types.NoSuchUpload
	if errors.As(err, &nsu) {
		return store.ErrUploadNotFound
	}
	return err
}
