package server

import (
	"errors"

	"github.com/s3gate/s3gate/pkg/credentials"
	"github.com/s3gate/s3gate/pkg/upload"
)

// validator is implemented by every request type so malformed input is
// rejected at the boundary, before it reaches any engine component.
type validator interface {
	Validate() error
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type listRequest struct {
	Prefix            string `json:"prefix,omitempty"`
	ContinuationToken string `json:"continuationToken,omitempty"`
	MaxKeys           int    `json:"maxKeys,omitempty"`
}

func (r *listRequest) Validate() error {
	if r.MaxKeys < 0 || r.MaxKeys > 1000 {
		return errors.New("maxKeys must be between 0 and 1000")
	}
	return nil
}

type searchRequest struct {
	Prefix string `json:"prefix,omitempty"`
	Query  string `json:"query"`
}

func (r *searchRequest) Validate() error {
	if r.Query == "" {
		return errors.New("query is required")
	}
	return nil
}

type createFolderRequest struct {
	Prefix string `json:"prefix"`
}

func (r *createFolderRequest) Validate() error {
	if r.Prefix == "" {
		return errors.New("prefix is required")
	}
	return nil
}

type deleteBatchRequest struct {
	Keys []string `json:"keys"`
}

func (r *deleteBatchRequest) Validate() error {
	if len(r.Keys) == 0 {
		return errors.New("keys are required")
	}
	return nil
}

type batchErrorResponse struct {
	Key  string `json:"key"`
	Kind string `json:"kind"`
}

type deleteBatchResponse struct {
	Deleted []string             `json:"deleted"`
	Errors  []batchErrorResponse `json:"errors"`
}

type uploadResponse struct {
	Key  string `json:"key"`
	ETag string `json:"etag"`
}

type initiateUploadRequest struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType,omitempty"`
}

func (r *initiateUploadRequest) Validate() error {
	if r.Key == "" {
		return errors.New("key is required")
	}
	return nil
}

type initiateUploadResponse struct {
	UploadID string `json:"uploadId"`
}

type completeUploadRequest struct {
	Key      string        `json:"key"`
	UploadID string        `json:"uploadId"`
	Parts    []upload.Part `json:"parts"`
}

func (r *completeUploadRequest) Validate() error {
	if r.Key == "" {
		return errors.New("key is required")
	}
	if r.UploadID == "" {
		return errors.New("uploadId is required")
	}
	if len(r.Parts) == 0 {
		return errors.New("parts are required")
	}
	return nil
}

type abortUploadRequest struct {
	Key      string `json:"key"`
	UploadID string `json:"uploadId"`
}

func (r *abortUploadRequest) Validate() error {
	if r.Key == "" {
		return errors.New("key is required")
	}
	if r.UploadID == "" {
		return errors.New("uploadId is required")
	}
	return nil
}

type temporaryCredentialsRequest struct {
	DurationSeconds int `json:"durationSeconds,omitempty"`
}

// defaultSessionDuration is applied when the caller does not ask for a
// specific lifetime.
const defaultSessionDuration = 3600

func (r *temporaryCredentialsRequest) Validate() error {
	if r.DurationSeconds == 0 {
		r.DurationSeconds = defaultSessionDuration
	}
	return nil
}

type setKeyStatusRequest struct {
	Status credentials.KeyStatus `json:"status"`
}

func (r *setKeyStatusRequest) Validate() error {
	if !r.Status.Valid() {
		return errors.New("status must be Active or Inactive")
	}
	return nil
}

type rotateKeyRequest struct {
	OldAccessKeyID string `json:"oldAccessKeyId"`
}

func (r *rotateKeyRequest) Validate() error {
	if r.OldAccessKeyID == "" {
		return errors.New("oldAccessKeyId is required")
	}
	return nil
}

type rotateKeyResponse struct {
	credentials.AccessKey
	Warning string `json:"warning,omitempty"`
}
