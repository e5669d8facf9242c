// Package upload coordinates multipart upload sessions: initiate,
// accept parts, complete or abort. Session state lives in the backing
// session store, never in process memory, so concurrent part uploads
// only rely on the store's atomic read-modify-write.
package upload

import (
	"context"
	"errors"
	"time"
)

var (
	ErrPartMismatch    = errors.New("part mismatch")
	ErrSessionNotFound = errors.New("upload session not found")
)

// Session tracks one in-progress multipart upload. Parts maps part
// numbers to the etags recorded for them; re-sending a part number
// overwrites the previous entry.
type Session struct {
	UploadID  string         `json:"uploadId"`
	Principal string         `json:"principal"`
	Key       string         `json:"key"`
	Parts     map[int]string `json:"parts"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Part references one uploaded part when completing a session.
type Part struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}

// SessionStore is the backing-store capability for session records.
// SetPart must be an atomic read-modify-write on the session record.
// Get reports ErrSessionNotFound for unknown upload ids.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, uploadID string) (*Session, error)
	SetPart(ctx context.Context, uploadID string, partNumber int, etag string) error
	Delete(ctx context.Context, uploadID string) error
}
