package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/s3gate/s3gate/pkg/audit"
	"github.com/s3gate/s3gate/pkg/scope"
	"github.com/s3gate/s3gate/pkg/store"
)

// CompletedObject is the result of a completed multipart upload.
type CompletedObject struct {
	Key  string `json:"key"`
	ETag string `json:"etag"`
}

// Coordinator drives the multipart upload state machine:
// Initiated -> Accumulating -> Completed | Aborted.
type Coordinator struct {
	store    store.RawStore
	sessions SessionStore
	gate     *scope.Gate
	audit    *audit.Logger
}

// NewCoordinator creates a coordinator over the given store, session
// store and gate.
func NewCoordinator(raw store.RawStore, sessions SessionStore, gate *scope.Gate, auditLog *audit.Logger) *Coordinator {
	if auditLog == nil {
		auditLog = audit.Nop()
	}
	return &Coordinator{
		store:    raw,
		sessions: sessions,
		gate:     gate,
		audit:    auditLog,
	}
}

// Initiate starts a multipart upload for the key and records the
// session against the returned upload id.
func (c *Coordinator) Initiate(ctx context.Context, principal, key, contentType string) (string, error) {
	if err := c.gate.Authorize(principal, key); err != nil {
		return "", err
	}
	uploadID, err := c.store.InitiateMultipartUpload(ctx, key, contentType)
	if err != nil {
		return "", err
	}
	session := &Session{
		UploadID:  uploadID,
		Principal: principal,
		Key:       key,
		Parts:     map[int]string{},
		CreatedAt: time.Now().UTC(),
	}
	if err := c.sessions.Create(ctx, session); err != nil {
		// Session record failed; release the orphaned raw upload.
		c.store.AbortMultipartUpload(ctx, key, uploadID)
		return "", err
	}
	return uploadID, nil
}

// loadOwnSession fetches the session and verifies it belongs to this
// principal and key. Foreign sessions look exactly like missing ones
// so upload ids never leak across tenants.
func (c *Coordinator) loadOwnSession(ctx context.Context, principal, key, uploadID string) (*Session, error) {
	session, err := c.sessions.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if session.Principal != principal || session.Key != key {
		return nil, fmt.Errorf("upload %s: %w", uploadID, ErrSessionNotFound)
	}
	return session, nil
}

// UploadPart forwards one part to the raw store and records its etag
// against the part number. Re-sending a part number overwrites the
// recorded etag: a client retrying a failed part must not corrupt the
// session.
func (c *Coordinator) UploadPart(ctx context.Context, principal, key, uploadID string, partNumber int, body io.Reader) (string, error) {
	if err := c.gate.Authorize(principal, key); err != nil {
		return "", err
	}
	if _, err := c.loadOwnSession(ctx, principal, key, uploadID); err != nil {
		return "", err
	}
	etag, err := c.store.UploadPart(ctx, key, uploadID, partNumber, body)
	if err != nil {
		return "", err
	}
	if err := c.sessions.SetPart(ctx, uploadID, partNumber, etag); err != nil {
		return "", err
	}
	return etag, nil
}

// Complete validates that the supplied part list exactly matches the
// session's recorded parts (as a set, order-independent) and assembles
// the final object. On mismatch the session is left accumulating so
// the caller can retry with corrected data.
func (c *Coordinator) Complete(ctx context.Context, principal, key, uploadID string, parts []Part) (*CompletedObject, error) {
	if err := c.gate.Authorize(principal, key); err != nil {
		return nil, err
	}
	session, err := c.loadOwnSession(ctx, principal, key, uploadID)
	if err != nil {
		return nil, err
	}
	if err := matchParts(session.Parts, parts); err != nil {
		return nil, err
	}

	completed := make([]store.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, store.CompletedPart{
			PartNumber: p.PartNumber,
			ETag:       p.ETag,
		})
	}
	info, err := c.store.CompleteMultipartUpload(ctx, key, uploadID, completed)
	if err != nil {
		return nil, err
	}
	if err := c.sessions.Delete(ctx, uploadID); err != nil {
		return nil, err
	}
	c.audit.Event(principal, "complete_multipart_upload", "s3", logrus.Fields{
		"key":      key,
		"uploadId": uploadID,
		"parts":    len(parts),
	})
	return &CompletedObject{
		Key:  key,
		ETag: info.ETag,
	}, nil
}

// matchParts checks set equality between recorded and supplied parts.
// Completion requires at least one part.
func matchParts(recorded map[int]string, supplied []Part) error {
	if len(supplied) == 0 || len(supplied) != len(recorded) {
		return fmt.Errorf("%d parts supplied, %d recorded: %w", len(supplied), len(recorded), ErrPartMismatch)
	}
	seen := make(map[int]bool, len(supplied))
	for _, p := range supplied {
		if seen[p.PartNumber] {
			return fmt.Errorf("part %d supplied twice: %w", p.PartNumber, ErrPartMismatch)
		}
		seen[p.PartNumber] = true
		etag, ok := recorded[p.PartNumber]
		if !ok || etag != strings.Trim(p.ETag, `"`) {
			return fmt.Errorf("part %d: %w", p.PartNumber, ErrPartMismatch)
		}
	}
	return nil
}

// Abort discards the session and instructs the raw store to release
// any uploaded parts. Abort is idempotent: aborting an unknown,
// already-aborted or already-completed session succeeds without side
// effects, since the caller's intent is already satisfied.
func (c *Coordinator) Abort(ctx context.Context, principal, key, uploadID string) error {
	if err := c.gate.Authorize(principal, key); err != nil {
		return err
	}
	session, err := c.sessions.Get(ctx, uploadID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if session.Principal != principal || session.Key != key {
		return nil
	}
	if err := c.store.AbortMultipartUpload(ctx, key, uploadID); err != nil && !errors.Is(err, store.ErrUploadNotFound) {
		return err
	}
	if err := c.sessions.Delete(ctx, uploadID); err != nil {
		return err
	}
	c.audit.Event(principal, "abort_multipart_upload", "s3", logrus.Fields{
		"key":      key,
		"uploadId": uploadID,
	})
	return nil
}
