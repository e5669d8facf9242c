// Package credentials issues prefix-scoped session credentials and
// manages long-lived programmatic keys for a principal.
package credentials

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidDuration  = errors.New("invalid duration")
	ErrIssuanceFailed   = errors.New("credential issuance failed")
	ErrKeyNotFound      = errors.New("key not found")
	ErrStaleKeyCleanup  = errors.New("stale key cleanup failed")
	ErrInvalidKeyStatus = errors.New("invalid key status")
)

// Session credential duration bounds, in seconds.
const (
	MinDurationSeconds = 900
	MaxDurationSeconds = 43200
)

// KeyStatus is the lifecycle state of a programmatic key.
type KeyStatus string

const (
	StatusActive   KeyStatus = "Active"
	StatusInactive KeyStatus = "Inactive"
)

// Valid reports whether the status is one of the two lifecycle states.
func (s KeyStatus) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// SessionCredential is a short-lived, policy-scoped temporary access
// triple. It is never persisted server-side; expiration is terminal and
// callers re-request instead of renewing.
type SessionCredential struct {
	AccessKeyID     string    `json:"accessKeyId"`
	SecretAccessKey string    `json:"secretAccessKey"`
	SessionToken    string    `json:"sessionToken"`
	Expiration      time.Time `json:"expiration"`
}

// AccessKey is a long-lived programmatic key. The secret is returned
// exactly once, at creation or rotation, and omitted everywhere else.
type AccessKey struct {
	AccessKeyID     string    `json:"accessKeyId"`
	SecretAccessKey string    `json:"secretAccessKey,omitempty"`
	CreateDate      time.Time `json:"createDate"`
	Status          KeyStatus `json:"status"`
}

// Issuer is the raw temporary-credential capability (STS equivalent).
type Issuer interface {
	IssueSessionToken(ctx context.Context, name, policyDocument string, duration time.Duration) (*SessionCredential, error)
}

// KeyStore is the raw programmatic-key capability (IAM equivalent).
// Implementations scope every operation to the given principal and
// report ErrKeyNotFound for key ids the principal does not own.
type KeyStore interface {
	CreateKey(ctx context.Context, principal, policyDocument string) (*AccessKey, error)
	ListKeys(ctx context.Context, principal string) ([]AccessKey, error)
	SetKeyStatus(ctx context.Context, principal, keyID string, status KeyStatus) error
	DeleteKey(ctx context.Context, principal, keyID string) error
}
