package credentials

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/s3gate/s3gate/pkg/audit"
	"github.com/s3gate/s3gate/pkg/scope"
)

// KeyManager drives the lifecycle of a principal's programmatic keys.
// A principal can only ever reach its own keys: the backing KeyStore is
// addressed by principal and reports ErrKeyNotFound for foreign ids.
type KeyManager struct {
	store  KeyStore
	bucket string
	audit  *audit.Logger
}

// NewKeyManager creates a manager over the given key store and bucket.
func NewKeyManager(store KeyStore, bucket string, auditLog *audit.Logger) *KeyManager {
	if auditLog == nil {
		auditLog = audit.Nop()
	}
	return &KeyManager{
		store:  store,
		bucket: bucket,
		audit:  auditLog,
	}
}

// Create mints a new programmatic key. The secret is present in the
// returned key and will never be retrievable again.
func (m *KeyManager) Create(ctx context.Context, principal string) (*AccessKey, error) {
	prefix, err := scope.DerivePrefix(principal)
	if err != nil {
		return nil, err
	}
	policy, err := ScopedPolicy(m.bucket, prefix)
	if err != nil {
		return nil, err
	}
	key, err := m.store.CreateKey(ctx, principal, policy)
	if err != nil {
		return nil, err
	}
	m.audit.Event(principal, "create_access_key", "iam", logrus.Fields{
		"keyId": key.AccessKeyID,
	})
	return key, nil
}

// List returns the principal's keys with secrets omitted.
func (m *KeyManager) List(ctx context.Context, principal string) ([]AccessKey, error) {
	if _, err := scope.DerivePrefix(principal); err != nil {
		return nil, err
	}
	keys, err := m.store.ListKeys(ctx, principal)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].SecretAccessKey = ""
	}
	return keys, nil
}

// SetStatus activates or deactivates a key.
func (m *KeyManager) SetStatus(ctx context.Context, principal, keyID string, status KeyStatus) error {
	if _, err := scope.DerivePrefix(principal); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("status %q: %w", status, ErrInvalidKeyStatus)
	}
	if err := m.store.SetKeyStatus(ctx, principal, keyID, status); err != nil {
		return err
	}
	m.audit.Event(principal, "update_access_key_status", "iam", logrus.Fields{
		"keyId":  keyID,
		"status": status,
	})
	return nil
}

// Delete removes a key. Deleting the principal's last active key is
// permitted; preventing self-lockout is a caller-side policy choice.
func (m *KeyManager) Delete(ctx context.Context, principal, keyID string) error {
	if _, err := scope.DerivePrefix(principal); err != nil {
		return err
	}
	if err := m.store.DeleteKey(ctx, principal, keyID); err != nil {
		return err
	}
	m.audit.Event(principal, "delete_access_key", "iam", logrus.Fields{
		"keyId": keyID,
	})
	return nil
}

// Rotate creates a new key first and deletes the old one only after
// creation succeeded, so the principal never passes through a window
// with zero valid keys. If deleting the old key fails the new key is
// still returned, together with an error wrapping ErrStaleKeyCleanup;
// callers treat that as a warning, not a failure.
func (m *KeyManager) Rotate(ctx context.Context, principal, oldKeyID string) (*AccessKey, error) {
	newKey, err := m.Create(ctx, principal)
	if err != nil {
		return nil, err
	}
	if err := m.store.DeleteKey(ctx, principal, oldKeyID); err != nil {
		cleanupErr := fmt.Errorf("%w: deleting key %s: %v", ErrStaleKeyCleanup, oldKeyID, err)
		m.audit.Warning(principal, "rotate_access_key", "iam", cleanupErr)
		return newKey, cleanupErr
	}
	m.audit.Event(principal, "rotate_access_key", "iam", logrus.Fields{
		"oldKeyId": oldKeyID,
		"newKeyId": newKey.AccessKeyID,
	})
	return newKey, nil
}
