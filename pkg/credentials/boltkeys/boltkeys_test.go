package boltkeys

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/s3gate/s3gate/pkg/credentials"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "keys.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key, err := s.CreateKey(ctx, "u1", "{}")
	if err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}
	if !strings.HasPrefix(key.AccessKeyID, "SGK") || len(key.AccessKeyID) != 20 {
		t.Errorf("Unexpected key id %q", key.AccessKeyID)
	}
	if key.SecretAccessKey == "" {
		t.Errorf("Expected secret at creation")
	}
	if key.Status != credentials.StatusActive {
		t.Errorf("Expected active status, got %q", key.Status)
	}

	// Secrets are never persisted: listings only carry metadata.
	keys, err := s.ListKeys(ctx, "u1")
	if err != nil {
		t.Fatalf("Failed to list keys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("Expected 1 key, got %d", len(keys))
	}
	if keys[0].SecretAccessKey != "" {
		t.Errorf("Secret leaked into listing")
	}
}

func TestListKeysIsolatedByPrincipal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u1Key, err := s.CreateKey(ctx, "u1", "{}")
	if err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}
	if _, err := s.CreateKey(ctx, "u2", "{}"); err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}

	keys, err := s.ListKeys(ctx, "u1")
	if err != nil {
		t.Fatalf("Failed to list keys: %v", err)
	}
	if len(keys) != 1 || keys[0].AccessKeyID != u1Key.AccessKeyID {
		t.Errorf("Expected only u1's key, got %v", keys)
	}

	keys, err = s.ListKeys(ctx, "nobody")
	if err != nil {
		t.Fatalf("Failed to list keys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected no keys for unknown principal, got %v", keys)
	}
}

func TestSetKeyStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key, err := s.CreateKey(ctx, "u1", "{}")
	if err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}
	if err := s.SetKeyStatus(ctx, "u1", key.AccessKeyID, credentials.StatusInactive); err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}
	keys, _ := s.ListKeys(ctx, "u1")
	if keys[0].Status != credentials.StatusInactive {
		t.Errorf("Expected inactive, got %q", keys[0].Status)
	}

	// A principal cannot reach another principal's key.
	if err := s.SetKeyStatus(ctx, "u2", key.AccessKeyID, credentials.StatusActive); !errors.Is(err, credentials.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound for foreign key, got %v", err)
	}
}

func TestDeleteKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key, err := s.CreateKey(ctx, "u1", "{}")
	if err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}
	if err := s.DeleteKey(ctx, "u2", key.AccessKeyID); !errors.Is(err, credentials.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound for foreign delete, got %v", err)
	}
	if err := s.DeleteKey(ctx, "u1", key.AccessKeyID); err != nil {
		t.Fatalf("Failed to delete key: %v", err)
	}
	if err := s.DeleteKey(ctx, "u1", key.AccessKeyID); !errors.Is(err, credentials.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound on second delete, got %v", err)
	}
}
