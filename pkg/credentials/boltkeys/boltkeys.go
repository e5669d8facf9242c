// Package boltkeys implements the programmatic-key capability on a
// bbolt database, for local deployments and tests. Only key metadata
// is persisted; the secret is generated at creation, handed out once
// and never stored.
package boltkeys

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/s3gate/s3gate/pkg/credentials"
)

var keysBucket = []byte("keys")

// keyRecord is the persisted key metadata.
type keyRecord struct {
	CreateDate time.Time             `json:"createDate"`
	Status     credentials.KeyStatus `json:"status"`
}

// Store is a bbolt-backed key store.
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
		_, err := tx.CreateBucketIfNotExists(keysBucket)
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

const keyIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// newKeyID generates an AWS-shaped access key id with an SGK prefix.
func newKeyID() (string, error) {
	buf := make([]byte, 17)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = keyIDAlphabet[int(b)%len(keyIDAlphabet)]
	}
	return "SGK" + string(buf), nil
}

// newSecret generates a 40-character secret.
func newSecret() (string, error) {
	buf := make([]byte, 30)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// CreateKey mints a key for the principal. The policy document is
// accepted for interface parity but has no effect locally; scoping is
// enforced by the gate in front of the store.
func (s *Store) CreateKey(ctx context.Context, principal, policyDocument string) (*credentials.AccessKey, error) {
	keyID, err := newKeyID()
	if err != nil {
		return nil, err
	}
	secret, err := newSecret()
	if err != nil {
		return nil, err
	}
	rec := keyRecord{
		CreateDate: time.Now().UTC(),
		Status:     credentials.StatusActive,
	}
	raw, err := json.Marshal(&rec)
	if err != nil {
		return nil, err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		pb, err := tx.Bucket(keysBucket).CreateBucketIfNotExists([]byte(principal))
		if err != nil {
			return err
		}
		return pb.Put([]byte(keyID), raw)
	})
	if err != nil {
		return nil, err
	}
	return &credentials.AccessKey{
		AccessKeyID:     keyID,
		SecretAccessKey: secret,
		CreateDate:      rec.CreateDate,
		Status:          rec.Status,
	}, nil
}

// ListKeys returns metadata for the principal's keys.
func (s *Store) ListKeys(ctx context.Context, principal string) ([]credentials.AccessKey, error) {
	var keys []credentials.AccessKey
	err := s.db.View(func(tx *bolt.Tx) error {
		pb := tx.Bucket(keysBucket).Bucket([]byte(principal))
		if pb == nil {
			return nil
		}
		return pb.ForEach(func(k, v []byte) error {
			var rec keyRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			keys = append(keys, credentials.AccessKey{
				AccessKeyID: string(k),
				CreateDate:  rec.CreateDate,
				Status:      rec.Status,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// SetKeyStatus updates a key's Active/Inactive status.
func (s *Store) SetKeyStatus(ctx context.Context, principal, keyID string, status credentials.KeyStatus) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		pb := tx.Bucket(keysBucket).Bucket([]byte(principal))
		if pb == nil {
			return notFound(keyID)
		}
		raw := pb.Get([]byte(keyID))
		if raw == nil {
			return notFound(keyID)
		}
		var rec keyRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		rec.Status = status
		updated, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return pb.Put([]byte(keyID), updated)
	})
}

// DeleteKey removes a key.
func (s *Store) DeleteKey(ctx context.Context, principal, keyID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		pb := tx.Bucket(keysBucket).Bucket([]byte(principal))
		if pb == nil {
			return notFound(keyID)
		}
		if pb.Get([]byte(keyID)) == nil {
			return notFound(keyID)
		}
		return pb.Delete([]byte(keyID))
	})
}

func notFound(keyID string) error {
	return fmt.Errorf("key %s: %w", keyID, credentials.ErrKeyNotFound)
}
