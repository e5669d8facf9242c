// Package boltsession implements the upload session store on a bbolt
// database. Each session is a nested bucket keyed by upload id; part
// writes run inside a single update transaction, which gives the
// atomic read-modify-write the coordinator requires.
package boltsession

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/s3gate/s3gate/pkg/upload"
)

var (
	sessionsBucket = []byte("sessions")
	partsBucket    = []byte("parts")
	metaKey        = []byte("meta")
)

// sessionMeta is the persisted session header.
type sessionMeta struct {
	Principal string    `json:"principal"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is a bbolt-backed session store.
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
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
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

func partKey(partNumber int) []byte {
	return []byte(fmt.Sprintf("%05d", partNumber))
}

// Create persists a new session record.
func (s *Store) Create(ctx context.Context, session *upload.Session) error {
	meta := sessionMeta{
		Principal: session.Principal,
		Key:       session.Key,
		CreatedAt: session.CreatedAt,
	}
	raw, err := json.Marshal(&meta)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		sb, err := tx.Bucket(sessionsBucket).CreateBucket([]byte(session.UploadID))
		if err != nil {
			return err
		}
		if _, err := sb.CreateBucket(partsBucket); err != nil {
			return err
		}
		if err := sb.Put(metaKey, raw); err != nil {
			return err
		}
		for partNumber, etag := range session.Parts {
			if err := sb.Bucket(partsBucket).Put(partKey(partNumber), []byte(etag)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get loads a session with all recorded parts.
func (s *Store) Get(ctx context.Context, uploadID string) (*upload.Session, error) {
	var session *upload.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket(sessionsBucket).Bucket([]byte(uploadID))
		if sb == nil {
			return fmt.Errorf("upload %s: %w", uploadID, upload.ErrSessionNotFound)
		}
		var meta sessionMeta
		if err := json.Unmarshal(sb.Get(metaKey), &meta); err != nil {
			return err
		}
		session = &upload.Session{
			UploadID:  uploadID,
			Principal: meta.Principal,
			Key:       meta.Key,
			Parts:     map[int]string{},
			CreatedAt: meta.CreatedAt,
		}
		return sb.Bucket(partsBucket).ForEach(func(k, v []byte) error {
			partNumber, err := strconv.Atoi(string(k))
			if err != nil {
				return err
			}
			session.Parts[partNumber] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SetPart records the etag for a part number, overwriting any previous
// entry for that number (last write wins).
func (s *Store) SetPart(ctx context.Context, uploadID string, partNumber int, etag string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		sb := tx.Bucket(sessionsBucket).Bucket([]byte(uploadID))
		if sb == nil {
			return fmt.Errorf("upload %s: %w", uploadID, upload.ErrSessionNotFound)
		}
		return sb.Bucket(partsBucket).Put(partKey(partNumber), []byte(etag))
	})
}

// Delete discards a session record. Deleting an unknown session is a
// no-op so abort stays idempotent.
func (s *Store) Delete(ctx context.Context, uploadID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(sessionsBucket).Bucket([]byte(uploadID)) == nil {
			return nil
		}
		return tx.Bucket(sessionsBucket).DeleteBucket([]byte(uploadID))
	})
}
