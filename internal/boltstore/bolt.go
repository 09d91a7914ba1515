// Package boltstore implements the store ports on an embedded BoltDB file.
//
// Every record is a JSON value. Transactions and audit entries are keyed by a
// big-endian bucket sequence so cursor order is creation order. Each
// read-modify-write runs inside a single bolt.Update, which serializes
// writers and keeps stop-time energy computation atomic.
package boltstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"csms/internal/store"
)

var (
	bucketChargePoints = []byte("chargepoints")
	bucketTransactions = []byte("transactions")
	bucketAudit        = []byte("audit")
)

var _ store.Store = (*Store)(nil)

// Store wraps a BoltDB database.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the buckets. Safe to run on every startup.
func (s *Store) Migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketChargePoints, bucketTransactions, bucketAudit} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ChargePoints() store.ChargePoints { return &chargePoints{db: s.db, now: s.now} }
func (s *Store) Transactions() store.Transactions { return &transactions{db: s.db} }
func (s *Store) Audit() store.AuditLog            { return &auditLog{db: s.db, now: s.now} }

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func getJSON(b *bolt.Bucket, key []byte, v any) error {
	raw := b.Get(key)
	if raw == nil {
		return store.ErrNotFound
	}
	return json.Unmarshal(raw, v)
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}
