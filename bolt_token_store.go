package authgate

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const boltBucketName = "authgate"

// BoltTokenStore is a [TokenStore] backed by a single bbolt file. It is the
// default durable on-device store: one bucket, three keys, sessions survive
// process restarts.
//
//	Docs: docs/token_store.md
type BoltTokenStore struct {
	db *bolt.DB
}

// OpenBoltTokenStore opens (creating if needed) the bbolt file at path and
// ensures the bucket exists. The caller owns Close.
func OpenBoltTokenStore(path string) (*BoltTokenStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucketName))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	return &BoltTokenStore{db: db}, nil
}

// Close describes the close operation and its observable behavior.
func (s *BoltTokenStore) Close() error {
	return s.db.Close()
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
func (s *BoltTokenStore) Get(_ context.Context, key string) (string, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(boltBucketName)).Get([]byte(key))
		if raw != nil {
			value = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	if value == nil {
		return "", ErrKeyNotFound
	}
	return string(value), nil
}

// Set describes the set operation and its observable behavior.
//
// Set may return an error when input validation, dependency calls, or security checks fail.
func (s *BoltTokenStore) Set(_ context.Context, key, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(boltBucketName)).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	return nil
}

// Delete describes the delete operation and its observable behavior.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
func (s *BoltTokenStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(boltBucketName)).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	return nil
}
