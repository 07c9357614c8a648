// Package history tracks the addresses that have already been emailed
// successfully. The store is the dedup ground truth: append-only except
// for an explicit clear, and consulted before every dispatch.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSentHistory = []byte("sent_history")

// Entry is the stored record for one sent address.
type Entry struct {
	SentAt time.Time `json:"sent_at"`
}

// Store is the sent-history contract. Append is idempotent-safe: adding
// an address that is already present is not an error.
type Store interface {
	SentAddresses(ctx context.Context) (map[string]struct{}, error)
	Append(ctx context.Context, addrs []string) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// Normalize canonicalizes an address for dedup comparison.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// BoltStore persists sent addresses in a bbolt bucket keyed by
// normalized address.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates the store, provisioning the bucket if it does
// not exist yet.
func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSentHistory)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create history bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// SentAddresses returns the full set of previously sent normalized
// addresses. This is the one read per run; addresses appended by a
// concurrent process after this read are not seen.
func (s *BoltStore) SentAddresses(ctx context.Context) (map[string]struct{}, error) {
	sent := make(map[string]struct{})

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSentHistory)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			sent[string(k)] = struct{}{}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read sent history: %w", err)
	}

	return sent, nil
}

// Append records the given addresses as sent, stamped with the current
// time. Already-present addresses keep their original timestamp.
func (s *BoltStore) Append(ctx context.Context, addrs []string) error {
	if len(addrs) == 0 {
		return nil
	}

	now := time.Now()
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSentHistory)

		for _, addr := range addrs {
			key := []byte(Normalize(addr))
			if len(key) == 0 {
				continue
			}
			if bucket.Get(key) != nil {
				continue
			}

			data, err := json.Marshal(Entry{SentAt: now})
			if err != nil {
				return fmt.Errorf("failed to marshal history entry: %w", err)
			}
			if err := bucket.Put(key, data); err != nil {
				return fmt.Errorf("failed to store history entry: %w", err)
			}
		}
		return nil
	})
}

// Clear removes all entries, keeping the bucket itself.
func (s *BoltStore) Clear(ctx context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketSentHistory); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketSentHistory)
		return err
	})
}

// Count returns the total number of recorded addresses.
func (s *BoltStore) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSentHistory)
		if bucket == nil {
			return nil
		}
		count = bucket.Stats().KeyN
		return nil
	})
	return count, err
}

// CountSince returns how many addresses were recorded at or after the
// given time. Entries that fail to decode are skipped.
func (s *BoltStore) CountSince(ctx context.Context, since time.Time) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSentHistory)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return nil
			}
			if !entry.SentAt.Before(since) {
				count++
			}
			return nil
		})
	})
	return count, err
}
