// Package quota enforces the client-side daily send limit. The counter
// is a provider-throttle proxy and is deliberately independent from the
// sent-history store: clearing history does not reset the counter, and
// a date rollover does not touch history.
package quota

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketQuota = []byte("daily_quota")
	keyCounter  = []byte("counter")
)

// DefaultDailyLimit is the limit applied when none is configured.
const DefaultDailyLimit = 500

// State is the persisted counter state. Date is an ISO date; whenever
// it differs from the current date the count resets to zero.
type State struct {
	Limit     int    `json:"limit"`
	SentCount int    `json:"sent_count"`
	Date      string `json:"date"`
}

// Counter tracks how many sends are still permitted today. Dispatch is
// single-threaded, so no locking is needed; concurrent pipeline
// instances sharing one store must apply their own compare-and-increment
// discipline or they can jointly exceed the provider's true limit.
type Counter struct {
	db    *bolt.DB
	state State
	now   func() time.Time
}

// NewCounter loads (or initializes) the persisted counter. A limit of
// zero or less falls back to DefaultDailyLimit.
func NewCounter(db *bolt.DB, limit int) (*Counter, error) {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}

	c := &Counter{
		db:  db,
		now: time.Now,
	}

	err := db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketQuota)
		if err != nil {
			return err
		}
		if data := bucket.Get(keyCounter); data != nil {
			if err := json.Unmarshal(data, &c.state); err != nil {
				// Corrupt state starts over rather than blocking sends.
				c.state = State{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load quota counter: %w", err)
	}

	c.state.Limit = limit
	c.rollover()
	if err := c.persist(); err != nil {
		return nil, err
	}

	return c, nil
}

// Remaining returns how many sends are still permitted today, never
// negative. The date rollover is applied on every call so a process
// running across midnight picks up the fresh allowance.
func (c *Counter) Remaining() int {
	c.rollover()
	remaining := c.state.Limit - c.state.SentCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Record counts n successful sends and persists the new state.
func (c *Counter) Record(n int) error {
	c.rollover()
	c.state.SentCount += n
	return c.persist()
}

// SetLimit updates the daily limit and persists it.
func (c *Counter) SetLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("daily limit must be positive, got %d", limit)
	}
	c.state.Limit = limit
	return c.persist()
}

// Snapshot returns the current state for display.
func (c *Counter) Snapshot() State {
	c.rollover()
	return c.state
}

func (c *Counter) rollover() {
	today := c.now().Format("2006-01-02")
	if c.state.Date != today {
		c.state.SentCount = 0
		c.state.Date = today
	}
}

func (c *Counter) persist() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketQuota)
		if bucket == nil {
			return fmt.Errorf("quota bucket missing")
		}
		data, err := json.Marshal(c.state)
		if err != nil {
			return fmt.Errorf("failed to marshal quota state: %w", err)
		}
		return bucket.Put(keyCounter, data)
	})
}
