package quota

import (
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func setupTestDB(t *testing.T) *bolt.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestCounter_RecordAndRemaining(t *testing.T) {
	c, err := NewCounter(setupTestDB(t), 5)
	if err != nil {
		t.Fatalf("NewCounter() error = %v", err)
	}

	if got := c.Remaining(); got != 5 {
		t.Errorf("Remaining() = %d, want 5", got)
	}

	if err := c.Record(3); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if got := c.Remaining(); got != 2 {
		t.Errorf("Remaining() = %d, want 2", got)
	}

	if err := c.Record(4); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if got := c.Remaining(); got != 0 {
		t.Errorf("Remaining() = %d, want 0 (never negative)", got)
	}
}

func TestCounter_PersistsAcrossReopen(t *testing.T) {
	db := setupTestDB(t)

	c, err := NewCounter(db, 10)
	if err != nil {
		t.Fatalf("NewCounter() error = %v", err)
	}
	if err := c.Record(4); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	reopened, err := NewCounter(db, 10)
	if err != nil {
		t.Fatalf("reopen NewCounter() error = %v", err)
	}
	if got := reopened.Remaining(); got != 6 {
		t.Errorf("Remaining() after reopen = %d, want 6", got)
	}
}

func TestCounter_DateRollover(t *testing.T) {
	c, err := NewCounter(setupTestDB(t), 10)
	if err != nil {
		t.Fatalf("NewCounter() error = %v", err)
	}

	if err := c.Record(7); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	// Simulate crossing midnight.
	c.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	if got := c.Remaining(); got != 10 {
		t.Errorf("Remaining() after rollover = %d, want 10", got)
	}
	snap := c.Snapshot()
	if snap.SentCount != 0 {
		t.Errorf("SentCount after rollover = %d, want 0", snap.SentCount)
	}
}

func TestCounter_SetLimit(t *testing.T) {
	c, err := NewCounter(setupTestDB(t), 10)
	if err != nil {
		t.Fatalf("NewCounter() error = %v", err)
	}

	if err := c.SetLimit(0); err == nil {
		t.Error("SetLimit(0) expected error")
	}
	if err := c.SetLimit(20); err != nil {
		t.Fatalf("SetLimit(20) error = %v", err)
	}
	if got := c.Remaining(); got != 20 {
		t.Errorf("Remaining() = %d, want 20", got)
	}
}

func TestCounter_DefaultLimit(t *testing.T) {
	c, err := NewCounter(setupTestDB(t), 0)
	if err != nil {
		t.Fatalf("NewCounter() error = %v", err)
	}
	if got := c.Remaining(); got != DefaultDailyLimit {
		t.Errorf("Remaining() = %d, want %d", got, DefaultDailyLimit)
	}
}
