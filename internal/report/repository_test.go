package report

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/foxzi/mailmerge/internal/pipeline"
)

func setupRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo, err := NewWithDB(db)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	return repo
}

func sampleRun() *pipeline.RunResult {
	now := time.Now()
	return &pipeline.RunResult{
		RunID:              "run-1",
		Started:            now.Add(-time.Minute),
		Finished:           now,
		Sent:               1,
		Failed:             1,
		Halted:             1,
		SkippedAlreadySent: 2,
		SkippedNoEmail:     1,
		Results: []pipeline.ItemResult{
			{Time: now, To: "a@x.com", Status: pipeline.StatusSent, Note: "defaults applied"},
			{Time: now, To: "b@x.com", Status: pipeline.StatusFailed, Message: "550 no such user"},
			{Time: now, To: "c@x.com", Status: pipeline.StatusHaltedQuota, Message: "daily limit reached, resume tomorrow"},
		},
	}
}

func TestRepository_SaveAndGet(t *testing.T) {
	repo := setupRepo(t)

	if err := repo.SaveRun(sampleRun()); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	run, err := repo.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run == nil {
		t.Fatal("GetRun() = nil, want run")
	}
	if run.Total != 3 || run.Sent != 1 || run.Failed != 1 || run.Halted != 1 {
		t.Errorf("run summary = %+v", run)
	}
	if run.SkippedAlreadySent != 2 {
		t.Errorf("SkippedAlreadySent = %d, want 2", run.SkippedAlreadySent)
	}
	if run.SkippedNoEmail != 1 {
		t.Errorf("SkippedNoEmail = %d, want 1", run.SkippedNoEmail)
	}
}

func TestRepository_GetMissing(t *testing.T) {
	repo := setupRepo(t)

	run, err := repo.GetRun("missing")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run != nil {
		t.Errorf("GetRun(missing) = %+v, want nil", run)
	}
}

func TestRepository_ItemsOrdered(t *testing.T) {
	repo := setupRepo(t)

	if err := repo.SaveRun(sampleRun()); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	items, err := repo.ItemsForRun("run-1")
	if err != nil {
		t.Fatalf("ItemsForRun() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}

	want := []string{"a@x.com", "b@x.com", "c@x.com"}
	for i, item := range items {
		if item.Recipient != want[i] {
			t.Errorf("item %d recipient = %q, want %q", i, item.Recipient, want[i])
		}
	}
	if items[0].Note != "defaults applied" {
		t.Errorf("item 0 note = %q", items[0].Note)
	}
	if items[1].Message != "550 no such user" {
		t.Errorf("item 1 message = %q", items[1].Message)
	}
}

func TestRepository_ListRuns(t *testing.T) {
	repo := setupRepo(t)

	first := sampleRun()
	first.RunID = "run-old"
	first.Started = time.Now().Add(-2 * time.Hour)
	if err := repo.SaveRun(first); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	second := sampleRun()
	second.RunID = "run-new"
	if err := repo.SaveRun(second); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	runs, err := repo.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].ID != "run-new" {
		t.Errorf("runs[0].ID = %q, want run-new (newest first)", runs[0].ID)
	}
}
