package duckdb

import (
	"testing"
	"time"

	"github.com/tinytelemetry/pipecheck/internal/model"
)

func TestRetentionCleaner_DeletesOldDocuments(t *testing.T) {
	store := newTestStore(t)
	store.AutoCreate = true
	now := time.Now()
	store.InsertDocuments([]*model.Document{
		doc("logs-syslog-default", "stale", now.Add(-48*time.Hour)),
		doc("logs-syslog-default", "fresh", now),
	})

	cleaner := NewRetentionCleaner(store, 24*time.Hour)
	if cleaner == nil {
		t.Fatal("expected non-nil retention cleaner")
	}
	cleaner.Stop()
	cleaner.Stop()

	n, err := store.CountDocuments("logs-syslog-default", model.CountQuery{})
	if err != nil || n != 1 {
		t.Fatalf("CountDocuments = %d, %v; want 1", n, err)
	}
}

func TestRetentionCleaner_Disabled(t *testing.T) {
	store := newTestStore(t)
	var cleaner *RetentionCleaner = NewRetentionCleaner(store, 0)
	if cleaner != nil {
		t.Fatal("expected nil cleaner when retention is disabled")
	}
	cleaner.Stop()
}
