package duckdb

import (
	"errors"
	"testing"
	"time"

	"github.com/tinytelemetry/pipecheck/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore(\"\") failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func putSyslogTemplate(t *testing.T, store *Store) {
	t.Helper()
	err := store.PutIndexTemplate(model.IndexTemplateRecord{
		Name:          "logs-syslog-template",
		IndexPatterns: []string{"logs-syslog-*"},
		Priority:      500,
		Body:          []byte(`{"index_patterns":["logs-syslog-*"],"priority":500}`),
	})
	if err != nil {
		t.Fatalf("PutIndexTemplate: %v", err)
	}
}

func doc(stream, msg string, ts time.Time) *model.Document {
	return &model.Document{Stream: stream, Timestamp: ts, ReceivedAt: ts, Host: "web1", Message: msg, Source: "tcp"}
}

func TestNewStore_ReportsSchemaVersion(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if got := store.SchemaVersion(); got != 2 {
		t.Fatalf("SchemaVersion() = %d, want 2", got)
	}
}

func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"logs-syslog-*", "logs-syslog-default", true},
		{"logs-syslog-*", "metrics-syslog-default", false},
		{"logs-syslog-default", "logs-syslog-default", true},
		{"metrics-*, logs-*", "logs-syslog-default", true},
		{"_all", "anything", true},
	}
	for _, tt := range tests {
		if got := MatchPattern(tt.pattern, tt.name); got != tt.want {
			t.Fatalf("MatchPattern(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
		}
	}
}

func TestInsertDocuments_CreatesStreamFromTemplate(t *testing.T) {
	store := newTestStore(t)
	putSyslogTemplate(t, store)

	now := time.Now()
	err := store.InsertDocuments([]*model.Document{
		doc("logs-syslog-default", "one", now),
		doc("logs-syslog-default", "two", now),
		doc("other-stream", "dropped", now),
	})
	if err != nil {
		t.Fatalf("InsertDocuments: %v", err)
	}

	n, err := store.CountDocuments("logs-syslog-default", model.CountQuery{})
	if err != nil || n != 2 {
		t.Fatalf("CountDocuments = %d, %v; want 2", n, err)
	}
	if _, err := store.CountDocuments("other-stream", model.CountQuery{}); !errors.Is(err, model.ErrStreamNotFound) {
		t.Fatalf("CountDocuments(other-stream) error = %v, want ErrStreamNotFound", err)
	}

	streams, err := store.DataStreams("logs-*")
	if err != nil {
		t.Fatalf("DataStreams: %v", err)
	}
	if len(streams) != 1 || streams[0].Template != "logs-syslog-template" || streams[0].DocCount != 2 {
		t.Fatalf("DataStreams = %+v", streams)
	}
}

func TestInsertDocuments_AutoCreate(t *testing.T) {
	store := newTestStore(t)
	store.AutoCreate = true

	if err := store.InsertDocuments([]*model.Document{doc("adhoc", "x", time.Now())}); err != nil {
		t.Fatalf("InsertDocuments: %v", err)
	}
	ok, err := store.DataStreamExists("adhoc")
	if err != nil || !ok {
		t.Fatalf("DataStreamExists = %v, %v; want true", ok, err)
	}
}

func TestCountDocuments_TimeRangeAndPattern(t *testing.T) {
	store := newTestStore(t)
	putSyslogTemplate(t, store)

	base := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	store.InsertDocuments([]*model.Document{
		doc("logs-syslog-default-linux", "old", base.Add(-2*time.Hour)),
		doc("logs-syslog-default-linux", "recent", base.Add(-5*time.Minute)),
		doc("logs-syslog-logsdb-mac", "recent", base.Add(-time.Minute)),
	})

	n, err := store.CountDocuments("logs-syslog-default-linux", model.CountQuery{From: base.Add(-15 * time.Minute), To: base})
	if err != nil || n != 1 {
		t.Fatalf("range count = %d, %v; want 1", n, err)
	}
	n, err = store.CountDocuments("logs-syslog-*", model.CountQuery{})
	if err != nil || n != 3 {
		t.Fatalf("pattern count = %d, %v; want 3", n, err)
	}
	n, err = store.CountDocuments("nothing-*", model.CountQuery{})
	if err != nil || n != 0 {
		t.Fatalf("unmatched pattern count = %d, %v; want 0", n, err)
	}
}

func TestDeleteDataStream_RemovesDocuments(t *testing.T) {
	store := newTestStore(t)
	putSyslogTemplate(t, store)
	store.InsertDocuments([]*model.Document{doc("logs-syslog-default", "x", time.Now())})

	deleted, err := store.DeleteDataStream("logs-syslog-default")
	if err != nil || !deleted {
		t.Fatalf("DeleteDataStream = %v, %v; want true", deleted, err)
	}
	deleted, err = store.DeleteDataStream("logs-syslog-default")
	if err != nil || deleted {
		t.Fatalf("second DeleteDataStream = %v, %v; want false", deleted, err)
	}

	// Recreated on the next write, empty apart from the new document.
	store.InsertDocuments([]*model.Document{doc("logs-syslog-default", "y", time.Now())})
	n, err := store.CountDocuments("logs-syslog-default", model.CountQuery{})
	if err != nil || n != 1 {
		t.Fatalf("CountDocuments after recreate = %d, %v; want 1", n, err)
	}
}

func TestIndexTemplates(t *testing.T) {
	store := newTestStore(t)
	putSyslogTemplate(t, store)
	err := store.PutIndexTemplate(model.IndexTemplateRecord{
		Name: "catch-all", IndexPatterns: []string{"*"}, Priority: 1, Body: []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("PutIndexTemplate: %v", err)
	}

	tmpl, ok, err := store.MatchingTemplate("logs-syslog-default")
	if err != nil || !ok || tmpl.Name != "logs-syslog-template" {
		t.Fatalf("MatchingTemplate = %+v, %v, %v; want logs-syslog-template", tmpl, ok, err)
	}
	tmpl, ok, _ = store.MatchingTemplate("metrics-x")
	if !ok || tmpl.Name != "catch-all" {
		t.Fatalf("MatchingTemplate(metrics-x) = %+v, %v; want catch-all", tmpl, ok)
	}

	got, ok, err := store.IndexTemplate("logs-syslog-template")
	if err != nil || !ok || got.Priority != 500 || len(got.IndexPatterns) != 1 {
		t.Fatalf("IndexTemplate = %+v, %v, %v", got, ok, err)
	}

	// Replace keeps a single row.
	putSyslogTemplate(t, store)
	deleted, err := store.DeleteIndexTemplate("logs-syslog-template")
	if err != nil || !deleted {
		t.Fatalf("DeleteIndexTemplate = %v, %v; want true", deleted, err)
	}
	if _, ok, _ := store.IndexTemplate("logs-syslog-template"); ok {
		t.Fatal("template still present after delete")
	}
}
