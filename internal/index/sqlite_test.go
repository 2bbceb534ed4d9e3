package index

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hermes/internal/chat"
)

func newTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "archives.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func sampleRecord(key, topicID string) Record {
	return Record{
		Key:               key,
		TopicID:           topicID,
		Title:             "Japan Trip",
		Tags:              []string{"travel"},
		Summary:           "- discussed Japan trip",
		SuggestedFilename: "japan-trip-planning",
		Filename:          "chats/2026-08-31-01-japan-trip-planning.md",
		ArchivedAt:        time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC),
		Conversation: []chat.Entry{
			{ID: "e1", Role: chat.RoleUser, Text: "Plan my trip to Japan", IsComplete: true, TopicID: topicID},
		},
	}
}

func TestAddAndLoadRoundTrip(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.Add(sampleRecord("k1", "topic-1")); err != nil {
		t.Fatal(err)
	}
	records, err := idx.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.TopicID != "topic-1" || rec.Title != "Japan Trip" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(rec.Tags) != 1 || rec.Tags[0] != "travel" {
		t.Fatalf("tags lost: %v", rec.Tags)
	}
	if len(rec.Conversation) != 1 || rec.Conversation[0].Text != "Plan my trip to Japan" {
		t.Fatalf("conversation lost: %+v", rec.Conversation)
	}
}

func TestDuplicateTopicRejected(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.Add(sampleRecord("k1", "topic-1")); err != nil {
		t.Fatal(err)
	}
	err := idx.Add(sampleRecord("k2", "topic-1"))
	if !errors.Is(err, ErrDuplicateTopic) {
		t.Fatalf("expected ErrDuplicateTopic, got %v", err)
	}
}

func TestHasTopic(t *testing.T) {
	idx := newTestIndex(t)
	ok, err := idx.HasTopic("topic-1")
	if err != nil || ok {
		t.Fatalf("fresh index should not have topic: ok=%v err=%v", ok, err)
	}
	if err := idx.Add(sampleRecord("k1", "topic-1")); err != nil {
		t.Fatal(err)
	}
	ok, err = idx.HasTopic("topic-1")
	if err != nil || !ok {
		t.Fatalf("expected topic present: ok=%v err=%v", ok, err)
	}
}

func TestImportJSON(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.Add(sampleRecord("k1", "topic-1")); err != nil {
		t.Fatal(err)
	}

	legacy := []Record{sampleRecord("k1", "topic-1"), sampleRecord("k2", "topic-2")}
	data, err := json.Marshal(legacy)
	if err != nil {
		t.Fatal(err)
	}
	legacyPath := filepath.Join(t.TempDir(), "index.json")
	if err := os.WriteFile(legacyPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	imported, err := ImportJSON(legacyPath, idx)
	if err != nil {
		t.Fatal(err)
	}
	if imported != 1 {
		t.Fatalf("expected 1 new import (topic-1 already present), got %d", imported)
	}
}

func TestImportJSONMissingFile(t *testing.T) {
	idx := newTestIndex(t)
	imported, err := ImportJSON(filepath.Join(t.TempDir(), "absent.json"), idx)
	if err != nil || imported != 0 {
		t.Fatalf("missing legacy file must be a no-op: n=%d err=%v", imported, err)
	}
}
