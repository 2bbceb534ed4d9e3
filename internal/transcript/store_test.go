package transcript

import (
	"testing"

	"hermes/internal/chat"
)

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	s := NewStore()
	id := s.Append(chat.Entry{Role: chat.RoleUser, Text: "hello", IsComplete: true, TopicID: "t1"})
	if id == "" {
		t.Fatal("expected generated entry id")
	}
	last, ok := s.Last()
	if !ok {
		t.Fatal("expected entry")
	}
	if last.ID != id || last.Timestamp.IsZero() {
		t.Fatalf("entry not normalized: %+v", last)
	}
}

func TestStreamingUpdateInPlace(t *testing.T) {
	s := NewStore()
	id1 := s.AppendOrUpdateStreaming(ModeVoice, chat.RoleModel, "par", false, "t1")
	id2 := s.AppendOrUpdateStreaming(ModeVoice, chat.RoleModel, "partial gro", false, "t1")
	if id1 != id2 {
		t.Fatalf("streaming update appended a new entry: %s vs %s", id1, id2)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", s.Len())
	}
	id3 := s.AppendOrUpdateStreaming(ModeVoice, chat.RoleModel, "partial grown complete", true, "t1")
	if id3 != id1 {
		t.Fatal("completion must update the same entry")
	}
	last, _ := s.Last()
	if !last.IsComplete || last.Text != "partial grown complete" {
		t.Fatalf("completion not applied: %+v", last)
	}
	if s.IncompleteCount() != 0 {
		t.Fatalf("expected no open partials, got %d", s.IncompleteCount())
	}

	// A fresh append after completion starts a new entry.
	id4 := s.AppendOrUpdateStreaming(ModeVoice, chat.RoleModel, "next", true, "t1")
	if id4 == id1 || s.Len() != 2 {
		t.Fatal("post-completion append must create a new entry")
	}
}

func TestStreamingIsolatedPerModeAndRole(t *testing.T) {
	s := NewStore()
	voiceID := s.AppendOrUpdateStreaming(ModeVoice, chat.RoleModel, "v", false, "t1")
	textID := s.AppendOrUpdateStreaming(ModeText, chat.RoleModel, "t", false, "t1")
	userID := s.AppendOrUpdateStreaming(ModeVoice, chat.RoleUser, "u", false, "t1")
	if voiceID == textID || voiceID == userID || textID == userID {
		t.Fatal("partials must be tracked per (mode, role)")
	}
	if s.IncompleteCount() != 3 {
		t.Fatalf("expected 3 open partials, got %d", s.IncompleteCount())
	}
}

func TestResolveToolUpdatesPendingEntry(t *testing.T) {
	s := NewStore()
	s.AppendToolPending("t1", "searching files", chat.ToolData{CallID: "call-1", Tool: "file_search"})
	before := s.Len()

	if !s.ResolveTool("call-1", chat.ToolError, "disk full") {
		t.Fatal("expected pending entry to resolve")
	}
	if s.Len() != before {
		t.Fatal("resolution must not append a duplicate entry")
	}
	last, _ := s.Last()
	if last.ToolData == nil || last.ToolData.Status != chat.ToolError || last.ToolData.Error != "disk full" {
		t.Fatalf("tool data not updated: %+v", last.ToolData)
	}
}

func TestResolveToolUnknownCallID(t *testing.T) {
	s := NewStore()
	if s.ResolveTool("missing", chat.ToolSuccess, "") {
		t.Fatal("unknown call id must not resolve")
	}
}

func TestEntriesForTopic(t *testing.T) {
	s := NewStore()
	s.Append(chat.Entry{Role: chat.RoleUser, Text: "a", IsComplete: true, TopicID: "t1"})
	s.Append(chat.Entry{Role: chat.RoleUser, Text: "b", IsComplete: true, TopicID: "t2"})
	s.Append(chat.Entry{Role: chat.RoleModel, Text: "c", IsComplete: true, TopicID: "t1"})
	got := s.EntriesForTopic("t1")
	if len(got) != 2 || got[0].Text != "a" || got[1].Text != "c" {
		t.Fatalf("unexpected topic slice: %+v", got)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := NewStore()
	s.Append(chat.Entry{Role: chat.RoleUser, Text: "a", IsComplete: true, TopicID: "t1"})
	snap := s.Snapshot()
	s.Append(chat.Entry{Role: chat.RoleUser, Text: "b", IsComplete: true, TopicID: "t1"})
	if len(snap) != 1 {
		t.Fatalf("snapshot must not grow with the store, got %d", len(snap))
	}
}

func TestGetByID(t *testing.T) {
	s := NewStore()
	id := s.Append(chat.Entry{Role: chat.RoleUser, Text: "a", IsComplete: true, TopicID: "t1"})
	e, ok := s.Get(id)
	if !ok || e.Text != "a" {
		t.Fatalf("Get(%q) = %+v ok=%v", id, e, ok)
	}
	if _, ok := s.Get("missing"); ok {
		t.Fatal("unknown id must report false")
	}
}

func TestSnapshotToolDataDetached(t *testing.T) {
	s := NewStore()
	s.AppendToolPending("t1", "searching files", chat.ToolData{CallID: "call-1", Tool: "file_search"})
	snap := s.Snapshot()
	topic := s.EntriesForTopic("t1")

	if !s.ResolveTool("call-1", chat.ToolSuccess, "") {
		t.Fatal("resolve failed")
	}

	if got := snap[0].ToolData.Status; got != chat.ToolPending {
		t.Fatalf("snapshot entry mutated by ResolveTool: status %q", got)
	}
	if got := topic[0].ToolData.Status; got != chat.ToolPending {
		t.Fatalf("topic slice entry mutated by ResolveTool: status %q", got)
	}
	last, _ := s.Last()
	if last.ToolData.Status != chat.ToolSuccess {
		t.Fatalf("store entry not resolved: %+v", last.ToolData)
	}
}
