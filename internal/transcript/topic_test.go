package transcript

import (
	"testing"

	"hermes/internal/chat"
)

func TestDetectBoundaryFiresOnMarker(t *testing.T) {
	s := NewStore()
	s.AppendSystemMarker("t1", chat.ToolWelcome, "welcome")
	s.Append(chat.Entry{Role: chat.RoleUser, Text: "about go", IsComplete: true, TopicID: "t1"})
	s.Append(chat.Entry{Role: chat.RoleModel, Text: "go is a language", IsComplete: true, TopicID: "t1"})
	s.AppendSystemMarker("t1", chat.ToolTopicSwitch, "topic switch")

	b, ok := DetectBoundary(s, "t1")
	if !ok {
		t.Fatal("expected boundary to fire")
	}
	if b.OldTopicID != "t1" {
		t.Fatalf("old topic = %q, want t1", b.OldTopicID)
	}
	if b.NewTopicID == "" || b.NewTopicID == "t1" {
		t.Fatalf("new topic id not minted: %q", b.NewTopicID)
	}
	if len(b.Entries) != 2 {
		t.Fatalf("archival slice must exclude welcome and marker, got %d entries", len(b.Entries))
	}
}

func TestDetectBoundaryNoMarker(t *testing.T) {
	s := NewStore()
	s.Append(chat.Entry{Role: chat.RoleUser, Text: "hello", IsComplete: true, TopicID: "t1"})
	if _, ok := DetectBoundary(s, "t1"); ok {
		t.Fatal("must not fire when the last entry is not a topic-switch marker")
	}
}

func TestDetectBoundaryMarkerNotLast(t *testing.T) {
	s := NewStore()
	s.AppendSystemMarker("t1", chat.ToolTopicSwitch, "topic switch")
	s.Append(chat.Entry{Role: chat.RoleUser, Text: "new topic text", IsComplete: true, TopicID: "t2"})
	if _, ok := DetectBoundary(s, "t2"); ok {
		t.Fatal("a marker that is no longer the newest entry must not re-fire")
	}
}

func TestDetectBoundaryFallsBackToCurrentTopic(t *testing.T) {
	s := NewStore()
	s.Append(chat.Entry{Role: chat.RoleUser, Text: "text", IsComplete: true, TopicID: "cur"})
	s.AppendSystemMarker("", chat.ToolTopicSwitch, "topic switch")
	b, ok := DetectBoundary(s, "cur")
	if !ok || b.OldTopicID != "cur" {
		t.Fatalf("expected fallback to coordinator topic, got %+v ok=%v", b, ok)
	}
}

func TestNewTopicIDUnique(t *testing.T) {
	if NewTopicID() == NewTopicID() {
		t.Fatal("topic ids must be unique")
	}
}
