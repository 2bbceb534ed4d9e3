package session

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"hermes/internal/archive"
	"hermes/internal/chat"
	"hermes/internal/index"
	"hermes/internal/provider"
	"hermes/internal/tokens"
	"hermes/internal/tools"
	"hermes/internal/transcript"
)

type memStorage struct {
	files map[string]string
	dirs  map[string]bool
	calls int
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string]string), dirs: make(map[string]bool)}
}

func (s *memStorage) CreateFile(path, content string) error {
	s.calls++
	s.files[path] = content
	return nil
}

func (s *memStorage) CreateDirectory(path string) error {
	s.calls++
	s.dirs[path] = true
	return nil
}

func (s *memStorage) ListFiles() ([]string, error) {
	s.calls++
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	return out, nil
}

type memArchiveIndex struct {
	records []index.Record
}

func (m *memArchiveIndex) Load() ([]index.Record, error) { return m.records, nil }

func (m *memArchiveIndex) Add(r index.Record) error {
	m.records = append(m.records, r)
	return nil
}

func (m *memArchiveIndex) HasTopic(topicID string) (bool, error) {
	for _, r := range m.records {
		if r.TopicID == topicID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memArchiveIndex) Close() error { return nil }

type sessionFixture struct {
	coord   *Coordinator
	prov    *scriptedProvider
	storage *memStorage
	idx     *memArchiveIndex
}

// newSessionFixture wires a coordinator against in-memory collaborators. The
// provider script is shared between the loop and metadata generation; an
// exhausted script makes metadata fall back to the deterministic heuristic,
// which still saves.
func newSessionFixture(t *testing.T, steps []chatStep, toolList ...tools.Tool) *sessionFixture {
	t.Helper()
	prov := &scriptedProvider{steps: steps}
	storage := newMemStorage()
	idx := &memArchiveIndex{}
	store := transcript.NewStore()
	pipeline := archive.NewPipeline(storage, idx, prov, archive.Config{Folder: "chats"}, nil)
	coord := New(Deps{
		Store:     store,
		Marks:     transcript.NewWatermarks(store),
		Pipeline:  pipeline,
		Provider:  prov,
		Registry:  tools.NewRegistry(toolList...),
		Tokenizer: tokens.NewTokenizer("cl100k_base"),
	}, Options{RetryAttempts: 0, RetryDelay: time.Millisecond}, Notices{})
	coord.Start(transcript.ModeVoice)
	return &sessionFixture{coord: coord, prov: prov, storage: storage, idx: idx}
}

func TestStartRecordsWelcomeBanner(t *testing.T) {
	f := newSessionFixture(t, nil)
	snap := f.coord.store.Snapshot()
	if len(snap) != 1 || !snap[0].IsMarker(chat.ToolWelcome) {
		t.Fatalf("expected a single welcome marker, got %+v", snap)
	}
	if delta := f.coord.marks.DeltaFor(transcript.ModeText); len(delta) != 0 {
		t.Fatalf("welcome banner leaked into the delta: %+v", delta)
	}
}

func TestSwitchModeInjectsDeltaOnce(t *testing.T) {
	f := newSessionFixture(t, []chatStep{
		textResp("Sure, when do you want to go?", provider.Usage{}),
		textResp("March works.", provider.Usage{}),
	})
	if _, err := f.coord.Send(context.Background(), "Plan my trip to Japan"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	line := f.coord.SwitchMode(transcript.ModeText)
	if !strings.Contains(line, "Plan my trip to Japan") {
		t.Fatalf("delta missing user turn: %q", line)
	}
	if strings.ContainsAny(line, "\n\t\r") {
		t.Fatalf("injected line contains control characters: %q", line)
	}
	if delta := f.coord.marks.DeltaFor(transcript.ModeText); len(delta) != 0 {
		t.Fatalf("watermark not advanced, residual delta: %+v", delta)
	}

	if _, err := f.coord.Send(context.Background(), "March"); err != nil {
		t.Fatalf("Send after switch: %v", err)
	}
	req := f.prov.requests[len(f.prov.requests)-1]
	var injected bool
	for _, m := range req.Messages {
		if m.Role == "system" && strings.Contains(m.Content, "Plan my trip to Japan") {
			injected = true
		}
	}
	if !injected {
		t.Fatal("handoff line not injected into the next model request")
	}

	// Switching back immediately must not re-inject the same entries.
	back := f.coord.SwitchMode(transcript.ModeVoice)
	if strings.Contains(back, "Plan my trip to Japan") {
		t.Fatalf("entry included in two deltas for the voice mode: %q", back)
	}
}

func TestSwitchModeSameModeNoOp(t *testing.T) {
	f := newSessionFixture(t, nil)
	before := f.coord.store.Len()
	if line := f.coord.SwitchMode(transcript.ModeVoice); line != "" {
		t.Fatalf("same-mode switch returned %q", line)
	}
	if f.coord.store.Len() != before {
		t.Fatal("same-mode switch appended a marker")
	}
}

func TestSwitchTopicArchivesAndReassigns(t *testing.T) {
	f := newSessionFixture(t, []chatStep{
		textResp("Sure, when do you want to go?", provider.Usage{}),
	})
	oldTopic := f.coord.CurrentTopic()
	if _, err := f.coord.Send(context.Background(), "Plan my trip to Japan"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	res := f.coord.SwitchTopic(context.Background())
	if !res.OK || res.Skipped {
		t.Fatalf("expected archival, got %+v", res)
	}
	if f.coord.CurrentTopic() == oldTopic {
		t.Fatal("topic id not reassigned after boundary")
	}
	if len(f.idx.records) != 1 || f.idx.records[0].TopicID != oldTopic {
		t.Fatalf("index records = %+v", f.idx.records)
	}
	if len(f.storage.files) != 1 {
		t.Fatalf("expected one archive file, got %v", f.storage.files)
	}
}

func TestNoBoundaryNoSideEffects(t *testing.T) {
	f := newSessionFixture(t, []chatStep{
		textResp("Sure.", provider.Usage{}),
	})
	if _, err := f.coord.Send(context.Background(), "hello there friend"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Newest entry is the model response, not a topic-switch marker.
	res := f.coord.archiveBoundary(context.Background())
	if !res.OK || !res.Skipped {
		t.Fatalf("expected no-op, got %+v", res)
	}
	if f.storage.calls != 0 {
		t.Fatalf("storage touched %d times on a non-boundary", f.storage.calls)
	}
	if len(f.idx.records) != 0 {
		t.Fatal("index written on a non-boundary")
	}
}

func TestEndSessionArchivesCurrentTopicOnce(t *testing.T) {
	f := newSessionFixture(t, []chatStep{
		textResp("Sure, when do you want to go?", provider.Usage{}),
	})
	if _, err := f.coord.Send(context.Background(), "Plan my trip to Japan"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	res := f.coord.EndSession(context.Background())
	if !res.OK || res.Skipped {
		t.Fatalf("expected archival, got %+v", res)
	}

	again := f.coord.EndSession(context.Background())
	if !again.OK || !again.Skipped {
		t.Fatalf("second end must dedup, got %+v", again)
	}
	if len(f.idx.records) != 1 {
		t.Fatalf("expected one record, got %d", len(f.idx.records))
	}
	if len(f.storage.files) != 1 {
		t.Fatalf("expected one file, got %v", f.storage.files)
	}
}

func TestToolEmittedTopicSwitchArchives(t *testing.T) {
	switchTool := &fakeTool{
		name: chat.ToolTopicSwitch,
		fn: func(_ context.Context, _ json.RawMessage, cb tools.Callbacks) (string, error) {
			cb.OnSystem("topic switch", chat.ToolData{Tool: chat.ToolTopicSwitch, Status: chat.ToolSuccess})
			return "switched", nil
		},
	}
	// The pipeline's metadata call consumes a script step between the tool
	// turn and the loop's final turn.
	f := newSessionFixture(t, []chatStep{
		textResp("Sure, when do you want to go?", provider.Usage{}),
		toolResp("call-1", chat.ToolTopicSwitch, `{}`),
		textResp(`{"title":"Japan Trip","tags":["travel"],"suggestedFilename":"japan-trip-planning","summary":"- trip","shouldSave":true}`, provider.Usage{}),
		textResp("Starting fresh.", provider.Usage{}),
	}, switchTool)
	oldTopic := f.coord.CurrentTopic()

	if _, err := f.coord.Send(context.Background(), "Plan my trip to Japan"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := f.coord.Send(context.Background(), "Let's talk about something else"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if f.coord.CurrentTopic() == oldTopic {
		t.Fatal("topic id not reassigned after tool-emitted marker")
	}
	if len(f.idx.records) != 1 || f.idx.records[0].TopicID != oldTopic {
		t.Fatalf("finished topic not archived: %+v", f.idx.records)
	}
	if len(f.storage.files) != 1 {
		t.Fatalf("expected one archive file, got %v", f.storage.files)
	}

	// Entries appended after the marker belong to the new topic.
	last, ok := f.coord.store.Last()
	if !ok || last.TopicID != f.coord.CurrentTopic() {
		t.Fatalf("post-boundary entry carries stale topic: %+v", last)
	}
}
