package transcript

import (
	"strings"
	"sync"
	"time"

	"hermes/internal/chat"

	"github.com/google/uuid"
)

// Mode is a chat front end. Voice and text share one logical conversation.
type Mode string

const (
	ModeVoice Mode = "voice"
	ModeText  Mode = "text"
)

type streamKey struct {
	mode Mode
	role chat.Role
}

// Store holds the ordered transcript of the active session. Entries are
// append-only except for two in-place updates: completing a streaming partial
// and resolving a pending tool invocation. Index maps keep both updates O(1)
// instead of scanning the entry slice.
type Store struct {
	mu        sync.Mutex
	entries   []chat.Entry
	byID      map[string]int
	streaming map[streamKey]string
	byCallID  map[string]string
	now       func() time.Time
}

func NewStore() *Store {
	return &Store{
		byID:      make(map[string]int),
		streaming: make(map[streamKey]string),
		byCallID:  make(map[string]string),
		now:       time.Now,
	}
}

// Append adds a complete entry and returns its id. An empty id is assigned.
func (s *Store) Append(e chat.Entry) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(e)
}

func (s *Store) appendLocked(e chat.Entry) string {
	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	s.byID[e.ID] = len(s.entries)
	if e.ToolData != nil && e.ToolData.CallID != "" {
		s.byCallID[e.ToolData.CallID] = e.ID
	}
	s.entries = append(s.entries, e)
	return e.ID
}

// AppendOrUpdateStreaming appends a new entry for (mode, role) or, if that
// pair already has an incomplete entry, replaces its text in place. At most
// one incomplete entry per role per mode exists at any time; completing it is
// an update, never an append.
func (s *Store) AppendOrUpdateStreaming(mode Mode, role chat.Role, text string, isComplete bool, topicID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey{mode: mode, role: role}
	if id, ok := s.streaming[key]; ok {
		idx := s.byID[id]
		s.entries[idx].Text = text
		s.entries[idx].IsComplete = isComplete
		if isComplete {
			delete(s.streaming, key)
		}
		return id
	}

	id := s.appendLocked(chat.Entry{
		Role:       role,
		Text:       text,
		IsComplete: isComplete,
		TopicID:    topicID,
	})
	if !isComplete {
		s.streaming[key] = id
	}
	return id
}

// AppendToolPending appends a system entry tracking a tool invocation that has
// just started. The returned entry is located by its call id later.
func (s *Store) AppendToolPending(topicID, text string, data chat.ToolData) string {
	data.Status = chat.ToolPending
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(chat.Entry{
		Role:       chat.RoleSystem,
		Text:       text,
		IsComplete: true,
		TopicID:    topicID,
		ToolData:   &data,
	})
}

// ResolveTool transitions the pending entry for callID to success or error in
// place. It never appends a duplicate; unknown call ids report false.
func (s *Store) ResolveTool(callID string, status chat.ToolStatus, errText string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byCallID[callID]
	if !ok {
		return false
	}
	idx := s.byID[id]
	data := s.entries[idx].ToolData
	if data == nil {
		return false
	}
	data.Status = status
	data.Error = errText
	return true
}

// AppendSystemMarker appends a system entry carrying a marker tool name
// (topic switch, mode switch, welcome banner).
func (s *Store) AppendSystemMarker(topicID, tool, text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(chat.Entry{
		Role:       chat.RoleSystem,
		Text:       text,
		IsComplete: true,
		TopicID:    topicID,
		ToolData:   &chat.ToolData{Tool: tool, Status: chat.ToolSuccess},
	})
}

// Len returns the current transcript length. Callers advancing a watermark
// must read this immediately before the advance, not a cached value.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot copies the entries at call time. The store can grow while a
// multi-step pipeline runs; pipelines operate on the snapshot only.
func (s *Store) Snapshot() []chat.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyRangeLocked(0, len(s.entries))
}

// Slice copies entries[from:] at call time.
func (s *Store) Slice(from int) []chat.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if from < 0 {
		from = 0
	}
	if from > len(s.entries) {
		from = len(s.entries)
	}
	return s.copyRangeLocked(from, len(s.entries))
}

func (s *Store) copyRangeLocked(from, to int) []chat.Entry {
	out := make([]chat.Entry, to-from)
	copy(out, s.entries[from:to])
	for i := range out {
		out[i].ToolData = cloneToolData(out[i].ToolData)
	}
	return out
}

// cloneToolData detaches an entry copy from the store: ResolveTool mutates
// the stored ToolData in place, and handed-out slices must not see that.
func cloneToolData(d *chat.ToolData) *chat.ToolData {
	if d == nil {
		return nil
	}
	c := *d
	if d.Results != nil {
		c.Results = append([]string(nil), d.Results...)
	}
	return &c
}

// Get returns the entry with the given id.
func (s *Store) Get(id string) (chat.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok {
		return chat.Entry{}, false
	}
	e := s.entries[idx]
	e.ToolData = cloneToolData(e.ToolData)
	return e, true
}

// Last returns the most recently appended entry.
func (s *Store) Last() (chat.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return chat.Entry{}, false
	}
	e := s.entries[len(s.entries)-1]
	e.ToolData = cloneToolData(e.ToolData)
	return e, true
}

// EntriesForTopic copies all entries assigned to topicID.
func (s *Store) EntriesForTopic(topicID string) []chat.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []chat.Entry
	for _, e := range s.entries {
		if e.TopicID == topicID {
			e.ToolData = cloneToolData(e.ToolData)
			out = append(out, e)
		}
	}
	return out
}

// IncompleteCount reports how many streaming partials are open (test hook for
// the one-incomplete-per-role-per-mode invariant).
func (s *Store) IncompleteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streaming)
}
