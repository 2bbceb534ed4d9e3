package transcript

import (
	"hermes/internal/chat"

	"github.com/google/uuid"
)

// NewTopicID mints an opaque topic identifier. One is minted at session start
// and again at every detected topic boundary.
func NewTopicID() string {
	return uuid.NewString()
}

// Boundary is a detected topic switch: everything assigned to OldTopicID
// (minus the welcome banner and the marker itself) is ready for archival, and
// entries produced from now on belong to NewTopicID.
type Boundary struct {
	OldTopicID string
	NewTopicID string
	Entries    []chat.Entry
}

// DetectBoundary fires when the most recently appended entry is a
// topic-switch marker. It is a declarative check over the store, not a
// polling state machine: the caller invokes it after each append, and once
// the topic id has been reassigned a later append means the marker is no
// longer the newest entry, so the same marker cannot fire twice.
func DetectBoundary(store *Store, currentTopicID string) (Boundary, bool) {
	last, ok := store.Last()
	if !ok || !last.IsMarker(chat.ToolTopicSwitch) {
		return Boundary{}, false
	}

	oldID := last.TopicID
	if oldID == "" {
		oldID = currentTopicID
	}

	var slice []chat.Entry
	for _, e := range store.EntriesForTopic(oldID) {
		if e.IsMarker(chat.ToolWelcome) || e.IsMarker(chat.ToolTopicSwitch) {
			continue
		}
		slice = append(slice, e)
	}

	return Boundary{
		OldTopicID: oldID,
		NewTopicID: NewTopicID(),
		Entries:    slice,
	}, true
}
