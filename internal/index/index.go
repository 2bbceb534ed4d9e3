package index

import (
	"errors"
	"time"

	"hermes/internal/chat"
)

// Record is one archived conversation. Created once by the archival
// pipeline's final step, never mutated afterwards.
type Record struct {
	Key               string       `json:"key"`
	TopicID           string       `json:"topic_id"`
	Title             string       `json:"title"`
	Tags              []string     `json:"tags"`
	Summary           string       `json:"summary"`
	SuggestedFilename string       `json:"suggested_filename"`
	Filename          string       `json:"filename"`
	ArchivedAt        time.Time    `json:"archived_at"`
	Conversation      []chat.Entry `json:"conversation"`
}

// ErrDuplicateTopic reports a violation of the one-archive-per-topic
// invariant at insert time.
var ErrDuplicateTopic = errors.New("topic already archived")

// Index is the single source of truth for archival dedup.
type Index interface {
	Load() ([]Record, error)
	Add(rec Record) error
	HasTopic(topicID string) (bool, error)
	Close() error
}
