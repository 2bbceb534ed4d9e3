package archive

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"hermes/internal/chat"
	"hermes/internal/index"
	"hermes/internal/provider"
	"hermes/internal/vault"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config carries the archival settings resolved once at session start.
type Config struct {
	// Folder is the vault directory archive files are written into.
	Folder string
	// MinEntries and MinContentChars gate near-empty exchanges.
	MinEntries      int
	MinContentChars int
	// ToolDenylist names verbose/low-signal tools dropped from archives.
	ToolDenylist []string
	// MetadataModel overrides the provider's current model for metadata calls.
	MetadataModel string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Folder) == "" {
		c.Folder = "chats"
	}
	if c.MinEntries <= 0 {
		c.MinEntries = 2
	}
	if c.MinContentChars <= 0 {
		c.MinContentChars = 20
	}
	return c
}

// Result reports one archival attempt. Skips (already archived, not enough
// content, model said don't save) are successes, distinguishable from
// persistence failures by OK/Skipped.
type Result struct {
	OK               bool
	Skipped          bool
	NotEnoughContent bool
	Filename         string
	Key              string
	Message          string
	Err              error
}

func skipResult(notEnough bool, message string) Result {
	return Result{OK: true, Skipped: true, NotEnoughContent: notEnough, Message: message}
}

func failResult(message string, err error) Result {
	return Result{Message: message, Err: err}
}

// Pipeline archives finished topics: filter, render, describe via the model,
// dedup by topic id, persist a vault file plus an index record.
type Pipeline struct {
	storage  vault.Storage
	idx      index.Index
	provider provider.Provider
	cfg      Config
	log      *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewPipeline(storage vault.Storage, idx index.Index, p provider.Provider, cfg Config, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		storage:  storage,
		idx:      idx,
		provider: p,
		cfg:      cfg.withDefaults(),
		log:      log,
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
}

// Archive runs the pipeline for one topic slice. Triggering is at-least-once
// (topic switch and session end can both fire for the same topic); the dedup
// check plus a per-topic single-flight guard make the effect at-most-once.
func (p *Pipeline) Archive(ctx context.Context, topicID string, entries []chat.Entry) Result {
	topicID = strings.TrimSpace(topicID)
	if topicID == "" {
		return failResult("archive topic id is empty", fmt.Errorf("empty topic id"))
	}

	if !p.acquire(topicID) {
		p.log.Debug("archive already in flight", zap.String("topic", topicID))
		return skipResult(false, "archival already in progress for this topic")
	}
	defer p.release(topicID)

	// Step 1: dedup check against the persisted index.
	archived, err := p.idx.HasTopic(topicID)
	if err != nil {
		return failResult("archive index lookup failed", err)
	}
	if archived {
		p.log.Debug("topic already archived", zap.String("topic", topicID))
		return skipResult(false, "topic already archived")
	}

	// Step 2: filter conversational content.
	filtered := filterEntries(entries, p.cfg.ToolDenylist)

	// Step 3: content-sufficiency gate, before any model call or storage.
	count, total := substantiveCount(filtered)
	if count < p.cfg.MinEntries || total <= p.cfg.MinContentChars {
		p.log.Debug("not enough content to archive",
			zap.String("topic", topicID),
			zap.Int("entries", count),
			zap.Int("chars", total))
		return skipResult(true, "not enough content to archive")
	}

	// Step 4: markdown rendering.
	body := renderMarkdown(filtered)

	// Step 5: metadata generation (never a pipeline failure).
	meta := generateMetadata(ctx, p.provider, p.cfg.MetadataModel, filtered)

	// Step 6: save gate.
	if !meta.ShouldSave {
		p.log.Debug("model declined to save", zap.String("topic", topicID))
		return skipResult(true, "model judged the conversation not worth saving")
	}

	// Step 7: filename and persistence.
	if err := p.storage.CreateDirectory(p.cfg.Folder); err != nil {
		p.log.Error("create archive folder failed", zap.String("topic", topicID), zap.Error(err))
		return failResult("could not create the archive folder", err)
	}
	existing, err := p.storage.ListFiles()
	if err != nil {
		p.log.Error("list vault files failed", zap.String("topic", topicID), zap.Error(err))
		return failResult("could not scan existing archives", err)
	}

	slug := Slug(meta.SuggestedFilename)
	filename := nextArchiveName(p.cfg.Folder, p.now(), existing, slug)

	start, end := timeBounds(filtered)
	content, err := renderArchiveFile(meta, topicID, start, end, body)
	if err != nil {
		return failResult("could not render the archive file", err)
	}

	if err := p.storage.CreateFile(filename, content); err != nil {
		p.log.Error("vault write failed",
			zap.String("topic", topicID),
			zap.String("filename", filename),
			zap.Error(err))
		return failResult("could not write the archive file", err)
	}

	rec := index.Record{
		Key:               uuid.NewString(),
		TopicID:           topicID,
		Title:             meta.Title,
		Tags:              meta.Tags,
		Summary:           meta.Summary,
		SuggestedFilename: meta.SuggestedFilename,
		Filename:          filename,
		ArchivedAt:        p.now().UTC(),
		Conversation:      filtered,
	}
	if err := p.idx.Add(rec); err != nil {
		p.log.Error("index write failed", zap.String("topic", topicID), zap.Error(err))
		return failResult("could not record the archive in the index", err)
	}

	p.log.Info("topic archived",
		zap.String("topic", topicID),
		zap.String("filename", filename),
		zap.String("title", meta.Title))
	return Result{OK: true, Filename: filename, Key: rec.Key, Message: "archived " + filename}
}

func (p *Pipeline) acquire(topicID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[topicID]; busy {
		return false
	}
	p.inflight[topicID] = struct{}{}
	return true
}

func (p *Pipeline) release(topicID string) {
	p.mu.Lock()
	delete(p.inflight, topicID)
	p.mu.Unlock()
}

func timeBounds(entries []chat.Entry) (start, end time.Time) {
	for _, e := range entries {
		if e.Timestamp.IsZero() {
			continue
		}
		if start.IsZero() || e.Timestamp.Before(start) {
			start = e.Timestamp
		}
		if e.Timestamp.After(end) {
			end = e.Timestamp
		}
	}
	return start, end
}
