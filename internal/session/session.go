package session

import (
	"context"
	"time"

	"hermes/internal/archive"
	"hermes/internal/chat"
	"hermes/internal/provider"
	"hermes/internal/tokens"
	"hermes/internal/tools"
	"hermes/internal/transcript"

	"go.uber.org/zap"
)

// Notices are the coordinator's user-facing callbacks. All are optional; a nil
// callback is skipped. The UI layer owns last-mile presentation.
type Notices struct {
	// OnUsage receives token usage after every model turn, not only the last.
	OnUsage func(u provider.Usage)
	// OnRetry fires before each retry of a failed model call.
	OnRetry func(attempt, max int)
	// OnToolEvent reports a tool invocation finishing (ok=false on error).
	OnToolEvent func(name, summary string, ok bool)
	// OnNotice carries user-visible messages: archive failures, handoffs.
	OnNotice func(text string)
}

// Options are the runtime knobs resolved once at session start and threaded
// explicitly; there is no ambient configuration lookup.
type Options struct {
	SystemInstruction string
	MaxSteps          int
	RetryAttempts     int
	RetryDelay        time.Duration
	DeltaTokenBudget  int
}

const (
	defaultMaxSteps   = 32
	defaultRetryDelay = time.Second
)

func (o Options) withDefaults() Options {
	if o.MaxSteps <= 0 {
		o.MaxSteps = defaultMaxSteps
	}
	if o.RetryAttempts < 0 {
		o.RetryAttempts = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	return o
}

// Deps are the coordinator's collaborators.
type Deps struct {
	Store     *transcript.Store
	Marks     *transcript.Watermarks
	Pipeline  *archive.Pipeline
	Provider  provider.Provider
	Registry  *tools.Registry
	Tokenizer *tokens.Tokenizer
	Log       *zap.Logger
}

// Coordinator owns the active session: the shared transcript, the per-mode
// watermarks and model histories, the current topic id, and the tool-calling
// loop. It is single-threaded by contract; callers serialize access.
type Coordinator struct {
	store    *transcript.Store
	marks    *transcript.Watermarks
	pipeline *archive.Pipeline
	prov     provider.Provider
	registry *tools.Registry
	tk       *tokens.Tokenizer
	log      *zap.Logger
	opts     Options
	notices  Notices

	mode       transcript.Mode
	topicID    string
	histories  map[transcript.Mode][]chat.Message
	injections map[transcript.Mode]string
}

func New(deps Deps, opts Options, notices Notices) *Coordinator {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		store:      deps.Store,
		marks:      deps.Marks,
		pipeline:   deps.Pipeline,
		prov:       deps.Provider,
		registry:   deps.Registry,
		tk:         deps.Tokenizer,
		log:        log,
		opts:       opts.withDefaults(),
		notices:    notices,
		histories:  make(map[transcript.Mode][]chat.Message),
		injections: make(map[transcript.Mode]string),
	}
}

// Start opens the session in the given mode: mints the first topic id and
// records the welcome banner. The banner never appears in archives or deltas.
func (c *Coordinator) Start(mode transcript.Mode) {
	c.mode = mode
	c.topicID = transcript.NewTopicID()
	c.store.AppendSystemMarker(c.topicID, chat.ToolWelcome, "Welcome back")
	c.log.Info("session started",
		zap.String("mode", string(mode)),
		zap.String("topic_id", c.topicID))
}

func (c *Coordinator) CurrentMode() transcript.Mode { return c.mode }
func (c *Coordinator) CurrentTopic() string         { return c.topicID }

// SwitchMode hands the conversation to the other front end. The target mode's
// unseen delta is computed from its watermark, formatted for injection into
// its next model request, and the watermark is advanced to the store length
// read now. The returned line is what will be injected (empty if nothing
// unseen).
func (c *Coordinator) SwitchMode(to transcript.Mode) string {
	if to == c.mode {
		return ""
	}
	c.store.AppendSystemMarker(c.topicID, chat.ToolModeSwitch, "switched to "+string(to)+" mode")

	delta := c.marks.DeltaFor(to)
	line := transcript.FormatDeltaForInjection(delta, c.tk, c.opts.DeltaTokenBudget)
	c.marks.AdvanceToCurrent(to)
	if line != "" {
		c.injections[to] = line
	}
	c.mode = to
	c.log.Debug("mode switched",
		zap.String("mode", string(to)),
		zap.Int("delta_entries", len(delta)))
	return line
}

// SwitchTopic records an explicit topic boundary and archives the finished
// topic. Entries appended after this call carry the new topic id.
func (c *Coordinator) SwitchTopic(ctx context.Context) archive.Result {
	c.store.AppendSystemMarker(c.topicID, chat.ToolTopicSwitch, "topic switch")
	return c.archiveBoundary(ctx)
}

// archiveBoundary runs boundary detection against the store and, when a
// boundary fired, archives the old topic's slice and reassigns the current
// topic id. A transcript whose newest entry is not a topic-switch marker is a
// no-op.
func (c *Coordinator) archiveBoundary(ctx context.Context) archive.Result {
	boundary, ok := transcript.DetectBoundary(c.store, c.topicID)
	if !ok {
		return archive.Result{OK: true, Skipped: true, Message: "no boundary"}
	}
	c.topicID = boundary.NewTopicID
	res := c.pipeline.Archive(ctx, boundary.OldTopicID, boundary.Entries)
	c.reportArchive(res)
	return res
}

// EndSession archives whatever the current topic holds. Triggering is
// at-least-once across topic switches and session end; the pipeline's dedup
// makes the effect at-most-once.
func (c *Coordinator) EndSession(ctx context.Context) archive.Result {
	var slice []chat.Entry
	for _, e := range c.store.EntriesForTopic(c.topicID) {
		if e.IsMarker(chat.ToolWelcome) || e.IsMarker(chat.ToolTopicSwitch) {
			continue
		}
		slice = append(slice, e)
	}
	res := c.pipeline.Archive(ctx, c.topicID, slice)
	c.reportArchive(res)
	return res
}

func (c *Coordinator) reportArchive(res archive.Result) {
	if res.OK {
		return
	}
	// Persistence failures need a user-visible notice; skips do not.
	if c.notices.OnNotice != nil {
		c.notices.OnNotice("archive failed: " + res.Message)
	}
}
