package transcript

import (
	"strings"
	"unicode"

	"hermes/internal/chat"
	"hermes/internal/tokens"
)

// Watermarks tracks, per mode, how much of the transcript that mode has
// already incorporated into its own model context. Cursors only move forward.
type Watermarks struct {
	store *Store
	marks map[Mode]int
}

func NewWatermarks(store *Store) *Watermarks {
	return &Watermarks{
		store: store,
		marks: map[Mode]int{ModeVoice: 0, ModeText: 0},
	}
}

// Mark returns the current cursor for mode.
func (w *Watermarks) Mark(mode Mode) int {
	return w.marks[mode]
}

// ComputeDelta returns the entries after from that matter for cross-mode
// context: completed user/model turns with text, plus mode-switch markers.
// Other system and tool chatter is excluded.
func (w *Watermarks) ComputeDelta(from int) []chat.Entry {
	var out []chat.Entry
	for _, e := range w.store.Slice(from) {
		if includeInDelta(e) {
			out = append(out, e)
		}
	}
	return out
}

// DeltaFor computes the unseen delta for mode from its own cursor.
func (w *Watermarks) DeltaFor(mode Mode) []chat.Entry {
	return w.ComputeDelta(w.marks[mode])
}

// AdvanceToCurrent moves the cursor for mode to the transcript length read
// now, not to from+len(delta): entries appended during the handoff stay
// unseen for the next computation only if they arrive after this call.
func (w *Watermarks) AdvanceToCurrent(mode Mode) {
	length := w.store.Len()
	if length > w.marks[mode] {
		w.marks[mode] = length
	}
}

func includeInDelta(e chat.Entry) bool {
	switch e.Role {
	case chat.RoleUser, chat.RoleModel:
		return e.IsComplete && strings.TrimSpace(e.Text) != ""
	case chat.RoleSystem:
		return e.IsMarker(chat.ToolModeSwitch)
	default:
		return false
	}
}

// FormatDeltaForInjection serializes a delta into one control-character-free
// line for inclusion in a system prompt. When a tokenizer and a positive
// budget are given, the oldest entries are dropped until the line fits.
func FormatDeltaForInjection(delta []chat.Entry, tk *tokens.Tokenizer, tokenBudget int) string {
	if len(delta) == 0 {
		return ""
	}
	line := renderDeltaLine(delta)
	if tk == nil || tokenBudget <= 0 {
		return line
	}
	for len(delta) > 1 && tk.CountText(line) > tokenBudget {
		delta = delta[1:]
		line = renderDeltaLine(delta)
	}
	return line
}

func renderDeltaLine(delta []chat.Entry) string {
	parts := make([]string, 0, len(delta))
	for _, e := range delta {
		text := sanitizeForPrompt(e.Text)
		if text == "" {
			continue
		}
		parts = append(parts, string(e.Role)+": "+text)
	}
	return strings.Join(parts, "; ")
}

// sanitizeForPrompt strips control characters and punctuation beyond basic
// sentence punctuation, then collapses whitespace runs to single spaces.
func sanitizeForPrompt(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			b.WriteRune(' ')
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ':
			b.WriteRune(r)
		case strings.ContainsRune(".,!?;:'-", r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
