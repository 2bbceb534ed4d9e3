package tools

import (
	"context"
	"encoding/json"

	"hermes/internal/chat"
)

// Callbacks is handed to a tool for the duration of one invocation. Tools use
// it to report progress without touching the transcript directly.
type Callbacks struct {
	// OnLog reports a low-level progress line.
	OnLog func(line string)
	// OnSystem surfaces a chat-visible system entry with structured tool data.
	OnSystem func(text string, data chat.ToolData)
	// OnFileState reports the vault folder/note a tool is operating on.
	OnFileState func(folder, note string)
}

// Tool is one registered capability the model can invoke by name.
type Tool interface {
	Name() string
	Definition() chat.ToolDef
	Execute(ctx context.Context, args json.RawMessage, cb Callbacks) (string, error)
}
