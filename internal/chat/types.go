package chat

import "time"

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// ToolStatus is the lifecycle state of a tool invocation shown in the transcript.
type ToolStatus string

const (
	ToolPending       ToolStatus = "pending"
	ToolSuccess       ToolStatus = "success"
	ToolError         ToolStatus = "error"
	ToolSearchResults ToolStatus = "search_results"
)

// Well-known tool names carried by system marker entries. The coordinator
// reacts to these; they are never sent to the model as tool definitions.
const (
	ToolTopicSwitch = "switch_topic"
	ToolModeSwitch  = "switch_mode"
	ToolWelcome     = "welcome"
	ToolRenameFile  = "rename_file"
)

// ToolData tracks one tool invocation surfaced as a system entry. A pending
// record is appended when the call starts and replaced in place (located by
// CallID) when the call resolves; this is the only entry mutation besides
// streaming completion.
type ToolData struct {
	CallID   string     `json:"call_id,omitempty"`
	Tool     string     `json:"tool"`
	Filename string     `json:"filename,omitempty"`
	Status   ToolStatus `json:"status"`
	Error    string     `json:"error,omitempty"`
	OldPath  string     `json:"old_path,omitempty"`
	NewPath  string     `json:"new_path,omitempty"`
	Results  []string   `json:"results,omitempty"`
}

// Entry is one transcript entry. TopicID is immutable once assigned.
type Entry struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Text       string    `json:"text"`
	IsComplete bool      `json:"is_complete"`
	Timestamp  time.Time `json:"timestamp"`
	TopicID    string    `json:"topic_id"`
	ToolData   *ToolData `json:"tool_data,omitempty"`
}

// IsMarker reports whether the entry is a system marker for the given tool name.
func (e Entry) IsMarker(tool string) bool {
	return e.Role == RoleSystem && e.ToolData != nil && e.ToolData.Tool == tool
}

// ToolFunction describes an OpenAI-compatible function tool definition.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolDef describes one function tool exposed to the model.
type ToolDef struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolCallFunction is the function payload of a model tool call.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is an OpenAI-compatible tool call requested by the model.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// Message is an OpenAI-compatible chat message.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}
