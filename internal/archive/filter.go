package archive

import (
	"strings"

	"hermes/internal/chat"
)

// terse model acknowledgements carry no archival value
var modelAcks = map[string]struct{}{
	"done":   {},
	"done.":  {},
	"ok":     {},
	"ok.":    {},
	"okay":   {},
	"sure":   {},
	"got it": {},
}

// filterEntries drops the welcome banner, terse model acknowledgements and
// denylisted tool entries, and strips tool data from what survives: the
// archive stores conversational content, not execution traces.
func filterEntries(entries []chat.Entry, toolDenylist []string) []chat.Entry {
	denied := make(map[string]struct{}, len(toolDenylist))
	for _, name := range toolDenylist {
		denied[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	out := make([]chat.Entry, 0, len(entries))
	for _, e := range entries {
		if e.IsMarker(chat.ToolWelcome) {
			continue
		}
		if e.Role == chat.RoleModel {
			if _, ack := modelAcks[strings.ToLower(strings.TrimSpace(e.Text))]; ack {
				continue
			}
		}
		if e.ToolData != nil {
			if _, skip := denied[strings.ToLower(e.ToolData.Tool)]; skip {
				continue
			}
		}
		e.ToolData = pickRenderableToolData(e.ToolData)
		out = append(out, e)
	}
	return out
}

// pickRenderableToolData keeps only the fields the markdown renderer needs
// (rename paths, tool name for templates); execution details are dropped.
func pickRenderableToolData(data *chat.ToolData) *chat.ToolData {
	if data == nil {
		return nil
	}
	kept := &chat.ToolData{Tool: data.Tool, Status: data.Status}
	if data.Tool == chat.ToolRenameFile {
		kept.OldPath = data.OldPath
		kept.NewPath = data.NewPath
	}
	return kept
}

// substantiveCount returns how many user/model entries carry non-empty text
// and their combined text length.
func substantiveCount(entries []chat.Entry) (count, totalLen int) {
	for _, e := range entries {
		if e.Role != chat.RoleUser && e.Role != chat.RoleModel {
			continue
		}
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		count++
		totalLen += len(text)
	}
	return count, totalLen
}
