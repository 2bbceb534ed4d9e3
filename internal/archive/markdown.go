package archive

import (
	"fmt"
	"regexp"
	"strings"

	"hermes/internal/chat"
)

// bare file-like tokens become vault cross-reference links
var fileTokenRe = regexp.MustCompile(`(^|[\s(])([\w./-]+\.(?:md|pdf|png|jpg|jpeg|canvas))([\s).,!?]|$)`)

// renderMarkdown renders a filtered topic slice as the archive body.
// Consecutive same-role entries are grouped into one section: user text as
// plain paragraphs, model text as blockquotes, tool entries via fixed
// templates.
func renderMarkdown(entries []chat.Entry) string {
	var b strings.Builder
	var group []chat.Entry
	var groupRole chat.Role

	flush := func() {
		if len(group) == 0 {
			return
		}
		renderGroup(&b, groupRole, group)
		group = group[:0]
	}

	for _, e := range entries {
		if len(group) > 0 && e.Role != groupRole {
			flush()
		}
		groupRole = e.Role
		group = append(group, e)
	}
	flush()

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderGroup(b *strings.Builder, role chat.Role, group []chat.Entry) {
	switch role {
	case chat.RoleUser:
		for _, e := range group {
			text := linkFileTokens(strings.TrimSpace(e.Text))
			if text == "" {
				continue
			}
			b.WriteString(text)
			b.WriteString("\n\n")
		}
	case chat.RoleModel:
		for _, e := range group {
			text := linkFileTokens(strings.TrimSpace(e.Text))
			if text == "" {
				continue
			}
			for _, line := range strings.Split(text, "\n") {
				b.WriteString("> ")
				b.WriteString(line)
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	case chat.RoleSystem:
		for _, e := range group {
			b.WriteString(renderSystemEntry(e))
		}
	}
}

func renderSystemEntry(e chat.Entry) string {
	if e.ToolData == nil {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			return ""
		}
		return fmt.Sprintf("*%s*\n\n", text)
	}
	switch e.ToolData.Tool {
	case chat.ToolRenameFile:
		return fmt.Sprintf("*Renamed [[%s]] to [[%s]]*\n\n", e.ToolData.OldPath, e.ToolData.NewPath)
	case chat.ToolTopicSwitch:
		return "---\n\n"
	default:
		text := strings.TrimSpace(e.Text)
		if text == "" {
			text = e.ToolData.Tool
		}
		return fmt.Sprintf("*%s*\n\n", linkFileTokens(text))
	}
}

// linkFileTokens converts bare file-like tokens into [[wikilink]] syntax,
// leaving tokens already inside link brackets alone.
func linkFileTokens(text string) string {
	if strings.Contains(text, "[[") {
		return text
	}
	return fileTokenRe.ReplaceAllString(text, "$1[[$2]]$3")
}
