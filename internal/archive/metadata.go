package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"hermes/internal/chat"
	"hermes/internal/provider"
)

// Metadata is the LLM-generated description of a finished topic.
type Metadata struct {
	Title             string   `json:"title"`
	Tags              []string `json:"tags"`
	SuggestedFilename string   `json:"suggestedFilename"`
	Summary           string   `json:"summary"`
	ShouldSave        bool     `json:"shouldSave"`
}

const metadataInstruction = `You summarize finished note-taking conversations for archival.
Reply with a single JSON object and nothing else:
{"title": string, "tags": [string], "suggestedFilename": string, "summary": string, "shouldSave": bool}
title: at most 6 words. tags: 1-4 lowercase keywords. suggestedFilename: short kebab-case.
summary: 2-4 bullet lines starting with "- ". shouldSave: false only for empty smalltalk.`

const maxFallbackTitle = 30

// generateMetadata asks the model to describe the conversation, built from
// the user/model turns only. It never fails: a model-call failure falls back
// to deterministic keyword extraction, and an unparsable reply is treated as
// a bare title.
func generateMetadata(ctx context.Context, p provider.Provider, model string, entries []chat.Entry) Metadata {
	prompt := buildMetadataPrompt(entries)
	resp, err := p.Chat(ctx, provider.ChatRequest{
		Model:             model,
		SystemInstruction: metadataInstruction,
		Messages:          []chat.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return HeuristicMetadata(entries)
	}

	meta, err := parseMetadataJSON(resp.Content)
	if err != nil {
		return fallbackTitleMetadata(resp.Content)
	}
	return meta
}

func buildMetadataPrompt(entries []chat.Entry) string {
	var b strings.Builder
	b.WriteString("Conversation:\n")
	for _, e := range entries {
		if e.Role != chat.RoleUser && e.Role != chat.RoleModel {
			continue
		}
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", e.Role, text)
	}
	return b.String()
}

// parseMetadataJSON attempts a strict parse after stripping code-fence markers.
func parseMetadataJSON(raw string) (Metadata, error) {
	cleaned := stripCodeFences(raw)
	var meta Metadata
	if err := json.Unmarshal([]byte(cleaned), &meta); err != nil {
		return Metadata{}, fmt.Errorf("parse metadata json: %w", err)
	}
	if strings.TrimSpace(meta.Title) == "" {
		return Metadata{}, fmt.Errorf("parse metadata json: empty title")
	}
	return meta, nil
}

func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

// fallbackTitleMetadata treats an unparsable model reply as a bare title:
// first line, prefix/quote-stripped, truncated.
func fallbackTitleMetadata(raw string) Metadata {
	line := strings.TrimSpace(raw)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	for _, prefix := range []string{"Title:", "title:", "#"} {
		line = strings.TrimSpace(strings.TrimPrefix(line, prefix))
	}
	line = strings.Trim(line, `"'`)
	runes := []rune(line)
	if len(runes) > maxFallbackTitle {
		line = string(runes[:maxFallbackTitle])
	}
	if line == "" {
		line = "Chat"
	}
	return Metadata{
		Title:             line,
		SuggestedFilename: Slug(line),
		ShouldSave:        true,
	}
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"you": {}, "your": {}, "about": {}, "what": {}, "when": {}, "where": {},
	"how": {}, "can": {}, "could": {}, "would": {}, "please": {}, "want": {},
	"need": {}, "have": {}, "from": {}, "into": {}, "some": {}, "tell": {},
}

// HeuristicMetadata derives metadata from the first user message without any
// model call. Deterministic so it can be tested offline.
func HeuristicMetadata(entries []chat.Entry) Metadata {
	first := ""
	for _, e := range entries {
		if e.Role == chat.RoleUser && strings.TrimSpace(e.Text) != "" {
			first = strings.TrimSpace(e.Text)
			break
		}
	}
	if first == "" {
		return Metadata{Title: "Chat", SuggestedFilename: "chat", ShouldSave: true}
	}

	title := first
	if runes := []rune(title); len(runes) > 40 {
		title = string(runes[:40])
	}

	var tags []string
	seen := map[string]struct{}{}
	for _, word := range strings.Fields(strings.ToLower(first)) {
		word = strings.Trim(word, ".,!?;:'\"")
		if len(word) <= 3 {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		tags = append(tags, word)
		if len(tags) == 4 {
			break
		}
	}

	return Metadata{
		Title:             title,
		Tags:              tags,
		SuggestedFilename: Slug(title),
		Summary:           "- " + first,
		ShouldSave:        true,
	}
}
