package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"hermes/internal/chat"
)

type stubTool struct {
	name   string
	result string
	err    error
}

func (s stubTool) Name() string { return s.name }

func (s stubTool) Definition() chat.ToolDef {
	return chat.ToolDef{
		Type: "function",
		Function: chat.ToolFunction{
			Name:       s.name,
			Parameters: map[string]any{"type": "object"},
		},
	}
}

func (s stubTool) Execute(_ context.Context, _ json.RawMessage, _ Callbacks) (string, error) {
	return s.result, s.err
}

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry(stubTool{name: "file_search", result: `{"ok":true}`})
	got, err := r.Execute(context.Background(), "file_search", json.RawMessage(`{}`), Callbacks{})
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"ok":true}` {
		t.Fatalf("unexpected result: %s", got)
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "missing", nil, Callbacks{})
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry(stubTool{name: "web_search"}, stubTool{name: "file_search"}, stubTool{name: "image_search"})
	names := r.Names()
	want := []string{"file_search", "image_search", "web_search"}
	if len(names) != len(want) {
		t.Fatalf("names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
	if defs := r.Definitions(); len(defs) != 3 || defs[0].Function.Name != "file_search" {
		t.Fatalf("definitions out of order: %+v", defs)
	}
}
