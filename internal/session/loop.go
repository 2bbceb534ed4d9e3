package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"hermes/internal/chat"
	"hermes/internal/provider"
	"hermes/internal/tools"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// loopState makes the per-message state machine explicit: the loop is a
// bounded iteration over these states, never a re-entrant call.
type loopState int

const (
	stateAwaitingModel loopState = iota
	stateExecutingTools
	stateDone
)

// Send runs one outbound user message to completion: model turn, requested
// tool calls, results fed back, repeated until a turn carries no tool calls.
// The returned text is the final model response, recorded as a transcript
// entry under the current topic.
func (c *Coordinator) Send(ctx context.Context, text string) (string, error) {
	c.store.Append(chat.Entry{
		Role:       chat.RoleUser,
		Text:       text,
		IsComplete: true,
		TopicID:    c.topicID,
	})
	c.appendHistory(chat.Message{Role: "user", Content: text})

	// A pending cross-mode handoff is injected into this mode's history once,
	// ahead of the first model call for this message.
	if inj := c.injections[c.mode]; inj != "" {
		history := c.histories[c.mode]
		user := history[len(history)-1]
		history[len(history)-1] = chat.Message{
			Role:    "system",
			Content: "Context from the other mode: " + inj,
		}
		c.histories[c.mode] = append(history, user)
		delete(c.injections, c.mode)
	}

	var (
		finalText string
		calls     []chat.ToolCall
	)
	state := stateAwaitingModel
	for step := 0; step < c.opts.MaxSteps && state != stateDone; step++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		switch state {
		case stateAwaitingModel:
			resp, err := c.chatWithRetry(ctx)
			if err != nil {
				return "", err
			}
			if c.notices.OnUsage != nil {
				c.notices.OnUsage(resp.Usage)
			}
			c.appendHistory(chat.Message{
				Role:      "assistant",
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			})
			if resp.Content != "" {
				finalText = resp.Content
			}
			if len(resp.ToolCalls) == 0 {
				state = stateDone
				break
			}
			calls = resp.ToolCalls
			state = stateExecutingTools

		case stateExecutingTools:
			for _, call := range calls {
				if err := ctx.Err(); err != nil {
					return "", err
				}
				c.executeCall(ctx, call)
			}
			calls = nil
			state = stateAwaitingModel
		}
	}
	if state != stateDone {
		return finalText, fmt.Errorf("step limit reached (%d)", c.opts.MaxSteps)
	}

	c.store.Append(chat.Entry{
		Role:       chat.RoleModel,
		Text:       finalText,
		IsComplete: true,
		TopicID:    c.topicID,
	})
	// Entries this mode just produced are already in its own model context.
	c.marks.AdvanceToCurrent(c.mode)
	return finalText, nil
}

// executeCall runs one requested tool call. Failures are isolated to the
// call: the pending transcript entry flips to error status and the model
// receives a structured {"error": message} function response, so the
// conversation continues either way.
func (c *Coordinator) executeCall(ctx context.Context, call chat.ToolCall) {
	name := call.Function.Name
	callID := strings.TrimSpace(call.ID)
	if callID == "" {
		callID = uuid.NewString()
	}
	c.store.AppendToolPending(c.topicID, "Running "+name, chat.ToolData{
		CallID: callID,
		Tool:   name,
	})

	cb := tools.Callbacks{
		OnLog: func(line string) {
			c.log.Debug("tool log", zap.String("tool", name), zap.String("line", line))
		},
		OnSystem: func(text string, data chat.ToolData) {
			c.store.Append(chat.Entry{
				Role:       chat.RoleSystem,
				Text:       text,
				IsComplete: true,
				TopicID:    c.topicID,
				ToolData:   &data,
			})
			// A tool-emitted topic-switch marker is a boundary too: archive
			// the finished topic and reassign the id before the loop continues.
			if data.Tool == chat.ToolTopicSwitch {
				c.archiveBoundary(ctx)
			}
		},
		OnFileState: func(folder, note string) {
			c.log.Debug("tool file state",
				zap.String("tool", name),
				zap.String("folder", folder),
				zap.String("note", note))
		},
	}

	result, err := c.registry.Execute(ctx, name, json.RawMessage(call.Function.Arguments), cb)
	if err != nil {
		c.store.ResolveTool(callID, chat.ToolError, err.Error())
		if c.notices.OnToolEvent != nil {
			c.notices.OnToolEvent(name, err.Error(), false)
		}
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		c.appendHistory(chat.Message{
			Role:       "tool",
			Name:       name,
			ToolCallID: call.ID,
			Content:    string(payload),
		})
		c.log.Warn("tool call failed", zap.String("tool", name), zap.Error(err))
		return
	}

	c.store.ResolveTool(callID, chat.ToolSuccess, "")
	if c.notices.OnToolEvent != nil {
		c.notices.OnToolEvent(name, result, true)
	}
	c.appendHistory(chat.Message{
		Role:       "tool",
		Name:       name,
		ToolCallID: call.ID,
		Content:    result,
	})
}

// chatWithRetry wraps the outer model call, not individual tool calls, in a
// bounded retry with a fixed delay. The retry notice is emitted before each
// attempt so the wait stays visible; exhausting attempts is terminal for this
// message.
func (c *Coordinator) chatWithRetry(ctx context.Context) (provider.ChatResponse, error) {
	req := provider.ChatRequest{
		Model:             c.prov.CurrentModel(),
		Messages:          c.histories[c.mode],
		SystemInstruction: c.opts.SystemInstruction,
		Tools:             c.registry.Definitions(),
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if c.notices.OnRetry != nil {
				c.notices.OnRetry(attempt, c.opts.RetryAttempts)
			}
			if c.notices.OnNotice != nil {
				c.notices.OnNotice(fmt.Sprintf("retrying attempt %d/%d", attempt, c.opts.RetryAttempts))
			}
			if err := sleepCtx(ctx, c.opts.RetryDelay); err != nil {
				return provider.ChatResponse{}, err
			}
		}
		resp, err := c.prov.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return provider.ChatResponse{}, ctx.Err()
		}
		c.log.Warn("model call failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return provider.ChatResponse{}, fmt.Errorf("model call failed after %d attempts: %w", c.opts.RetryAttempts+1, lastErr)
}

func (c *Coordinator) appendHistory(m chat.Message) {
	c.histories[c.mode] = append(c.histories[c.mode], m)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
