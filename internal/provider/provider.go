package provider

import (
	"context"

	"hermes/internal/chat"
)

// ChatRequest 封装一次模型请求
// ChatRequest wraps a single model call
type ChatRequest struct {
	Model             string
	Messages          []chat.Message
	SystemInstruction string
	Tools             []chat.ToolDef
	Temperature       *float64
	MaxTokens         int
}

// Usage token 用量统计，每个模型回合都会上报
// Usage reports token consumption; forwarded to the caller after every turn
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse 完整响应
// ChatResponse is the complete response for one model turn
type ChatResponse struct {
	Content      string
	ToolCalls    []chat.ToolCall
	FinishReason string
	Usage        Usage
}

// Provider 模型提供方接口。重试由调用方负责，以便向用户展示重试进度。
// Provider is the model backend interface. Retries belong to the caller so
// the retry notice stays user-visible; implementations perform a single
// attempt per Chat call.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Name() string
	CurrentModel() string
	SetModel(model string) error
}
