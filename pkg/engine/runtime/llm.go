// Package runtime drives turns: it streams the model, routes tool
// requests through the dispatcher, suspends on approval, and applies
// mode transitions.
package runtime

import (
	"context"

	"Bindr/pkg/engine/api"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// LLM Interface
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// LLM is the interface for language model interactions.
type LLM interface {
	Stream(ctx context.Context, req LLMRequest) (LLMStream, error)
}

// LLMRequest represents a request to the LLM. Model overrides the
// client's default when set (modes can pin different models).
type LLMRequest struct {
	Model     string
	Messages  []api.LLMMessage
	Tools     []api.ToolSchema
	MaxTokens int
}

// LLMStream is a streaming response from the LLM.
type LLMStream interface {
	Recv(ctx context.Context) (LLMChunk, error)
	Close() error
}

// LLMChunk is a chunk of streaming LLM response.
type LLMChunk struct {
	Delta        string           // text content delta
	ToolArgDelta string           // tool argument delta (for streaming display)
	ToolCall     *api.LLMToolCall // complete tool call (when finish_reason=tool_calls)
	FinishReason string
}
