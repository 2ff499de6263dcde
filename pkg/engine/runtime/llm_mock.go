package runtime

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"Bindr/pkg/engine/api"
)

// MockLLM is a deterministic local LLM for development and testing. By
// default it echoes metadata and never calls tools; tests can enqueue
// scripted responses with Enqueue.
type MockLLM struct {
	mu      sync.Mutex
	scripts []MockResponse
}

// MockResponse is one scripted model reply: optional text followed by
// optional tool calls.
type MockResponse struct {
	Text      string
	ToolCalls []api.LLMToolCall
}

// Enqueue schedules responses; each Stream call consumes one.
func (m *MockLLM) Enqueue(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, responses...)
}

func (m *MockLLM) Stream(ctx context.Context, req LLMRequest) (LLMStream, error) {
	m.mu.Lock()
	if len(m.scripts) > 0 {
		script := m.scripts[0]
		m.scripts = m.scripts[1:]
		m.mu.Unlock()
		return newScriptedStream(script), nil
	}
	m.mu.Unlock()

	var lastUser string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUser = req.Messages[i].Content
			break
		}
	}

	var b strings.Builder
	b.WriteString("[Mock LLM]\n")
	b.WriteString(fmt.Sprintf("messages=%d tools=%d\n", len(req.Messages), len(req.Tools)))
	if lastUser != "" {
		b.WriteString("last_user=")
		b.WriteString(truncateMock(lastUser, 200))
		b.WriteString("\n")
	}
	b.WriteString("Set LLM_API_KEY to use a real OpenAI-compatible model.\n")

	return newScriptedStream(MockResponse{Text: b.String()}), nil
}

type mockStream struct {
	chunks []LLMChunk
	closed bool
}

func newScriptedStream(script MockResponse) *mockStream {
	s := &mockStream{}

	// Chunk the text so consumers see streaming behavior.
	const step = 32
	for i := 0; i < len(script.Text); i += step {
		end := i + step
		if end > len(script.Text) {
			end = len(script.Text)
		}
		s.chunks = append(s.chunks, LLMChunk{Delta: script.Text[i:end]})
	}

	if len(script.ToolCalls) > 0 {
		for i := range script.ToolCalls {
			tc := script.ToolCalls[i]
			s.chunks = append(s.chunks, LLMChunk{ToolCall: &tc})
		}
		s.chunks = append(s.chunks, LLMChunk{FinishReason: "tool_calls"})
	} else {
		s.chunks = append(s.chunks, LLMChunk{FinishReason: "stop"})
	}
	return s
}

func (s *mockStream) Recv(ctx context.Context) (LLMChunk, error) {
	if s.closed || len(s.chunks) == 0 {
		return LLMChunk{}, io.EOF
	}
	ch := s.chunks[0]
	s.chunks = s.chunks[1:]
	return ch, nil
}

func (s *mockStream) Close() error {
	s.closed = true
	return nil
}

func truncateMock(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
