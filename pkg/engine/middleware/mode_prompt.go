package middleware

import (
	"context"
	"fmt"
	"strings"

	"Bindr/pkg/engine/api"
	"Bindr/pkg/engine/capability"
	"Bindr/pkg/engine/prompts"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// ModePromptMiddleware
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ModePromptMiddleware sets the system prompt for the active mode and
// appends the mode's capability set so the model knows which tools it
// may request.
type ModePromptMiddleware struct {
	BaseMiddleware
	loader *prompts.Loader
}

func NewModePromptMiddleware(loader *prompts.Loader) *ModePromptMiddleware {
	return &ModePromptMiddleware{
		BaseMiddleware: NewBaseMiddleware("mode_prompt"),
		loader:         loader,
	}
}

func (m *ModePromptMiddleware) BeforeTurn(ctx context.Context, state *api.State) error {
	prompt := m.loader.ForMode(state.Mode)
	if prompt == "" {
		return fmt.Errorf("no prompt for mode %s", state.Mode)
	}

	caps := capability.For(state.Mode)
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}

	state.SystemPrompt = prompt +
		"\n\n## Available Tools\nIn this mode you may request: " + strings.Join(names, ", ") +
		".\nAll other tools are denied before reaching the user." +
		state.SystemPrompt
	return nil
}
