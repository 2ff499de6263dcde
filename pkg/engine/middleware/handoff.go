package middleware

import (
	"context"
	"encoding/json"

	"Bindr/pkg/engine/api"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// HandoffMiddleware
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// HandoffMiddleware injects the most recent context handoff into the
// system prompt when its destination matches the active mode. The
// handoff is the only structured context a mode inherits from its
// predecessor.
type HandoffMiddleware struct {
	BaseMiddleware
}

func NewHandoffMiddleware() *HandoffMiddleware {
	return &HandoffMiddleware{BaseMiddleware: NewBaseMiddleware("handoff")}
}

func (m *HandoffMiddleware) BeforeTurn(ctx context.Context, state *api.State) error {
	if state.Handoff == nil || state.Handoff.To != state.Mode {
		return nil
	}

	data, err := json.MarshalIndent(state.Handoff.Summary, "", "  ")
	if err != nil {
		return err
	}
	state.SystemPrompt += "\n\n## Incoming Context\nSummary handed off from " +
		state.Handoff.From.DisplayName() + " mode:\n```json\n" + string(data) + "\n```"
	return nil
}
