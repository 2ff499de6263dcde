package middleware

import (
	"context"
	"fmt"

	"Bindr/pkg/engine/api"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// WorkspaceMiddleware
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// WorkspaceMiddleware appends the workspace context to the system
// prompt. All paths the model produces are interpreted relative to this
// root; anything outside it is refused.
type WorkspaceMiddleware struct {
	BaseMiddleware
	WorkspaceRoot string
}

func NewWorkspaceMiddleware(workspaceRoot string) *WorkspaceMiddleware {
	return &WorkspaceMiddleware{
		BaseMiddleware: NewBaseMiddleware("workspace"),
		WorkspaceRoot:  workspaceRoot,
	}
}

func (m *WorkspaceMiddleware) BeforeTurn(ctx context.Context, state *api.State) error {
	state.SystemPrompt += fmt.Sprintf(`

## Project Workspace
The project workspace is: %s
All file paths must be relative to this directory. Paths outside the workspace are rejected. Always provide every required tool argument.`, m.WorkspaceRoot)
	return nil
}
