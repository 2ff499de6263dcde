package api

import "context"

// Engine is the top-level orchestration surface. One session is active
// per process; each Send or Resume drives at most one turn at a time.
type Engine interface {
	// StartSession creates and persists a new session in the given mode.
	StartSession(ctx context.Context, mode Mode, project string) (*Session, error)

	// GetSession loads a persisted session by ID.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// ListSessions returns the IDs of all persisted sessions.
	ListSessions(ctx context.Context) ([]string, error)

	// Send starts a turn for the given user input. The returned stream
	// ends with a done, error, or approval event; on approval the turn
	// is suspended and must be driven forward with Resume.
	Send(ctx context.Context, sessionID string, input string) (EventStream, error)

	// Resume applies a decision to the session's pending tool request
	// and continues the suspended turn. The decision's RequestID must
	// match the pending request.
	Resume(ctx context.Context, sessionID string, decision ApprovalDecision) (EventStream, error)

	// SwitchMode transitions the session to the target mode, producing
	// a context handoff. Switching to the current mode is a no-op that
	// returns the session unchanged.
	SwitchMode(ctx context.Context, sessionID string, target Mode) (*Session, *ContextHandoff, error)
}
