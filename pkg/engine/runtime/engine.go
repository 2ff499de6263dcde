package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"Bindr/pkg/engine/api"
	"Bindr/pkg/engine/dispatch"
	"Bindr/pkg/engine/middleware"
	"Bindr/pkg/engine/store"
	"Bindr/pkg/engine/tools"
	"Bindr/pkg/engine/workflow"
	"Bindr/pkg/logger"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Engine Implementation
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// EngineConfig holds engine configuration.
type EngineConfig struct {
	LLM         LLM
	Registry    *tools.Registry
	Middlewares []middleware.Middleware

	// WorkspaceRoot is the project directory all tool requests are
	// confined to. StateRoot holds sessions, handoffs, and event logs;
	// it defaults to <WorkspaceRoot>/.bindr.
	WorkspaceRoot string
	StateRoot     string

	// DefaultModel is used when the active mode has no entry in
	// ModeModels.
	DefaultModel string
	ModeModels   map[api.Mode]string
	MaxTokens    int

	// Optional stores. If nil, file-backed stores under StateRoot are used.
	SessionStore store.SessionStore
	HandoffStore store.HandoffStore
	EventLog     store.EventLog
}

// Engine implements the api.Engine interface.
type Engine struct {
	cfg        EngineConfig
	dispatcher *dispatch.Dispatcher

	sessionStore store.SessionStore
	handoffStore store.HandoffStore
	eventLog     store.EventLog

	// Track active turns per session
	activeTurns map[string]*TurnRunner
	turnsMu     sync.Mutex
}

// NewEngine creates a new engine instance.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.WorkspaceRoot == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	if cfg.StateRoot == "" {
		cfg.StateRoot = cfg.WorkspaceRoot + "/.bindr"
	}
	if cfg.Registry == nil {
		cfg.Registry = tools.DefaultRegistry(cfg.WorkspaceRoot)
	}

	sessionStore := cfg.SessionStore
	handoffStore := cfg.HandoffStore
	eventLog := cfg.EventLog

	if sessionStore == nil {
		ss, err := store.NewFileSessionStore(cfg.StateRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to create session store: %w", err)
		}
		sessionStore = ss
	}

	if handoffStore == nil {
		hs, err := store.NewFileHandoffStore(cfg.StateRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to create handoff store: %w", err)
		}
		handoffStore = hs
	}

	if eventLog == nil {
		el, err := store.NewJSONLEventLog(cfg.StateRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to create event log: %w", err)
		}
		eventLog = el
	}

	return &Engine{
		cfg:          cfg,
		dispatcher:   dispatch.New(cfg.WorkspaceRoot, cfg.Registry),
		sessionStore: sessionStore,
		handoffStore: handoffStore,
		eventLog:     eventLog,
		activeTurns:  make(map[string]*TurnRunner),
	}, nil
}

// Use registers an additional middleware. Middlewares that observe the
// engine itself (like the activity recorder) are attached here after
// construction.
func (e *Engine) Use(mw middleware.Middleware) {
	e.cfg.Middlewares = append(e.cfg.Middlewares, mw)
}

// SetModel pins every mode to the given model for the rest of the run,
// discarding any per-mode model map.
func (e *Engine) SetModel(model string) {
	e.turnsMu.Lock()
	defer e.turnsMu.Unlock()
	e.cfg.DefaultModel = model
	e.cfg.ModeModels = nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Session Management
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// StartSession creates and persists a new session in the given mode.
func (e *Engine) StartSession(ctx context.Context, mode api.Mode, project string) (*api.Session, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid mode: %s", mode)
	}

	session := &api.Session{
		SessionID: generateSessionID(),
		Project:   project,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Mode:      mode,
		Metadata:  make(map[string]string),
		Messages:  []api.LLMMessage{},
	}

	if err := e.sessionStore.Put(ctx, session.SessionID, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	logger.Info("Engine", "Session started", map[string]interface{}{
		"session_id": session.SessionID,
		"mode":       string(mode),
		"project":    project,
	})
	return session, nil
}

// GetSession loads a persisted session by ID.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*api.Session, error) {
	session, err := e.sessionStore.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%s: %s", api.ErrInvalidSession, sessionID)
		}
		return nil, err
	}
	return session, nil
}

// ListSessions returns the IDs of all persisted sessions.
func (e *Engine) ListSessions(ctx context.Context) ([]string, error) {
	return e.sessionStore.List(ctx)
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Turn Execution
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Send starts a turn with a user message.
func (e *Engine) Send(ctx context.Context, sessionID, input string) (api.EventStream, error) {
	e.turnsMu.Lock()
	if _, exists := e.activeTurns[sessionID]; exists {
		e.turnsMu.Unlock()
		return nil, fmt.Errorf("%s: %s", api.ErrTurnInProgress, sessionID)
	}

	session, err := e.sessionStore.Get(ctx, sessionID)
	if err != nil {
		e.turnsMu.Unlock()
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%s: %s", api.ErrInvalidSession, sessionID)
		}
		return nil, err
	}

	// A pending approval blocks new input until resolved.
	if session.Pending != nil {
		e.turnsMu.Unlock()
		return nil, fmt.Errorf("%s: pending approval exists", api.ErrTurnInProgress)
	}

	runner := e.newRunner(session.Mode)
	e.activeTurns[sessionID] = runner
	e.turnsMu.Unlock()

	stream, err := runner.Run(ctx, session, input)
	if err != nil {
		e.turnsMu.Lock()
		delete(e.activeTurns, sessionID)
		e.turnsMu.Unlock()
		return nil, err
	}

	return &cleanupEventStream{
		EventStream: stream,
		onClose: func() {
			e.turnsMu.Lock()
			delete(e.activeTurns, sessionID)
			e.turnsMu.Unlock()
		},
	}, nil
}

// Resume applies a decision to the session's pending request and
// continues the suspended turn.
func (e *Engine) Resume(ctx context.Context, sessionID string, decision api.ApprovalDecision) (api.EventStream, error) {
	e.turnsMu.Lock()
	if _, exists := e.activeTurns[sessionID]; exists {
		e.turnsMu.Unlock()
		return nil, fmt.Errorf("%s: %s", api.ErrTurnInProgress, sessionID)
	}

	// Load session with a short retry: the suspending goroutine persists
	// the pending request just before its stream closes.
	var session *api.Session
	var err error
	for i := 0; i < 3; i++ {
		session, err = e.sessionStore.Get(ctx, sessionID)
		if err != nil {
			e.turnsMu.Unlock()
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%s: %s", api.ErrInvalidSession, sessionID)
			}
			return nil, err
		}
		if session.Pending != nil {
			break
		}
		if i < 2 {
			time.Sleep(100 * time.Millisecond)
		}
	}

	if session.Pending == nil {
		e.turnsMu.Unlock()
		return nil, fmt.Errorf("%s: %s", api.ErrNoPendingApproval, sessionID)
	}

	runner := e.newRunner(session.Mode)
	e.activeTurns[sessionID] = runner
	e.turnsMu.Unlock()

	stream, err := runner.Resume(ctx, session, decision)
	if err != nil {
		e.turnsMu.Lock()
		delete(e.activeTurns, sessionID)
		e.turnsMu.Unlock()
		return nil, err
	}

	return &cleanupEventStream{
		EventStream: stream,
		onClose: func() {
			e.turnsMu.Lock()
			delete(e.activeTurns, sessionID)
			e.turnsMu.Unlock()
		},
	}, nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Mode Switching
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// SwitchMode transitions the session to the target mode, producing a
// context handoff. Switching to the current mode returns the session
// unchanged with a nil handoff.
func (e *Engine) SwitchMode(ctx context.Context, sessionID string, target api.Mode) (*api.Session, *api.ContextHandoff, error) {
	e.turnsMu.Lock()
	if _, exists := e.activeTurns[sessionID]; exists {
		e.turnsMu.Unlock()
		return nil, nil, fmt.Errorf("%s: %s", api.ErrTurnInProgress, sessionID)
	}
	e.turnsMu.Unlock()

	session, err := e.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.Pending != nil {
		return nil, nil, fmt.Errorf("%s: resolve the pending request first", api.ErrTurnInProgress)
	}

	handoff, err := workflow.Transition(session, target, time.Now())
	if err != nil {
		if errors.Is(err, workflow.ErrNoTransition) {
			return session, nil, nil
		}
		return nil, nil, err
	}

	from := session.Mode
	session.Mode = target
	session.Handoff = handoff
	session.UpdatedAt = time.Now()
	if err := e.sessionStore.Put(ctx, sessionID, session); err != nil {
		return nil, nil, fmt.Errorf("%s: %v", api.ErrStoreError, err)
	}

	e.archiveHandoff(ctx, sessionID, handoff)

	// Record the transition on the event log so replay shows it.
	e.eventLog.Append(context.WithoutCancel(ctx), api.Event{
		Version:   api.EventVersion,
		SessionID: sessionID,
		TurnID:    generateTurnID(),
		Seq:       1,
		Type:      api.EventModeChange,
		Ts:        time.Now(),
		ModeChange: &api.ModeChangePayload{
			From:    from,
			To:      target,
			Handoff: handoff,
			Trigger: "command",
		},
	})

	logger.Info("Engine", "Mode switched", map[string]interface{}{
		"session_id": sessionID,
		"from":       string(from),
		"to":         string(target),
	})
	return session, handoff, nil
}

func (e *Engine) archiveHandoff(ctx context.Context, sessionID string, handoff *api.ContextHandoff) {
	archive, err := e.handoffStore.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("Engine", "Handoff archive unreadable", map[string]interface{}{
				"session_id": sessionID,
				"error":      err.Error(),
			})
			return
		}
		archive = &api.HandoffArchive{SessionID: sessionID}
	}
	archive.Handoffs = append(archive.Handoffs, *handoff)
	if err := e.handoffStore.Put(ctx, sessionID, archive); err != nil {
		logger.Warn("Engine", "Handoff archive write failed", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Activity Recording
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// RecordActivity appends an activity record to the session. During an
// active turn the record goes to the runner's in-memory session so it is
// persisted with the turn's own saves; otherwise it is written through.
func (e *Engine) RecordActivity(sessionID string, rec api.ActivityRecord) {
	e.turnsMu.Lock()
	runner, active := e.activeTurns[sessionID]
	e.turnsMu.Unlock()

	if active {
		runner.recordActivity(rec)
		return
	}

	ctx := context.Background()
	session, err := e.sessionStore.Get(ctx, sessionID)
	if err != nil {
		logger.Warn("Engine", "Activity record dropped", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return
	}
	session.Activity = append(session.Activity, rec)
	session.UpdatedAt = time.Now()
	if err := e.sessionStore.Put(ctx, sessionID, session); err != nil {
		logger.Warn("Engine", "Activity record dropped", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Helpers
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (e *Engine) newRunner(mode api.Mode) *TurnRunner {
	return NewTurnRunner(TurnRunnerConfig{
		LLM:          e.cfg.LLM,
		Registry:     e.cfg.Registry,
		Dispatcher:   e.dispatcher,
		SessionStore: e.sessionStore,
		HandoffStore: e.handoffStore,
		EventLog:     e.eventLog,
		Middlewares:  e.cfg.Middlewares,
		Model:        e.modelFor(mode),
		MaxTokens:    e.cfg.MaxTokens,
	})
}

// modelFor resolves the model for a mode, falling back to the default.
func (e *Engine) modelFor(mode api.Mode) string {
	if m, ok := e.cfg.ModeModels[mode]; ok && m != "" {
		return m
	}
	return e.cfg.DefaultModel
}

func generateSessionID() string {
	return "session_" + uuid.NewString()
}

// cleanupEventStream wraps EventStream to run cleanup on close.
type cleanupEventStream struct {
	api.EventStream
	onClose func()
	closed  bool
	mu      sync.Mutex
}

func (s *cleanupEventStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.EventStream.Close()
	if s.onClose != nil {
		s.onClose()
	}
	return err
}
