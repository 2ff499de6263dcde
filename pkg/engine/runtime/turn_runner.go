package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"Bindr/pkg/engine/api"
	"Bindr/pkg/engine/capability"
	"Bindr/pkg/engine/dispatch"
	"Bindr/pkg/engine/middleware"
	"Bindr/pkg/engine/store"
	"Bindr/pkg/engine/tools"
	"Bindr/pkg/engine/workflow"
	"Bindr/pkg/logger"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Turn State Machine
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// TurnState represents the current state of a turn.
type TurnState string

const (
	StateIdle            TurnState = "idle"
	StateRunning         TurnState = "running"
	StateWaitingApproval TurnState = "waiting_approval"
	StateExecutingTool   TurnState = "executing_tool"
	StateCompleted       TurnState = "completed"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// TurnRunner
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// TurnRunnerConfig holds turn runner dependencies.
type TurnRunnerConfig struct {
	LLM          LLM
	Registry     *tools.Registry
	Dispatcher   *dispatch.Dispatcher
	SessionStore store.SessionStore
	HandoffStore store.HandoffStore
	EventLog     store.EventLog
	Middlewares  []middleware.Middleware

	// Model is the model identifier for this turn, already resolved
	// against the session's mode.
	Model     string
	MaxTokens int
}

// TurnRunner executes a single turn of conversation. A turn may suspend
// waiting for a tool approval; the engine then resumes it with the
// user's decision on a fresh runner.
type TurnRunner struct {
	cfg   TurnRunnerConfig
	chain *middleware.Chain

	// Turn state
	state     TurnState
	session   *api.Session
	turnID    string
	seq       int
	events    *store.ChannelEventStream
	startedAt time.Time

	// Tracking
	requests      []api.ToolRequest
	assistantText string
	turnOutcome   api.TurnOutcome
	turnError     *api.ErrorPayload
	hookState     *api.State

	mu sync.Mutex
}

// NewTurnRunner creates a new turn runner.
func NewTurnRunner(cfg TurnRunnerConfig) *TurnRunner {
	return &TurnRunner{
		cfg:    cfg,
		chain:  middleware.NewChain(cfg.Middlewares...),
		state:  StateIdle,
		events: store.NewChannelEventStream(100),
	}
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Public API
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Run starts a new turn with a user message.
func (r *TurnRunner) Run(ctx context.Context, session *api.Session, message string) (api.EventStream, error) {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return nil, fmt.Errorf("%s: turn already in progress", api.ErrTurnInProgress)
	}
	r.state = StateRunning
	r.session = session
	r.turnID = generateTurnID()
	r.seq = 0
	r.startedAt = time.Now()
	r.mu.Unlock()

	go r.runTurn(ctx, message)

	return r.events, nil
}

// Resume continues a turn from a pending approval.
func (r *TurnRunner) Resume(ctx context.Context, session *api.Session, decision api.ApprovalDecision) (api.EventStream, error) {
	r.mu.Lock()
	if session.Pending == nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("%s: no pending approval", api.ErrNoPendingApproval)
	}
	if decision.RequestID != session.Pending.Request.ID {
		r.mu.Unlock()
		return nil, fmt.Errorf("%s: request ID mismatch", api.ErrApprovalMismatch)
	}

	r.state = StateExecutingTool
	r.session = session
	r.turnID = session.Pending.TurnID // continue the same turn
	r.seq = session.Pending.LastSeq
	r.startedAt = time.Now()
	r.mu.Unlock()

	go r.resumeTurn(ctx, decision)

	return r.events, nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Internal Execution
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (r *TurnRunner) runTurn(ctx context.Context, message string) {
	defer r.events.Close()
	defer r.finalize(ctx)

	userMsg := api.LLMMessage{Role: "user", Content: message, Mode: r.session.Mode}
	r.session.Messages = append(r.session.Messages, userMsg)

	if err := r.saveSession(ctx); err != nil {
		r.emitError(ctx, api.ErrStoreError, err.Error())
		return
	}

	state := r.newState()
	r.hookState = state

	outcome, err := r.agentLoop(ctx, state)
	if err != nil {
		if errorsIsContextCanceled(err) {
			r.emitDone(ctx, "canceled")
			return
		}
		r.emitError(ctx, errorCode(err), err.Error())
		return
	}

	if outcome == loopOutcomeSuspended {
		return
	}

	if !r.applyDirective(ctx) {
		return
	}
	r.emitDone(ctx, "completed")
}

func (r *TurnRunner) resumeTurn(ctx context.Context, decision api.ApprovalDecision) {
	defer r.events.Close()
	defer r.finalize(ctx)

	pending := r.session.Pending

	state := r.newState()
	r.hookState = state
	if err := r.refreshState(ctx, state); err != nil {
		r.emitError(ctx, api.ErrStoreError, err.Error())
		return
	}

	// Re-review the pending request. The capability table is fixed, but
	// the workspace may have changed underneath a long-lived suspension.
	rev, denied := r.cfg.Dispatcher.Review(r.session.Mode, pending.Request)
	if denied != nil {
		r.emitToolResult(ctx, pending.Request, *denied)
		r.appendToolMessage(pending.Request.ID, denied.Reason)
		r.supersedeQueued()
		r.session.Pending = nil
		if err := r.saveSession(ctx); err != nil {
			r.emitError(ctx, api.ErrStoreError, err.Error())
			return
		}
		r.emitDone(ctx, "completed")
		return
	}

	outcome, err := r.cfg.Dispatcher.Resolve(ctx, rev, decision)
	if err != nil {
		r.emitError(ctx, api.ErrApprovalMismatch, err.Error())
		return
	}

	executed := pending.Request
	if decision.Kind == api.DecisionModify && decision.ModifiedPayload != nil {
		executed.Payload = *decision.ModifiedPayload
	}
	r.emitToolResult(ctx, executed, outcome)

	if outcome.Status == api.StatusRejected {
		// A denial ends the turn. The model sees the denial in the
		// transcript on the next turn and must not retry on its own.
		r.appendToolMessage(executed.ID, "request denied by user; do not retry without new instructions")
		r.supersedeQueued()
		r.session.Pending = nil
		if err := r.saveSession(ctx); err != nil {
			r.emitError(ctx, api.ErrStoreError, err.Error())
			return
		}
		r.emitDone(ctx, "rejected")
		return
	}

	r.appendToolMessage(executed.ID, toolMessageContent(outcome))
	r.session.Pending = nil
	queued := r.session.Queued
	r.session.Queued = nil
	if err := r.saveSession(ctx); err != nil {
		r.emitError(ctx, api.ErrStoreError, err.Error())
		return
	}

	// Work through the rest of the batch before handing the transcript
	// back to the model. Each approvable call suspends in its turn.
	if len(queued) > 0 {
		out, err := r.processToolCalls(ctx, queued)
		if err != nil {
			if errorsIsContextCanceled(err) {
				r.emitDone(ctx, "canceled")
				return
			}
			r.emitError(ctx, errorCode(err), err.Error())
			return
		}
		if out == loopOutcomeSuspended {
			return
		}
	}

	loopOut, err := r.agentLoop(ctx, state)
	if err != nil {
		if errorsIsContextCanceled(err) {
			r.emitDone(ctx, "canceled")
			return
		}
		r.emitError(ctx, errorCode(err), err.Error())
		return
	}

	if loopOut == loopOutcomeSuspended {
		return
	}

	if !r.applyDirective(ctx) {
		return
	}
	r.emitDone(ctx, "completed")
}

type loopOutcome int

const (
	loopOutcomeCompleted loopOutcome = iota
	loopOutcomeSuspended
)

func (r *TurnRunner) agentLoop(ctx context.Context, state *api.State) (loopOutcome, error) {
	for {
		select {
		case <-ctx.Done():
			return loopOutcomeCompleted, ctx.Err()
		default:
		}

		// Refresh turn state (mode prompt, workspace, incoming handoff).
		if err := r.refreshState(ctx, state); err != nil {
			return loopOutcomeCompleted, err
		}

		// Only the active mode's capabilities are visible to the model.
		toolSchemas := r.cfg.Registry.Schemas(capability.For(r.session.Mode))

		req := LLMRequest{
			Model:     r.cfg.Model,
			Messages:  buildRequestMessages(state.SystemPrompt, state.Messages),
			Tools:     toolSchemas,
			MaxTokens: r.cfg.MaxTokens,
		}

		stream, err := r.cfg.LLM.Stream(ctx, req)
		if err != nil {
			return loopOutcomeCompleted, fmt.Errorf("%s: %w", api.ErrCollaboratorUnavailable, err)
		}

		var assistantContent string
		var toolCalls []api.LLMToolCall

		for {
			chunk, err := stream.Recv(ctx)
			if err != nil {
				stream.Close()
				if err == io.EOF {
					break
				}
				return loopOutcomeCompleted, fmt.Errorf("%s: %w", api.ErrCollaboratorUnavailable, err)
			}

			if chunk.Delta != "" {
				assistantContent += chunk.Delta
				r.emit(ctx, api.Event{
					Type:  api.EventDelta,
					Delta: &api.DeltaPayload{Text: chunk.Delta, Source: api.DeltaText},
				})
			}

			// Tool argument deltas stream too so the UI can show progress
			// while the model composes a call.
			if chunk.ToolArgDelta != "" {
				r.emit(ctx, api.Event{
					Type:  api.EventDelta,
					Delta: &api.DeltaPayload{Text: chunk.ToolArgDelta, Source: api.DeltaToolArg},
				})
			}

			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
			}

			if chunk.FinishReason != "" {
				break
			}
		}
		stream.Close()

		// No tool calls: the turn's generation is complete.
		if len(toolCalls) == 0 {
			if assistantContent != "" {
				r.session.Messages = append(r.session.Messages, api.LLMMessage{
					Role:    "assistant",
					Content: assistantContent,
					Mode:    r.session.Mode,
				})
				if err := r.saveSession(ctx); err != nil {
					return loopOutcomeCompleted, err
				}
			}
			r.assistantText = assistantContent
			return loopOutcomeCompleted, nil
		}

		// The assistant message with tool_calls must precede the tool
		// results in the transcript.
		r.session.Messages = append(r.session.Messages, api.LLMMessage{
			Role:      "assistant",
			Content:   assistantContent,
			Mode:      r.session.Mode,
			ToolCalls: toolCalls,
		})
		if err := r.saveSession(ctx); err != nil {
			return loopOutcomeCompleted, err
		}

		out, err := r.processToolCalls(ctx, toolCalls)
		if err != nil {
			return loopOutcomeCompleted, err
		}
		if out == loopOutcomeSuspended {
			return loopOutcomeSuspended, nil
		}
	}
}

// processToolCalls reviews a batch of tool calls one at a time. When a
// call clears review the turn suspends for the human decision and the
// rest of the batch is queued on the session, so every call ID the
// assistant declared keeps its slot across resumes.
func (r *TurnRunner) processToolCalls(ctx context.Context, calls []api.LLMToolCall) (loopOutcome, error) {
	for i, tc := range calls {
		toolReq, err := tools.ParseToolCall(tc)
		if err != nil {
			reason := fmt.Sprintf("%s: %v", api.ErrToolArgsInvalid, err)
			r.emit(ctx, api.Event{
				Type: api.EventToolResult,
				ToolResult: &api.ToolResultPayload{
					RequestID: tc.ID,
					Status:    api.StatusInvalid,
					Reason:    reason,
				},
			})
			r.appendToolMessage(tc.ID, reason)
			if err := r.saveSession(ctx); err != nil {
				return loopOutcomeCompleted, err
			}
			continue
		}

		r.emit(ctx, api.Event{
			Type:        api.EventToolRequest,
			ToolRequest: &api.ToolRequestPayload{Request: toolReq},
		})

		rev, denied := r.cfg.Dispatcher.Review(r.session.Mode, toolReq)
		if denied != nil {
			r.emitToolResult(ctx, toolReq, *denied)
			r.appendToolMessage(toolReq.ID, denied.Reason)
			if err := r.saveSession(ctx); err != nil {
				return loopOutcomeCompleted, err
			}
			continue
		}

		// Every request that clears review waits for a human. Persist
		// the suspension point so the decision survives a restart.
		r.emit(ctx, api.Event{
			Type: api.EventApproval,
			Approval: &api.ApprovalPayload{
				RequestID: toolReq.ID,
				Request:   toolReq,
				Preview:   rev.Preview,
			},
		})

		r.mu.Lock()
		lastSeq := r.seq
		r.mu.Unlock()
		r.session.Pending = &api.PendingRequest{
			TurnID:    r.turnID,
			Request:   toolReq,
			Preview:   rev.Preview,
			CreatedAt: time.Now(),
			LastSeq:   lastSeq,
		}
		r.session.Queued = append([]api.LLMToolCall(nil), calls[i+1:]...)
		if err := r.saveSession(ctx); err != nil {
			return loopOutcomeCompleted, err
		}

		r.mu.Lock()
		r.state = StateWaitingApproval
		r.mu.Unlock()

		return loopOutcomeSuspended, nil // wait for Resume
	}
	return loopOutcomeCompleted, nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Mode-Switch Directives
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// applyDirective inspects the final assistant text for a mode-switch
// directive and, if one is present, transitions the session. Malformed
// directives are logged and ignored; the session stays in its mode.
// Returns false when the turn already terminated with an error.
func (r *TurnRunner) applyDirective(ctx context.Context) bool {
	directive, target, err := ParseModeDirective(r.assistantText)
	if err != nil {
		logger.Warn("Runtime", "Ignoring malformed mode directive", map[string]interface{}{
			"session_id": r.session.SessionID,
			"error":      err.Error(),
		})
		return true
	}
	if directive == nil {
		return true
	}

	foldDirective(r.session, directive)

	handoff, err := workflow.Transition(r.session, target, time.Now())
	if err != nil {
		if errors.Is(err, workflow.ErrNoTransition) {
			logger.Warn("Runtime", "Directive targets the active mode", map[string]interface{}{
				"session_id": r.session.SessionID,
				"mode":       string(target),
			})
			return true
		}
		r.emitError(ctx, errorCode(err), err.Error())
		return false
	}

	// The directive did its job; the transcript keeps prose only.
	if n := len(r.session.Messages); n > 0 && r.session.Messages[n-1].Role == "assistant" {
		r.session.Messages[n-1].Content = StripDirective(r.session.Messages[n-1].Content)
	}

	from := r.session.Mode
	r.session.Mode = target
	r.session.Handoff = handoff
	if err := r.saveSession(ctx); err != nil {
		r.emitError(ctx, api.ErrStoreError, err.Error())
		return false
	}
	r.archiveHandoff(ctx, handoff)

	r.emit(ctx, api.Event{
		Type: api.EventModeChange,
		ModeChange: &api.ModeChangePayload{
			From:    from,
			To:      target,
			Handoff: handoff,
			Trigger: "directive",
		},
	})
	return true
}

// archiveHandoff appends the handoff to the session's transition history.
// Archiving is best effort; the session record already holds the handoff.
func (r *TurnRunner) archiveHandoff(ctx context.Context, handoff *api.ContextHandoff) {
	if r.cfg.HandoffStore == nil {
		return
	}
	archive, err := r.cfg.HandoffStore.Get(ctx, r.session.SessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("Runtime", "Handoff archive unreadable", map[string]interface{}{
				"session_id": r.session.SessionID,
				"error":      err.Error(),
			})
			return
		}
		archive = &api.HandoffArchive{SessionID: r.session.SessionID}
	}
	archive.Handoffs = append(archive.Handoffs, *handoff)
	if err := r.cfg.HandoffStore.Put(ctx, r.session.SessionID, archive); err != nil {
		logger.Warn("Runtime", "Handoff archive write failed", map[string]interface{}{
			"session_id": r.session.SessionID,
			"error":      err.Error(),
		})
	}
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Helpers
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (r *TurnRunner) emit(ctx context.Context, e api.Event) {
	r.mu.Lock()
	r.seq++
	e.Version = api.EventVersion
	e.SessionID = r.session.SessionID
	e.TurnID = r.turnID
	e.Seq = r.seq
	e.Ts = time.Now()
	r.mu.Unlock()

	r.events.Send(e)

	if r.cfg.EventLog != nil {
		r.cfg.EventLog.Append(context.WithoutCancel(ctx), e)
	}

	if e.Type == api.EventToolRequest && e.ToolRequest != nil {
		r.requests = append(r.requests, e.ToolRequest.Request)
	}

	// Middleware event hook (best-effort, must not block the main loop).
	_ = r.chain.OnEvent(ctx, r.hookState, e)
}

func (r *TurnRunner) emitToolResult(ctx context.Context, req api.ToolRequest, outcome api.DispatchOutcome) {
	r.emit(ctx, api.Event{
		Type: api.EventToolResult,
		ToolResult: &api.ToolResultPayload{
			RequestID: req.ID,
			Kind:      req.Kind,
			Target:    req.Target,
			Command:   req.Payload.Command,
			Status:    outcome.Status,
			Result:    outcome.Result,
			Reason:    outcome.Reason,
		},
	})
}

func (r *TurnRunner) emitError(ctx context.Context, code, message string) {
	r.turnOutcome = api.TurnError
	r.turnError = &api.ErrorPayload{Code: code, Message: message}
	r.emit(ctx, api.Event{
		Type:  api.EventError,
		Error: &api.ErrorPayload{Code: code, Message: message},
	})
	r.emitDone(ctx, "error")
}

func (r *TurnRunner) emitDone(ctx context.Context, status string) {
	switch status {
	case "canceled":
		r.turnOutcome = api.TurnCanceled
	case "error":
		r.turnOutcome = api.TurnError
	default:
		r.turnOutcome = api.TurnDone
	}
	r.emit(ctx, api.Event{
		Type: api.EventDone,
		Done: &api.DonePayload{Status: status},
	})
	r.mu.Lock()
	r.state = StateCompleted
	r.mu.Unlock()
}

// recordActivity appends an activity record to the in-flight session.
// It is called synchronously from middleware event hooks, which run on
// the turn goroutine, so the next saveSession persists it.
func (r *TurnRunner) recordActivity(rec api.ActivityRecord) {
	r.session.Activity = append(r.session.Activity, rec)
}

// appendToolMessage records a tool result in the transcript so the model
// sees it on the next generation.
func (r *TurnRunner) appendToolMessage(requestID, content string) {
	r.session.Messages = append(r.session.Messages, api.LLMMessage{
		Role:       "tool",
		Content:    content,
		Mode:       r.session.Mode,
		ToolCallID: requestID,
	})
}

// supersedeQueued closes out tool calls that will never run, so the
// transcript keeps a tool response for every declared call ID even
// when a denial ends the turn mid-batch.
func (r *TurnRunner) supersedeQueued() {
	for _, tc := range r.session.Queued {
		r.appendToolMessage(tc.ID, "superseded: an earlier request in this batch was denied")
	}
	r.session.Queued = nil
}

func toolMessageContent(outcome api.DispatchOutcome) string {
	if outcome.Status == api.StatusExecuted {
		if outcome.Result.Status == "error" {
			return "error: " + outcome.Result.Error
		}
		return outcome.Result.Content
	}
	return outcome.Reason
}

func (r *TurnRunner) newState() *api.State {
	return &api.State{
		SessionID: r.session.SessionID,
		TurnID:    r.turnID,
		Mode:      r.session.Mode,
		Handoff:   r.session.Handoff,
		Messages:  append([]api.LLMMessage(nil), r.session.Messages...),
		Metadata:  make(map[string]any),
	}
}

func (r *TurnRunner) refreshState(ctx context.Context, state *api.State) error {
	if state == nil {
		return nil
	}
	state.Mode = r.session.Mode
	state.Handoff = r.session.Handoff
	state.Messages = append([]api.LLMMessage(nil), r.session.Messages...)
	state.SystemPrompt = ""
	if state.Metadata == nil {
		state.Metadata = make(map[string]any)
	} else {
		for k := range state.Metadata {
			delete(state.Metadata, k)
		}
	}

	return r.chain.BeforeTurn(ctx, state)
}

func (r *TurnRunner) finalize(ctx context.Context) {
	// Suspended turns (waiting approval) must not be finalized.
	if r.turnOutcome == "" {
		return
	}

	summary := api.TurnSummary{
		SessionID:     r.session.SessionID,
		TurnID:        r.turnID,
		Mode:          r.session.Mode,
		Outcome:       r.turnOutcome,
		AssistantText: r.assistantText,
		Requests:      append([]api.ToolRequest(nil), r.requests...),
		Error:         r.turnError,
		StartedAt:     r.startedAt,
		FinishedAt:    time.Now(),
	}

	// Chain.AfterTurn runs in reverse registration order.
	_ = r.chain.AfterTurn(ctx, r.hookState, summary)

	// Prevent double-finalize.
	r.turnOutcome = ""
}

func (r *TurnRunner) saveSession(ctx context.Context) error {
	r.session.UpdatedAt = time.Now()
	return r.cfg.SessionStore.Put(ctx, r.session.SessionID, r.session)
}

func generateTurnID() string {
	return fmt.Sprintf("turn_%d", time.Now().UnixMilli())
}

func buildRequestMessages(systemPrompt string, messages []api.LLMMessage) []api.LLMMessage {
	if systemPrompt == "" {
		return append([]api.LLMMessage(nil), messages...)
	}
	out := make([]api.LLMMessage, 0, len(messages)+1)
	out = append(out, api.LLMMessage{Role: "system", Content: systemPrompt})
	out = append(out, messages...)
	return out
}

func errorsIsContextCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// errorCode picks the standard error code for a turn failure.
func errorCode(err error) string {
	msg := err.Error()
	for _, code := range []string{
		api.ErrCollaboratorUnavailable,
		api.ErrToolArgsInvalid,
		api.ErrStoreError,
	} {
		if strings.HasPrefix(msg, code) {
			return code
		}
	}
	return api.ErrToolExecuteFailed
}
