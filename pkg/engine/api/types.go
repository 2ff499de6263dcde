package api

import (
	"fmt"
	"strings"
	"time"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Modes
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Mode is one of the four fixed workflow states. Exactly one mode is
// active per session at any time.
type Mode string

const (
	ModeBrainstorm Mode = "brainstorm"
	ModePlan       Mode = "plan"
	ModeExecute    Mode = "execute"
	ModeDocument   Mode = "document"
)

// AllModes returns the modes in their natural workflow order.
func AllModes() []Mode {
	return []Mode{ModeBrainstorm, ModePlan, ModeExecute, ModeDocument}
}

// Valid reports whether m is one of the four workflow modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeBrainstorm, ModePlan, ModeExecute, ModeDocument:
		return true
	}
	return false
}

// DisplayName returns the user-facing name of the mode.
func (m Mode) DisplayName() string {
	switch m {
	case ModeBrainstorm:
		return "Brainstorm"
	case ModePlan:
		return "Plan"
	case ModeExecute:
		return "Execute"
	case ModeDocument:
		return "Document"
	}
	return string(m)
}

// Description returns a one-line summary shown in /help and the banner.
func (m Mode) Description() string {
	switch m {
	case ModeBrainstorm:
		return "Explore ideas and define your project"
	case ModePlan:
		return "Structure your project and create the scaffold"
	case ModeExecute:
		return "Implement your project based on the plan"
	case ModeDocument:
		return "Document what was built"
	}
	return ""
}

// Next returns the following mode in the natural workflow cycle
// (Document wraps back to Brainstorm).
func (m Mode) Next() Mode {
	switch m {
	case ModeBrainstorm:
		return ModePlan
	case ModePlan:
		return ModeExecute
	case ModeExecute:
		return ModeDocument
	case ModeDocument:
		return ModeBrainstorm
	}
	return ModeBrainstorm
}

// ParseMode resolves a user-supplied mode token. Single-letter shortcuts
// and common aliases are accepted.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "b", "brainstorm":
		return ModeBrainstorm, nil
	case "p", "plan":
		return ModePlan, nil
	case "e", "execute", "build":
		return ModeExecute, nil
	case "d", "doc", "document":
		return ModeDocument, nil
	}
	return "", fmt.Errorf("unknown mode %q (expected b|p|e|d)", s)
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Capabilities
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Capability is an atomic permission a mode may grant. The mapping from
// mode to capability set is fixed at compile time (see the capability
// package) and is not user-configurable.
type Capability string

const (
	CapReadFile        Capability = "read_file"
	CapCreateFile      Capability = "create_file"
	CapModifyFile      Capability = "modify_file"
	CapCreateDirectory Capability = "create_directory"
	CapExecuteCommand  Capability = "execute_command"
	CapWriteDocFile    Capability = "write_doc_file"
)

// Mutating reports whether the capability touches the workspace. Mutating
// requests are subject to path/command containment checks.
func (c Capability) Mutating() bool {
	return c != CapReadFile
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Tool Requests
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// RequestOrigin identifies who proposed a tool request. Capability rules
// apply uniformly regardless of origin.
type RequestOrigin string

const (
	OriginModel RequestOrigin = "model"
	OriginUser  RequestOrigin = "user"
)

// ToolPayload carries the data a tool request operates with: file content
// for writes, command line plus working directory for command execution.
type ToolPayload struct {
	Content    string `json:"content,omitempty"`
	Command    string `json:"command,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
}

// ToolRequest is a proposed, not-yet-executed file or command operation.
// It is created when the model emits a structured tool call and discarded
// once resolved (executed, denied, or superseded by a new turn).
type ToolRequest struct {
	ID      string        `json:"id"`
	Kind    Capability    `json:"kind"`
	Target  string        `json:"target"` // path, or empty for pure commands
	Payload ToolPayload   `json:"payload"`
	Origin  RequestOrigin `json:"origin,omitempty"`
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Approval
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// DecisionKind is the human's resolution of a pending tool request.
type DecisionKind string

const (
	DecisionApprove DecisionKind = "approve"
	DecisionDeny    DecisionKind = "deny"
	DecisionModify  DecisionKind = "modify"
)

// ApprovalDecision is the binding, immutable resolution of exactly one
// ToolRequest. For DecisionModify, ModifiedPayload replaces the request
// payload before execution.
type ApprovalDecision struct {
	Kind            DecisionKind `json:"kind"`
	RequestID       string       `json:"request_id"`
	ModifiedPayload *ToolPayload `json:"modified_payload,omitempty"`
}

// PreviewKind identifies the type of approval preview content.
type PreviewKind string

const (
	PreviewDiff    PreviewKind = "diff"    // unified diff for file writes
	PreviewTree    PreviewKind = "tree"    // directory listing for scaffolding
	PreviewCommand PreviewKind = "command" // literal command + working dir
)

// Preview is the deterministic, human-auditable rendering of a pending
// request shown by the approval gate.
type Preview struct {
	Kind     PreviewKind `json:"kind"`
	Summary  string      `json:"summary"`
	Content  string      `json:"content,omitempty"`
	Affected []string    `json:"affected,omitempty"`
}

// PendingRequest is the typed suspension point persisted on the session
// while a tool request waits for a human decision. Waiting is indefinite;
// there is deliberately no timeout.
type PendingRequest struct {
	TurnID    string      `json:"turn_id"`
	Request   ToolRequest `json:"request"`
	Preview   *Preview    `json:"preview,omitempty"`
	CreatedAt time.Time   `json:"created_at"`

	// LastSeq is the turn's event sequence at suspension, so a resumed
	// turn keeps its sequence monotonic.
	LastSeq int `json:"last_seq,omitempty"`
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Dispatch Outcomes
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// DispatchStatus classifies the result of submitting a tool request.
type DispatchStatus string

const (
	StatusExecuted         DispatchStatus = "executed"
	StatusRejected         DispatchStatus = "rejected"
	StatusCapabilityDenied DispatchStatus = "capability_denied"
	StatusPathEscapeDenied DispatchStatus = "path_escape_denied"
	StatusInvalid          DispatchStatus = "invalid" // request could not be parsed
)

// ToolResult is the outcome of executing an approved tool request.
type ToolResult struct {
	Content string `json:"content"`
	Status  string `json:"status"` // "success" | "error"
	Error   string `json:"error,omitempty"`
}

// DispatchOutcome is the final word on a submitted tool request. Reason
// carries the fixed explanatory message for denials.
type DispatchOutcome struct {
	Status DispatchStatus `json:"status"`
	Result ToolResult     `json:"result,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Context Handoff
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// HandoffVersion is the wire schema version for ContextHandoff.
const HandoffVersion = 1

// HandoffSummary is the bounded structured summary carried across a mode
// transition. Which fields are populated depends on the outgoing mode.
type HandoffSummary struct {
	// From Brainstorm
	ProjectName string   `json:"project_name,omitempty"`
	Description string   `json:"description,omitempty"`
	KeyFeatures []string `json:"key_features,omitempty"`
	Constraints []string `json:"constraints,omitempty"`

	// From Plan
	FileInventory []string `json:"file_inventory,omitempty"`
	TechStack     []string `json:"tech_stack,omitempty"`
	Milestones    []string `json:"milestones,omitempty"`

	// From Execute
	Implemented []string `json:"implemented,omitempty"`
	CommandsRun []string `json:"commands_run,omitempty"`
	TestStatus  string   `json:"test_status,omitempty"`

	// From Document
	Documents []string `json:"documents,omitempty"`

	// Common to every pair
	Decisions []string `json:"decisions,omitempty"`
	OpenItems []string `json:"open_items,omitempty"`
}

// ContextHandoff is the versioned record produced at each mode transition.
// A new handoff for the same (From, To) pair supersedes the previous one;
// handoffs are never merged.
type ContextHandoff struct {
	Version   int            `json:"version"`
	From      Mode           `json:"mode_from"`
	To        Mode           `json:"mode_to"`
	Summary   HandoffSummary `json:"summary"`
	CreatedAt time.Time      `json:"created_at"`
}

// HandoffArchive is the full transition history of one session. The
// session record keeps only the latest handoff; the archive keeps them
// all for audit.
type HandoffArchive struct {
	SessionID string           `json:"session_id"`
	Handoffs  []ContextHandoff `json:"handoffs"`
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Session Activity
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ActivityKind categorizes a session activity record. Records are the
// typed raw material the handoff builder extracts from.
type ActivityKind string

const (
	ActivityFeature    ActivityKind = "feature"
	ActivityDecision   ActivityKind = "decision"
	ActivityConstraint ActivityKind = "constraint"
	ActivityFile       ActivityKind = "file"
	ActivityCommand    ActivityKind = "command"
	ActivityTest       ActivityKind = "test"
	ActivityDocument   ActivityKind = "document"
	ActivityNote       ActivityKind = "note"
)

// ActivityRecord is a single fact observed during a mode's activity.
type ActivityRecord struct {
	Mode Mode         `json:"mode"`
	Kind ActivityKind `json:"kind"`
	Text string       `json:"text"`
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// LLM Types
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// LLMMessage represents a message in the LLM conversation.
type LLMMessage struct {
	Role       string        `json:"role"` // "system" | "user" | "assistant" | "tool"
	Content    string        `json:"content"`
	Mode       Mode          `json:"mode,omitempty"`
	ToolCalls  []LLMToolCall `json:"tool_calls,omitempty"`   // for assistant role
	ToolCallID string        `json:"tool_call_id,omitempty"` // for tool role
}

// LLMToolCall is a structured tool call emitted by the model. Args is the
// raw JSON argument string; it is parsed strictly by the turn runner.
type LLMToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args"`
}

// ToolSchema is the model-facing description of a capability executor.
type ToolSchema struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"` // JSON Schema-like
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Session Record
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Session is the persisted session record. The session owns the ordered
// message history, the active mode, the most recent handoff, the activity
// log, and at most one pending tool request.
type Session struct {
	SessionID string            `json:"session_id"`
	Project   string            `json:"project,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Mode      Mode              `json:"mode"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	Messages []LLMMessage     `json:"messages"`
	Activity []ActivityRecord `json:"activity,omitempty"`
	Handoff  *ContextHandoff  `json:"handoff,omitempty"`
	Pending  *PendingRequest  `json:"pending,omitempty"`

	// Queued holds the not-yet-reviewed tool calls of the batch whose
	// first approvable call is suspended in Pending. They are processed
	// one at a time as decisions arrive, so every call ID declared in
	// the assistant message gets a tool response.
	Queued []LLMToolCall `json:"queued_calls,omitempty"`
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Per-Turn State
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// State is the per-turn mutable state passed across middleware.
type State struct {
	SessionID string
	TurnID    string
	Mode      Mode

	SystemPrompt string
	Messages     []LLMMessage
	Handoff      *ContextHandoff

	Metadata map[string]any
}

// TurnOutcome represents how a turn completed.
type TurnOutcome string

const (
	TurnDone     TurnOutcome = "done"
	TurnError    TurnOutcome = "error"
	TurnCanceled TurnOutcome = "canceled"
)

// TurnSummary is an immutable view of a completed turn.
type TurnSummary struct {
	SessionID string
	TurnID    string
	Mode      Mode

	Outcome       TurnOutcome
	AssistantText string
	Requests      []ToolRequest
	Error         *ErrorPayload

	StartedAt  time.Time
	FinishedAt time.Time
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Standard Error Codes
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

const (
	ErrCapabilityDenied        = "capability_denied"
	ErrPathEscapeDenied        = "path_escape_denied"
	ErrApprovalDenied          = "approval_denied"
	ErrNoTransition            = "no_transition"
	ErrCollaboratorUnavailable = "collaborator_unavailable"

	ErrInvalidSession    = "invalid_session"
	ErrTurnInProgress    = "turn_in_progress"
	ErrNoPendingApproval = "no_pending_approval"
	ErrApprovalMismatch  = "approval_mismatch"
	ErrToolArgsInvalid   = "tool_args_invalid"
	ErrToolExecuteFailed = "tool_execute_failed"
	ErrStoreError        = "store_error"
)
