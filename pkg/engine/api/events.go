package api

import (
	"context"
	"time"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Event Stream
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// EventVersion is the wire schema version for Event.
const EventVersion = 1

// EventType discriminates the Event union. Exactly one payload field is
// populated for each type.
type EventType string

const (
	EventDelta       EventType = "delta"        // streamed assistant text
	EventToolRequest EventType = "tool_request" // model proposed a tool call
	EventToolResult  EventType = "tool_result"  // an approved request executed
	EventApproval    EventType = "approval"     // turn suspended for a decision
	EventModeChange  EventType = "mode_change"  // mode transitioned
	EventDone        EventType = "done"         // turn finished
	EventError       EventType = "error"        // turn failed
)

// Event is the single item type carried on a turn's event stream. Seq is
// monotonically increasing within a turn.
type Event struct {
	Version   int       `json:"v"`
	SessionID string    `json:"session_id"`
	TurnID    string    `json:"turn_id"`
	Seq       int       `json:"seq"`
	Type      EventType `json:"type"`
	Ts        time.Time `json:"ts"`

	Delta       *DeltaPayload       `json:"delta,omitempty"`
	ToolRequest *ToolRequestPayload `json:"tool_request,omitempty"`
	ToolResult  *ToolResultPayload  `json:"tool_result,omitempty"`
	Approval    *ApprovalPayload    `json:"approval,omitempty"`
	ModeChange  *ModeChangePayload  `json:"mode_change,omitempty"`
	Done        *DonePayload        `json:"done,omitempty"`
	Error       *ErrorPayload       `json:"error,omitempty"`
}

// DeltaSource distinguishes assistant prose from streamed tool
// arguments so the UI can render them differently.
type DeltaSource string

const (
	DeltaText    DeltaSource = "text"
	DeltaToolArg DeltaSource = "tool_arg"
)

// DeltaPayload carries a chunk of streamed assistant text.
type DeltaPayload struct {
	Text   string      `json:"text"`
	Source DeltaSource `json:"source,omitempty"`
}

// ToolRequestPayload announces a proposed tool request before review.
type ToolRequestPayload struct {
	Request ToolRequest `json:"request"`
}

// ToolResultPayload carries the outcome of a resolved tool request.
// Target and Command echo the request so consumers do not need to keep
// the original request around.
type ToolResultPayload struct {
	RequestID string         `json:"request_id"`
	Kind      Capability     `json:"kind"`
	Target    string         `json:"target,omitempty"`
	Command   string         `json:"command,omitempty"`
	Status    DispatchStatus `json:"status"`
	Result    ToolResult     `json:"result,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// ApprovalPayload signals the turn is suspended awaiting a decision.
// The consumer must call Engine.Resume with a decision for RequestID.
type ApprovalPayload struct {
	RequestID string      `json:"request_id"`
	Request   ToolRequest `json:"request"`
	Preview   *Preview    `json:"preview,omitempty"`
}

// ModeChangePayload announces a completed mode transition.
type ModeChangePayload struct {
	From    Mode            `json:"from"`
	To      Mode            `json:"to"`
	Handoff *ContextHandoff `json:"handoff,omitempty"`
	Trigger string          `json:"trigger"` // "command" | "directive" | "cycle"
}

// DonePayload terminates a turn's stream.
type DonePayload struct {
	Status string `json:"status"` // "completed" | "rejected" | "canceled"
}

// ErrorPayload carries a structured turn failure.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventStream is a read-only, ordered stream of turn events. Recv blocks
// until an event is available; it returns io.EOF once the stream ends.
type EventStream interface {
	Recv(ctx context.Context) (Event, error)
	Close() error
}
