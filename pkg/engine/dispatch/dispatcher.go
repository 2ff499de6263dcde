// Package dispatch implements the tool-permission pipeline: capability
// review against the active mode, workspace containment, the human
// approval gate, and finally execution. No tool request reaches an
// executor without passing through this package.
package dispatch

import (
	"context"
	"fmt"

	"Bindr/pkg/engine/api"
	"Bindr/pkg/engine/capability"
	"Bindr/pkg/engine/tools"
)

// Denial reasons are fixed strings so transcripts stay comparable.
const (
	reasonCapability = "capability %s is not permitted in %s mode"
	reasonPathEscape = "target resolves outside the project workspace: %s"
	reasonDenied     = "request denied by user"
)

// Reviewed is a request that has cleared capability and containment
// checks and is ready for the approval gate.
type Reviewed struct {
	Request api.ToolRequest
	Preview *api.Preview

	executor tools.Executor
	root     string
}

// Dispatcher routes tool requests through review, approval, and
// execution against a single workspace root.
type Dispatcher struct {
	registry      *tools.Registry
	workspaceRoot string
}

func New(workspaceRoot string, registry *tools.Registry) *Dispatcher {
	return &Dispatcher{registry: registry, workspaceRoot: workspaceRoot}
}

// Review checks a request against the active mode's capability set and
// the workspace boundary. It returns either a Reviewed request ready for
// the gate, or a terminal denial outcome. Review never executes anything.
func (d *Dispatcher) Review(mode api.Mode, req api.ToolRequest) (*Reviewed, *api.DispatchOutcome) {
	if !capability.Allows(mode, req.Kind) {
		return nil, &api.DispatchOutcome{
			Status: api.StatusCapabilityDenied,
			Reason: fmt.Sprintf(reasonCapability, req.Kind, mode.DisplayName()),
		}
	}

	if outcome := d.checkContainment(req); outcome != nil {
		return nil, outcome
	}

	ex, ok := d.registry.Get(req.Kind)
	if !ok {
		return nil, &api.DispatchOutcome{
			Status: api.StatusCapabilityDenied,
			Reason: fmt.Sprintf("no executor for capability %s", req.Kind),
		}
	}

	return &Reviewed{
		Request:  req,
		Preview:  ex.Preview(req),
		executor: ex,
		root:     d.workspaceRoot,
	}, nil
}

// checkContainment resolves the request's paths against the workspace
// root. Read-only requests are checked too so a denial is reported as a
// containment violation rather than a late executor error.
func (d *Dispatcher) checkContainment(req api.ToolRequest) *api.DispatchOutcome {
	if req.Target != "" {
		if _, err := tools.Resolve(d.workspaceRoot, req.Target); err != nil {
			return &api.DispatchOutcome{
				Status: api.StatusPathEscapeDenied,
				Reason: fmt.Sprintf(reasonPathEscape, req.Target),
			}
		}
	}
	if req.Kind == api.CapExecuteCommand && req.Payload.WorkingDir != "" {
		if _, err := tools.Resolve(d.workspaceRoot, req.Payload.WorkingDir); err != nil {
			return &api.DispatchOutcome{
				Status: api.StatusPathEscapeDenied,
				Reason: fmt.Sprintf(reasonPathEscape, req.Payload.WorkingDir),
			}
		}
	}
	if req.Kind == api.CapWriteDocFile && !tools.IsDocTarget(req.Target) {
		return &api.DispatchOutcome{
			Status: api.StatusCapabilityDenied,
			Reason: fmt.Sprintf("write_doc_file target is not a documentation file: %s", req.Target),
		}
	}
	return nil
}

// Resolve applies a gate decision to a reviewed request. Approve and
// modify execute; deny terminates the request with no side effects. A
// modified payload is re-checked for containment before execution.
func (d *Dispatcher) Resolve(ctx context.Context, rev *Reviewed, decision api.ApprovalDecision) (api.DispatchOutcome, error) {
	if decision.RequestID != rev.Request.ID {
		return api.DispatchOutcome{}, fmt.Errorf("decision request_id %q does not match pending request %q",
			decision.RequestID, rev.Request.ID)
	}

	switch decision.Kind {
	case api.DecisionDeny:
		return api.DispatchOutcome{
			Status: api.StatusRejected,
			Reason: reasonDenied,
		}, nil

	case api.DecisionModify:
		if decision.ModifiedPayload == nil {
			return api.DispatchOutcome{}, fmt.Errorf("modify decision carries no payload")
		}
		req := rev.Request
		req.Payload = *decision.ModifiedPayload
		if outcome := d.checkContainment(req); outcome != nil {
			return *outcome, nil
		}
		return d.execute(ctx, rev.executor, req), nil

	case api.DecisionApprove:
		return d.execute(ctx, rev.executor, rev.Request), nil

	default:
		return api.DispatchOutcome{}, fmt.Errorf("unknown decision kind: %s", decision.Kind)
	}
}

func (d *Dispatcher) execute(ctx context.Context, ex tools.Executor, req api.ToolRequest) api.DispatchOutcome {
	result := ex.Execute(ctx, req)
	return api.DispatchOutcome{Status: api.StatusExecuted, Result: result}
}

// Gate is the human decision point. Present blocks until a decision is
// available; there is no timeout and no default.
type Gate interface {
	Present(ctx context.Context, req api.ToolRequest, preview *api.Preview) (api.ApprovalDecision, error)
}

// Submit runs the full pipeline synchronously: review, gate, resolve.
// The suspend/resume turn runner composes Review and Resolve itself;
// Submit serves callers that hold a gate in hand.
func (d *Dispatcher) Submit(ctx context.Context, mode api.Mode, req api.ToolRequest, gate Gate) (api.DispatchOutcome, error) {
	rev, denied := d.Review(mode, req)
	if denied != nil {
		return *denied, nil
	}

	decision, err := gate.Present(ctx, rev.Request, rev.Preview)
	if err != nil {
		return api.DispatchOutcome{}, fmt.Errorf("approval gate: %w", err)
	}
	return d.Resolve(ctx, rev, decision)
}
