package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"Bindr/cmd/ui"
	"Bindr/pkg/engine/api"
)

// approvalState carries the user's standing approval choices across the
// requests of a single turn.
type approvalState struct {
	autoApproveAll bool
}

// runTurnWithApprovals drives one turn to completion, resuming through
// as many approval suspensions as the turn produces.
func runTurnWithApprovals(ctx context.Context, eng api.Engine, sessionID, message string, approver ui.Approver, a *approvalState) error {
	stream, err := eng.Send(ctx, sessionID, message)
	if err != nil {
		return err
	}

	for {
		pending, err := consumeEventStream(ctx, stream)
		if err != nil {
			return err
		}
		if pending == nil {
			return nil
		}

		var decision api.ApprovalDecision
		if a.autoApproveAll {
			fmt.Printf("\n✅ Auto-approved: %s %s\n", pending.Request.Kind, pending.Request.Target)
			decision = api.ApprovalDecision{Kind: api.DecisionApprove, RequestID: pending.RequestID}
		} else {
			d, approveAll, err := approver.RequestApproval(*pending)
			if err != nil {
				return err
			}
			decision = d
			if approveAll {
				a.autoApproveAll = true
			}
		}

		stream, err = eng.Resume(ctx, sessionID, decision)
		if err != nil {
			// The suspension may have been resolved out of band.
			if strings.Contains(err.Error(), api.ErrNoPendingApproval) {
				return nil
			}
			return err
		}
	}
}

// resumePendingRequest drives a suspension that survived a restart: the
// persisted pending request is put back in front of the user before any
// new input is accepted.
func resumePendingRequest(ctx context.Context, eng api.Engine, session *api.Session, approver ui.Approver, a *approvalState) error {
	pending := session.Pending
	fmt.Println("\n⏸ This session has a tool request waiting for your decision.")

	decision, approveAll, err := approver.RequestApproval(api.ApprovalPayload{
		RequestID: pending.Request.ID,
		Request:   pending.Request,
		Preview:   pending.Preview,
	})
	if err != nil {
		return err
	}
	if approveAll {
		a.autoApproveAll = true
	}

	stream, err := eng.Resume(ctx, session.SessionID, decision)
	if err != nil {
		return err
	}
	for {
		next, err := consumeEventStream(ctx, stream)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		d, approveAll, err := approver.RequestApproval(*next)
		if err != nil {
			return err
		}
		if approveAll {
			a.autoApproveAll = true
		}
		stream, err = eng.Resume(ctx, session.SessionID, d)
		if err != nil {
			return err
		}
	}
}

// consumeEventStream renders events until the stream ends or the turn
// suspends for approval. A non-nil ApprovalPayload means the caller must
// resolve it and resume.
func consumeEventStream(ctx context.Context, stream api.EventStream) (*api.ApprovalPayload, error) {
	defer stream.Close()

	turnCtx, cancelTurn := context.WithCancel(ctx)
	defer cancelTurn()
	stopMonitor := monitorCancellation(cancelTurn)
	defer stopMonitor()

	stopSpinner, spinnerDone := ui.StartLoading("Thinking...")
	firstEvent := true
	stopLoading := func() {
		if firstEvent {
			close(stopSpinner)
			<-spinnerDone
			firstEvent = false
		}
	}
	defer stopLoading()

	assistantStarted := false
	toolArgLine := false
	clearToolArgLine := func() {
		if toolArgLine {
			fmt.Print("\r\033[K")
			toolArgLine = false
		}
	}

	for {
		event, err := stream.Recv(turnCtx)
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			if turnCtx.Err() != nil {
				stopLoading()
				ui.Println("\n⏹ Turn canceled.")
				return nil, nil
			}
			return nil, err
		}
		stopLoading()

		switch event.Type {
		case api.EventDelta:
			if event.Delta.Source == api.DeltaToolArg {
				// Scroll the streamed arguments on one dim line.
				tail := strings.ReplaceAll(event.Delta.Text, "\n", " ")
				if len(tail) > 80 {
					tail = tail[len(tail)-80:]
				}
				fmt.Printf("\r\033[90m   %s\033[0m\033[K", tail)
				toolArgLine = true
				continue
			}
			clearToolArgLine()
			if !assistantStarted {
				ui.Print("\n🤖 ")
				assistantStarted = true
			}
			ui.Print(event.Delta.Text)

		case api.EventToolRequest:
			clearToolArgLine()
			assistantStarted = false
			req := event.ToolRequest.Request
			target := req.Target
			if target == "" {
				target = req.Payload.Command
			}
			ui.Printf("\n🔧 %s %s\n", req.Kind, target)

		case api.EventToolResult:
			clearToolArgLine()
			printToolResult(event.ToolResult)

		case api.EventApproval:
			clearToolArgLine()
			return event.Approval, nil

		case api.EventModeChange:
			clearToolArgLine()
			mc := event.ModeChange
			ui.Printf("\n⇄ %s → %s\n", mc.From.DisplayName(), mc.To.DisplayName())

		case api.EventError:
			clearToolArgLine()
			return nil, fmt.Errorf("%s: %s", event.Error.Code, event.Error.Message)

		case api.EventDone:
			clearToolArgLine()
			if event.Done.Status == "rejected" {
				ui.Println("\n✗ Request denied; turn ended.")
			}
			ui.Println()
			return nil, nil
		}
	}
}

func printToolResult(res *api.ToolResultPayload) {
	switch res.Status {
	case api.StatusExecuted:
		if res.Result.Status == "error" {
			ui.Printf("   ⚠️  %s\n", res.Result.Error)
			return
		}
		content := res.Result.Content
		if len(content) > 200 {
			content = content[:200] + "..."
		}
		if content != "" {
			ui.Printf("   ✓ %s\n", firstLine(content))
		} else {
			ui.Println("   ✓ done")
		}
	case api.StatusCapabilityDenied, api.StatusPathEscapeDenied:
		ui.Printf("   ⛔ %s\n", res.Reason)
	case api.StatusRejected:
		ui.Printf("   ✗ %s\n", res.Reason)
	case api.StatusInvalid:
		ui.Printf("   ⚠️  %s\n", res.Reason)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
