package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"Bindr/pkg/engine/api"
	"Bindr/pkg/engine/tools"
)

// scriptedGate returns pre-canned decisions in order.
type scriptedGate struct {
	decisions []api.ApprovalDecision
	presented []api.ToolRequest
}

func (g *scriptedGate) Present(_ context.Context, req api.ToolRequest, _ *api.Preview) (api.ApprovalDecision, error) {
	g.presented = append(g.presented, req)
	d := g.decisions[0]
	g.decisions = g.decisions[1:]
	d.RequestID = req.ID
	return d, nil
}

func newDispatcher(t *testing.T) (*Dispatcher, string) {
	t.Helper()
	root := t.TempDir()
	return New(root, tools.DefaultRegistry(root)), root
}

func TestReview_CapabilityDeniedInBrainstorm(t *testing.T) {
	d, _ := newDispatcher(t)

	req := api.ToolRequest{
		ID:      "r1",
		Kind:    api.CapCreateFile,
		Target:  "a.txt",
		Payload: api.ToolPayload{Content: "x"},
	}
	rev, denied := d.Review(api.ModeBrainstorm, req)
	if rev != nil || denied == nil {
		t.Fatal("expected denial")
	}
	if denied.Status != api.StatusCapabilityDenied {
		t.Fatalf("expected capability_denied, got %s", denied.Status)
	}
	if !strings.Contains(denied.Reason, "create_file") || !strings.Contains(denied.Reason, "Brainstorm") {
		t.Fatalf("reason should name capability and mode: %q", denied.Reason)
	}
}

func TestReview_SameRequestAllowedInExecute(t *testing.T) {
	d, _ := newDispatcher(t)

	req := api.ToolRequest{
		ID:      "r1",
		Kind:    api.CapCreateFile,
		Target:  "a.txt",
		Payload: api.ToolPayload{Content: "x"},
	}
	rev, denied := d.Review(api.ModeExecute, req)
	if denied != nil {
		t.Fatalf("unexpected denial: %+v", denied)
	}
	if rev.Preview == nil || rev.Preview.Kind != api.PreviewDiff {
		t.Fatalf("expected diff preview, got %+v", rev.Preview)
	}
}

func TestReview_ScaffoldingDeniedInExecute(t *testing.T) {
	d, root := newDispatcher(t)

	req := api.ToolRequest{
		ID:     "r1",
		Kind:   api.CapCreateDirectory,
		Target: "newdir",
	}
	rev, denied := d.Review(api.ModeExecute, req)
	if rev != nil || denied == nil {
		t.Fatal("expected denial")
	}
	if denied.Status != api.StatusCapabilityDenied {
		t.Fatalf("expected capability_denied, got %s", denied.Status)
	}
	if _, err := os.Stat(filepath.Join(root, "newdir")); !os.IsNotExist(err) {
		t.Fatal("denied request must not touch the workspace")
	}
}

func TestReview_PathEscapeDeniedBeforeGate(t *testing.T) {
	d, _ := newDispatcher(t)

	req := api.ToolRequest{
		ID:      "r1",
		Kind:    api.CapCreateFile,
		Target:  "../outside.txt",
		Payload: api.ToolPayload{Content: "x"},
	}
	rev, denied := d.Review(api.ModeExecute, req)
	if rev != nil || denied == nil || denied.Status != api.StatusPathEscapeDenied {
		t.Fatalf("expected path_escape_denied, got %+v", denied)
	}
}

func TestReview_CommandWorkingDirContained(t *testing.T) {
	d, _ := newDispatcher(t)

	req := api.ToolRequest{
		ID:      "r1",
		Kind:    api.CapExecuteCommand,
		Payload: api.ToolPayload{Command: "ls", WorkingDir: "../.."},
	}
	_, denied := d.Review(api.ModeExecute, req)
	if denied == nil || denied.Status != api.StatusPathEscapeDenied {
		t.Fatalf("expected path_escape_denied, got %+v", denied)
	}
}

func TestSubmit_ApproveExecutes(t *testing.T) {
	d, root := newDispatcher(t)
	gate := &scriptedGate{decisions: []api.ApprovalDecision{{Kind: api.DecisionApprove}}}

	req := api.ToolRequest{
		ID:      "r1",
		Kind:    api.CapCreateFile,
		Target:  "a.txt",
		Payload: api.ToolPayload{Content: "hello"},
	}
	outcome, err := d.Submit(context.Background(), api.ModeExecute, req, gate)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Status != api.StatusExecuted || outcome.Result.Status != "success" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	if err != nil || string(data) != "hello" {
		t.Fatalf("file not written: %v %q", err, data)
	}
}

func TestSubmit_DenyLeavesWorkspaceUntouched(t *testing.T) {
	d, root := newDispatcher(t)
	gate := &scriptedGate{decisions: []api.ApprovalDecision{{Kind: api.DecisionDeny}}}

	before := snapshotDir(t, root)

	req := api.ToolRequest{
		ID:      "r1",
		Kind:    api.CapCreateFile,
		Target:  "a.txt",
		Payload: api.ToolPayload{Content: "hello"},
	}
	outcome, err := d.Submit(context.Background(), api.ModeExecute, req, gate)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Status != api.StatusRejected {
		t.Fatalf("expected rejected, got %s", outcome.Status)
	}

	if after := snapshotDir(t, root); after != before {
		t.Fatalf("workspace changed on deny:\nbefore=%s\nafter=%s", before, after)
	}
}

func TestSubmit_ModifyExecutesModifiedPayload(t *testing.T) {
	d, root := newDispatcher(t)
	gate := &scriptedGate{decisions: []api.ApprovalDecision{{
		Kind:            api.DecisionModify,
		ModifiedPayload: &api.ToolPayload{Content: "edited"},
	}}}

	req := api.ToolRequest{
		ID:      "r1",
		Kind:    api.CapCreateFile,
		Target:  "a.txt",
		Payload: api.ToolPayload{Content: "original"},
	}
	outcome, err := d.Submit(context.Background(), api.ModeExecute, req, gate)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Status != api.StatusExecuted {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	data, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	if string(data) != "edited" {
		t.Fatalf("modified payload not used: %q", data)
	}
}

func TestResolve_RequestIDMismatchIsError(t *testing.T) {
	d, _ := newDispatcher(t)

	req := api.ToolRequest{ID: "r1", Kind: api.CapReadFile, Target: "a.txt"}
	rev, denied := d.Review(api.ModeBrainstorm, req)
	if denied != nil {
		t.Fatalf("unexpected denial: %+v", denied)
	}

	_, err := d.Resolve(context.Background(), rev, api.ApprovalDecision{
		Kind:      api.DecisionApprove,
		RequestID: "other",
	})
	if err == nil {
		t.Fatal("expected error for mismatched request id")
	}
}

func TestResolve_ModifiedWorkingDirRechecked(t *testing.T) {
	d, _ := newDispatcher(t)

	req := api.ToolRequest{
		ID:      "r1",
		Kind:    api.CapExecuteCommand,
		Payload: api.ToolPayload{Command: "ls"},
	}
	rev, denied := d.Review(api.ModeExecute, req)
	if denied != nil {
		t.Fatalf("unexpected denial: %+v", denied)
	}

	outcome, err := d.Resolve(context.Background(), rev, api.ApprovalDecision{
		Kind:            api.DecisionModify,
		RequestID:       "r1",
		ModifiedPayload: &api.ToolPayload{Command: "ls", WorkingDir: "../.."},
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Status != api.StatusPathEscapeDenied {
		t.Fatalf("expected path_escape_denied for modified working dir, got %s", outcome.Status)
	}
}

func snapshotDir(t *testing.T, root string) string {
	t.Helper()
	var sb strings.Builder
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		sb.WriteString(path + "\n")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return sb.String()
}
