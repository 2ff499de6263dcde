package middleware

import (
	"context"
	"strings"
	"testing"
	"time"

	"Bindr/pkg/engine/api"
	"Bindr/pkg/engine/prompts"
)

type orderProbe struct {
	BaseMiddleware
	log *[]string
}

func (p *orderProbe) BeforeTurn(ctx context.Context, state *api.State) error {
	*p.log = append(*p.log, "before:"+p.Name())
	return nil
}

func (p *orderProbe) AfterTurn(ctx context.Context, state *api.State, s api.TurnSummary) error {
	*p.log = append(*p.log, "after:"+p.Name())
	return nil
}

func TestChain_AfterTurnRunsInReverse(t *testing.T) {
	var log []string
	chain := NewChain(
		&orderProbe{NewBaseMiddleware("a"), &log},
		&orderProbe{NewBaseMiddleware("b"), &log},
	)

	state := &api.State{}
	if err := chain.BeforeTurn(context.Background(), state); err != nil {
		t.Fatal(err)
	}
	if err := chain.AfterTurn(context.Background(), state, api.TurnSummary{}); err != nil {
		t.Fatal(err)
	}

	want := []string{"before:a", "before:b", "after:b", "after:a"}
	if strings.Join(log, ",") != strings.Join(want, ",") {
		t.Fatalf("got order %v, want %v", log, want)
	}
}

func TestModePrompt_InjectsModeAndCapabilities(t *testing.T) {
	m := NewModePromptMiddleware(prompts.DefaultLoader)
	state := &api.State{Mode: api.ModeBrainstorm}

	if err := m.BeforeTurn(context.Background(), state); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(state.SystemPrompt, "Brainstorm mode") {
		t.Fatal("missing mode prompt")
	}
	if !strings.Contains(state.SystemPrompt, "read_file") {
		t.Fatal("missing capability list")
	}
	if strings.Contains(state.SystemPrompt, "execute_command") {
		t.Fatal("brainstorm prompt should not offer execute_command")
	}
}

func TestHandoff_InjectedOnlyForDestinationMode(t *testing.T) {
	h := &api.ContextHandoff{
		Version: api.HandoffVersion,
		From:    api.ModeBrainstorm,
		To:      api.ModePlan,
		Summary: api.HandoffSummary{ProjectName: "taskly"},
	}
	m := NewHandoffMiddleware()

	state := &api.State{Mode: api.ModePlan, Handoff: h}
	if err := m.BeforeTurn(context.Background(), state); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(state.SystemPrompt, "taskly") {
		t.Fatal("handoff summary not injected")
	}

	state = &api.State{Mode: api.ModeExecute, Handoff: h}
	if err := m.BeforeTurn(context.Background(), state); err != nil {
		t.Fatal(err)
	}
	if state.SystemPrompt != "" {
		t.Fatal("handoff injected for non-destination mode")
	}
}

type captureRecorder struct {
	records []api.ActivityRecord
}

func (r *captureRecorder) RecordActivity(_ string, rec api.ActivityRecord) {
	r.records = append(r.records, rec)
}

func TestActivity_RecordsExecutedResults(t *testing.T) {
	rec := &captureRecorder{}
	m := NewActivityMiddleware(rec)
	state := &api.State{SessionID: "s1", Mode: api.ModeExecute}

	ev := func(kind api.Capability, target, command, resultStatus string, status api.DispatchStatus) api.Event {
		return api.Event{
			Version: api.EventVersion, Type: api.EventToolResult, Ts: time.Now(),
			ToolResult: &api.ToolResultPayload{
				RequestID: "r1", Kind: kind, Target: target, Command: command,
				Status: status, Result: api.ToolResult{Status: resultStatus, Content: "ok"},
			},
		}
	}

	must := func(e api.Event) {
		t.Helper()
		if err := m.OnEvent(context.Background(), state, e); err != nil {
			t.Fatal(err)
		}
	}

	must(ev(api.CapCreateFile, "src/main.go", "", "success", api.StatusExecuted))
	must(ev(api.CapExecuteCommand, "", "go build ./...", "success", api.StatusExecuted))
	// Denied and failed results must not produce activity.
	must(ev(api.CapCreateFile, "x.go", "", "", api.StatusCapabilityDenied))
	must(ev(api.CapCreateFile, "y.go", "", "error", api.StatusExecuted))

	if len(rec.records) != 2 {
		t.Fatalf("expected 2 records, got %v", rec.records)
	}
	if rec.records[0].Kind != api.ActivityFile || rec.records[0].Text != "src/main.go" {
		t.Fatalf("bad file record: %+v", rec.records[0])
	}
	if rec.records[1].Kind != api.ActivityCommand || rec.records[1].Text != "go build ./..." {
		t.Fatalf("bad command record: %+v", rec.records[1])
	}
}

func TestActivity_TestCommandBecomesTestStatus(t *testing.T) {
	rec := &captureRecorder{}
	m := NewActivityMiddleware(rec)
	state := &api.State{SessionID: "s1", Mode: api.ModeExecute}

	e := api.Event{
		Type: api.EventToolResult,
		ToolResult: &api.ToolResultPayload{
			Kind: api.CapExecuteCommand, Command: "go test ./...",
			Status: api.StatusExecuted,
			Result: api.ToolResult{Status: "success", Content: "ok  \tBindr\t0.3s"},
		},
	}
	if err := m.OnEvent(context.Background(), state, e); err != nil {
		t.Fatal(err)
	}
	if len(rec.records) != 1 || rec.records[0].Kind != api.ActivityTest {
		t.Fatalf("expected test record, got %+v", rec.records)
	}
}
