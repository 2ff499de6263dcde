package runtime

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"Bindr/pkg/engine/api"
)

func newTestEngine(t *testing.T, mock *MockLLM) (*Engine, string) {
	t.Helper()
	workspace := t.TempDir()
	eng, err := NewEngine(EngineConfig{
		LLM:           mock,
		WorkspaceRoot: workspace,
		StateRoot:     t.TempDir(),
		DefaultModel:  "test-model",
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng, workspace
}

// drain consumes a stream to completion and returns all events.
func drain(t *testing.T, stream api.EventStream) []api.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []api.Event
	for {
		e, err := stream.Recv(ctx)
		if err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("stream recv: %v", err)
		}
		events = append(events, e)
	}
	stream.Close()
	return events
}

func eventsOfType(events []api.Event, typ api.EventType) []api.Event {
	var out []api.Event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestEngine_PlainTextTurn(t *testing.T) {
	mock := &MockLLM{}
	mock.Enqueue(MockResponse{Text: "Let's sketch the idea first."})
	eng, _ := newTestEngine(t, mock)
	ctx := context.Background()

	sess, err := eng.StartSession(ctx, api.ModeBrainstorm, "demo")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	stream, err := eng.Send(ctx, sess.SessionID, "I want to build a task tracker")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	events := drain(t, stream)

	if len(eventsOfType(events, api.EventDelta)) == 0 {
		t.Error("expected delta events")
	}
	dones := eventsOfType(events, api.EventDone)
	if len(dones) != 1 || dones[0].Done.Status != "completed" {
		t.Fatalf("done events = %+v", dones)
	}

	// Seq must increase monotonically.
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Fatalf("seq not monotonic at %d: %d then %d", i, events[i-1].Seq, events[i].Seq)
		}
	}

	got, err := eng.GetSession(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("messages = %d, want user + assistant", len(got.Messages))
	}
	if got.Messages[1].Content != "Let's sketch the idea first." {
		t.Errorf("assistant message = %q", got.Messages[1].Content)
	}
}

func TestEngine_CapabilityDeniedInBrainstorm(t *testing.T) {
	mock := &MockLLM{}
	mock.Enqueue(
		MockResponse{ToolCalls: []api.LLMToolCall{{
			ID:   "call_1",
			Name: "create_file",
			Args: `{"path":"main.go","content":"package main"}`,
		}}},
		MockResponse{Text: "I can't write files while brainstorming."},
	)
	eng, workspace := newTestEngine(t, mock)
	ctx := context.Background()

	sess, _ := eng.StartSession(ctx, api.ModeBrainstorm, "demo")
	stream, err := eng.Send(ctx, sess.SessionID, "write the file")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	events := drain(t, stream)

	results := eventsOfType(events, api.EventToolResult)
	if len(results) != 1 {
		t.Fatalf("tool_result events = %d", len(results))
	}
	tr := results[0].ToolResult
	if tr.Status != api.StatusCapabilityDenied {
		t.Errorf("status = %q, want capability_denied", tr.Status)
	}
	if tr.Reason == "" {
		t.Error("denial must carry a reason")
	}
	if len(eventsOfType(events, api.EventApproval)) != 0 {
		t.Error("denied request must not reach the approval gate")
	}

	// The turn continues and completes; nothing was written.
	dones := eventsOfType(events, api.EventDone)
	if len(dones) != 1 || dones[0].Done.Status != "completed" {
		t.Fatalf("done = %+v", dones)
	}
	if _, err := os.Stat(filepath.Join(workspace, "main.go")); !os.IsNotExist(err) {
		t.Error("file must not exist after capability denial")
	}
}

func TestEngine_PathEscapeDenied(t *testing.T) {
	mock := &MockLLM{}
	mock.Enqueue(
		MockResponse{ToolCalls: []api.LLMToolCall{{
			ID:   "call_1",
			Name: "read_file",
			Args: `{"path":"../../etc/passwd"}`,
		}}},
		MockResponse{Text: "That path is off limits."},
	)
	eng, _ := newTestEngine(t, mock)
	ctx := context.Background()

	sess, _ := eng.StartSession(ctx, api.ModeBrainstorm, "demo")
	stream, err := eng.Send(ctx, sess.SessionID, "read it")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	events := drain(t, stream)

	results := eventsOfType(events, api.EventToolResult)
	if len(results) != 1 || results[0].ToolResult.Status != api.StatusPathEscapeDenied {
		t.Fatalf("tool_result = %+v", results)
	}
}

func TestEngine_ApproveFlow(t *testing.T) {
	mock := &MockLLM{}
	mock.Enqueue(
		MockResponse{ToolCalls: []api.LLMToolCall{{
			ID:   "call_1",
			Name: "create_file",
			Args: `{"path":"notes.go","content":"package notes\n"}`,
		}}},
		MockResponse{Text: "Created the file."},
	)
	eng, workspace := newTestEngine(t, mock)
	ctx := context.Background()

	sess, _ := eng.StartSession(ctx, api.ModePlan, "demo")
	stream, err := eng.Send(ctx, sess.SessionID, "scaffold it")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	events := drain(t, stream)

	approvals := eventsOfType(events, api.EventApproval)
	if len(approvals) != 1 {
		t.Fatalf("approval events = %d", len(approvals))
	}
	ap := approvals[0].Approval
	if ap.Preview == nil || ap.Preview.Kind != api.PreviewDiff {
		t.Fatalf("approval preview = %+v", ap.Preview)
	}

	// Suspended: pending persisted, nothing written yet.
	got, _ := eng.GetSession(ctx, sess.SessionID)
	if got.Pending == nil || got.Pending.Request.ID != ap.RequestID {
		t.Fatalf("pending = %+v", got.Pending)
	}
	if _, err := os.Stat(filepath.Join(workspace, "notes.go")); !os.IsNotExist(err) {
		t.Fatal("file must not exist before approval")
	}
	lastSeq := events[len(events)-1].Seq

	// Approve and resume.
	stream, err = eng.Resume(ctx, sess.SessionID, api.ApprovalDecision{
		Kind:      api.DecisionApprove,
		RequestID: ap.RequestID,
	})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	resumed := drain(t, stream)

	if resumed[0].Seq <= lastSeq {
		t.Errorf("resumed seq %d must continue after %d", resumed[0].Seq, lastSeq)
	}
	results := eventsOfType(resumed, api.EventToolResult)
	if len(results) != 1 || results[0].ToolResult.Status != api.StatusExecuted {
		t.Fatalf("tool_result = %+v", results)
	}
	dones := eventsOfType(resumed, api.EventDone)
	if len(dones) != 1 || dones[0].Done.Status != "completed" {
		t.Fatalf("done = %+v", dones)
	}

	data, err := os.ReadFile(filepath.Join(workspace, "notes.go"))
	if err != nil {
		t.Fatalf("approved file not written: %v", err)
	}
	if string(data) != "package notes\n" {
		t.Errorf("content = %q", data)
	}

	got, _ = eng.GetSession(ctx, sess.SessionID)
	if got.Pending != nil {
		t.Error("pending must clear after resolution")
	}
	// Executed file lands in the activity log for the handoff builder.
	// (Recorded by ActivityMiddleware when wired; the raw engine only
	// persists what the runner saw.)
}

func TestEngine_DenyEndsTurn(t *testing.T) {
	mock := &MockLLM{}
	mock.Enqueue(MockResponse{ToolCalls: []api.LLMToolCall{{
		ID:   "call_1",
		Name: "execute_command",
		Args: `{"command":"rm -rf ."}`,
	}}})
	eng, _ := newTestEngine(t, mock)
	ctx := context.Background()

	sess, _ := eng.StartSession(ctx, api.ModeExecute, "demo")
	stream, _ := eng.Send(ctx, sess.SessionID, "clean up")
	events := drain(t, stream)
	ap := eventsOfType(events, api.EventApproval)[0].Approval

	stream, err := eng.Resume(ctx, sess.SessionID, api.ApprovalDecision{
		Kind:      api.DecisionDeny,
		RequestID: ap.RequestID,
	})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	resumed := drain(t, stream)

	results := eventsOfType(resumed, api.EventToolResult)
	if len(results) != 1 || results[0].ToolResult.Status != api.StatusRejected {
		t.Fatalf("tool_result = %+v", results)
	}
	dones := eventsOfType(resumed, api.EventDone)
	if len(dones) != 1 || dones[0].Done.Status != "rejected" {
		t.Fatalf("done = %+v, want rejected", dones)
	}

	got, _ := eng.GetSession(ctx, sess.SessionID)
	if got.Pending != nil {
		t.Error("pending must clear after denial")
	}
	// The model was never consulted again: one enqueued script consumed.
	last := got.Messages[len(got.Messages)-1]
	if last.Role != "tool" {
		t.Errorf("last message role = %q, want the denial tool message", last.Role)
	}
}

// assertToolResponsesComplete checks that every tool call declared by
// an assistant message has a matching tool-role response. A transcript
// violating this is rejected by OpenAI-compatible endpoints.
func assertToolResponsesComplete(t *testing.T, msgs []api.LLMMessage) {
	t.Helper()
	answered := map[string]bool{}
	for _, m := range msgs {
		if m.Role == "tool" {
			answered[m.ToolCallID] = true
		}
	}
	for _, m := range msgs {
		if m.Role != "assistant" {
			continue
		}
		for _, tc := range m.ToolCalls {
			if !answered[tc.ID] {
				t.Errorf("tool call %s declared but never answered", tc.ID)
			}
		}
	}
}

func TestEngine_BatchedCallsApprovedOneAtATime(t *testing.T) {
	mock := &MockLLM{}
	mock.Enqueue(
		MockResponse{ToolCalls: []api.LLMToolCall{
			{ID: "call_1", Name: "create_file", Args: `{"path":"a.md","content":"alpha\n"}`},
			{ID: "call_2", Name: "create_file", Args: `{"path":"b.md","content":"beta\n"}`},
		}},
		MockResponse{Text: "Both files are in place."},
	)
	eng, workspace := newTestEngine(t, mock)
	ctx := context.Background()

	sess, _ := eng.StartSession(ctx, api.ModePlan, "demo")
	stream, _ := eng.Send(ctx, sess.SessionID, "write both files")
	events := drain(t, stream)

	approvals := eventsOfType(events, api.EventApproval)
	if len(approvals) != 1 || approvals[0].Approval.RequestID != "call_1" {
		t.Fatalf("first suspension approvals = %+v", approvals)
	}

	// The unreviewed remainder of the batch rides along with the
	// suspension so a restart cannot lose it.
	got, _ := eng.GetSession(ctx, sess.SessionID)
	if len(got.Queued) != 1 || got.Queued[0].ID != "call_2" {
		t.Fatalf("queued = %+v", got.Queued)
	}

	stream, err := eng.Resume(ctx, sess.SessionID, api.ApprovalDecision{
		Kind: api.DecisionApprove, RequestID: "call_1",
	})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	resumed := drain(t, stream)

	results := eventsOfType(resumed, api.EventToolResult)
	if len(results) != 1 || results[0].ToolResult.RequestID != "call_1" ||
		results[0].ToolResult.Status != api.StatusExecuted {
		t.Fatalf("first resume tool_result = %+v", results)
	}
	approvals = eventsOfType(resumed, api.EventApproval)
	if len(approvals) != 1 || approvals[0].Approval.RequestID != "call_2" {
		t.Fatalf("second suspension approvals = %+v", approvals)
	}
	if len(eventsOfType(resumed, api.EventDone)) != 0 {
		t.Fatal("turn must stay open while the batch has undecided calls")
	}

	stream, err = eng.Resume(ctx, sess.SessionID, api.ApprovalDecision{
		Kind: api.DecisionApprove, RequestID: "call_2",
	})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	resumed = drain(t, stream)

	dones := eventsOfType(resumed, api.EventDone)
	if len(dones) != 1 || dones[0].Done.Status != "completed" {
		t.Fatalf("done = %+v", dones)
	}
	for _, name := range []string{"a.md", "b.md"} {
		if _, err := os.Stat(filepath.Join(workspace, name)); err != nil {
			t.Errorf("approved file %s not written: %v", name, err)
		}
	}

	got, _ = eng.GetSession(ctx, sess.SessionID)
	if got.Pending != nil || len(got.Queued) != 0 {
		t.Errorf("pending = %+v, queued = %+v after the batch resolved", got.Pending, got.Queued)
	}
	assertToolResponsesComplete(t, got.Messages)
}

func TestEngine_BatchedCallsDenySupersedesRest(t *testing.T) {
	mock := &MockLLM{}
	mock.Enqueue(MockResponse{ToolCalls: []api.LLMToolCall{
		{ID: "call_1", Name: "create_file", Args: `{"path":"a.md","content":"alpha\n"}`},
		{ID: "call_2", Name: "create_file", Args: `{"path":"b.md","content":"beta\n"}`},
	}})
	eng, workspace := newTestEngine(t, mock)
	ctx := context.Background()

	sess, _ := eng.StartSession(ctx, api.ModePlan, "demo")
	stream, _ := eng.Send(ctx, sess.SessionID, "write both files")
	drain(t, stream)

	stream, err := eng.Resume(ctx, sess.SessionID, api.ApprovalDecision{
		Kind: api.DecisionDeny, RequestID: "call_1",
	})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	resumed := drain(t, stream)

	dones := eventsOfType(resumed, api.EventDone)
	if len(dones) != 1 || dones[0].Done.Status != "rejected" {
		t.Fatalf("done = %+v, want rejected", dones)
	}
	if _, err := os.Stat(filepath.Join(workspace, "b.md")); !os.IsNotExist(err) {
		t.Fatal("queued call must not run after the batch was denied")
	}

	got, _ := eng.GetSession(ctx, sess.SessionID)
	if got.Pending != nil || len(got.Queued) != 0 {
		t.Errorf("pending = %+v, queued = %+v after denial", got.Pending, got.Queued)
	}
	assertToolResponsesComplete(t, got.Messages)
}

func TestEngine_ResumeDecisionMismatch(t *testing.T) {
	mock := &MockLLM{}
	mock.Enqueue(MockResponse{ToolCalls: []api.LLMToolCall{{
		ID:   "call_1",
		Name: "create_file",
		Args: `{"path":"a.txt","content":"x"}`,
	}}})
	eng, _ := newTestEngine(t, mock)
	ctx := context.Background()

	sess, _ := eng.StartSession(ctx, api.ModePlan, "demo")
	stream, _ := eng.Send(ctx, sess.SessionID, "go")
	drain(t, stream)

	_, err := eng.Resume(ctx, sess.SessionID, api.ApprovalDecision{
		Kind:      api.DecisionApprove,
		RequestID: "req_other",
	})
	if err == nil {
		t.Fatal("expected approval mismatch error")
	}
}

func TestEngine_SendBlockedWhilePending(t *testing.T) {
	mock := &MockLLM{}
	mock.Enqueue(MockResponse{ToolCalls: []api.LLMToolCall{{
		ID:   "call_1",
		Name: "create_file",
		Args: `{"path":"a.txt","content":"x"}`,
	}}})
	eng, _ := newTestEngine(t, mock)
	ctx := context.Background()

	sess, _ := eng.StartSession(ctx, api.ModePlan, "demo")
	stream, _ := eng.Send(ctx, sess.SessionID, "go")
	drain(t, stream)

	if _, err := eng.Send(ctx, sess.SessionID, "more input"); err == nil {
		t.Fatal("Send must fail while an approval is pending")
	}
}

func TestEngine_ModifyFlow(t *testing.T) {
	mock := &MockLLM{}
	mock.Enqueue(
		MockResponse{ToolCalls: []api.LLMToolCall{{
			ID:   "call_1",
			Name: "create_file",
			Args: `{"path":"cfg.yaml","content":"debug: true\n"}`,
		}}},
		MockResponse{Text: "Done."},
	)
	eng, workspace := newTestEngine(t, mock)
	ctx := context.Background()

	sess, _ := eng.StartSession(ctx, api.ModePlan, "demo")
	stream, _ := eng.Send(ctx, sess.SessionID, "add config")
	events := drain(t, stream)
	ap := eventsOfType(events, api.EventApproval)[0].Approval

	stream, err := eng.Resume(ctx, sess.SessionID, api.ApprovalDecision{
		Kind:            api.DecisionModify,
		RequestID:       ap.RequestID,
		ModifiedPayload: &api.ToolPayload{Content: "debug: false\n"},
	})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	resumed := drain(t, stream)

	results := eventsOfType(resumed, api.EventToolResult)
	if len(results) != 1 || results[0].ToolResult.Status != api.StatusExecuted {
		t.Fatalf("tool_result = %+v", results)
	}

	data, err := os.ReadFile(filepath.Join(workspace, "cfg.yaml"))
	if err != nil {
		t.Fatalf("file not written: %v", err)
	}
	if string(data) != "debug: false\n" {
		t.Errorf("modified payload not applied, content = %q", data)
	}
}

func TestEngine_DirectiveTransition(t *testing.T) {
	mock := &MockLLM{}
	mock.Enqueue(MockResponse{Text: "Great, we have a plan.\n\n```json\n" +
		`{"directive":"mode_switch","target":"plan","summary":{"project_name":"taskr","key_features":["boards"],"decisions":["sqlite"]}}` +
		"\n```"})
	eng, _ := newTestEngine(t, mock)
	ctx := context.Background()

	sess, _ := eng.StartSession(ctx, api.ModeBrainstorm, "taskr")
	stream, _ := eng.Send(ctx, sess.SessionID, "sounds good, let's plan")
	events := drain(t, stream)

	changes := eventsOfType(events, api.EventModeChange)
	if len(changes) != 1 {
		t.Fatalf("mode_change events = %d", len(changes))
	}
	mc := changes[0].ModeChange
	if mc.From != api.ModeBrainstorm || mc.To != api.ModePlan || mc.Trigger != "directive" {
		t.Fatalf("mode_change = %+v", mc)
	}
	if mc.Handoff == nil || mc.Handoff.Version != api.HandoffVersion {
		t.Fatalf("handoff = %+v", mc.Handoff)
	}
	if mc.Handoff.Summary.ProjectName != "taskr" {
		t.Errorf("handoff project = %q", mc.Handoff.Summary.ProjectName)
	}

	got, _ := eng.GetSession(ctx, sess.SessionID)
	if got.Mode != api.ModePlan {
		t.Errorf("session mode = %q, want plan", got.Mode)
	}
	if got.Handoff == nil || got.Handoff.From != api.ModeBrainstorm {
		t.Errorf("session handoff = %+v", got.Handoff)
	}
}

func TestEngine_MalformedDirectiveIgnored(t *testing.T) {
	mock := &MockLLM{}
	mock.Enqueue(MockResponse{Text: "Switching!\n\n```json\n" +
		`{"directive":"mode_switch","target":"warp"}` + "\n```"})
	eng, _ := newTestEngine(t, mock)
	ctx := context.Background()

	sess, _ := eng.StartSession(ctx, api.ModeBrainstorm, "demo")
	stream, _ := eng.Send(ctx, sess.SessionID, "go")
	events := drain(t, stream)

	if len(eventsOfType(events, api.EventModeChange)) != 0 {
		t.Error("malformed directive must not transition")
	}
	dones := eventsOfType(events, api.EventDone)
	if len(dones) != 1 || dones[0].Done.Status != "completed" {
		t.Fatalf("done = %+v", dones)
	}
	got, _ := eng.GetSession(ctx, sess.SessionID)
	if got.Mode != api.ModeBrainstorm {
		t.Errorf("mode = %q, want brainstorm unchanged", got.Mode)
	}
}

func TestEngine_SwitchModeCommand(t *testing.T) {
	eng, _ := newTestEngine(t, &MockLLM{})
	ctx := context.Background()

	sess, _ := eng.StartSession(ctx, api.ModeBrainstorm, "taskr")
	eng.RecordActivity(sess.SessionID, api.ActivityRecord{
		Mode: api.ModeBrainstorm, Kind: api.ActivityFeature, Text: "kanban board",
	})

	updated, handoff, err := eng.SwitchMode(ctx, sess.SessionID, api.ModePlan)
	if err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if updated.Mode != api.ModePlan {
		t.Errorf("mode = %q", updated.Mode)
	}
	if handoff == nil || handoff.From != api.ModeBrainstorm || handoff.To != api.ModePlan {
		t.Fatalf("handoff = %+v", handoff)
	}
	if len(handoff.Summary.KeyFeatures) != 1 || handoff.Summary.KeyFeatures[0] != "kanban board" {
		t.Errorf("key_features = %v", handoff.Summary.KeyFeatures)
	}

	// Same-mode switch is a no-op.
	same, noHandoff, err := eng.SwitchMode(ctx, sess.SessionID, api.ModePlan)
	if err != nil {
		t.Fatalf("same-mode switch: %v", err)
	}
	if noHandoff != nil || same.Mode != api.ModePlan {
		t.Errorf("same-mode switch must be a no-op, handoff = %+v", noHandoff)
	}

	// The archive keeps the full transition history.
	archive, err := eng.handoffStore.Get(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("handoff archive: %v", err)
	}
	if len(archive.Handoffs) != 1 {
		t.Errorf("archived handoffs = %d", len(archive.Handoffs))
	}
}

func TestEngine_InvalidSession(t *testing.T) {
	eng, _ := newTestEngine(t, &MockLLM{})
	ctx := context.Background()

	if _, err := eng.Send(ctx, "session_missing", "hi"); err == nil {
		t.Error("Send to unknown session must fail")
	}
	if _, err := eng.GetSession(ctx, "session_missing"); err == nil {
		t.Error("GetSession of unknown session must fail")
	}
	if _, err := eng.Resume(ctx, "session_missing", api.ApprovalDecision{Kind: api.DecisionApprove, RequestID: "r"}); err == nil {
		t.Error("Resume of unknown session must fail")
	}
}

func TestParseInput(t *testing.T) {
	cases := []struct {
		line string
		want Input
	}{
		{"hello there", Input{Kind: InputMessage, Text: "hello there"}},
		{"/mode", Input{Kind: InputModeCycle}},
		{"/mode plan", Input{Kind: InputModeSwitch, Target: api.ModePlan}},
		{"/mode e", Input{Kind: InputModeSwitch, Target: api.ModeExecute}},
		{"/m d", Input{Kind: InputModeSwitch, Target: api.ModeDocument}},
		{"/model", Input{Kind: InputShowModel}},
		{"/model gpt-4o", Input{Kind: InputSetModel, Text: "gpt-4o"}},
		{"/handoff", Input{Kind: InputShowHandoff}},
		{"/bye", Input{Kind: InputQuit}},
		{"/help", Input{Kind: InputHelp}},
		{"/home", Input{Kind: InputHome}},
	}
	for _, tc := range cases {
		got, err := ParseInput(tc.line)
		if err != nil {
			t.Errorf("ParseInput(%q): %v", tc.line, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseInput(%q) = %+v, want %+v", tc.line, got, tc.want)
		}
	}

	if _, err := ParseInput("/mode warp"); err == nil {
		t.Error("invalid mode target must error")
	}
	if _, err := ParseInput("/frobnicate"); err == nil {
		t.Error("unknown command must error")
	}
}
