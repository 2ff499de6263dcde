package middleware

import (
	"context"
	"strings"

	"Bindr/pkg/engine/api"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// ActivityMiddleware
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ActivityRecorder receives activity records extracted from the event
// stream. The runtime engine implements this against the session.
type ActivityRecorder interface {
	RecordActivity(sessionID string, rec api.ActivityRecord)
}

// ActivityMiddleware derives activity records from executed tool
// results. These records are the raw material of the next context
// handoff, so only successful executions count.
type ActivityMiddleware struct {
	BaseMiddleware
	recorder ActivityRecorder
}

func NewActivityMiddleware(recorder ActivityRecorder) *ActivityMiddleware {
	return &ActivityMiddleware{
		BaseMiddleware: NewBaseMiddleware("activity"),
		recorder:       recorder,
	}
}

func (m *ActivityMiddleware) OnEvent(ctx context.Context, state *api.State, e api.Event) error {
	if e.Type != api.EventToolResult || e.ToolResult == nil {
		return nil
	}
	tr := e.ToolResult
	if tr.Status != api.StatusExecuted || tr.Result.Status != "success" {
		return nil
	}

	rec, ok := activityFor(state.Mode, *tr)
	if ok {
		m.recorder.RecordActivity(state.SessionID, rec)
	}
	return nil
}

func activityFor(mode api.Mode, tr api.ToolResultPayload) (api.ActivityRecord, bool) {
	switch tr.Kind {
	case api.CapCreateFile, api.CapModifyFile:
		return api.ActivityRecord{Mode: mode, Kind: api.ActivityFile, Text: tr.Target}, true
	case api.CapCreateDirectory:
		return api.ActivityRecord{Mode: mode, Kind: api.ActivityFile, Text: tr.Target + "/"}, true
	case api.CapWriteDocFile:
		return api.ActivityRecord{Mode: mode, Kind: api.ActivityDocument, Text: tr.Target}, true
	case api.CapExecuteCommand:
		rec := api.ActivityRecord{Mode: mode, Kind: api.ActivityCommand, Text: tr.Command}
		if isTestCommand(tr.Command) {
			rec.Kind = api.ActivityTest
			rec.Text = tr.Command + ": " + firstLine(tr.Result.Content)
		}
		return rec, true
	}
	return api.ActivityRecord{}, false
}

func isTestCommand(cmd string) bool {
	return strings.Contains(cmd, " test") || strings.HasPrefix(cmd, "pytest") ||
		strings.HasPrefix(cmd, "jest")
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
