package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"Bindr/pkg/engine/api"
)

// WriteDocFileExecutor serves the write_doc_file capability. Targets are
// restricted to documentation files (markdown, plain text, or anything
// under docs/); creating and overwriting are both allowed.
type WriteDocFileExecutor struct {
	workspaceRoot string
}

func NewWriteDocFileExecutor(workspaceRoot string) *WriteDocFileExecutor {
	return &WriteDocFileExecutor{workspaceRoot: workspaceRoot}
}

func (e *WriteDocFileExecutor) Capability() api.Capability { return api.CapWriteDocFile }

func (e *WriteDocFileExecutor) Schema() api.ToolSchema {
	return schemaFor("write_doc_file",
		"Create or overwrite a documentation file (README, docs/, markdown).",
		[]ParameterDef{
			{Name: "path", Type: "string", Description: "Path to the documentation file, relative to the workspace root", Required: true},
			{Name: "content", Type: "string", Description: "Document content", Required: true},
		})
}

func (e *WriteDocFileExecutor) Preview(req api.ToolRequest) *api.Preview {
	before := ""
	if abs, err := Resolve(e.workspaceRoot, req.Target); err == nil {
		if data, err := os.ReadFile(abs); err == nil {
			before = string(data)
		}
	}
	return &api.Preview{
		Kind:     api.PreviewDiff,
		Summary:  "Write document: " + req.Target,
		Content:  unifiedDiff(req.Target, before, req.Payload.Content),
		Affected: []string{req.Target},
	}
}

func (e *WriteDocFileExecutor) Execute(ctx context.Context, req api.ToolRequest) api.ToolResult {
	if !IsDocTarget(req.Target) {
		return toolError(fmt.Errorf("not a documentation file: %s", req.Target))
	}
	abs, err := Resolve(e.workspaceRoot, req.Target)
	if err != nil {
		return toolError(err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return toolError(fmt.Errorf("create parent directory: %w", err))
	}
	if err := os.WriteFile(abs, []byte(req.Payload.Content), 0644); err != nil {
		return toolError(err)
	}
	return successText("Document written: " + req.Target)
}
