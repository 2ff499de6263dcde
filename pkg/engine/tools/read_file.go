package tools

import (
	"context"
	"fmt"
	"os"

	"Bindr/pkg/engine/api"
)

const maxReadBytes = 256 * 1024

// ReadFileExecutor serves the read_file capability.
type ReadFileExecutor struct {
	workspaceRoot string
}

func NewReadFileExecutor(workspaceRoot string) *ReadFileExecutor {
	return &ReadFileExecutor{workspaceRoot: workspaceRoot}
}

func (e *ReadFileExecutor) Capability() api.Capability { return api.CapReadFile }

func (e *ReadFileExecutor) Schema() api.ToolSchema {
	return schemaFor("read_file",
		"Read the contents of a file in the project workspace.",
		[]ParameterDef{
			{Name: "path", Type: "string", Description: "Path to the file, relative to the workspace root", Required: true},
		})
}

func (e *ReadFileExecutor) Preview(req api.ToolRequest) *api.Preview {
	return &api.Preview{
		Kind:     api.PreviewCommand,
		Summary:  "Read file: " + req.Target,
		Affected: []string{req.Target},
	}
}

func (e *ReadFileExecutor) Execute(ctx context.Context, req api.ToolRequest) api.ToolResult {
	abs, err := Resolve(e.workspaceRoot, req.Target)
	if err != nil {
		return toolError(err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return toolError(err)
	}
	if info.IsDir() {
		return toolError(fmt.Errorf("%s is a directory", req.Target))
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return toolError(err)
	}
	if len(data) > maxReadBytes {
		return successText(string(data[:maxReadBytes]) + "\n... (truncated)")
	}
	return successText(string(data))
}
