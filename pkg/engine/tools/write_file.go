package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"Bindr/pkg/engine/api"
)

// CreateFileExecutor serves the create_file capability. The target must
// not already exist; overwriting requires modify_file.
type CreateFileExecutor struct {
	workspaceRoot string
}

func NewCreateFileExecutor(workspaceRoot string) *CreateFileExecutor {
	return &CreateFileExecutor{workspaceRoot: workspaceRoot}
}

func (e *CreateFileExecutor) Capability() api.Capability { return api.CapCreateFile }

func (e *CreateFileExecutor) Schema() api.ToolSchema {
	return schemaFor("create_file",
		"Create a new file with the given content. Fails if the file already exists. Parent directories are created as needed.",
		[]ParameterDef{
			{Name: "path", Type: "string", Description: "Path for the new file, relative to the workspace root", Required: true},
			{Name: "content", Type: "string", Description: "Content to write", Required: true},
		})
}

func (e *CreateFileExecutor) Preview(req api.ToolRequest) *api.Preview {
	return &api.Preview{
		Kind:     api.PreviewDiff,
		Summary:  "Create file: " + req.Target,
		Content:  unifiedDiff(req.Target, "", req.Payload.Content),
		Affected: []string{req.Target},
	}
}

func (e *CreateFileExecutor) Execute(ctx context.Context, req api.ToolRequest) api.ToolResult {
	abs, err := Resolve(e.workspaceRoot, req.Target)
	if err != nil {
		return toolError(err)
	}
	if _, err := os.Lstat(abs); err == nil {
		return toolError(fmt.Errorf("file already exists: %s", req.Target))
	} else if !os.IsNotExist(err) {
		return toolError(err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return toolError(fmt.Errorf("create parent directory: %w", err))
	}
	if err := os.WriteFile(abs, []byte(req.Payload.Content), 0644); err != nil {
		return toolError(err)
	}
	return successText("File created: " + req.Target)
}

// ModifyFileExecutor serves the modify_file capability. The target must
// already exist; its content is replaced wholesale.
type ModifyFileExecutor struct {
	workspaceRoot string
}

func NewModifyFileExecutor(workspaceRoot string) *ModifyFileExecutor {
	return &ModifyFileExecutor{workspaceRoot: workspaceRoot}
}

func (e *ModifyFileExecutor) Capability() api.Capability { return api.CapModifyFile }

func (e *ModifyFileExecutor) Schema() api.ToolSchema {
	return schemaFor("modify_file",
		"Replace the contents of an existing file. Fails if the file does not exist.",
		[]ParameterDef{
			{Name: "path", Type: "string", Description: "Path to the existing file, relative to the workspace root", Required: true},
			{Name: "content", Type: "string", Description: "New content for the file", Required: true},
		})
}

func (e *ModifyFileExecutor) Preview(req api.ToolRequest) *api.Preview {
	before := ""
	if abs, err := Resolve(e.workspaceRoot, req.Target); err == nil {
		if data, err := os.ReadFile(abs); err == nil {
			before = string(data)
		}
	}
	return &api.Preview{
		Kind:     api.PreviewDiff,
		Summary:  "Modify file: " + req.Target,
		Content:  unifiedDiff(req.Target, before, req.Payload.Content),
		Affected: []string{req.Target},
	}
}

func (e *ModifyFileExecutor) Execute(ctx context.Context, req api.ToolRequest) api.ToolResult {
	abs, err := Resolve(e.workspaceRoot, req.Target)
	if err != nil {
		return toolError(err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return toolError(fmt.Errorf("file does not exist: %s", req.Target))
		}
		return toolError(err)
	}
	if info.IsDir() {
		return toolError(fmt.Errorf("%s is a directory", req.Target))
	}

	if err := os.WriteFile(abs, []byte(req.Payload.Content), info.Mode().Perm()); err != nil {
		return toolError(err)
	}
	return successText("File modified: " + req.Target)
}
