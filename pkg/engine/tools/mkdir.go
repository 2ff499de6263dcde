package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"Bindr/pkg/engine/api"
)

// CreateDirectoryExecutor serves the create_directory capability. It
// creates the target directory and any missing parents; creating an
// existing directory is a no-op success.
type CreateDirectoryExecutor struct {
	workspaceRoot string
}

func NewCreateDirectoryExecutor(workspaceRoot string) *CreateDirectoryExecutor {
	return &CreateDirectoryExecutor{workspaceRoot: workspaceRoot}
}

func (e *CreateDirectoryExecutor) Capability() api.Capability { return api.CapCreateDirectory }

func (e *CreateDirectoryExecutor) Schema() api.ToolSchema {
	return schemaFor("create_directory",
		"Create a directory (and any missing parents) in the project workspace.",
		[]ParameterDef{
			{Name: "path", Type: "string", Description: "Directory path, relative to the workspace root", Required: true},
		})
}

func (e *CreateDirectoryExecutor) Preview(req api.ToolRequest) *api.Preview {
	return &api.Preview{
		Kind:     api.PreviewTree,
		Summary:  "Create directory: " + req.Target,
		Content:  renderTree(e.workspaceRoot, req.Target),
		Affected: []string{req.Target},
	}
}

func (e *CreateDirectoryExecutor) Execute(ctx context.Context, req api.ToolRequest) api.ToolResult {
	abs, err := Resolve(e.workspaceRoot, req.Target)
	if err != nil {
		return toolError(err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return toolError(err)
	}
	return successText("Directory created: " + req.Target)
}

// renderTree draws the directory chain that would exist after creation,
// marking segments that do not exist yet.
func renderTree(workspaceRoot, target string) string {
	clean := filepath.ToSlash(filepath.Clean(target))
	segs := strings.Split(clean, "/")

	var sb strings.Builder
	sb.WriteString(".\n")
	accum := workspaceRoot
	for i, seg := range segs {
		if seg == "." || seg == "" {
			continue
		}
		accum = filepath.Join(accum, seg)
		indent := strings.Repeat("    ", i)
		marker := ""
		if _, err := os.Lstat(accum); os.IsNotExist(err) {
			marker = "  (new)"
		}
		sb.WriteString(indent + "└── " + seg + "/" + marker + "\n")
	}
	return sb.String()
}
