package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"Bindr/pkg/engine/api"
)

const (
	commandTimeout = 120 * time.Second
	maxOutputBytes = 100 * 1024
)

// ExecuteCommandExecutor serves the execute_command capability. Commands
// run through sh -c with the working directory contained in the
// workspace; output is captured and capped.
type ExecuteCommandExecutor struct {
	workspaceRoot string
}

func NewExecuteCommandExecutor(workspaceRoot string) *ExecuteCommandExecutor {
	return &ExecuteCommandExecutor{workspaceRoot: workspaceRoot}
}

func (e *ExecuteCommandExecutor) Capability() api.Capability { return api.CapExecuteCommand }

func (e *ExecuteCommandExecutor) Schema() api.ToolSchema {
	return schemaFor("execute_command",
		"Run a shell command in the project workspace. Use for builds, tests, git operations, and other CLI tools.",
		[]ParameterDef{
			{Name: "command", Type: "string", Description: "Shell command to execute", Required: true},
			{Name: "working_dir", Type: "string", Description: "Working directory relative to the workspace root (default: workspace root)", Required: false},
		})
}

func (e *ExecuteCommandExecutor) Preview(req api.ToolRequest) *api.Preview {
	dir := req.Payload.WorkingDir
	if dir == "" {
		dir = "."
	}
	return &api.Preview{
		Kind:     api.PreviewCommand,
		Summary:  "Execute command in " + dir,
		Content:  req.Payload.Command,
		Affected: []string{dir},
	}
}

func (e *ExecuteCommandExecutor) Execute(ctx context.Context, req api.ToolRequest) api.ToolResult {
	command := strings.TrimSpace(req.Payload.Command)
	if command == "" {
		return toolError(fmt.Errorf("command is required"))
	}

	dir, err := Resolve(e.workspaceRoot, req.Payload.WorkingDir)
	if err != nil {
		return toolError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var output strings.Builder
	if stdout.Len() > 0 {
		s := stdout.String()
		if len(s) > maxOutputBytes {
			s = s[:maxOutputBytes] + "\n... (stdout truncated)"
		}
		output.WriteString(s)
	}
	if stderr.Len() > 0 {
		s := stderr.String()
		if len(s) > maxOutputBytes/2 {
			s = s[:maxOutputBytes/2] + "\n... (stderr truncated)"
		}
		for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
			output.WriteString("[stderr] " + line + "\n")
		}
	}

	if ctx.Err() == context.DeadlineExceeded {
		return api.ToolResult{
			Content: output.String(),
			Status:  "error",
			Error:   fmt.Sprintf("command timed out after %s", commandTimeout),
		}
	}
	if runErr != nil {
		exitCode := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return api.ToolResult{
			Content: output.String() + fmt.Sprintf("\nExit code: %d", exitCode),
			Status:  "error",
			Error:   fmt.Sprintf("exit code %d", exitCode),
		}
	}

	if output.Len() == 0 {
		return successText("<command completed with no output>")
	}
	return successText(output.String())
}
