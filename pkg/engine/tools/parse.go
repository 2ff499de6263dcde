package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"Bindr/pkg/engine/api"
)

var toolNameToCapability = map[string]api.Capability{
	"read_file":        api.CapReadFile,
	"create_file":      api.CapCreateFile,
	"modify_file":      api.CapModifyFile,
	"create_directory": api.CapCreateDirectory,
	"execute_command":  api.CapExecuteCommand,
	"write_doc_file":   api.CapWriteDocFile,
}

type toolCallArgs struct {
	Path       string `json:"path"`
	Content    string `json:"content"`
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir"`
}

// ParseToolCall converts a model tool call into a typed request. The
// argument payload is parsed strictly; unknown tool names and malformed
// or incomplete arguments are errors, never guessed at.
func ParseToolCall(call api.LLMToolCall) (api.ToolRequest, error) {
	cap, ok := toolNameToCapability[call.Name]
	if !ok {
		return api.ToolRequest{}, fmt.Errorf("unknown tool: %s", call.Name)
	}

	dec := json.NewDecoder(strings.NewReader(call.Args))
	dec.DisallowUnknownFields()
	var args toolCallArgs
	if err := dec.Decode(&args); err != nil {
		return api.ToolRequest{}, fmt.Errorf("invalid arguments for %s: %w", call.Name, err)
	}

	req := api.ToolRequest{
		ID:     call.ID,
		Kind:   cap,
		Origin: api.OriginModel,
	}

	switch cap {
	case api.CapReadFile:
		if args.Path == "" {
			return api.ToolRequest{}, fmt.Errorf("%s: path is required", call.Name)
		}
		req.Target = args.Path
	case api.CapCreateDirectory:
		if args.Path == "" {
			return api.ToolRequest{}, fmt.Errorf("%s: path is required", call.Name)
		}
		req.Target = args.Path
	case api.CapCreateFile, api.CapModifyFile, api.CapWriteDocFile:
		if args.Path == "" {
			return api.ToolRequest{}, fmt.Errorf("%s: path is required", call.Name)
		}
		req.Target = args.Path
		req.Payload.Content = args.Content
	case api.CapExecuteCommand:
		if strings.TrimSpace(args.Command) == "" {
			return api.ToolRequest{}, fmt.Errorf("%s: command is required", call.Name)
		}
		req.Payload.Command = args.Command
		req.Payload.WorkingDir = args.WorkingDir
	}
	return req, nil
}
