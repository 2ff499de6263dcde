// Package tools implements the capability executors: the real file and
// command operations performed after a request clears capability review
// and human approval. Each executor serves exactly one capability.
package tools

import (
	"context"

	"Bindr/pkg/engine/api"
)

// Executor performs the operation behind one capability and renders the
// approval preview for it. Execute receives the request after review;
// path resolution and containment are re-checked inside each executor,
// since the payload may have been modified at the approval gate.
type Executor interface {
	Capability() api.Capability
	Schema() api.ToolSchema

	// Preview renders the deterministic approval preview. It must not
	// have side effects.
	Preview(req api.ToolRequest) *api.Preview

	Execute(ctx context.Context, req api.ToolRequest) api.ToolResult
}

// ParameterDef describes a single parameter for building JSON-schema tool
// parameters.
type ParameterDef struct {
	Name        string
	Type        string // "string", "integer", "boolean"
	Description string
	Required    bool
}

// schemaFor assembles a model-facing tool schema from parameter defs.
func schemaFor(name, description string, params []ParameterDef) api.ToolSchema {
	properties := make(map[string]any)
	var required []string
	for _, p := range params {
		properties[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	parameters := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		parameters["required"] = required
	}
	return api.ToolSchema{Name: name, Description: description, Parameters: parameters}
}

func successText(content string) api.ToolResult {
	return api.ToolResult{Content: content, Status: "success"}
}

func toolError(err error) api.ToolResult {
	if err == nil {
		return api.ToolResult{Status: "error", Error: "unknown error"}
	}
	return api.ToolResult{Status: "error", Error: err.Error()}
}
