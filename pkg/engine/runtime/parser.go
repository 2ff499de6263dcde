package runtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"Bindr/pkg/engine/api"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Mode-Switch Directive Parsing
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ModeDirective is the structured mode-switch request a model may emit
// as a fenced JSON block at the end of its reply.
type ModeDirective struct {
	Directive string           `json:"directive"`
	Target    string           `json:"target"`
	Summary   DirectiveSummary `json:"summary"`
}

// DirectiveSummary carries the model's summary hints. Fields map onto
// the handoff summary; unknown fields are rejected.
type DirectiveSummary struct {
	ProjectName   string   `json:"project_name,omitempty"`
	Description   string   `json:"description,omitempty"`
	KeyFeatures   []string `json:"key_features,omitempty"`
	Constraints   []string `json:"constraints,omitempty"`
	FileInventory []string `json:"file_inventory,omitempty"`
	TechStack     []string `json:"tech_stack,omitempty"`
	Milestones    []string `json:"milestones,omitempty"`
	Implemented   []string `json:"implemented,omitempty"`
	CommandsRun   []string `json:"commands_run,omitempty"`
	TestStatus    string   `json:"test_status,omitempty"`
	Documents     []string `json:"documents,omitempty"`
	Decisions     []string `json:"decisions,omitempty"`
	OpenItems     []string `json:"open_items,omitempty"`
}

// ParseModeDirective scans assistant text for a mode-switch directive.
// The last fenced JSON block wins. Returns (nil, "", nil) when the text
// carries no directive; a block that declares itself a directive but
// fails strict parsing is an error, never a guess.
func ParseModeDirective(text string) (*ModeDirective, api.Mode, error) {
	block := lastJSONBlock(text)
	if block == "" || !strings.Contains(block, `"directive"`) {
		return nil, "", nil
	}

	dec := json.NewDecoder(strings.NewReader(block))
	dec.DisallowUnknownFields()
	var d ModeDirective
	if err := dec.Decode(&d); err != nil {
		return nil, "", fmt.Errorf("malformed mode directive: %w", err)
	}
	if d.Directive != "mode_switch" {
		return nil, "", fmt.Errorf("unknown directive: %q", d.Directive)
	}

	target, err := api.ParseMode(d.Target)
	if err != nil {
		return nil, "", fmt.Errorf("mode directive: %w", err)
	}
	return &d, target, nil
}

// StripDirective removes the directive block from assistant text so the
// transcript keeps prose only.
func StripDirective(text string) string {
	start, end := lastJSONBlockBounds(text)
	if start < 0 || !strings.Contains(text[start:end], `"directive"`) {
		return text
	}
	return strings.TrimSpace(text[:start] + text[end:])
}

func lastJSONBlock(text string) string {
	start, end := lastJSONBlockBounds(text)
	if start < 0 {
		return ""
	}
	inner := text[start:end]
	inner = strings.TrimPrefix(inner, "```json")
	inner = strings.TrimSuffix(inner, "```")
	return strings.TrimSpace(inner)
}

// lastJSONBlockBounds finds the last ```json fenced block, returning the
// byte range including the fences, or (-1, -1).
func lastJSONBlockBounds(text string) (int, int) {
	const open = "```json"
	const fence = "```"

	start := strings.LastIndex(text, open)
	if start < 0 {
		return -1, -1
	}
	rest := text[start+len(open):]
	rel := strings.Index(rest, fence)
	if rel < 0 {
		return -1, -1
	}
	return start, start + len(open) + rel + len(fence)
}

// foldDirective converts a directive's summary hints into activity
// records attributed to the session's current mode, so the handoff
// builder can fold them in deterministically.
func foldDirective(sess *api.Session, d *ModeDirective) {
	mode := sess.Mode
	add := func(kind api.ActivityKind, texts ...string) {
		for _, t := range texts {
			if strings.TrimSpace(t) == "" {
				continue
			}
			sess.Activity = append(sess.Activity, api.ActivityRecord{Mode: mode, Kind: kind, Text: t})
		}
	}

	if sess.Metadata == nil {
		sess.Metadata = make(map[string]string)
	}
	if d.Summary.ProjectName != "" {
		sess.Metadata["project_name"] = d.Summary.ProjectName
	}
	if d.Summary.Description != "" {
		sess.Metadata["description"] = d.Summary.Description
	}

	add(api.ActivityFeature, d.Summary.KeyFeatures...)
	add(api.ActivityConstraint, d.Summary.Constraints...)
	add(api.ActivityFile, d.Summary.FileInventory...)
	add(api.ActivityConstraint, d.Summary.TechStack...)
	add(api.ActivityFeature, d.Summary.Milestones...)
	add(api.ActivityFile, d.Summary.Implemented...)
	add(api.ActivityCommand, d.Summary.CommandsRun...)
	add(api.ActivityDocument, d.Summary.Documents...)
	add(api.ActivityDecision, d.Summary.Decisions...)
	add(api.ActivityNote, d.Summary.OpenItems...)
	if d.Summary.TestStatus != "" {
		add(api.ActivityTest, d.Summary.TestStatus)
	}
}
