package runtime

import (
	"fmt"
	"strings"

	"Bindr/pkg/engine/api"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Input Routing
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// InputKind classifies a line of user input.
type InputKind int

const (
	// InputMessage is ordinary chat input for the active mode.
	InputMessage InputKind = iota
	// InputModeSwitch requests a transition to Input.Target.
	InputModeSwitch
	// InputModeCycle requests the next mode in workflow order.
	InputModeCycle
	// InputShowModel shows the active models; InputSetModel pins every
	// mode to Input.Text for the rest of the run.
	InputShowModel
	InputSetModel
	// InputShowHandoff shows the session's most recent context handoff.
	InputShowHandoff
	InputHome
	InputQuit
	InputHelp
)

// Input is a routed line of user input.
type Input struct {
	Kind   InputKind
	Target api.Mode // for InputModeSwitch
	Text   string   // for InputMessage and InputSetModel
}

// ParseInput routes a line of user input. Slash commands are recognized
// at the start of the line; everything else is a chat message. A bare
// /mode cycles to the next mode.
func ParseInput(line string) (Input, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return Input{Kind: InputMessage, Text: trimmed}, nil
	}

	fields := strings.Fields(trimmed)
	cmd := strings.ToLower(fields[0])
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch cmd {
	case "/mode", "/m":
		if arg == "" {
			return Input{Kind: InputModeCycle}, nil
		}
		target, err := api.ParseMode(arg)
		if err != nil {
			return Input{}, err
		}
		return Input{Kind: InputModeSwitch, Target: target}, nil
	case "/model":
		if arg == "" {
			return Input{Kind: InputShowModel}, nil
		}
		return Input{Kind: InputSetModel, Text: arg}, nil
	case "/handoff":
		return Input{Kind: InputShowHandoff}, nil
	case "/home":
		return Input{Kind: InputHome}, nil
	case "/bye", "/quit", "/exit":
		return Input{Kind: InputQuit}, nil
	case "/help", "/?":
		return Input{Kind: InputHelp}, nil
	}
	return Input{}, fmt.Errorf("unknown command: %s", cmd)
}
