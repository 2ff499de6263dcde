package ui

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"Bindr/pkg/engine/api"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Approver collects a human decision for a suspended tool request. The
// second return value is true when the user chose to approve everything
// for the rest of the turn.
type Approver interface {
	RequestApproval(p api.ApprovalPayload) (api.ApprovalDecision, bool, error)
}

// NewApprover returns the interactive approver, falling back to a plain
// line-based prompt when stdin is not a terminal.
func NewApprover() Approver {
	return &cliApprover{}
}

type cliApprover struct{}

func (a *cliApprover) RequestApproval(p api.ApprovalPayload) (api.ApprovalDecision, bool, error) {
	printPreview(p)

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return simpleApproval(p)
	}

	m := approvalModel{
		options: []string{"Approve", "Approve all for this turn", "Modify", "Deny"},
	}
	result, err := tea.NewProgram(m).Run()
	if err != nil {
		return simpleApproval(p)
	}
	final := result.(approvalModel)

	switch final.choice {
	case 0:
		return api.ApprovalDecision{Kind: api.DecisionApprove, RequestID: p.RequestID}, false, nil
	case 1:
		return api.ApprovalDecision{Kind: api.DecisionApprove, RequestID: p.RequestID}, true, nil
	case 2:
		payload, err := promptModifiedPayload(p.Request)
		if err != nil {
			return api.ApprovalDecision{}, false, err
		}
		return api.ApprovalDecision{Kind: api.DecisionModify, RequestID: p.RequestID, ModifiedPayload: payload}, false, nil
	default:
		return api.ApprovalDecision{Kind: api.DecisionDeny, RequestID: p.RequestID}, false, nil
	}
}

var (
	approvalTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	approvalCursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	approvalDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type approvalModel struct {
	options []string
	cursor  int
	choice  int
	done    bool
}

func (m approvalModel) Init() tea.Cmd { return nil }

func (m approvalModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.options)-1 {
			m.cursor++
		}
	case "enter":
		m.choice = m.cursor
		m.done = true
		return m, tea.Quit
	case "a", "y":
		m.choice = 0
		m.done = true
		return m, tea.Quit
	case "r", "n", "d", "esc", "ctrl+c":
		m.choice = len(m.options) - 1
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m approvalModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(approvalTitleStyle.Render("⏸ Approval required") + "\n\n")
	for i, opt := range m.options {
		if i == m.cursor {
			b.WriteString(approvalCursorStyle.Render("❯ "+opt) + "\n")
		} else {
			b.WriteString("  " + opt + "\n")
		}
	}
	b.WriteString("\n" + approvalDimStyle.Render("↑/↓ move · enter select · y approve · n deny") + "\n")
	return b.String()
}

// printPreview renders the deterministic preview of a pending request.
func printPreview(p api.ApprovalPayload) {
	fmt.Println()
	if p.Preview == nil {
		fmt.Printf("🔧 %s %s\n", p.Request.Kind, p.Request.Target)
		return
	}

	fmt.Printf("┌─ %s\n", p.Preview.Summary)
	for _, path := range p.Preview.Affected {
		fmt.Printf("│  %s\n", path)
	}
	fmt.Println("└─")

	if p.Preview.Content == "" {
		return
	}
	switch p.Preview.Kind {
	case api.PreviewDiff:
		fmt.Print(RenderMarkdown("```diff\n" + p.Preview.Content + "\n```"))
	case api.PreviewCommand:
		fmt.Print(RenderMarkdown("```sh\n" + p.Preview.Content + "\n```"))
	default:
		fmt.Println(p.Preview.Content)
	}
}

// promptModifiedPayload asks for a replacement payload. Commands are edited
// on one line; file content is read until a lone "." line.
func promptModifiedPayload(req api.ToolRequest) (*api.ToolPayload, error) {
	reader := bufio.NewReader(os.Stdin)

	if req.Kind == api.CapExecuteCommand {
		fmt.Printf("New command [%s]: ", req.Payload.Command)
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			line = req.Payload.Command
		}
		return &api.ToolPayload{Command: line, WorkingDir: req.Payload.WorkingDir}, nil
	}

	fmt.Println("New content (end with a single '.' on its own line):")
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "." {
			break
		}
		lines = append(lines, trimmed)
	}
	return &api.ToolPayload{Content: strings.Join(lines, "\n")}, nil
}

// simpleApproval is the non-interactive fallback. It defaults to deny so
// piped input cannot accidentally mutate the workspace.
func simpleApproval(p api.ApprovalPayload) (api.ApprovalDecision, bool, error) {
	fmt.Print("Approve? [y/N/a(all)/m(modify)]: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return api.ApprovalDecision{Kind: api.DecisionDeny, RequestID: p.RequestID}, false, nil
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return api.ApprovalDecision{Kind: api.DecisionApprove, RequestID: p.RequestID}, false, nil
	case "a", "all":
		return api.ApprovalDecision{Kind: api.DecisionApprove, RequestID: p.RequestID}, true, nil
	case "m", "modify":
		payload, err := promptModifiedPayload(p.Request)
		if err != nil {
			return api.ApprovalDecision{}, false, err
		}
		return api.ApprovalDecision{Kind: api.DecisionModify, RequestID: p.RequestID, ModifiedPayload: payload}, false, nil
	default:
		return api.ApprovalDecision{Kind: api.DecisionDeny, RequestID: p.RequestID}, false, nil
	}
}
