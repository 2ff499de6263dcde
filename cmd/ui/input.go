package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// SlashCommand is one entry of the slash completion menu.
type SlashCommand struct {
	Name        string
	Description string
}

// DefaultCommands is the completion menu shown when the input starts
// with "/".
var DefaultCommands = []SlashCommand{
	{Name: "/mode", Description: "Switch mode (bare /mode cycles, or /mode b|p|e|d)"},
	{Name: "/model", Description: "Show the active models, or /model <name> to pin one"},
	{Name: "/handoff", Description: "Show the latest context handoff"},
	{Name: "/home", Description: "Reprint the session banner"},
	{Name: "/help", Description: "Show all commands and mode capabilities"},
	{Name: "/bye", Description: "Exit"},
}

// InputResult is the outcome of one input read.
type InputResult struct {
	Value     string
	Cancelled bool
}

var (
	menuNameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	menuDescStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	menuSelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
)

type inputModel struct {
	ta        textarea.Model
	prompt    string
	history   []string
	histIdx   int    // len(history) means "not browsing"
	histDraft string // text stashed while browsing history

	menuOpen bool
	menuIdx  int
	matches  []SlashCommand

	result    string
	cancelled bool
	done      bool
}

func newInputModel(prompt string, history []string) inputModel {
	ta := textarea.New()
	ta.Placeholder = "Type a message, or / for commands"
	ta.Prompt = "│ "
	ta.SetHeight(1)
	ta.SetWidth(100)
	ta.ShowLineNumbers = false
	ta.Focus()
	return inputModel{ta: ta, prompt: prompt, history: history, histIdx: len(history)}
}

func (m inputModel) Init() tea.Cmd {
	return textarea.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if msg.Width > 4 {
			m.ta.SetWidth(msg.Width - 2)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			m.done = true
			return m, tea.Quit

		case "enter":
			if m.menuOpen && len(m.matches) > 0 {
				m.ta.SetValue(m.matches[m.menuIdx].Name + " ")
				m.ta.CursorEnd()
				m.menuOpen = false
				return m, nil
			}
			m.result = m.ta.Value()
			m.done = true
			return m, tea.Quit

		case "ctrl+j":
			m.ta.SetHeight(minInt(m.ta.Height()+1, 6))
			m.ta.InsertString("\n")
			return m, nil

		case "tab":
			if m.menuOpen && len(m.matches) > 0 {
				m.ta.SetValue(m.matches[m.menuIdx].Name + " ")
				m.ta.CursorEnd()
				m.menuOpen = false
				return m, nil
			}

		case "up", "ctrl+p":
			if m.menuOpen {
				if m.menuIdx > 0 {
					m.menuIdx--
				}
				return m, nil
			}
			if m.histIdx > 0 {
				if m.histIdx == len(m.history) {
					m.histDraft = m.ta.Value()
				}
				m.histIdx--
				m.ta.SetValue(m.history[m.histIdx])
				m.ta.CursorEnd()
			}
			return m, nil

		case "down", "ctrl+n":
			if m.menuOpen {
				if m.menuIdx < len(m.matches)-1 {
					m.menuIdx++
				}
				return m, nil
			}
			if m.histIdx < len(m.history) {
				m.histIdx++
				if m.histIdx == len(m.history) {
					m.ta.SetValue(m.histDraft)
				} else {
					m.ta.SetValue(m.history[m.histIdx])
				}
				m.ta.CursorEnd()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.ta, cmd = m.ta.Update(msg)
	m.refreshMenu()
	return m, cmd
}

func (m *inputModel) refreshMenu() {
	val := m.ta.Value()
	if !strings.HasPrefix(val, "/") || strings.ContainsAny(val, " \n") {
		m.menuOpen = false
		return
	}
	m.matches = m.matches[:0]
	for _, c := range DefaultCommands {
		if strings.HasPrefix(c.Name, val) {
			m.matches = append(m.matches, c)
		}
	}
	m.menuOpen = len(m.matches) > 0
	if m.menuIdx >= len(m.matches) {
		m.menuIdx = 0
	}
}

func (m inputModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(promptStyle.Render(m.prompt) + "\n")
	b.WriteString(m.ta.View())
	if m.menuOpen {
		b.WriteString("\n")
		for i, c := range m.matches {
			name := menuNameStyle.Render(c.Name)
			if i == m.menuIdx {
				name = menuSelStyle.Render("❯ " + c.Name)
			} else {
				name = "  " + name
			}
			b.WriteString(fmt.Sprintf("%s  %s\n", name, menuDescStyle.Render(c.Description)))
		}
	}
	return b.String()
}

// ReadInputWithHistory reads one user input. On a terminal it runs the
// textarea model with slash completion and up/down history recall; piped
// stdin falls back to plain line reading.
func ReadInputWithHistory(prompt string, history []string) (InputResult, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return readPlainLine(prompt)
	}

	result, err := tea.NewProgram(newInputModel(prompt, history)).Run()
	if err != nil {
		return readPlainLine(prompt)
	}
	final := result.(inputModel)
	if final.cancelled {
		return InputResult{Cancelled: true}, nil
	}
	return InputResult{Value: final.result}, nil
}

func readPlainLine(prompt string) (InputResult, error) {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return InputResult{Cancelled: true}, nil
		}
		return InputResult{}, err
	}
	return InputResult{Value: strings.TrimRight(line, "\r\n")}, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
