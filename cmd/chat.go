package cmd

import (
	"context"
	"fmt"
	"strings"

	"Bindr/cmd/ui"
	"Bindr/pkg/config"
	"Bindr/pkg/engine/api"
	"Bindr/pkg/engine/capability"
	"Bindr/pkg/engine/runtime"

	"github.com/spf13/cobra"
)

var (
	listSessionsFlag bool
	startModeFlag    string
	projectFlag      string
)

var chatCmd = &cobra.Command{
	Use:   "chat [session-id]",
	Short: "Start or resume an interactive session",
	Run:   runChat,
}

func init() {
	chatCmd.Flags().BoolVarP(&listSessionsFlag, "list", "l", false, "List all sessions")
	chatCmd.Flags().StringVar(&startModeFlag, "mode", "brainstorm", "Starting mode: brainstorm | plan | execute | document")
	chatCmd.Flags().StringVar(&projectFlag, "project", "", "Project name for new sessions")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) {
	workspaceRoot, err := resolveWorkspaceRoot()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	eng, cfg, err := newAPIEngine(workspaceRoot)
	if err != nil {
		fmt.Printf("Error initializing engine: %v\n", err)
		return
	}

	ctx := context.Background()

	if listSessionsFlag {
		listSessions(ctx, eng)
		return
	}

	var session *api.Session
	if len(args) > 0 {
		session, err = eng.GetSession(ctx, args[0])
		if err != nil {
			fmt.Printf("Session %q not found, starting a new one...\n", args[0])
			session = nil
		}
	}

	if session == nil {
		mode, err := api.ParseMode(startModeFlag)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		session, err = eng.StartSession(ctx, mode, projectFlag)
		if err != nil {
			fmt.Printf("Error starting session: %v\n", err)
			return
		}
	}

	printBanner(session)

	approver := ui.NewApprover()
	approval := &approvalState{autoApproveAll: autoApproveFlag}

	// A suspension survives restarts; it must be resolved before any
	// new input can start a turn.
	if session.Pending != nil {
		if err := resumePendingRequest(ctx, eng, session, approver, approval); err != nil {
			fmt.Printf("❌ %v\n", err)
		}
		if refreshed, err := eng.GetSession(ctx, session.SessionID); err == nil {
			session = refreshed
		}
	}

	historyMgr, err := NewHistoryManager(stateRoot(workspaceRoot))
	if err != nil {
		fmt.Printf("Warning: failed to initialize history: %v\n", err)
	}
	var inputHistory []string
	if historyMgr != nil {
		if stored, err := historyMgr.Load(); err == nil {
			inputHistory = stored
		}
	}

	for {
		prompt := fmt.Sprintf("\n%s %s: ", modeIcon(session.Mode), session.Mode.DisplayName())
		in, err := ui.ReadInputWithHistory(prompt, inputHistory)
		if err != nil {
			fmt.Printf("Input error: %v\n", err)
			return
		}
		if in.Cancelled {
			return
		}

		text := strings.TrimSpace(in.Value)
		if text == "" {
			continue
		}

		if len(inputHistory) == 0 || inputHistory[len(inputHistory)-1] != text {
			inputHistory = append(inputHistory, text)
			if historyMgr != nil {
				go func(t string) {
					_ = historyMgr.Append(t)
				}(text)
			}
		}

		routed, err := runtime.ParseInput(text)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			continue
		}

		switch routed.Kind {
		case runtime.InputQuit:
			fmt.Println("\nGoodbye.")
			return

		case runtime.InputHelp:
			printHelp(session.Mode)

		case runtime.InputHome:
			printBanner(session)

		case runtime.InputShowModel:
			printModels(cfg, session.Mode)

		case runtime.InputSetModel:
			eng.SetModel(routed.Text)
			cfg.Model = routed.Text
			cfg.ModeModels = nil
			fmt.Printf("Model pinned to %s for every mode.\n", routed.Text)

		case runtime.InputShowHandoff:
			printHandoff(session.Handoff)

		case runtime.InputModeCycle, runtime.InputModeSwitch:
			target := routed.Target
			if routed.Kind == runtime.InputModeCycle {
				target = session.Mode.Next()
			}
			updated, handoff, err := eng.SwitchMode(ctx, session.SessionID, target)
			if err != nil {
				fmt.Printf("❌ %v\n", err)
				continue
			}
			if handoff == nil {
				fmt.Printf("Already in %s mode.\n", session.Mode.DisplayName())
				continue
			}
			session = updated
			printModeChange(handoff)

		case runtime.InputMessage:
			if err := runTurnWithApprovals(ctx, eng, session.SessionID, routed.Text, approver, approval); err != nil {
				fmt.Printf("\n❌ Error: %v\n", err)
			}
			// A directive may have moved the session; refresh the prompt.
			if refreshed, err := eng.GetSession(ctx, session.SessionID); err == nil {
				if refreshed.Mode != session.Mode {
					fmt.Printf("\n%s Switched to %s mode.\n", modeIcon(refreshed.Mode), refreshed.Mode.DisplayName())
				}
				session = refreshed
			}
		}
	}
}

func listSessions(ctx context.Context, eng api.Engine) {
	ids, err := eng.ListSessions(ctx)
	if err != nil {
		fmt.Printf("Error listing sessions: %v\n", err)
		return
	}
	if len(ids) == 0 {
		fmt.Println("No sessions found.")
		return
	}

	fmt.Println("\n📂 Sessions:")
	for _, id := range ids {
		s, err := eng.GetSession(ctx, id)
		if err != nil {
			continue
		}
		project := s.Project
		if project == "" {
			project = "(unnamed)"
		}
		fmt.Printf("  %s - %s - %s mode - %d messages - %s\n",
			s.SessionID, project, s.Mode.DisplayName(), len(s.Messages), s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Println("\nResume with: bindr chat <session-id>")
}

func modeIcon(mode api.Mode) string {
	switch mode {
	case api.ModeBrainstorm:
		return "🧠"
	case api.ModePlan:
		return "📋"
	case api.ModeExecute:
		return "🔨"
	case api.ModeDocument:
		return "📚"
	}
	return "💬"
}

func printBanner(session *api.Session) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                          🧷 bindr                              ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Session: %-53s ║\n", session.SessionID)
	fmt.Printf("║  Mode:    %s %-50s ║\n", modeIcon(session.Mode), session.Mode.DisplayName())
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	for _, m := range api.AllModes() {
		marker := "  "
		if m == session.Mode {
			marker = "▸ "
		}
		fmt.Printf("║  %s%s %-10s %-45s ║\n", marker, modeIcon(m), m.DisplayName(), m.Description())
	}
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  /mode [b|p|e|d]  switch mode (bare /mode cycles)              ║")
	fmt.Println("║  /model           show the active models                      ║")
	fmt.Println("║  /help            all commands     /bye  exit                 ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
}

func printHelp(current api.Mode) {
	var b strings.Builder
	b.WriteString("# Commands\n\n")
	b.WriteString("- `/mode` cycle to the next mode\n")
	b.WriteString("- `/mode <b|p|e|d>` switch to a specific mode\n")
	b.WriteString("- `/model` show the models in use\n")
	b.WriteString("- `/model <name>` pin every mode to one model\n")
	b.WriteString("- `/handoff` show the latest context handoff\n")
	b.WriteString("- `/home` reprint the banner\n")
	b.WriteString("- `/bye` exit\n\n")
	b.WriteString("# Capabilities per mode\n\n")
	for _, m := range api.AllModes() {
		marker := ""
		if m == current {
			marker = " (active)"
		}
		caps := capability.For(m)
		names := make([]string, len(caps))
		for i, c := range caps {
			names[i] = string(c)
		}
		b.WriteString(fmt.Sprintf("- **%s**%s: %s\n", m.DisplayName(), marker, strings.Join(names, ", ")))
	}
	fmt.Println(ui.RenderMarkdown(b.String()))
}

func printModels(cfg *config.Config, current api.Mode) {
	fmt.Println("\nModels:")
	for _, m := range api.AllModes() {
		marker := "  "
		if m == current {
			marker = "▸ "
		}
		fmt.Printf("  %s%-10s %s\n", marker, m.DisplayName(), cfg.ModelFor(m))
	}
	fmt.Println("\nPin modes to models in .bindr.yaml under mode_models.")
}

func printHandoff(handoff *api.ContextHandoff) {
	if handoff == nil {
		fmt.Println("No handoff yet. Switch modes to produce one.")
		return
	}
	printModeChange(handoff)
}

func printModeChange(handoff *api.ContextHandoff) {
	fmt.Printf("\n%s %s → %s %s\n",
		modeIcon(handoff.From), handoff.From.DisplayName(),
		modeIcon(handoff.To), handoff.To.DisplayName())

	lines := summaryLines(handoff.Summary)
	if len(lines) == 0 {
		fmt.Println("  (no context carried over)")
		return
	}
	fmt.Println("  Carrying over:")
	for _, line := range lines {
		fmt.Printf("  • %s\n", line)
	}
}

// summaryLines flattens the populated handoff fields for display.
func summaryLines(s api.HandoffSummary) []string {
	var lines []string
	add := func(label string, items []string) {
		if len(items) > 0 {
			lines = append(lines, fmt.Sprintf("%s: %s", label, strings.Join(items, "; ")))
		}
	}
	if s.ProjectName != "" {
		lines = append(lines, "project: "+s.ProjectName)
	}
	if s.Description != "" {
		lines = append(lines, "description: "+s.Description)
	}
	add("features", s.KeyFeatures)
	add("constraints", s.Constraints)
	add("files", s.FileInventory)
	add("tech stack", s.TechStack)
	add("milestones", s.Milestones)
	add("implemented", s.Implemented)
	add("commands", s.CommandsRun)
	if s.TestStatus != "" {
		lines = append(lines, "tests: "+s.TestStatus)
	}
	add("documents", s.Documents)
	add("decisions", s.Decisions)
	add("open items", s.OpenItems)
	return lines
}
