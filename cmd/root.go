package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"Bindr/pkg/logger"

	"github.com/spf13/cobra"
)

// Global flags
var (
	modelFlag       string
	workspaceFlag   string
	autoApproveFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "bindr",
	Short: "bindr - a mode-driven terminal assistant for building projects",
	Long: `bindr walks a project through four modes, each with its own
capabilities and prompt:

  🧠 Brainstorm  explore ideas and define the project (read-only)
  📋 Plan        structure the project and create the scaffold
  🔨 Execute     implement, modify files, run commands
  📚 Document    write the docs for what was built

Every file write and command runs only after you approve it. Mode
switches carry a bounded summary of what happened, so each mode starts
with exactly the context it needs.

Global Flags:
  --model         override the model for every mode
  --workspace     project directory (default: current directory)
  --auto-approve  approve tool requests without prompting`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model to use for every mode (overrides config)")
	rootCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "", "Project directory (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&autoApproveFlag, "auto-approve", false, "Approve tool requests without prompting")
}

// Execute runs the root command.
func Execute() {
	// Load .env before anything reads the environment.
	loadDotEnv()

	logPath := filepath.Join(".bindr", "logs", time.Now().Format("20060102")+".log")
	level := logger.INFO
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		level = logger.DEBUG
	case "WARN":
		level = logger.WARN
	case "ERROR":
		level = logger.ERROR
	}
	if err := logger.Init(logPath, level, "bindr"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	logger.Info("System", "bindr starting", map[string]interface{}{
		"os": runtime.GOOS,
	})

	// Bare invocation drops straight into chat.
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "chat")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadDotEnv reads a .env file and sets environment variables that are
// not already set.
func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])

		if (strings.HasPrefix(val, "\"") && strings.HasSuffix(val, "\"")) ||
			(strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'")) {
			val = val[1 : len(val)-1]
		}

		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}
