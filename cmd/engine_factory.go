package cmd

import (
	"os"
	"path/filepath"

	"Bindr/pkg/config"
	"Bindr/pkg/engine/api"
	mw "Bindr/pkg/engine/middleware"
	"Bindr/pkg/engine/prompts"
	"Bindr/pkg/engine/runtime"
	"Bindr/pkg/engine/tools"
)

func resolveWorkspaceRoot() (string, error) {
	if workspaceFlag != "" {
		abs, err := filepath.Abs(workspaceFlag)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(abs, 0755); err != nil {
			return "", err
		}
		return abs, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if realWD, err := filepath.EvalSymlinks(wd); err == nil {
		wd = realWD
	}
	return wd, nil
}

// newAPIEngine wires the full engine for a workspace: config, model
// client, capability executors, and the prompt-assembly middlewares.
func newAPIEngine(workspaceRoot string) (*runtime.Engine, *config.Config, error) {
	cfg, err := config.Load(workspaceRoot)
	if err != nil {
		return nil, nil, err
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
		cfg.ModeModels = nil // a flag override pins every mode
	}

	var llm runtime.LLM = &runtime.MockLLM{}
	if apiKey := cfg.APIKey(); apiKey != "" {
		llm = runtime.NewOpenAILLM(cfg.BaseURL, apiKey, cfg.Model)
	}

	loader := prompts.NewLoader(workspaceRoot)

	engine, err := runtime.NewEngine(runtime.EngineConfig{
		LLM:      llm,
		Registry: tools.DefaultRegistry(workspaceRoot),
		Middlewares: []mw.Middleware{
			mw.NewModePromptMiddleware(loader),
			mw.NewWorkspaceMiddleware(workspaceRoot),
			mw.NewHandoffMiddleware(),
		},
		WorkspaceRoot: workspaceRoot,
		StateRoot:     filepath.Join(workspaceRoot, ".bindr"),
		DefaultModel:  cfg.Model,
		ModeModels:    cfg.ModeModelMap(),
		MaxTokens:     cfg.MaxTokens,
	})
	if err != nil {
		return nil, nil, err
	}

	// The recorder feeds executed tool results back into the session's
	// activity log, which the handoff builder summarizes.
	engine.Use(mw.NewActivityMiddleware(engine))

	return engine, cfg, nil
}

// stateRoot returns the session/state directory for a workspace.
func stateRoot(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, ".bindr")
}

var _ api.Engine = (*runtime.Engine)(nil)
