package config

import (
	"os"
	"path/filepath"
	"testing"

	"Bindr/pkg/engine/api"
)

func TestLoad_ProjectOverlay(t *testing.T) {
	dir := t.TempDir()
	content := `
base_url: https://llm.internal/v1
model: big-model
mode_models:
  brainstorm: cheap-model
  execute: big-model
max_tokens: 4096
`
	if err := os.WriteFile(filepath.Join(dir, projectFile), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LLM_BASE_URL", "")
	t.Setenv("LLM_MODEL", "")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "https://llm.internal/v1" {
		t.Errorf("base_url = %q", cfg.BaseURL)
	}
	if cfg.Model != "big-model" || cfg.MaxTokens != 4096 {
		t.Errorf("model = %q, max_tokens = %d", cfg.Model, cfg.MaxTokens)
	}
	if got := cfg.ModelFor(api.ModeBrainstorm); got != "cheap-model" {
		t.Errorf("ModelFor(brainstorm) = %q", got)
	}
	// Unpinned modes fall back to the default model.
	if got := cfg.ModelFor(api.ModePlan); got != "big-model" {
		t.Errorf("ModelFor(plan) = %q", got)
	}
}

func TestLoad_EnvWins(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, projectFile), []byte("base_url: https://file.example/v1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LLM_BASE_URL", "https://env.example/v1")
	t.Setenv("LLM_MODEL", "env-model")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "https://env.example/v1" {
		t.Errorf("base_url = %q, env must win", cfg.BaseURL)
	}
	if cfg.Model != "env-model" {
		t.Errorf("model = %q, env must win", cfg.Model)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LLM_BASE_URL", "")
	t.Setenv("LLM_MODEL", "")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != defaultBaseURL || cfg.Model != defaultModel {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.APIKeyEnv != defaultAPIKeyEnv {
		t.Errorf("api_key_env = %q", cfg.APIKeyEnv)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, projectFile), []byte("model: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("malformed YAML must error")
	}
}

func TestModeModelMap(t *testing.T) {
	cfg := &Config{ModeModels: map[string]string{
		"plan":    "planner",
		"bogus":   "ignored",
		"execute": "builder",
	}}
	m := cfg.ModeModelMap()
	if len(m) != 2 {
		t.Fatalf("map = %v", m)
	}
	if m[api.ModePlan] != "planner" || m[api.ModeExecute] != "builder" {
		t.Errorf("map = %v", m)
	}
}
