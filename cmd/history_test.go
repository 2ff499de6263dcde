package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHistoryRoundtrip(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewHistoryManager(dir)
	if err != nil {
		t.Fatalf("NewHistoryManager: %v", err)
	}

	inputs := []string{"build a cli tool", "/mode plan", "add a config loader"}
	for _, in := range inputs {
		if err := mgr.Append(in); err != nil {
			t.Fatalf("Append(%q): %v", in, err)
		}
	}

	got, err := mgr.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(inputs) {
		t.Fatalf("Load returned %d entries, want %d", len(got), len(inputs))
	}
	for i, in := range inputs {
		if got[i] != in {
			t.Errorf("entry %d = %q, want %q", i, got[i], in)
		}
	}
}

func TestHistoryLoadMissingFile(t *testing.T) {
	mgr, err := NewHistoryManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewHistoryManager: %v", err)
	}
	got, err := mgr.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Fatalf("Load = %v, want nil", got)
	}
}

func TestHistorySkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewHistoryManager(dir)
	if err != nil {
		t.Fatalf("NewHistoryManager: %v", err)
	}
	if err := mgr.Append("first"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	path := filepath.Join(dir, "history", "input.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	if err := mgr.Append("second"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := mgr.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("Load = %v, want [first second]", got)
	}
}
