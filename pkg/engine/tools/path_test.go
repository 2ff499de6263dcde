package tools

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestResolve_BlocksDotDotEscape(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "../outside.txt")
	if err == nil {
		t.Fatalf("expected error for path escape, got nil")
	}
}

func TestResolve_BlocksAbsoluteOutsidePath(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	_, err := Resolve(root, filepath.Join(outside, "secret.txt"))
	if err == nil {
		t.Fatalf("expected error for absolute path outside workspace, got nil")
	}
}

func TestResolve_BlocksSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink behavior varies on Windows")
	}

	root := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(root, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}

	_, err := Resolve(root, filepath.Join("link", "secret.txt"))
	if err == nil {
		t.Fatalf("expected error for symlink escape, got nil")
	}
}

func TestResolve_AllowsSymlinkInsideWorkspace(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink behavior varies on Windows")
	}

	root := t.TempDir()
	target := filepath.Join(root, "real")
	if err := os.MkdirAll(target, 0755); err != nil {
		t.Fatal(err)
	}

	link := filepath.Join(root, "alias")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}

	got, err := Resolve(root, filepath.Join("alias", "file.txt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := filepath.Join(target, "file.txt")
	gotReal, _ := filepath.EvalSymlinks(got)
	wantReal, _ := filepath.EvalSymlinks(want)
	if filepath.Clean(gotReal) != filepath.Clean(wantReal) {
		t.Fatalf("expected %q, got %q", wantReal, gotReal)
	}
}

func TestResolve_NonexistentPathStaysContained(t *testing.T) {
	root := t.TempDir()
	got, err := Resolve(root, filepath.Join("src", "deep", "new.go"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rootReal, _ := filepath.EvalSymlinks(root)
	if !withinRoot(rootReal, got) {
		t.Fatalf("resolved path %q not within root %q", got, rootReal)
	}
}

func TestIsDocTarget(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"README.md", true},
		{"docs/architecture.png", true},
		{"notes.txt", true},
		{"guide.MD", true},
		{"main.go", false},
		{"src/app.py", false},
		{"dockerfiles/Dockerfile", false},
	}
	for _, tc := range cases {
		if got := IsDocTarget(tc.path); got != tc.want {
			t.Errorf("IsDocTarget(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
