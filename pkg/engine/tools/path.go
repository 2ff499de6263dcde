package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolve maps a user-supplied path to an absolute path inside the
// workspace root. Both the lexical path and its symlink-resolved form
// must stay within the root; otherwise an error is returned and the
// caller must treat the request as a containment violation. For paths
// that do not exist yet, the nearest existing ancestor is resolved and
// the remaining suffix is re-joined, so a symlinked parent cannot smuggle
// a new file outside the root.
func Resolve(workspaceRoot, userPath string) (string, error) {
	if strings.TrimSpace(userPath) == "" {
		userPath = "."
	}

	rootAbs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	rootAbs = filepath.Clean(rootAbs)

	rootReal, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root symlinks: %w", err)
	}
	rootReal = filepath.Clean(rootReal)

	targetAbs := userPath
	if !filepath.IsAbs(targetAbs) {
		targetAbs = filepath.Join(rootAbs, targetAbs)
	}
	targetAbs = filepath.Clean(targetAbs)

	if !withinRoot(rootAbs, targetAbs) {
		return "", fmt.Errorf("path escapes workspace: %s", userPath)
	}

	if _, err := os.Lstat(targetAbs); err == nil {
		targetReal, err := filepath.EvalSymlinks(targetAbs)
		if err != nil {
			return "", fmt.Errorf("resolve path symlinks: %w", err)
		}
		targetReal = filepath.Clean(targetReal)
		if !withinRoot(rootReal, targetReal) {
			return "", fmt.Errorf("path escapes workspace via symlink: %s", userPath)
		}
		return targetReal, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat path: %w", err)
	}

	// Target does not exist yet. Walk up to the nearest existing ancestor,
	// resolve its symlinks, and re-check containment with the suffix.
	parent := filepath.Dir(targetAbs)
	for {
		if _, err := os.Lstat(parent); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("stat parent path: %w", err)
		}
		next := filepath.Dir(parent)
		if next == parent {
			break
		}
		parent = next
	}

	parentReal, err := filepath.EvalSymlinks(parent)
	if err != nil {
		return "", fmt.Errorf("resolve parent symlinks: %w", err)
	}
	parentReal = filepath.Clean(parentReal)

	suffix, err := filepath.Rel(parent, targetAbs)
	if err != nil {
		return "", fmt.Errorf("compute target suffix: %w", err)
	}
	if suffix == ".." || strings.HasPrefix(suffix, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", userPath)
	}

	targetReal := filepath.Clean(filepath.Join(parentReal, suffix))
	if !withinRoot(rootReal, targetReal) {
		return "", fmt.Errorf("path escapes workspace via symlink: %s", userPath)
	}
	return targetReal, nil
}

func withinRoot(root, target string) bool {
	root = filepath.Clean(root)
	target = filepath.Clean(target)

	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

// IsDocTarget reports whether a path is an acceptable documentation
// target: a markdown or plain-text file, or any file under a docs/
// directory.
func IsDocTarget(userPath string) bool {
	p := filepath.ToSlash(strings.ToLower(filepath.Clean(userPath)))
	switch filepath.Ext(p) {
	case ".md", ".markdown", ".txt", ".rst":
		return true
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "docs" || seg == "doc" {
			return true
		}
	}
	return false
}
