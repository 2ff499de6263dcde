package tools

import (
	"fmt"
	"strings"
)

const diffContextLines = 3

// maxDiffLines bounds the LCS table; beyond it the preview degrades to a
// whole-file replacement view rather than paying quadratic cost.
const maxDiffLines = 4000

// unifiedDiff renders a unified diff between two file bodies for the
// approval preview. The output is deterministic for identical inputs.
func unifiedDiff(path, before, after string) string {
	if before == after {
		return ""
	}

	a := splitLines(before)
	b := splitLines(after)

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n", path)
	fmt.Fprintf(&sb, "+++ b/%s\n", path)

	if len(a) > maxDiffLines || len(b) > maxDiffLines {
		fmt.Fprintf(&sb, "@@ -1,%d +1,%d @@\n", len(a), len(b))
		for _, line := range a {
			sb.WriteString("-" + line + "\n")
		}
		for _, line := range b {
			sb.WriteString("+" + line + "\n")
		}
		return sb.String()
	}

	ops := diffOps(a, b)
	for _, h := range groupHunks(ops) {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.aStart+1, h.aLen, h.bStart+1, h.bLen)
		for _, op := range h.ops {
			switch op.kind {
			case opEqual:
				sb.WriteString(" " + op.text + "\n")
			case opDelete:
				sb.WriteString("-" + op.text + "\n")
			case opInsert:
				sb.WriteString("+" + op.text + "\n")
			}
		}
	}
	return sb.String()
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

type opKind int

const (
	opEqual opKind = iota
	opDelete
	opInsert
)

type diffOp struct {
	kind opKind
	text string
}

// diffOps computes an edit script via a standard LCS table.
func diffOps(a, b []string) []diffOp {
	n, m := len(a), len(b)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var ops []diffOp
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, diffOp{opEqual, a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, diffOp{opDelete, a[i]})
			i++
		default:
			ops = append(ops, diffOp{opInsert, b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, diffOp{opDelete, a[i]})
	}
	for ; j < m; j++ {
		ops = append(ops, diffOp{opInsert, b[j]})
	}
	return ops
}

type hunk struct {
	aStart, aLen int
	bStart, bLen int
	ops          []diffOp
}

// groupHunks collapses long equal runs, keeping diffContextLines of
// context around each change.
func groupHunks(ops []diffOp) []hunk {
	// Mark which ops to keep: changes plus surrounding context.
	keep := make([]bool, len(ops))
	for idx, op := range ops {
		if op.kind == opEqual {
			continue
		}
		lo := idx - diffContextLines
		if lo < 0 {
			lo = 0
		}
		hi := idx + diffContextLines
		if hi >= len(ops) {
			hi = len(ops) - 1
		}
		for k := lo; k <= hi; k++ {
			keep[k] = true
		}
	}

	var hunks []hunk
	aLine, bLine := 0, 0
	idx := 0
	for idx < len(ops) {
		if !keep[idx] {
			if ops[idx].kind != opInsert {
				aLine++
			}
			if ops[idx].kind != opDelete {
				bLine++
			}
			idx++
			continue
		}

		h := hunk{aStart: aLine, bStart: bLine}
		for idx < len(ops) && keep[idx] {
			op := ops[idx]
			h.ops = append(h.ops, op)
			if op.kind != opInsert {
				aLine++
				h.aLen++
			}
			if op.kind != opDelete {
				bLine++
				h.bLen++
			}
			idx++
		}
		hunks = append(hunks, h)
	}
	return hunks
}
