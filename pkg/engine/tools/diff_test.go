package tools

import (
	"strings"
	"testing"
)

func TestUnifiedDiff_EmptyForIdenticalInput(t *testing.T) {
	if d := unifiedDiff("a.txt", "same\n", "same\n"); d != "" {
		t.Fatalf("expected empty diff, got:\n%s", d)
	}
}

func TestUnifiedDiff_NewFileIsAllAdditions(t *testing.T) {
	d := unifiedDiff("new.txt", "", "one\ntwo\n")
	if !strings.Contains(d, "+one") || !strings.Contains(d, "+two") {
		t.Fatalf("missing additions:\n%s", d)
	}
	if strings.Contains(d, "\n-") {
		t.Fatalf("unexpected deletions in new-file diff:\n%s", d)
	}
}

func TestUnifiedDiff_ChangeWithContext(t *testing.T) {
	before := "a\nb\nc\nd\ne\nf\ng\nh\ni\nj\n"
	after := "a\nb\nc\nd\nE\nf\ng\nh\ni\nj\n"
	d := unifiedDiff("f.txt", before, after)

	if !strings.Contains(d, "-e") || !strings.Contains(d, "+E") {
		t.Fatalf("missing change lines:\n%s", d)
	}
	// Lines far from the change stay out of the hunk.
	if strings.Contains(d, " a\n") && strings.Contains(d, " j\n") {
		t.Fatalf("hunk includes full file instead of context window:\n%s", d)
	}
}

func TestUnifiedDiff_Deterministic(t *testing.T) {
	before := "x\ny\nz\n"
	after := "x\nq\nz\n"
	first := unifiedDiff("f.txt", before, after)
	for i := 0; i < 5; i++ {
		if got := unifiedDiff("f.txt", before, after); got != first {
			t.Fatal("diff output is not deterministic")
		}
	}
}
