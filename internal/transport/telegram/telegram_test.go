package telegram

import (
	"strings"
	"testing"

	logx "backupd/pkg/logx"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()
	got := splitText("hello", 10)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("a", 6)
	s := line + "\n" + line + "\n" + line
	got := splitText(s, 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %q", len(got), got)
	}
	for i, c := range got {
		if c != line {
			t.Fatalf("chunk %d = %q, want %q", i, c, line)
		}
	}
}

func TestSplitTextHardCut(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("x", 25)
	got := splitText(s, 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	if strings.Join(got, "") != s {
		t.Fatal("chunks do not reassemble the input")
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
