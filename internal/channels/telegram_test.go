package channels

import (
	"strings"
	"testing"
)

func TestSplitMessageShort(t *testing.T) {
	chunks := splitMessage("hello", 4000)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Errorf("chunks = %q", chunks)
	}
}

func TestSplitMessagePrefersNewlines(t *testing.T) {
	text := strings.Repeat("line one\n", 3) + "line two"
	chunks := splitMessage(text, 20)
	if len(chunks) < 2 {
		t.Fatalf("expected a split, got %q", chunks)
	}
	for i, c := range chunks {
		if len(c) > 20 {
			t.Errorf("chunk %d is %d chars, exceeds limit", i, len(c))
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Errorf("chunk %d keeps a boundary newline: %q", i, c)
		}
	}
	if got := strings.Join(chunks, "\n"); got != text {
		t.Errorf("rejoined text mismatch:\n got %q\nwant %q", got, text)
	}
}

func TestSplitMessageNoNewline(t *testing.T) {
	text := strings.Repeat("x", 45)
	chunks := splitMessage(text, 20)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	for _, c := range chunks {
		if len(c) > 20 {
			t.Errorf("chunk exceeds limit: %d", len(c))
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("content lost across hard splits")
	}
}
