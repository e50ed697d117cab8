package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitTextShortIsUntouched(t *testing.T) {
	t.Parallel()

	if got := splitText("hello", 10, ""); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("short text split: %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()

	line := strings.Repeat("x", 30)
	text := strings.Join([]string{line, line, line, line}, "\n")
	chunks := splitText(text, 70, "")
	if len(chunks) != 2 {
		t.Fatalf("want 2 chunks, got %d: %q", len(chunks), chunks)
	}
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > 70 {
			t.Fatalf("chunk too long: %d", utf8.RuneCountInString(c))
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk keeps boundary newline: %q", c)
		}
	}
	if strings.Join(chunks, "\n") != text {
		t.Fatalf("chunks do not reassemble the text")
	}
}

func TestSplitTextAvoidsCuttingTags(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 18) + "<b>bold</b>" + strings.Repeat("c", 10)
	chunks := splitText(text, 20, "HTML")
	if len(chunks) < 2 {
		t.Fatalf("expected a split, got %q", chunks)
	}
	if strings.Contains(chunks[0], "<") {
		t.Fatalf("first chunk should stop before the tag: %q", chunks[0])
	}
	if strings.Join(chunks, "") != text {
		t.Fatalf("chunks lost text: %q", chunks)
	}
}
