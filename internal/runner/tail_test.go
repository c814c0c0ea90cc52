package runner

import (
	"strings"
	"testing"
)

func TestTailBufferUnderLimit(t *testing.T) {
	t.Parallel()
	tb := newTailBuffer(16)
	tb.Write([]byte("hello "))
	tb.Write([]byte("world"))
	if got := tb.String(); got != "hello world" {
		t.Fatalf("String = %q", got)
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	t.Parallel()
	tb := newTailBuffer(8)
	tb.Write([]byte(strings.Repeat("a", 20)))
	tb.Write([]byte("TAILEND"))

	got := tb.String()
	if !strings.HasPrefix(got, "...") {
		t.Fatalf("clipped output missing marker: %q", got)
	}
	if !strings.HasSuffix(got, "TAILEND") {
		t.Fatalf("String = %q, want suffix TAILEND", got)
	}
	if len(got) != len("...")+8 {
		t.Fatalf("kept %d bytes, want 8 plus marker", len(got)-len("..."))
	}
}

func TestTailBufferEmpty(t *testing.T) {
	t.Parallel()
	if got := newTailBuffer(8).String(); got != "" {
		t.Fatalf("String = %q, want empty", got)
	}
}
