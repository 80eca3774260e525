package chunking

import (
	"strings"
	"testing"
)

func TestSplitEmptyText(t *testing.T) {
	s := NewSplitter(100)
	if got := s.Split("   \n  "); got != nil {
		t.Fatalf("expected nil for blank text, got %v", got)
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(100)
	got := s.Split("第一行\n第二行")
	if len(got) != 1 {
		t.Fatalf("expected one chunk, got %d", len(got))
	}
	if got[0] != "第一行\n第二行" {
		t.Fatalf("unexpected chunk %q", got[0])
	}
}

func TestSplitAccumulatesWholeLines(t *testing.T) {
	s := NewSplitter(10)
	got := s.Split("aaaa\nbbbb\ncccc")
	// aaaa+bbbb fits in 10 with the joining newline; cccc does not.
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %v", got)
	}
	if got[0] != "aaaa\nbbbb" || got[1] != "cccc" {
		t.Fatalf("unexpected chunks %v", got)
	}
}

func TestSplitLongLineKeptWhole(t *testing.T) {
	s := NewSplitter(10)
	long := strings.Repeat("x", 30)
	got := s.Split("short\n" + long + "\nend")
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %v", got)
	}
	if got[1] != long {
		t.Fatalf("long line must stay intact, got %q", got[1])
	}
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	s := NewSplitter(6)
	got := s.Split("四个汉字\n三字行")
	// 4 + 3 + newline exceeds 6 runes, so the lines separate.
	if len(got) != 2 {
		t.Fatalf("expected rune-based split, got %v", got)
	}
}

func TestNewSplitterDefaultSize(t *testing.T) {
	if s := NewSplitter(0); s.ChunkSize != 700 {
		t.Fatalf("expected default chunk size 700, got %d", s.ChunkSize)
	}
}
