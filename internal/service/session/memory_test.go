package session

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMemoryCombineAndRecord(t *testing.T) {
	m := NewMemory(0, 0)

	if got := m.Combine("  passage one  "); got != "passage one" {
		t.Fatalf("unexpected first combine: %q", got)
	}

	m.Record("passage one", "answer one")
	if got := m.Combine("passage two"); got != "passage one answer one passage two" {
		t.Fatalf("unexpected second combine: %q", got)
	}

	// Combine must not mutate the log.
	if diff := cmp.Diff([]string{"passage one", "answer one"}, m.Entries()); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryRecordSkipsEmptyRetrieval(t *testing.T) {
	m := NewMemory(0, 0)
	m.Record("", "only answer")
	m.Record("  ", "second answer")

	if diff := cmp.Diff([]string{"only answer", "second answer"}, m.Entries()); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	if m.Size() != len("only answer second answer") {
		t.Fatalf("unexpected size: %d", m.Size())
	}
}

func TestMemoryCombineEmpty(t *testing.T) {
	m := NewMemory(0, 0)
	if got := m.Combine(""); got != "" {
		t.Fatalf("expected empty combine, got %q", got)
	}
}

func TestMemoryEvictsOldestByEntries(t *testing.T) {
	m := NewMemory(0, 3)
	m.Record("r1", "a1")
	m.Record("r2", "a2")

	if diff := cmp.Diff([]string{"a1", "r2", "a2"}, m.Entries()); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryEvictsOldestByChars(t *testing.T) {
	m := NewMemory(11, 0)
	m.Record("aaaa", "bbbb")
	m.Record("", "cccc")

	if diff := cmp.Diff([]string{"bbbb", "cccc"}, m.Entries()); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	if m.Size() != 9 {
		t.Fatalf("unexpected size: %d", m.Size())
	}
}

func TestMemoryOversizedEntryKeepsTail(t *testing.T) {
	m := NewMemory(5, 0)
	m.Record("", "0123456789")

	if diff := cmp.Diff([]string{"56789"}, m.Entries()); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryTailRespectsRunes(t *testing.T) {
	m := NewMemory(4, 0)
	m.Record("", "ab你好")

	got := m.Entries()[0]
	if got != "好" {
		t.Fatalf("expected rune-aligned tail, got %q", got)
	}
}

func TestMemoryStaysWithinBudget(t *testing.T) {
	m := NewMemory(200, 0)
	for i := 0; i < 100; i++ {
		m.Record(strings.Repeat("r", 30), strings.Repeat("a", 40))
		if m.Size() > 200 {
			t.Fatalf("size %d exceeds budget after %d turns", m.Size(), i+1)
		}
	}
	if joined := strings.Join(m.Entries(), " "); len(joined) != m.Size() {
		t.Fatalf("size bookkeeping drifted: %d vs %d", len(joined), m.Size())
	}
}
