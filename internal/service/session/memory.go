package session

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// Memory is the per-session conversation context: an ordered log of
// retrieved passages and answers that later turns are grounded on.
//
// Size is measured in bytes of the joined log. When MaxChars or MaxEntries
// is exceeded the oldest entries go first; a lone entry that is still too
// large keeps its tail. A zero limit disables that bound.
type Memory struct {
	mu         sync.Mutex
	entries    []string
	size       int
	maxChars   int
	maxEntries int
}

// NewMemory creates an empty log with the given retention bounds.
func NewMemory(maxChars, maxEntries int) *Memory {
	if maxChars < 0 {
		maxChars = 0
	}
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &Memory{maxChars: maxChars, maxEntries: maxEntries}
}

// Combine returns the accumulated log followed by retrieved, trimmed.
// It does not mutate the log.
func (m *Memory) Combine(retrieved string) string {
	m.mu.Lock()
	prior := strings.Join(m.entries, " ")
	m.mu.Unlock()

	return strings.TrimSpace(prior + " " + strings.TrimSpace(retrieved))
}

// Record appends a completed turn: the retrieved block (if any) then the answer.
func (m *Memory) Record(retrieved, answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.appendLocked(strings.TrimSpace(retrieved))
	m.appendLocked(strings.TrimSpace(answer))
	m.evictLocked()
}

// Entries returns a copy of the log, oldest first.
func (m *Memory) Entries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	copy(out, m.entries)
	return out
}

// Size reports the byte length of the joined log.
func (m *Memory) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

func (m *Memory) appendLocked(entry string) {
	if entry == "" {
		return
	}
	if len(m.entries) > 0 {
		m.size++
	}
	m.entries = append(m.entries, entry)
	m.size += len(entry)
}

func (m *Memory) evictLocked() {
	for m.maxEntries > 0 && len(m.entries) > m.maxEntries {
		m.dropOldestLocked()
	}
	for m.maxChars > 0 && m.size > m.maxChars && len(m.entries) > 1 {
		m.dropOldestLocked()
	}
	if m.maxChars > 0 && len(m.entries) == 1 && m.size > m.maxChars {
		m.entries[0] = tail(m.entries[0], m.maxChars)
		m.size = len(m.entries[0])
	}
}

func (m *Memory) dropOldestLocked() {
	dropped := len(m.entries[0])
	m.entries[0] = ""
	m.entries = m.entries[1:]
	m.size -= dropped
	if len(m.entries) > 0 {
		m.size--
	} else {
		m.size = 0
	}
}

// tail keeps at most n bytes from the end of s without splitting a rune.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
