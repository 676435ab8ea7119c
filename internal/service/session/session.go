package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Session is the state of one live connection. Only the connection's worker
// mutates collection and memory; state and activity are read concurrently
// by the registry.
type Session struct {
	ID        string
	CreatedAt time.Time
	Memory    *Memory

	mu         sync.RWMutex
	collection string

	lastActive atomic.Int64
	state      atomic.Int32
	turns      atomic.Int64
	cancel     context.CancelFunc
}

// Info is a read-only view used for listings.
type Info struct {
	ID           string    `json:"id"`
	Collection   string    `json:"collection,omitempty"`
	State        string    `json:"state"`
	Turns        int64     `json:"turns"`
	ContextBytes int       `json:"contextBytes"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// Collection returns the selected knowledge collection, or "".
func (s *Session) Collection() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection
}

// SetCollection selects the collection used by subsequent turns.
func (s *Session) SetCollection(name string) {
	s.mu.Lock()
	s.collection = name
	s.mu.Unlock()
}

// Touch records activity at t.
func (s *Session) Touch(t time.Time) {
	s.lastActive.Store(t.UnixNano())
}

func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load()).UTC()
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) SetState(st State) {
	s.state.Store(int32(st))
}

// NextTurn increments and returns the turn sequence number.
func (s *Session) NextTurn() int64 {
	return s.turns.Add(1)
}

func (s *Session) Turns() int64 {
	return s.turns.Load()
}

// Cancel aborts whatever the session is doing. Safe to call repeatedly.
func (s *Session) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Info snapshots the session for listings.
func (s *Session) Info() Info {
	return Info{
		ID:           s.ID,
		Collection:   s.Collection(),
		State:        s.State().String(),
		Turns:        s.Turns(),
		ContextBytes: s.Memory.Size(),
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActive(),
	}
}
