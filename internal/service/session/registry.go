package session

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// Limits bounds the conversation memory of every new session.
type Limits struct {
	MaxChars   int
	MaxEntries int
}

// Registry tracks live sessions. Lookups, inserts and removals are safe
// from concurrent connection goroutines.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	limits   Limits
	now      func() time.Time
}

// NewRegistry creates an empty in-memory registry.
func NewRegistry(limits Limits) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		limits:   limits,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a new session. cancel is invoked when the session is
// reaped or explicitly cancelled.
func (r *Registry) Create(cancel context.CancelFunc) *Session {
	now := r.now()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Memory:    NewMemory(r.limits.MaxChars, r.limits.MaxEntries),
		cancel:    cancel,
	}
	sess.Touch(now)

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	return sess
}

// Get returns the live session for id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Remove deletes the session and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot lists live sessions ordered by creation time.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	list := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		list = append(list, sess)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(list))
	for _, sess := range list {
		infos = append(infos, sess.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Reap cancels sessions idle for longer than maxIdle and returns their ids.
// Cancelled sessions are removed by their own connection goroutine.
func (r *Registry) Reap(now time.Time, maxIdle time.Duration) []string {
	if maxIdle <= 0 {
		return nil
	}

	r.mu.RLock()
	var idle []*Session
	for _, sess := range r.sessions {
		if now.Sub(sess.LastActive()) > maxIdle {
			idle = append(idle, sess)
		}
	}
	r.mu.RUnlock()

	ids := make([]string, 0, len(idle))
	for _, sess := range idle {
		sess.Cancel()
		ids = append(ids, sess.ID)
	}
	return ids
}

// CancelAll cancels every live session, e.g. on shutdown.
func (r *Registry) CancelAll() int {
	r.mu.RLock()
	list := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		list = append(list, sess)
	}
	r.mu.RUnlock()

	for _, sess := range list {
		sess.Cancel()
	}
	return len(list)
}

// RunReaper calls Reap every interval until ctx is done. onReap, if set,
// receives the ids of each non-empty batch.
func (r *Registry) RunReaper(ctx context.Context, interval, maxIdle time.Duration, onReap func(ids []string)) {
	if interval <= 0 || maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ids := r.Reap(r.now(), maxIdle); len(ids) > 0 {
				log.Printf("[session] reaped %d idle sessions: %v", len(ids), ids)
				if onReap != nil {
					onReap(ids)
				}
			}
		}
	}
}
