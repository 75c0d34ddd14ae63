// Package session keeps the bounded conversation history of every connected
// client, keyed by an opaque session key.
package session

import (
	"context"
	"sync"

	"docchat/internal/domain"
)

// DefaultWindow is the number of turns retained when no window is configured.
const DefaultWindow = 5

// Store maps session keys to their recent turns. Keys never contend with
// each other: every session carries its own lock.
type Store struct {
	window   int
	sessions sync.Map // string -> *entry
}

type entry struct {
	// run admits one conversation turn at a time. Blocked senders are woken in
	// arrival order.
	run chan struct{}

	mu    sync.Mutex
	turns []domain.Turn
}

func newEntry() *entry {
	return &entry{run: make(chan struct{}, 1)}
}

// NewStore creates a store that keeps the most recent window turns per
// session.
func NewStore(window int) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{window: window}
}

// Window returns the per-session history bound.
func (s *Store) Window() int {
	return s.window
}

// OnConnect starts an empty history for key, replacing any previous one.
func (s *Store) OnConnect(key string) {
	s.sessions.Store(key, newEntry())
}

// OnDisconnect drops the history for key. Unknown keys are ignored.
func (s *Store) OnDisconnect(key string) {
	s.sessions.Delete(key)
}

// Has reports whether key is a live session.
func (s *Store) Has(key string) bool {
	_, ok := s.lookup(key)
	return ok
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	n := 0
	s.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *Store) lookup(key string) (*entry, bool) {
	v, ok := s.sessions.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

// Acquire blocks until no other turn is running for key and returns the
// function that releases it. Turns for an unknown key are not serialized.
func (s *Store) Acquire(ctx context.Context, key string) (func(), error) {
	e, ok := s.lookup(key)
	if !ok {
		return func() {}, nil
	}
	select {
	case e.run <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-e.run }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AppendTurn records turn for key and evicts the oldest turns beyond the
// window. It reports false, recording nothing, when key is not connected.
func (s *Store) AppendTurn(key string, turn domain.Turn) bool {
	e, ok := s.lookup(key)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.turns = append(e.turns, turn)
	if over := len(e.turns) - s.window; over > 0 {
		kept := make([]domain.Turn, s.window)
		copy(kept, e.turns[over:])
		e.turns = kept
	}
	return true
}

// History returns a copy of the turns for key, oldest first. Unknown keys
// have an empty history.
func (s *Store) History(key string) []domain.Turn {
	e, ok := s.lookup(key)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Turn, len(e.turns))
	copy(out, e.turns)
	return out
}
