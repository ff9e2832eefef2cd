package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"YieldKeeper/internal/model"
)

// MemoryStore keeps state in process. Used in tests and when no database
// path is configured.
type MemoryStore struct {
	mu     sync.Mutex
	state  *State
	events []model.Event
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(_ context.Context) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, ErrNotInitialized
	}
	return cloneState(s.state), nil
}

func (s *MemoryStore) Commit(_ context.Context, expected uint64, ch Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current uint64
	if s.state != nil {
		current = s.state.Pool.Version
	}
	if current != expected {
		return fmt.Errorf("%w: have version %d, expected %d", ErrStaleState, current, expected)
	}

	next := &State{
		Positions: make(map[model.Address]model.Position),
		Markets:   make(map[model.Asset]model.Market),
	}
	if s.state != nil {
		next = cloneState(s.state)
	}
	next.Pool = ch.Pool
	for _, p := range ch.Positions {
		next.Positions[p.Owner] = p
	}
	for _, m := range ch.Markets {
		next.Markets[m.Asset] = m
	}
	s.state = next

	for _, e := range ch.Events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		s.events = append(s.events, e)
	}
	return nil
}

func (s *MemoryStore) Events(_ context.Context, limit int) ([]model.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Event, 0, min(limit, len(s.events)))
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneState(st *State) *State {
	out := &State{
		Pool:      st.Pool,
		Positions: make(map[model.Address]model.Position, len(st.Positions)),
		Markets:   make(map[model.Asset]model.Market, len(st.Markets)),
	}
	for k, v := range st.Positions {
		out.Positions[k] = v
	}
	for k, v := range st.Markets {
		out.Markets[k] = v
	}
	return out
}
