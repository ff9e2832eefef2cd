package venue

import (
	"context"
	"sync"
)

// StaticVenue returns a fixed yield on every harvest. Used for local runs and
// tests. Err and Yield may be changed while the venue is in use through
// SetErr and SetYield.
type StaticVenue struct {
	VenueName string
	Yield     uint64
	Err       error

	mu        sync.Mutex
	harvested uint64
}

func (s *StaticVenue) Name() string { return s.VenueName }

func (s *StaticVenue) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

func (s *StaticVenue) SetYield(yield uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Yield = yield
}

func (s *StaticVenue) Harvest(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	s.harvested += s.Yield
	return s.Yield, nil
}

// Holdings reports the total harvested so far.
func (s *StaticVenue) Holdings(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	return s.harvested, nil
}
