// Package store persists the ledger aggregate and its operation history.
package store

import (
	"context"
	"errors"

	"YieldKeeper/internal/model"
)

var (
	// ErrStaleState is returned by Commit when the stored pool version does
	// not match the version the change was computed against.
	ErrStaleState = errors.New("store: stale state")
	// ErrNotInitialized is returned by Load before the pool has been created.
	ErrNotInitialized = errors.New("store: pool not initialized")
)

// State is a full snapshot of the ledger aggregate.
type State struct {
	Pool      model.GlobalPool
	Positions map[model.Address]model.Position // keyed by owner
	Markets   map[model.Asset]model.Market
}

// Change is the set of records touched by one operation. Pool.Version must be
// the version being written; the store checks the previous one.
type Change struct {
	Pool      model.GlobalPool
	Positions []model.Position
	Markets   []model.Market
	Events    []model.Event
}

// Store persists ledger state with optimistic version checks.
type Store interface {
	// Load returns the latest committed state or ErrNotInitialized.
	Load(ctx context.Context) (*State, error)
	// Commit writes ch if the stored pool is still at version expected.
	// expected == 0 creates the pool.
	Commit(ctx context.Context, expected uint64, ch Change) error
	// Events returns up to limit events, newest first.
	Events(ctx context.Context, limit int) ([]model.Event, error)
	Close() error
}
