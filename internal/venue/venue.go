// Package venue talks to the external yield venues the pool's assets are
// deployed in (stable-swap, lending market, staking rewards).
package venue

import "context"

// Venue reports and realises yield. Amounts are in pool base units.
type Venue interface {
	Name() string
	// Harvest realises pending yield and returns the amount harvested.
	Harvest(ctx context.Context) (uint64, error)
	// Holdings returns the value currently deployed in the venue.
	Holdings(ctx context.Context) (uint64, error)
}
