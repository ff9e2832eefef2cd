package model

// PoolState is the administrative state of the pool.
type PoolState string

const (
	PoolActive    PoolState = "ACTIVE"
	PoolEmergency PoolState = "EMERGENCY"
)

// GlobalPool is the singleton aggregate shared by every Position.
type GlobalPool struct {
	ID           Address `json:"id"`
	Admin        Address `json:"admin"`
	BaseAsset    Asset   `json:"base_asset"`
	BaseDecimals uint8   `json:"base_decimals"`

	// TotalPrincipal is the sum of every Position's principal.
	TotalPrincipal uint64 `json:"total_principal"`
	// TotalReward is harvested yield not yet allocated to any Position.
	TotalReward uint64 `json:"total_reward"`
	// AccrualBase is TotalReward as of LastAccrualTime. Positions refreshing
	// inside the same accrual window are all paid from this snapshot.
	AccrualBase uint64 `json:"accrual_base"`

	FirstAccrualTime int64 `json:"first_accrual_time"`
	LastAccrualTime  int64 `json:"last_accrual_time"`

	EmergencyFlag bool `json:"emergency_flag"`

	// Version is bumped on every committed mutation.
	Version uint64 `json:"version"`
}

// State reports the administrative state derived from the emergency flag.
func (p GlobalPool) State() PoolState {
	if p.EmergencyFlag {
		return PoolEmergency
	}
	return PoolActive
}

// Started reports whether the pool has seen its first deposit.
func (p GlobalPool) Started() bool {
	return p.FirstAccrualTime != 0
}
