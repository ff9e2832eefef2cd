package model

// Position is a single depositor's stake in the pool.
type Position struct {
	ID              Address `json:"id"`
	Owner           Address `json:"owner"`
	Principal       uint64  `json:"principal"`
	AccruedReward   uint64  `json:"accrued_reward"`
	LastAccrualTime int64   `json:"last_accrual_time"` // 0 means never refreshed
	Frozen          bool    `json:"frozen"`
}
