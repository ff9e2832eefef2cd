package model

// Address identifies an account, a vault or a derived record.
type Address string

// Asset identifies a token mint.
type Asset string

// Market gates conversions and redemptions against one accepted asset.
type Market struct {
	Asset    Asset   `json:"asset"`
	Decimals uint8   `json:"decimals"`
	Vault    Address `json:"vault"`

	// WithdrawalLiquidity is denominated in the pool's base asset.
	WithdrawalLiquidity uint64 `json:"withdrawal_liquidity"`
	Locked              bool   `json:"locked"`
}
