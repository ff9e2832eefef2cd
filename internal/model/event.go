package model

import "time"

// OpType names the operation that produced an Event.
type OpType string

const (
	OpCreatePosition  OpType = "CREATE_POSITION"
	OpDeposit         OpType = "DEPOSIT"
	OpWithdraw        OpType = "WITHDRAW"
	OpClaim           OpType = "CLAIM"
	OpClaimAndDeposit OpType = "CLAIM_AND_DEPOSIT"
	OpMint            OpType = "MINT"
	OpRedeem          OpType = "REDEEM"
	OpCreateMarket    OpType = "CREATE_MARKET"
	OpSetMarketLock   OpType = "SET_MARKET_LOCK"
	OpAddLiquidity    OpType = "ADD_WITHDRAWAL_LIQUIDITY"
	OpFreezePosition  OpType = "FREEZE_POSITION"
	OpSetEmergency    OpType = "SET_EMERGENCY"
	OpApplyNewAdmin   OpType = "APPLY_NEW_ADMIN"
	OpInjectReward    OpType = "INJECT_REWARD"
	OpSweep           OpType = "SWEEP"
)

// Event is the history record of one committed operation.
type Event struct {
	ID        string    `json:"id"`
	Op        OpType    `json:"op"`
	Caller    Address   `json:"caller"`
	Asset     Asset     `json:"asset,omitempty"`
	Amount    uint64    `json:"amount"`
	Allocated uint64    `json:"allocated"` // reward allocated by the refresh preceding the operation
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
