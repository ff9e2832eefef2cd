package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"YieldKeeper/internal/accrual"
	"YieldKeeper/internal/conversion"
	"YieldKeeper/internal/keys"
	"YieldKeeper/internal/model"
)

// DepositRequest adds principal. An empty Asset (or the base asset) burns
// base asset from the caller; any other Asset is taken into its market vault
// and credited after rescaling to base decimals.
type DepositRequest struct {
	Amount uint64
	Asset  model.Asset
}

// WithdrawRequest removes principal, denominated in base units. An empty
// Asset (or the base asset) mints base asset to the caller; any other Asset
// pays out of that market's withdrawal liquidity.
type WithdrawRequest struct {
	Amount uint64
	Asset  model.Asset
}

// Receipt describes a committed user operation.
type Receipt struct {
	Position model.Position
	// Allocated is the reward credited by the refresh preceding the operation.
	Allocated uint64
	// Amount is what moved through custody, in the asset's own units.
	Amount uint64
	// Credited is the base-unit amount applied to principal or supply.
	Credited uint64
}

// CreatePosition opens a position for caller. Calling it again returns the
// existing position unchanged.
func (m *Manager) CreatePosition(ctx context.Context, caller model.Address) (pos model.Position, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.track(model.OpCreatePosition, caller, time.Now(), &err)

	if caller == "" {
		return pos, fail(model.OpCreatePosition, ErrInvalidAddress, "empty owner")
	}
	if err := m.requireActive(model.OpCreatePosition); err != nil {
		return pos, err
	}
	if existing, ok := m.positions[caller]; ok {
		return existing, nil
	}

	tx := m.begin(model.OpCreatePosition, caller)
	pos = model.Position{
		ID:    keys.Reserve(caller, m.pool.ID),
		Owner: caller,
	}
	tx.positions = append(tx.positions, pos)
	tx.event.Note = string(pos.ID)
	if err := m.commit(ctx, tx); err != nil {
		return model.Position{}, err
	}
	return pos, nil
}

// Deposit refreshes the caller's accrual and adds principal.
func (m *Manager) Deposit(ctx context.Context, caller model.Address, req DepositRequest) (r Receipt, err error) {
	const op = model.OpDeposit
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.track(op, caller, time.Now(), &err)

	if req.Amount == 0 {
		return r, fail(op, ErrInvalidAmount, "amount must be positive")
	}
	if err := m.requireActive(op); err != nil {
		return r, err
	}
	pos, err := m.position(op, caller)
	if err != nil {
		return r, err
	}

	tx := m.begin(op, caller)
	credited := req.Amount
	if m.isBase(req.Asset) {
		tx.event.Asset = m.pool.BaseAsset
		tx.plan.Burn(m.pool.BaseAsset, req.Amount, caller)
	} else {
		mk, err := m.market(op, req.Asset)
		if err != nil {
			return r, err
		}
		credited, err = conversion.Rescale(req.Amount, mk.Decimals, m.pool.BaseDecimals)
		if err != nil {
			return r, fail(op, ErrInvalidAmount, "%w", err)
		}
		if credited == 0 {
			return r, fail(op, ErrInvalidAmount, "%d %s is less than one base unit", req.Amount, mk.Asset)
		}
		tx.event.Asset = mk.Asset
		tx.plan.Debit(caller, mk.Asset, req.Amount)
	}
	if pos.Principal > math.MaxUint64-credited || tx.pool.TotalPrincipal > math.MaxUint64-credited {
		return r, fail(op, ErrInvalidAmount, "principal overflow")
	}

	if !tx.pool.Started() {
		tx.pool.FirstAccrualTime = tx.now
		tx.pool.LastAccrualTime = max(tx.now, tx.pool.LastAccrualTime)
	}
	allocated := accrual.Refresh(&pos, &tx.pool)
	pos.Principal += credited
	tx.pool.TotalPrincipal += credited

	tx.sub = ErrDepositSource
	tx.positions = append(tx.positions, pos)
	tx.event.Amount = req.Amount
	tx.event.Allocated = allocated
	if err := m.commit(ctx, tx); err != nil {
		return Receipt{}, err
	}
	return Receipt{Position: pos, Allocated: allocated, Amount: req.Amount, Credited: credited}, nil
}

// Withdraw refreshes the caller's accrual and removes principal.
func (m *Manager) Withdraw(ctx context.Context, caller model.Address, req WithdrawRequest) (r Receipt, err error) {
	const op = model.OpWithdraw
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.track(op, caller, time.Now(), &err)

	if req.Amount == 0 {
		return r, fail(op, ErrInvalidAmount, "amount must be positive")
	}
	if err := m.requireActive(op); err != nil {
		return r, err
	}
	pos, err := m.position(op, caller)
	if err != nil {
		return r, err
	}

	tx := m.begin(op, caller)
	allocated := accrual.Refresh(&pos, &tx.pool)
	if req.Amount > pos.Principal {
		return r, &Error{Kind: ErrInsufficientBalance, Sub: ErrWithdrawalAmountTooMuch, Op: op,
			Err: fmt.Errorf("requested %d, principal %d", req.Amount, pos.Principal)}
	}

	payout := req.Amount
	if m.isBase(req.Asset) {
		tx.event.Asset = m.pool.BaseAsset
		tx.plan.Mint(m.pool.BaseAsset, req.Amount, caller)
	} else {
		mk, err := m.market(op, req.Asset)
		if err != nil {
			return r, err
		}
		if mk.WithdrawalLiquidity < req.Amount {
			return r, &Error{Kind: ErrInsufficientLiquidity, Sub: ErrInsufficientWithdrawalLiquidity, Op: op,
				Err: fmt.Errorf("market %s holds %d, requested %d", mk.Asset, mk.WithdrawalLiquidity, req.Amount)}
		}
		payout, err = conversion.Rescale(req.Amount, m.pool.BaseDecimals, mk.Decimals)
		if err != nil {
			return r, fail(op, ErrInvalidAmount, "%w", err)
		}
		if payout == 0 {
			return r, fail(op, ErrInvalidAmount, "%d base units pay out nothing in %s", req.Amount, mk.Asset)
		}
		mk.WithdrawalLiquidity -= req.Amount
		tx.markets = append(tx.markets, mk)
		tx.event.Asset = mk.Asset
		tx.plan.Credit(caller, mk.Asset, payout)
	}

	pos.Principal -= req.Amount
	tx.pool.TotalPrincipal -= req.Amount

	tx.positions = append(tx.positions, pos)
	tx.event.Amount = req.Amount
	tx.event.Allocated = allocated
	if err := m.commit(ctx, tx); err != nil {
		return Receipt{}, err
	}
	return Receipt{Position: pos, Allocated: allocated, Amount: payout, Credited: req.Amount}, nil
}

// Claim refreshes the caller's accrual and mints amount of accrued reward.
func (m *Manager) Claim(ctx context.Context, caller model.Address, amount uint64) (r Receipt, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.track(model.OpClaim, caller, time.Now(), &err)
	return m.claim(ctx, model.OpClaim, caller, amount)
}

// ClaimAndDeposit compounds amount of accrued reward into principal.
func (m *Manager) ClaimAndDeposit(ctx context.Context, caller model.Address, amount uint64) (r Receipt, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.track(model.OpClaimAndDeposit, caller, time.Now(), &err)
	return m.claim(ctx, model.OpClaimAndDeposit, caller, amount)
}

func (m *Manager) claim(ctx context.Context, op model.OpType, caller model.Address, amount uint64) (Receipt, error) {
	if amount == 0 {
		return Receipt{}, fail(op, ErrInvalidAmount, "amount must be positive")
	}
	if err := m.requireActive(op); err != nil {
		return Receipt{}, err
	}
	pos, err := m.position(op, caller)
	if err != nil {
		return Receipt{}, err
	}

	tx := m.begin(op, caller)
	allocated := accrual.Refresh(&pos, &tx.pool)
	if amount > pos.AccruedReward {
		return Receipt{}, &Error{Kind: ErrInsufficientBalance, Sub: ErrClaimAmountTooMuch, Op: op,
			Err: fmt.Errorf("requested %d, accrued %d", amount, pos.AccruedReward)}
	}
	pos.AccruedReward -= amount

	if op == model.OpClaimAndDeposit {
		if pos.Principal > math.MaxUint64-amount || tx.pool.TotalPrincipal > math.MaxUint64-amount {
			return Receipt{}, fail(op, ErrInvalidAmount, "principal overflow")
		}
		pos.Principal += amount
		tx.pool.TotalPrincipal += amount
	} else {
		tx.plan.Mint(m.pool.BaseAsset, amount, caller)
	}

	tx.positions = append(tx.positions, pos)
	tx.event.Asset = m.pool.BaseAsset
	tx.event.Amount = amount
	tx.event.Allocated = allocated
	if err := m.commit(ctx, tx); err != nil {
		return Receipt{}, err
	}
	return Receipt{Position: pos, Allocated: allocated, Amount: amount, Credited: amount}, nil
}

// Mint swaps amount of a market asset into the base asset. The market asset
// is kept in the market vault.
func (m *Manager) Mint(ctx context.Context, caller model.Address, asset model.Asset, amount uint64) (r Receipt, err error) {
	const op = model.OpMint
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.track(op, caller, time.Now(), &err)

	if amount == 0 {
		return r, fail(op, ErrInvalidAmount, "amount must be positive")
	}
	if err := m.requireActive(op); err != nil {
		return r, err
	}
	mk, err := m.market(op, asset)
	if err != nil {
		return r, err
	}
	minted, err := conversion.Policy{BaseDecimals: m.pool.BaseDecimals}.ToBase(amount, mk.Decimals)
	if err != nil {
		return r, fail(op, ErrInvalidAmount, "%w", err)
	}
	if minted == 0 {
		return r, fail(op, ErrInvalidAmount, "%d %s is less than one base unit", amount, asset)
	}

	tx := m.begin(op, caller)
	tx.sub = ErrDepositSource
	tx.plan.Debit(caller, asset, amount).Mint(m.pool.BaseAsset, minted, caller)
	tx.event.Asset = asset
	tx.event.Amount = amount
	if err := m.commit(ctx, tx); err != nil {
		return Receipt{}, err
	}
	return Receipt{Amount: amount, Credited: minted}, nil
}

// Redeem burns amount of the base asset and pays the market asset out of the
// market's withdrawal liquidity.
func (m *Manager) Redeem(ctx context.Context, caller model.Address, asset model.Asset, amount uint64) (r Receipt, err error) {
	const op = model.OpRedeem
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.track(op, caller, time.Now(), &err)

	if amount == 0 {
		return r, fail(op, ErrInvalidAmount, "amount must be positive")
	}
	if err := m.requireActive(op); err != nil {
		return r, err
	}
	mk, err := m.market(op, asset)
	if err != nil {
		return r, err
	}
	if mk.WithdrawalLiquidity < amount {
		return r, &Error{Kind: ErrInsufficientLiquidity, Sub: ErrInsufficientWithdrawalLiquidity, Op: op,
			Err: fmt.Errorf("market %s holds %d, requested %d", asset, mk.WithdrawalLiquidity, amount)}
	}
	payout, err := conversion.Policy{BaseDecimals: m.pool.BaseDecimals}.FromBase(amount, mk.Decimals)
	if err != nil {
		return r, fail(op, ErrInvalidAmount, "%w", err)
	}
	if payout == 0 {
		return r, fail(op, ErrInvalidAmount, "%d base units pay out nothing in %s", amount, asset)
	}
	mk.WithdrawalLiquidity -= amount

	tx := m.begin(op, caller)
	tx.plan.Burn(m.pool.BaseAsset, amount, caller).Credit(caller, asset, payout)
	tx.markets = append(tx.markets, mk)
	tx.event.Asset = asset
	tx.event.Amount = amount
	if err := m.commit(ctx, tx); err != nil {
		return Receipt{}, err
	}
	return Receipt{Amount: payout, Credited: amount}, nil
}
