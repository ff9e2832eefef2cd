package ledger

import (
	"context"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"YieldKeeper/internal/keys"
	"YieldKeeper/internal/model"
)

// CreateMarket registers asset as an accepted market, unlocked and with no
// withdrawal liquidity.
func (m *Manager) CreateMarket(ctx context.Context, caller model.Address, asset model.Asset, decimals uint8) (mk model.Market, err error) {
	const op = model.OpCreateMarket
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.track(op, caller, time.Now(), &err)

	if err := m.requireAdmin(op, caller); err != nil {
		return mk, err
	}
	if asset == "" || asset == m.pool.BaseAsset {
		return mk, fail(op, ErrInvalidAssetBinding, "market asset %q", asset)
	}
	if _, ok := m.markets[asset]; ok {
		return mk, fail(op, ErrInvalidAssetBinding, "market %s already exists", asset)
	}

	tx := m.begin(op, caller)
	mk = model.Market{
		Asset:    asset,
		Decimals: decimals,
		Vault:    keys.StableVault(asset, m.pool.ID),
	}
	tx.markets = append(tx.markets, mk)
	tx.event.Asset = asset
	tx.event.Note = "decimals=" + strconv.Itoa(int(decimals))
	if err := m.commit(ctx, tx); err != nil {
		return model.Market{}, err
	}
	return mk, nil
}

// SetMarketLock locks or unlocks a market.
func (m *Manager) SetMarketLock(ctx context.Context, caller model.Address, asset model.Asset, locked bool) (err error) {
	const op = model.OpSetMarketLock
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.track(op, caller, time.Now(), &err)

	if err := m.requireAdmin(op, caller); err != nil {
		return err
	}
	mk, ok := m.markets[asset]
	if !ok {
		return fail(op, ErrNotFound, "no market for %s", asset)
	}
	mk.Locked = locked

	tx := m.begin(op, caller)
	tx.markets = append(tx.markets, mk)
	tx.event.Asset = asset
	tx.event.Note = "locked=" + strconv.FormatBool(locked)
	return m.commit(ctx, tx)
}

// FreezePosition freezes or thaws owner's position.
func (m *Manager) FreezePosition(ctx context.Context, caller, owner model.Address, frozen bool) (err error) {
	const op = model.OpFreezePosition
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.track(op, caller, time.Now(), &err)

	if err := m.requireAdmin(op, caller); err != nil {
		return err
	}
	pos, ok := m.positions[owner]
	if !ok {
		return fail(op, ErrNotFound, "no position for %s", owner)
	}
	pos.Frozen = frozen

	tx := m.begin(op, caller)
	tx.positions = append(tx.positions, pos)
	tx.event.Note = string(owner) + " frozen=" + strconv.FormatBool(frozen)
	return m.commit(ctx, tx)
}

// InjectReward adds harvested yield, already converted to the base asset, to
// the pool and opens a new accrual window.
func (m *Manager) InjectReward(ctx context.Context, caller model.Address, amount uint64) (pool model.GlobalPool, err error) {
	const op = model.OpInjectReward
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.track(op, caller, time.Now(), &err)

	if err := m.requireAdmin(op, caller); err != nil {
		return pool, err
	}
	if err := m.requireActive(op); err != nil {
		return pool, err
	}
	if amount == 0 {
		return pool, fail(op, ErrInvalidAmount, "amount must be positive")
	}
	if m.pool.TotalReward > math.MaxUint64-amount {
		return pool, fail(op, ErrInvalidAmount, "reward overflow")
	}

	tx := m.begin(op, caller)
	tx.pool.TotalReward += amount
	openWindow(&tx.pool, tx.now)
	tx.event.Asset = m.pool.BaseAsset
	tx.event.Amount = amount
	if err := m.commit(ctx, tx); err != nil {
		return pool, err
	}
	return m.pool, nil
}

// Sweep opens a new accrual window without adding reward.
func (m *Manager) Sweep(ctx context.Context, caller model.Address) (pool model.GlobalPool, err error) {
	const op = model.OpSweep
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.track(op, caller, time.Now(), &err)

	if err := m.requireAdmin(op, caller); err != nil {
		return pool, err
	}
	if err := m.requireActive(op); err != nil {
		return pool, err
	}

	tx := m.begin(op, caller)
	openWindow(&tx.pool, tx.now)
	if err := m.commit(ctx, tx); err != nil {
		return pool, err
	}
	return m.pool, nil
}

// openWindow advances the pool's accrual clock, never backwards, and
// snapshots the reward the new window pays from.
func openWindow(p *model.GlobalPool, now int64) {
	p.LastAccrualTime = max(now, p.LastAccrualTime)
	p.AccrualBase = p.TotalReward
}

// AddWithdrawalLiquidity records venue proceeds available for redemption
// against asset. amount is in base units.
func (m *Manager) AddWithdrawalLiquidity(ctx context.Context, caller model.Address, asset model.Asset, amount uint64) (mk model.Market, err error) {
	const op = model.OpAddLiquidity
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.track(op, caller, time.Now(), &err)

	if err := m.requireAdmin(op, caller); err != nil {
		return mk, err
	}
	if err := m.requireActive(op); err != nil {
		return mk, err
	}
	if amount == 0 {
		return mk, fail(op, ErrInvalidAmount, "amount must be positive")
	}
	mk, ok := m.markets[asset]
	if !ok {
		return mk, fail(op, ErrNotFound, "no market for %s", asset)
	}
	if mk.WithdrawalLiquidity > math.MaxUint64-amount {
		return model.Market{}, fail(op, ErrInvalidAmount, "liquidity overflow")
	}
	mk.WithdrawalLiquidity += amount

	tx := m.begin(op, caller)
	tx.markets = append(tx.markets, mk)
	tx.event.Asset = asset
	tx.event.Amount = amount
	if err := m.commit(ctx, tx); err != nil {
		return model.Market{}, err
	}
	return mk, nil
}

// SetEmergency switches the pool between active and emergency state.
func (m *Manager) SetEmergency(ctx context.Context, caller model.Address, on bool) (err error) {
	const op = model.OpSetEmergency
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.track(op, caller, time.Now(), &err)

	if err := m.requireAdmin(op, caller); err != nil {
		return err
	}

	tx := m.begin(op, caller)
	tx.pool.EmergencyFlag = on
	tx.event.Note = string(tx.pool.State())
	if err := m.commit(ctx, tx); err != nil {
		return err
	}
	m.log.Warn("pool state changed", zap.String("state", string(m.pool.State())))
	return nil
}

// ApplyNewAdmin hands the admin key to newAdmin.
func (m *Manager) ApplyNewAdmin(ctx context.Context, caller, newAdmin model.Address) (err error) {
	const op = model.OpApplyNewAdmin
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.track(op, caller, time.Now(), &err)

	if err := m.requireAdmin(op, caller); err != nil {
		return err
	}
	if newAdmin == "" {
		return fail(op, ErrInvalidAddress, "empty admin")
	}

	tx := m.begin(op, caller)
	tx.pool.Admin = newAdmin
	tx.event.Note = string(newAdmin)
	return m.commit(ctx, tx)
}
