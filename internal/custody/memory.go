package custody

import (
	"context"
	"fmt"
	"sync"

	"YieldKeeper/internal/model"
)

// Memory is an in-process Custody. Debited value is held by the custodian
// account and credits are paid out of it.
type Memory struct {
	mu        sync.Mutex
	custodian model.Address
	balances  map[model.Address]map[model.Asset]uint64
	supply    map[model.Asset]uint64
}

// NewMemory creates an empty custody holding pool value under custodian.
func NewMemory(custodian model.Address) *Memory {
	return &Memory{
		custodian: custodian,
		balances:  make(map[model.Address]map[model.Asset]uint64),
		supply:    make(map[model.Asset]uint64),
	}
}

// Fund seeds account with amount of asset, counting it towards supply.
func (m *Memory) Fund(account model.Address, asset model.Asset, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(account, asset, amount)
	m.supply[asset] += amount
}

// Balance returns the amount of asset held by account.
func (m *Memory) Balance(account model.Address, asset model.Asset) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account][asset]
}

// Held returns the amount of asset held in pool custody.
func (m *Memory) Held(asset model.Asset) uint64 {
	return m.Balance(m.custodian, asset)
}

// Supply returns the outstanding supply of asset.
func (m *Memory) Supply(asset model.Asset) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.supply[asset]
}

func (m *Memory) Debit(_ context.Context, account model.Address, asset model.Asset, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sub(account, asset, amount); err != nil {
		return err
	}
	m.add(m.custodian, asset, amount)
	return nil
}

func (m *Memory) Credit(_ context.Context, account model.Address, asset model.Asset, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sub(m.custodian, asset, amount); err != nil {
		return err
	}
	m.add(account, asset, amount)
	return nil
}

func (m *Memory) Mint(_ context.Context, asset model.Asset, amount uint64, to model.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(to, asset, amount)
	m.supply[asset] += amount
	return nil
}

func (m *Memory) Burn(_ context.Context, asset model.Asset, amount uint64, from model.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sub(from, asset, amount); err != nil {
		return err
	}
	m.supply[asset] -= amount
	return nil
}

func (m *Memory) add(account model.Address, asset model.Asset, amount uint64) {
	b, ok := m.balances[account]
	if !ok {
		b = make(map[model.Asset]uint64)
		m.balances[account] = b
	}
	b[asset] += amount
}

func (m *Memory) sub(account model.Address, asset model.Asset, amount uint64) error {
	if amount == 0 {
		return nil
	}
	have := m.balances[account][asset]
	if have < amount {
		return fmt.Errorf("%w: %s holds %d %s, needs %d", ErrInsufficientBalance, account, have, asset, amount)
	}
	m.balances[account][asset] = have - amount
	return nil
}
