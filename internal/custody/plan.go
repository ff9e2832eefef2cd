package custody

import (
	"context"
	"errors"
	"fmt"

	"YieldKeeper/internal/model"
)

// Kind is the direction of a Movement.
type Kind int

const (
	KindDebit Kind = iota
	KindCredit
	KindMint
	KindBurn
)

func (k Kind) String() string {
	switch k {
	case KindDebit:
		return "debit"
	case KindCredit:
		return "credit"
	case KindMint:
		return "mint"
	case KindBurn:
		return "burn"
	default:
		return "unknown"
	}
}

// Movement is one custody call.
type Movement struct {
	Kind    Kind
	Account model.Address
	Asset   model.Asset
	Amount  uint64
}

func (m Movement) String() string {
	return fmt.Sprintf("%s %d %s (%s)", m.Kind, m.Amount, m.Asset, m.Account)
}

func (m Movement) apply(ctx context.Context, c Custody) error {
	switch m.Kind {
	case KindDebit:
		return c.Debit(ctx, m.Account, m.Asset, m.Amount)
	case KindCredit:
		return c.Credit(ctx, m.Account, m.Asset, m.Amount)
	case KindMint:
		return c.Mint(ctx, m.Asset, m.Amount, m.Account)
	case KindBurn:
		return c.Burn(ctx, m.Asset, m.Amount, m.Account)
	default:
		return fmt.Errorf("custody: unknown movement kind %d", m.Kind)
	}
}

// inverse undoes m.
func (m Movement) inverse() Movement {
	inv := m
	switch m.Kind {
	case KindDebit:
		inv.Kind = KindCredit
	case KindCredit:
		inv.Kind = KindDebit
	case KindMint:
		inv.Kind = KindBurn
	case KindBurn:
		inv.Kind = KindMint
	}
	return inv
}

// Plan is an ordered list of movements executed as a unit. When a movement
// fails, every movement already applied is compensated in reverse order.
type Plan struct {
	moves   []Movement
	applied int
}

func (p *Plan) add(m Movement) *Plan {
	if m.Amount > 0 {
		p.moves = append(p.moves, m)
	}
	return p
}

func (p *Plan) Debit(account model.Address, asset model.Asset, amount uint64) *Plan {
	return p.add(Movement{Kind: KindDebit, Account: account, Asset: asset, Amount: amount})
}

func (p *Plan) Credit(account model.Address, asset model.Asset, amount uint64) *Plan {
	return p.add(Movement{Kind: KindCredit, Account: account, Asset: asset, Amount: amount})
}

func (p *Plan) Mint(asset model.Asset, amount uint64, to model.Address) *Plan {
	return p.add(Movement{Kind: KindMint, Account: to, Asset: asset, Amount: amount})
}

func (p *Plan) Burn(asset model.Asset, amount uint64, from model.Address) *Plan {
	return p.add(Movement{Kind: KindBurn, Account: from, Asset: asset, Amount: amount})
}

// Movements returns the planned movements.
func (p *Plan) Movements() []Movement {
	return append([]Movement(nil), p.moves...)
}

// Execute applies every movement in order. On failure the applied prefix is
// compensated and the original error is returned; a failed compensation is
// joined onto it.
func (p *Plan) Execute(ctx context.Context, c Custody) error {
	for p.applied < len(p.moves) {
		m := p.moves[p.applied]
		if err := m.apply(ctx, c); err != nil {
			if rerr := p.Revert(ctx, c); rerr != nil {
				return errors.Join(fmt.Errorf("%s: %w", m, err), rerr)
			}
			return fmt.Errorf("%s: %w", m, err)
		}
		p.applied++
	}
	return nil
}

// Revert compensates every applied movement, newest first.
func (p *Plan) Revert(ctx context.Context, c Custody) error {
	var errs []error
	for p.applied > 0 {
		m := p.moves[p.applied-1].inverse()
		if err := m.apply(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("compensate %s: %w", m, err))
		}
		p.applied--
	}
	return errors.Join(errs...)
}
