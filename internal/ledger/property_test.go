package ledger

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"YieldKeeper/internal/model"
)

// TestRandomOperations_ConserveValue drives a seeded random mix of user and
// admin operations and checks the solvency invariants along the way.
func TestRandomOperations_ConserveValue(t *testing.T) {
	const (
		steps  = 3000
		funded = uint64(1_000_000_000)
	)
	carol := model.Address("carol")
	owners := []model.Address{alice, bob, carol}

	f := newFixture(t)
	for _, o := range owners {
		f.open(o, funded)
	}
	// claimed is base minted to, or compounded for, each owner by claims.
	claimed := make(map[model.Address]uint64)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < steps; i++ {
		f.now += rng.Int63n(3600)
		owner := owners[rng.Intn(len(owners))]
		pos := f.position(owner)

		var err error
		switch rng.Intn(6) {
		case 0:
			_, err = f.m.Deposit(f.ctx, owner, DepositRequest{Amount: 1 + uint64(rng.Intn(10_000))})
		case 1:
			_, err = f.m.Withdraw(f.ctx, owner, WithdrawRequest{Amount: 1 + uint64(rng.Int63n(int64(pos.Principal)+10))})
		case 2:
			_, err = f.m.InjectReward(f.ctx, admin, 1+uint64(rng.Intn(5_000)))
		case 3:
			var r Receipt
			r, err = f.m.Claim(f.ctx, owner, 1+uint64(rng.Int63n(int64(pos.AccruedReward)+5)))
			if err == nil {
				claimed[owner] += r.Amount
			}
		case 4:
			var r Receipt
			r, err = f.m.ClaimAndDeposit(f.ctx, owner, 1+uint64(rng.Int63n(int64(pos.AccruedReward)+5)))
			if err == nil {
				claimed[owner] += r.Amount
			}
		case 5:
			_, err = f.m.Sweep(f.ctx, admin)
		}
		if err != nil {
			require.NotNil(t, KindOf(err), "step %d: unexpected error %v", i, err)
		}

		if i%100 == 0 || i == steps-1 {
			f.assertSolvent()
			for _, o := range owners {
				p := f.position(o)
				assert.Equal(t, funded+claimed[o], f.cust.Balance(o, base)+p.Principal,
					"step %d: base held by %s", i, o)
			}
		}
	}

	assert.Positive(t, f.m.Pool().TotalPrincipal)
	assert.NotZero(t, claimed[alice]+claimed[bob]+claimed[carol])
}
