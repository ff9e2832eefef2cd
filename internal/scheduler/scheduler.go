package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"YieldKeeper/internal/metrics"
	"YieldKeeper/internal/model"
	"YieldKeeper/internal/notifier"
	"YieldKeeper/internal/venue"
)

// Ledger is the part of the ledger the scheduler drives.
type Ledger interface {
	InjectReward(ctx context.Context, caller model.Address, amount uint64) (model.GlobalPool, error)
	Sweep(ctx context.Context, caller model.Address) (model.GlobalPool, error)
	AddWithdrawalLiquidity(ctx context.Context, caller model.Address, asset model.Asset, amount uint64) (model.Market, error)
	Pool() model.GlobalPool
	Position(owner model.Address) (model.Position, bool)
	PendingReward(owner model.Address) (uint64, bool)
	Positions() []model.Position
	Markets() []model.Market
}

// Target is a venue harvested by the scheduler. When Market is set, the
// harvest also becomes withdrawal liquidity of that market.
type Target struct {
	Venue  venue.Venue
	Market model.Asset
}

// ErrCarryOverflow is returned for a harvest that cannot be added to the
// yield still waiting for injection.
var ErrCarryOverflow = errors.New("scheduler: harvested yield overflows pending injection")

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Ledger   Ledger
	Admin    model.Address
	Targets  []Target
	Notifier notifier.Notifier
	Metrics  *metrics.Collector
	Log      *zap.Logger
	Ctx      context.Context

	mu sync.Mutex
	// rewardCarry is harvested yield not yet injected into the pool.
	rewardCarry uint64
	// liquidityCarry is harvested yield not yet added to its market.
	liquidityCarry map[model.Asset]uint64
}

// NewScheduler creates a new Scheduler acting as admin.
func NewScheduler(ctx context.Context, l Ledger, admin model.Address, targets []Target, n notifier.Notifier, mc *metrics.Collector, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Ledger:   l,
		Admin:    admin,
		Targets:  targets,
		Notifier: n,
		Metrics:  mc,
		Log:      logger,
		Ctx:      ctx,

		liquidityCarry: make(map[model.Asset]uint64),
	}
}

// RegisterAll registers the harvest, sweep and report tasks. An empty spec
// leaves that task unscheduled.
func (s *Scheduler) RegisterAll(harvestCron, sweepCron, reportCron string) error {
	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"harvest", harvestCron, s.harvestTask},
		{"sweep", sweepCron, s.sweepTask},
		{"report", reportCron, s.reportTask},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.Cron.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("register %s task: %w", j.name, err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Log.Info("scheduler started", zap.Int("venues", len(s.Targets)))
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Log.Info("scheduler stopped")
}

// RunHarvestNow executes the harvest task immediately.
func (s *Scheduler) RunHarvestNow() []notifier.HarvestResult {
	return s.harvest()
}

func (s *Scheduler) harvestTask() { s.harvest() }

// harvest collects yield from every venue and injects it, together with any
// yield a previous run could not inject, as pool reward. Venues are not
// touched while the pool is in emergency state.
func (s *Scheduler) harvest() []notifier.HarvestResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Ledger.Pool().EmergencyFlag {
		s.Log.Warn("pool in emergency state, harvest skipped",
			zap.Uint64("reward_carry", s.rewardCarry))
		s.trySend("⚠️ Harvest skipped: pool is in emergency state")
		return nil
	}

	s.Log.Info("running harvest task")
	results := make([]notifier.HarvestResult, 0, len(s.Targets))
	for _, t := range s.Targets {
		results = append(results, s.harvestVenue(t))
	}

	injected, err := s.flush()
	if err != nil {
		s.Log.Error("inject reward", zap.Uint64("reward_carry", s.rewardCarry), zap.Error(err))
		s.trySend(fmt.Sprintf("❌ Reward injection failed, %s carried to the next harvest: %v",
			notifier.FormatAmount(s.rewardCarry, s.Ledger.Pool().BaseDecimals), err))
		return results
	}
	s.trySend(notifier.FormatHarvestReport(results, injected, s.Ledger.Pool()))
	return results
}

// harvestVenue harvests one venue and adds the yield to the carry.
func (s *Scheduler) harvestVenue(t Target) notifier.HarvestResult {
	name := t.Venue.Name()
	res := notifier.HarvestResult{Venue: name}

	amount, err := t.Venue.Harvest(s.Ctx)
	s.Metrics.ObserveHarvest(name, amount, err)
	if err != nil {
		s.Log.Error("venue harvest failed", zap.String("venue", name), zap.Error(err))
		res.Err = err
		return res
	}
	res.Amount = amount

	if held, err := t.Venue.Holdings(s.Ctx); err != nil {
		s.Log.Warn("venue holdings unavailable", zap.String("venue", name), zap.Error(err))
		res.HoldingsErr = err
	} else {
		res.Holdings = held
		s.Metrics.ObserveHoldings(name, held)
	}

	if amount == 0 {
		return res
	}
	if s.rewardCarry > math.MaxUint64-amount ||
		(t.Market != "" && s.liquidityCarry[t.Market] > math.MaxUint64-amount) {
		s.Log.Error("harvest not carried",
			zap.String("venue", name), zap.Uint64("amount", amount), zap.Error(ErrCarryOverflow))
		res.Err = ErrCarryOverflow
		return res
	}
	s.rewardCarry += amount
	if t.Market != "" {
		s.liquidityCarry[t.Market] += amount
	}
	return res
}

// flush injects the reward carry, then moves carried liquidity into markets.
// Whatever the ledger rejects stays carried for the next harvest.
func (s *Scheduler) flush() (uint64, error) {
	injected := s.rewardCarry
	if injected > 0 {
		if _, err := s.Ledger.InjectReward(s.Ctx, s.Admin, injected); err != nil {
			return 0, err
		}
		s.rewardCarry = 0
	}

	for asset, amount := range s.liquidityCarry {
		if _, err := s.Ledger.AddWithdrawalLiquidity(s.Ctx, s.Admin, asset, amount); err != nil {
			s.Log.Error("add withdrawal liquidity",
				zap.String("market", string(asset)), zap.Uint64("amount", amount), zap.Error(err))
			continue
		}
		delete(s.liquidityCarry, asset)
	}
	return injected, nil
}

func (s *Scheduler) sweepTask() {
	s.Log.Info("running sweep task")
	pool, err := s.Ledger.Sweep(s.Ctx, s.Admin)
	if err != nil {
		s.Log.Error("sweep", zap.Error(err))
		return
	}
	s.Log.Info("accrual window opened",
		zap.Int64("last_accrual_time", pool.LastAccrualTime),
		zap.Uint64("accrual_base", pool.AccrualBase))
}

func (s *Scheduler) reportTask() {
	s.trySend(s.poolStatus())
}

func (s *Scheduler) poolStatus() string {
	return notifier.FormatPoolStatus(s.Ledger.Pool(), len(s.Ledger.Positions()), s.Ledger.Markets())
}

// HandleCommand processes a read-only operator command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	switch fields[0] {
	case "/pool", "/status":
		return s.poolStatus()
	case "/position":
		if len(fields) < 2 {
			return "usage: /position &lt;owner&gt;"
		}
		owner := model.Address(fields[1])
		pos, ok := s.Ledger.Position(owner)
		if !ok {
			return fmt.Sprintf("no position for %s", owner)
		}
		pending, _ := s.Ledger.PendingReward(owner)
		return notifier.FormatPosition(pos, pending, s.Ledger.Pool())
	default:
		return "Commands:\n• /pool\n• /position &lt;owner&gt;"
	}
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.Log.Error("send notification", zap.Error(err))
	}
}
