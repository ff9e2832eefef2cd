// Package ledger orchestrates every pool operation.
//
// Each mutating operation follows the same sequence on copies of the
// affected records: guard, refresh accrual, check, mutate, move value through
// custody, persist. Nothing is applied to the in-memory aggregate until
// custody has succeeded and the store has accepted the versioned commit.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"YieldKeeper/internal/accrual"
	"YieldKeeper/internal/custody"
	"YieldKeeper/internal/metrics"
	"YieldKeeper/internal/model"
	"YieldKeeper/internal/store"
)

// Genesis describes the pool created when the store is empty.
type Genesis struct {
	ID           model.Address
	Admin        model.Address
	BaseAsset    model.Asset
	BaseDecimals uint8
}

// Option configures a Manager.
type Option func(*Manager)

func WithClock(c Clock) Option { return func(m *Manager) { m.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.log = l } }

func WithMetrics(c *metrics.Collector) Option { return func(m *Manager) { m.metrics = c } }

// Manager owns the pool aggregate and serialises every operation on it.
type Manager struct {
	mu      sync.Mutex
	store   store.Store
	custody custody.Custody
	clock   Clock
	log     *zap.Logger
	metrics *metrics.Collector

	pool      model.GlobalPool
	positions map[model.Address]model.Position
	markets   map[model.Asset]model.Market
}

// NewManager loads the pool from st, creating it from genesis on first run.
func NewManager(ctx context.Context, st store.Store, cust custody.Custody, genesis Genesis, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:   st,
		custody: cust,
		clock:   SystemClock{},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	err := m.reload(ctx)
	if errors.Is(err, store.ErrNotInitialized) {
		if err := m.initialize(ctx, genesis); err != nil {
			return nil, err
		}
		err = m.reload(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: load: %w", err)
	}
	if genesis.ID != "" && m.pool.ID != genesis.ID {
		return nil, fmt.Errorf("ledger: stored pool %s does not match configured pool %s", m.pool.ID, genesis.ID)
	}

	m.observe()
	m.log.Info("ledger ready",
		zap.String("pool", string(m.pool.ID)),
		zap.Uint64("version", m.pool.Version),
		zap.Int("positions", len(m.positions)),
		zap.Int("markets", len(m.markets)),
	)
	return m, nil
}

func (m *Manager) initialize(ctx context.Context, g Genesis) error {
	if g.ID == "" || g.Admin == "" || g.BaseAsset == "" {
		return errors.New("ledger: genesis needs pool id, admin and base asset")
	}
	pool := model.GlobalPool{
		ID:           g.ID,
		Admin:        g.Admin,
		BaseAsset:    g.BaseAsset,
		BaseDecimals: g.BaseDecimals,
		Version:      1,
	}
	ev := model.Event{
		Op:        model.OpApplyNewAdmin,
		Caller:    g.Admin,
		Note:      "genesis",
		CreatedAt: time.Unix(m.clock.Now(), 0).UTC(),
	}
	if err := m.store.Commit(ctx, 0, store.Change{Pool: pool, Events: []model.Event{ev}}); err != nil {
		return fmt.Errorf("ledger: create pool: %w", err)
	}
	m.log.Info("pool created",
		zap.String("pool", string(g.ID)),
		zap.String("admin", string(g.Admin)),
		zap.String("base_asset", string(g.BaseAsset)),
	)
	return nil
}

func (m *Manager) reload(ctx context.Context) error {
	st, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	m.pool = st.Pool
	m.positions = st.Positions
	m.markets = st.Markets
	return nil
}

// txn collects the effects of one operation before they are committed.
type txn struct {
	op        model.OpType
	now       int64
	pool      model.GlobalPool
	positions []model.Position
	markets   []model.Market
	plan      custody.Plan
	// sub refines a custody shortfall into an ErrInsufficientBalance sub-kind.
	sub   error
	event model.Event
}

func (m *Manager) begin(op model.OpType, caller model.Address) *txn {
	return &txn{
		op:    op,
		now:   m.clock.Now(),
		pool:  m.pool,
		event: model.Event{Op: op, Caller: caller},
	}
}

// commit executes the custody plan and persists tx. On a failed persist the
// custody plan is compensated; a stale version also reloads the aggregate.
func (m *Manager) commit(ctx context.Context, tx *txn) error {
	if err := tx.plan.Execute(ctx, m.custody); err != nil {
		return custodyError(tx.op, tx.sub, err)
	}

	tx.pool.Version = m.pool.Version + 1
	tx.event.CreatedAt = time.Unix(tx.now, 0).UTC()
	ch := store.Change{
		Pool:      tx.pool,
		Positions: tx.positions,
		Markets:   tx.markets,
		Events:    []model.Event{tx.event},
	}
	if err := m.store.Commit(ctx, m.pool.Version, ch); err != nil {
		if rerr := tx.plan.Revert(ctx, m.custody); rerr != nil {
			m.log.Error("custody compensation failed",
				zap.String("op", string(tx.op)), zap.Error(rerr))
			err = errors.Join(err, rerr)
		}
		if errors.Is(err, store.ErrStaleState) {
			if lerr := m.reload(ctx); lerr != nil {
				m.log.Error("reload after stale commit failed", zap.Error(lerr))
			}
			m.observe()
			return &Error{Kind: ErrStaleState, Op: tx.op, Err: err}
		}
		return fmt.Errorf("ledger: %s: persist: %w", tx.op, err)
	}

	m.pool = tx.pool
	for _, p := range tx.positions {
		m.positions[p.Owner] = p
	}
	for _, mk := range tx.markets {
		m.markets[mk.Asset] = mk
	}
	m.metrics.AddAllocated(tx.event.Allocated)
	m.observe()
	return nil
}

func (m *Manager) observe() {
	m.metrics.ObservePool(m.pool, len(m.positions))
	for _, mk := range m.markets {
		m.metrics.ObserveMarket(mk)
	}
}

// track records the outcome of an operation. It is deferred with a pointer
// to the operation's named error.
func (m *Manager) track(op model.OpType, caller model.Address, start time.Time, errp *error) {
	took := time.Since(start)
	fields := []zap.Field{
		zap.String("op", string(op)),
		zap.String("caller", string(caller)),
		zap.Duration("took", took),
	}

	err := *errp
	var le *Error
	switch {
	case err == nil:
		m.metrics.ObserveOperation(op, "ok", took)
		m.log.Info("operation committed", fields...)
	case errors.As(err, &le):
		m.metrics.ObserveOperation(op, kindLabel(le.Kind), took)
		m.log.Warn("operation rejected", append(fields, zap.Error(err))...)
	default:
		m.metrics.ObserveOperation(op, "error", took)
		m.log.Error("operation failed", append(fields, zap.Error(err))...)
	}
}

func kindLabel(kind error) string {
	if kind == nil {
		return "unknown"
	}
	return strings.ReplaceAll(kind.Error(), " ", "_")
}

func (m *Manager) requireActive(op model.OpType) error {
	if m.pool.EmergencyFlag {
		return fail(op, ErrServiceDisabled, "pool is in emergency state")
	}
	return nil
}

func (m *Manager) requireAdmin(op model.OpType, caller model.Address) error {
	if caller == "" || caller != m.pool.Admin {
		return fail(op, ErrAccessDenied, "%s is not the pool admin", caller)
	}
	return nil
}

// position returns a copy of caller's position. Positions are addressed by
// their owner, so the caller always owns the record it gets back.
func (m *Manager) position(op model.OpType, caller model.Address) (model.Position, error) {
	pos, ok := m.positions[caller]
	if !ok {
		return model.Position{}, fail(op, ErrNotFound, "no position for %s", caller)
	}
	if pos.Owner != caller {
		return model.Position{}, fail(op, ErrAccessDenied, "position %s is owned by %s", pos.ID, pos.Owner)
	}
	if pos.Frozen {
		return model.Position{}, fail(op, ErrPositionFrozen, "position %s", pos.ID)
	}
	return pos, nil
}

// market returns a copy of an unlocked market accepting asset.
func (m *Manager) market(op model.OpType, asset model.Asset) (model.Market, error) {
	if asset == m.pool.BaseAsset {
		return model.Market{}, fail(op, ErrInvalidAssetBinding, "%s is the base asset", asset)
	}
	mk, ok := m.markets[asset]
	if !ok {
		return model.Market{}, fail(op, ErrInvalidAssetBinding, "no market for %s", asset)
	}
	if mk.Locked {
		return model.Market{}, fail(op, ErrMarketLocked, "market %s", asset)
	}
	return mk, nil
}

func (m *Manager) isBase(asset model.Asset) bool {
	return asset == "" || asset == m.pool.BaseAsset
}

// Pool returns a copy of the pool aggregate.
func (m *Manager) Pool() model.GlobalPool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool
}

// Position returns the position owned by owner.
func (m *Manager) Position(owner model.Address) (model.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[owner]
	return pos, ok
}

// Positions returns every position ordered by owner.
func (m *Manager) Positions() []model.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out
}

// PendingReward returns what a refresh of owner's position would allocate
// right now, without allocating it.
func (m *Manager) PendingReward(owner model.Address) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[owner]
	if !ok {
		return 0, false
	}
	return accrual.Pending(pos, m.pool), true
}

// Market returns the market for asset.
func (m *Manager) Market(asset model.Asset) (model.Market, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk, ok := m.markets[asset]
	return mk, ok
}

// Markets returns every market ordered by asset.
func (m *Manager) Markets() []model.Market {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Market, 0, len(m.markets))
	for _, mk := range m.markets {
		out = append(out, mk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// Events returns up to limit committed events, newest first.
func (m *Manager) Events(ctx context.Context, limit int) ([]model.Event, error) {
	return m.store.Events(ctx, limit)
}
