package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"YieldKeeper/internal/model"
)

// SQLiteStore persists ledger state and history to a SQLite database.
//
// Amounts are uint64 and stored as the int64 with the same bit pattern, since
// database/sql rejects uint64 values with the high bit set.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	// WAL mode so dashboards can read while the keeper writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, log: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite store opened", zap.String("path", dbPath))
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pool (
			id                 INTEGER PRIMARY KEY CHECK (id = 1),
			pool_id            TEXT NOT NULL,
			admin              TEXT NOT NULL,
			base_asset         TEXT NOT NULL,
			base_decimals      INTEGER NOT NULL,
			total_principal    INTEGER NOT NULL,
			total_reward       INTEGER NOT NULL,
			accrual_base       INTEGER NOT NULL,
			first_accrual_time INTEGER NOT NULL,
			last_accrual_time  INTEGER NOT NULL,
			emergency_flag     INTEGER NOT NULL,
			version            INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS positions (
			owner             TEXT PRIMARY KEY,
			id                TEXT NOT NULL,
			principal         INTEGER NOT NULL,
			accrued_reward    INTEGER NOT NULL,
			last_accrual_time INTEGER NOT NULL,
			frozen            INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS markets (
			asset                TEXT PRIMARY KEY,
			decimals             INTEGER NOT NULL,
			vault                TEXT NOT NULL,
			withdrawal_liquidity INTEGER NOT NULL,
			locked               INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS events (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			timestamp  INTEGER NOT NULL,
			op         TEXT NOT NULL,
			caller     TEXT,
			asset      TEXT,
			amount     INTEGER,
			allocated  INTEGER,
			note       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON events(timestamp)`,
	}

	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return fmt.Errorf("exec %q: %w", st[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &State{
		Positions: make(map[model.Address]model.Position),
		Markets:   make(map[model.Asset]model.Market),
	}

	p := &st.Pool
	var principal, reward, base, version int64
	err := s.db.QueryRowContext(ctx, `SELECT pool_id, admin, base_asset, base_decimals,
		total_principal, total_reward, accrual_base, first_accrual_time, last_accrual_time,
		emergency_flag, version FROM pool WHERE id = 1`).Scan(
		&p.ID, &p.Admin, &p.BaseAsset, &p.BaseDecimals,
		&principal, &reward, &base, &p.FirstAccrualTime, &p.LastAccrualTime,
		&p.EmergencyFlag, &version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	p.TotalPrincipal = uint64(principal)
	p.TotalReward = uint64(reward)
	p.AccrualBase = uint64(base)
	p.Version = uint64(version)

	if err := s.loadPositions(ctx, st); err != nil {
		return nil, err
	}
	if err := s.loadMarkets(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *SQLiteStore) loadPositions(ctx context.Context, st *State) error {
	rows, err := s.db.QueryContext(ctx, `SELECT owner, id, principal, accrued_reward,
		last_accrual_time, frozen FROM positions`)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pos               model.Position
			principal, reward int64
		)
		if err := rows.Scan(&pos.Owner, &pos.ID, &principal, &reward,
			&pos.LastAccrualTime, &pos.Frozen); err != nil {
			return fmt.Errorf("scan position: %w", err)
		}
		pos.Principal = uint64(principal)
		pos.AccruedReward = uint64(reward)
		st.Positions[pos.Owner] = pos
	}
	return rows.Err()
}

func (s *SQLiteStore) loadMarkets(ctx context.Context, st *State) error {
	rows, err := s.db.QueryContext(ctx, `SELECT asset, decimals, vault,
		withdrawal_liquidity, locked FROM markets`)
	if err != nil {
		return fmt.Errorf("load markets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m         model.Market
			liquidity int64
		)
		if err := rows.Scan(&m.Asset, &m.Decimals, &m.Vault, &liquidity, &m.Locked); err != nil {
			return fmt.Errorf("scan market: %w", err)
		}
		m.WithdrawalLiquidity = uint64(liquidity)
		st.Markets[m.Asset] = m
	}
	return rows.Err()
}

func (s *SQLiteStore) Commit(ctx context.Context, expected uint64, ch Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := writePool(ctx, tx, expected, ch.Pool); err != nil {
		return err
	}
	for _, p := range ch.Positions {
		if _, err := tx.ExecContext(ctx, `INSERT INTO positions
			(owner, id, principal, accrued_reward, last_accrual_time, frozen)
			VALUES (?,?,?,?,?,?)
			ON CONFLICT(owner) DO UPDATE SET
				principal = excluded.principal,
				accrued_reward = excluded.accrued_reward,
				last_accrual_time = excluded.last_accrual_time,
				frozen = excluded.frozen`,
			string(p.Owner), string(p.ID), int64(p.Principal), int64(p.AccruedReward),
			p.LastAccrualTime, p.Frozen,
		); err != nil {
			return fmt.Errorf("write position %s: %w", p.Owner, err)
		}
	}
	for _, m := range ch.Markets {
		if _, err := tx.ExecContext(ctx, `INSERT INTO markets
			(asset, decimals, vault, withdrawal_liquidity, locked)
			VALUES (?,?,?,?,?)
			ON CONFLICT(asset) DO UPDATE SET
				withdrawal_liquidity = excluded.withdrawal_liquidity,
				locked = excluded.locked`,
			string(m.Asset), m.Decimals, string(m.Vault), int64(m.WithdrawalLiquidity), m.Locked,
		); err != nil {
			return fmt.Errorf("write market %s: %w", m.Asset, err)
		}
	}
	for _, e := range ch.Events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO events
			(id, timestamp, op, caller, asset, amount, allocated, note)
			VALUES (?,?,?,?,?,?,?,?)`,
			e.ID, e.CreatedAt.Unix(), string(e.Op), string(e.Caller), string(e.Asset),
			int64(e.Amount), int64(e.Allocated), e.Note,
		); err != nil {
			return fmt.Errorf("write event %s: %w", e.Op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func writePool(ctx context.Context, tx *sql.Tx, expected uint64, p model.GlobalPool) error {
	if expected == 0 {
		res, err := tx.ExecContext(ctx, `INSERT INTO pool
			(id, pool_id, admin, base_asset, base_decimals, total_principal, total_reward,
			 accrual_base, first_accrual_time, last_accrual_time, emergency_flag, version)
			VALUES (1,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO NOTHING`,
			string(p.ID), string(p.Admin), string(p.BaseAsset), p.BaseDecimals,
			int64(p.TotalPrincipal), int64(p.TotalReward), int64(p.AccrualBase),
			p.FirstAccrualTime, p.LastAccrualTime, p.EmergencyFlag, int64(p.Version),
		)
		if err != nil {
			return fmt.Errorf("create pool: %w", err)
		}
		return checkAffected(res, expected)
	}

	res, err := tx.ExecContext(ctx, `UPDATE pool SET
		admin = ?, total_principal = ?, total_reward = ?, accrual_base = ?,
		first_accrual_time = ?, last_accrual_time = ?, emergency_flag = ?, version = ?
		WHERE id = 1 AND version = ?`,
		string(p.Admin), int64(p.TotalPrincipal), int64(p.TotalReward), int64(p.AccrualBase),
		p.FirstAccrualTime, p.LastAccrualTime, p.EmergencyFlag, int64(p.Version),
		int64(expected),
	)
	if err != nil {
		return fmt.Errorf("update pool: %w", err)
	}
	return checkAffected(res, expected)
}

// checkAffected reports ErrStaleState when the pool statement matched no row.
func checkAffected(res sql.Result, expected uint64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: pool is not at version %d", ErrStaleState, expected)
	}
	return nil
}

func (s *SQLiteStore) Events(ctx context.Context, limit int) ([]model.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, timestamp, op, caller, asset,
		amount, allocated, note FROM events ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var (
			e                 model.Event
			ts                int64
			amount, allocated int64
		)
		if err := rows.Scan(&e.ID, &ts, &e.Op, &e.Caller, &e.Asset,
			&amount, &allocated, &e.Note); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.CreatedAt = time.Unix(ts, 0).UTC()
		e.Amount = uint64(amount)
		e.Allocated = uint64(allocated)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.log.Info("closing sqlite store")
	return s.db.Close()
}
