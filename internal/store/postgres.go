package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"options-trading-bot/internal/interfaces"
	"options-trading-bot/internal/types"
)

var _ interfaces.PositionStore = (*PostgresStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
	id                 TEXT PRIMARY KEY,
	symbol             TEXT NOT NULL,
	strategy           TEXT NOT NULL,
	status             TEXT NOT NULL,
	legs_json          TEXT NOT NULL DEFAULT '[]',
	entry_cost         DOUBLE PRECISION NOT NULL,
	current_value      DOUBLE PRECISION NOT NULL DEFAULT 0,
	realized_pnl       DOUBLE PRECISION NOT NULL DEFAULT 0,
	unrealized_pnl     DOUBLE PRECISION NOT NULL DEFAULT 0,
	profit_target      DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_loss           DOUBLE PRECISION NOT NULL DEFAULT 0,
	close_reason       TEXT NOT NULL DEFAULT '',
	entry_time         TIMESTAMPTZ NOT NULL,
	exit_time          TIMESTAMPTZ,
	delta              DOUBLE PRECISION NOT NULL DEFAULT 0,
	theta              DOUBLE PRECISION NOT NULL DEFAULT 0,
	vega               DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_advisor_check TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions (status);
CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions (symbol);

CREATE TABLE IF NOT EXISTS account (
	id   INT PRIMARY KEY DEFAULT 1,
	cash DOUBLE PRECISION NOT NULL
);
`

// PostgresStore persists positions and the cash balance. Closed rows are
// never deleted; they form the performance ledger.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects, bootstraps the schema, and seeds the account
// row with startingCash when none exists yet.
func NewPostgresStore(dsn string, startingCash float64) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	if _, err := db.Exec(
		`INSERT INTO account (id, cash) VALUES (1, $1) ON CONFLICT (id) DO NOTHING`,
		startingCash,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed account: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) DB() *sqlx.DB { return s.db }

func (s *PostgresStore) Shutdown() error { return s.db.Close() }

type positionRow struct {
	ID               string         `db:"id"`
	Symbol           string         `db:"symbol"`
	Strategy         string         `db:"strategy"`
	Status           string         `db:"status"`
	LegsJSON         string         `db:"legs_json"`
	EntryCost        float64        `db:"entry_cost"`
	CurrentValue     float64        `db:"current_value"`
	RealizedPnL      float64        `db:"realized_pnl"`
	UnrealizedPnL    float64        `db:"unrealized_pnl"`
	ProfitTarget     float64        `db:"profit_target"`
	MaxLoss          float64        `db:"max_loss"`
	CloseReason      string         `db:"close_reason"`
	EntryTime        time.Time      `db:"entry_time"`
	ExitTime         sql.NullTime   `db:"exit_time"`
	Delta            float64        `db:"delta"`
	Theta            float64        `db:"theta"`
	Vega             float64        `db:"vega"`
	LastAdvisorCheck sql.NullTime   `db:"last_advisor_check"`
}

func (r *positionRow) toPosition() (*types.Position, error) {
	var legs []types.ContractLeg
	if err := json.Unmarshal([]byte(r.LegsJSON), &legs); err != nil {
		return nil, fmt.Errorf("decode legs for %s: %w", r.ID, err)
	}
	p := &types.Position{
		ID:            r.ID,
		Symbol:        r.Symbol,
		Strategy:      types.StrategyType(r.Strategy),
		Status:        types.PositionStatus(r.Status),
		Legs:          legs,
		EntryCost:     r.EntryCost,
		CurrentValue:  r.CurrentValue,
		RealizedPnL:   r.RealizedPnL,
		UnrealizedPnL: r.UnrealizedPnL,
		ProfitTarget:  r.ProfitTarget,
		MaxLoss:       r.MaxLoss,
		CloseReason:   types.CloseReason(r.CloseReason),
		EntryTime:     r.EntryTime,
		Delta:         r.Delta,
		Theta:         r.Theta,
		Vega:          r.Vega,
	}
	if r.ExitTime.Valid {
		t := r.ExitTime.Time
		p.ExitTime = &t
	}
	if r.LastAdvisorCheck.Valid {
		t := r.LastAdvisorCheck.Time
		p.LastAdvisorCheck = &t
	}
	return p, nil
}

func (s *PostgresStore) Create(ctx context.Context, pos *types.Position) error {
	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	if pos.Status == "" {
		pos.Status = types.StatusOpen
	}
	if pos.EntryTime.IsZero() {
		pos.EntryTime = time.Now()
	}
	legsJSON, err := json.Marshal(pos.Legs)
	if err != nil {
		return fmt.Errorf("encode legs: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO positions (
			id, symbol, strategy, status, legs_json, entry_cost, current_value,
			realized_pnl, unrealized_pnl, profit_target, max_loss, close_reason,
			entry_time, delta, theta, vega
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		pos.ID, pos.Symbol, string(pos.Strategy), string(pos.Status), string(legsJSON),
		pos.EntryCost, pos.CurrentValue, pos.RealizedPnL, pos.UnrealizedPnL,
		pos.ProfitTarget, pos.MaxLoss, string(pos.CloseReason),
		pos.EntryTime, pos.Delta, pos.Theta, pos.Vega,
	)
	if err != nil {
		return fmt.Errorf("insert position %s: %w", pos.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*types.Position, error) {
	var row positionRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM positions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("position %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load position %s: %w", id, err)
	}
	return row.toPosition()
}

func (s *PostgresStore) UpdateValue(ctx context.Context, id string, currentValue, unrealizedPnL float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE positions SET current_value = $2, unrealized_pnl = $3
		WHERE id = $1 AND status = 'OPEN'`,
		id, currentValue, unrealizedPnL,
	)
	if err != nil {
		return fmt.Errorf("update value for %s: %w", id, err)
	}
	return nil
}

// Close performs the status transition in one statement so two concurrent
// closes cannot both book P&L. Realized P&L freezes at the last unrealized
// mark.
func (s *PostgresStore) Close(ctx context.Context, id string, reason types.CloseReason) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE positions
		SET status = 'CLOSED',
		    close_reason = $2,
		    exit_time = NOW(),
		    realized_pnl = unrealized_pnl,
		    unrealized_pnl = 0
		WHERE id = $1 AND status = 'OPEN'`,
		id, string(reason),
	)
	if err != nil {
		return false, fmt.Errorf("close position %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) List(ctx context.Context, status types.PositionStatus) ([]*types.Position, error) {
	var rows []positionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM positions WHERE status = $1 ORDER BY entry_time`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	out := make([]*types.Position, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toPosition()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *PostgresStore) Ledger(ctx context.Context) ([]*types.Position, error) {
	var rows []positionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM positions WHERE status = 'CLOSED' ORDER BY exit_time`)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	out := make([]*types.Position, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toPosition()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *PostgresStore) HeldSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := s.db.SelectContext(ctx, &symbols,
		`SELECT DISTINCT symbol FROM positions WHERE status = 'OPEN' ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("load held symbols: %w", err)
	}
	return symbols, nil
}

func (s *PostgresStore) CashBalance(ctx context.Context) (float64, error) {
	var cash float64
	if err := s.db.GetContext(ctx, &cash, `SELECT cash FROM account WHERE id = 1`); err != nil {
		return 0, fmt.Errorf("load cash balance: %w", err)
	}
	return cash, nil
}

func (s *PostgresStore) AdjustCash(ctx context.Context, delta float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE account SET cash = cash + $1 WHERE id = 1 AND cash + $1 >= 0`, delta)
	if err != nil {
		return fmt.Errorf("adjust cash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("cash adjustment %.2f would overdraw balance", delta)
	}
	return nil
}

func (s *PostgresStore) MarkAdvisorCheck(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE positions SET last_advisor_check = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark advisor check for %s: %w", id, err)
	}
	return nil
}
