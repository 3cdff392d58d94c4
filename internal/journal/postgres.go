package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	order_id     TEXT PRIMARY KEY,
	account_id   TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	type         TEXT NOT NULL,
	amount       NUMERIC NOT NULL,
	price        NUMERIC NOT NULL,
	filled       NUMERIC NOT NULL,
	remaining    NUMERIC NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	cancelled_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS orders_account_idx ON orders (account_id, created_at DESC);

CREATE TABLE IF NOT EXISTS trades (
	trade_id         TEXT PRIMARY KEY,
	order_id         TEXT NOT NULL,
	maker_order_id   TEXT NOT NULL DEFAULT '',
	account_id       TEXT NOT NULL,
	maker_account_id TEXT NOT NULL DEFAULT '',
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	price            NUMERIC NOT NULL,
	amount           NUMERIC NOT NULL,
	total            NUMERIC NOT NULL,
	fee              NUMERIC NOT NULL,
	executed_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_symbol_idx ON trades (symbol, executed_at);`

const upsertOrder = `
INSERT INTO orders (order_id, account_id, symbol, side, type, amount, price, filled, remaining, status, created_at, updated_at, cancelled_at)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10, $11, $12, $13)
ON CONFLICT (order_id) DO UPDATE SET
	filled       = EXCLUDED.filled,
	remaining    = EXCLUDED.remaining,
	status       = EXCLUDED.status,
	updated_at   = EXCLUDED.updated_at,
	cancelled_at = EXCLUDED.cancelled_at`

const insertTrade = `
INSERT INTO trades (trade_id, order_id, maker_order_id, account_id, maker_account_id, symbol, side, price, amount, total, fee, executed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12)
ON CONFLICT (trade_id) DO NOTHING`

// db is the subset of *pgxpool.Pool the journal uses.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres journals to a PostgreSQL database through a pgx pool.
type Postgres struct {
	db    db
	close func()
}

// NewPostgres connects to url, verifies the connection and creates the
// schema when missing.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("journal: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}

	p := &Postgres{db: pool, close: pool.Close}
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// EnsureSchema creates the orders and trades tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("journal: ensure schema: %w", err)
	}
	return nil
}

// RecordOrder inserts o or updates its mutable columns.
func (p *Postgres) RecordOrder(ctx context.Context, o *domain.Order) error {
	_, err := p.db.Exec(ctx, upsertOrder,
		o.OrderID, o.AccountID, o.Symbol, string(o.Side), string(o.Type),
		o.Amount.String(), o.Price.String(), o.Filled.String(), o.Remaining.String(),
		string(o.Status), o.CreatedAt, o.UpdatedAt, o.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("journal: record order %s: %w", o.OrderID, err)
	}
	return nil
}

// RecordTrades inserts trades in a single transaction.
func (p *Postgres) RecordTrades(ctx context.Context, trades []*domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, t := range trades {
		_, err := tx.Exec(ctx, insertTrade,
			t.TradeID, t.OrderID, t.MakerOrderID, t.AccountID, t.MakerAccountID,
			t.Symbol, string(t.Side), t.Price.String(), t.Amount.String(),
			t.Total.String(), t.Fee.String(), t.ExecutedAt,
		)
		if err != nil {
			return fmt.Errorf("journal: insert trade %s: %w", t.TradeID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("journal: commit: %w", err)
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	if p.close != nil {
		p.close()
	}
}
