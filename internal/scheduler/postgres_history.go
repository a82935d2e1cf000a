package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresHistory is a HistoryStore backed by Postgres, for deployments where
// several scanner hosts share one schedule and the at-most-once-per-slot
// guarantee must hold across all of them.
type PostgresHistory struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresHistory wraps db. EnsureSchema must be called once before use.
func NewPostgresHistory(db *sqlx.DB, timeout time.Duration) *PostgresHistory {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresHistory{db: db, timeout: timeout}
}

// EnsureSchema creates the execution-history table if it does not exist.
func (p *PostgresHistory) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const ddl = `
		CREATE TABLE IF NOT EXISTS strategy_executions (
			slot           TEXT PRIMARY KEY,
			ts             BIGINT NOT NULL,
			strategies_run TEXT[] NOT NULL,
			tokens_found   INT NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create strategy_executions table: %w", err)
	}
	return nil
}

// Has reports whether slot already has a record.
func (p *PostgresHistory) Has(slot string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	var count int
	err := p.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM strategy_executions WHERE slot = $1`, slot)
	if err != nil {
		return false, fmt.Errorf("failed to query execution slot: %w", err)
	}
	return count > 0, nil
}

// Record upserts the record for slot.
func (p *PostgresHistory) Record(slot string, rec ExecutionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	const query = `
		INSERT INTO strategy_executions (slot, ts, strategies_run, tokens_found)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slot) DO UPDATE
		SET ts = EXCLUDED.ts,
		    strategies_run = EXCLUDED.strategies_run,
		    tokens_found = EXCLUDED.tokens_found`
	_, err := p.db.ExecContext(ctx, query,
		slot, rec.Timestamp, pq.Array(rec.StrategiesRun), rec.TokensFound)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}

// Prune deletes records older than cutoff.
func (p *PostgresHistory) Prune(cutoff time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	res, err := p.db.ExecContext(ctx,
		`DELETE FROM strategy_executions WHERE ts < $1`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune executions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}

// SetLastCheck is a no-op for Postgres: the debounce timestamp is
// process-local and not worth a round trip.
func (p *PostgresHistory) SetLastCheck(time.Time) error { return nil }
