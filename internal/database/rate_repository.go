package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/nbrons/perp-prophet/internal/models"
)

// Schema creates the rate history table. It is safe to run on every start.
const Schema = `
CREATE TABLE IF NOT EXISTS rate_snapshots (
	id             BIGSERIAL PRIMARY KEY,
	asset          TEXT        NOT NULL,
	funding_rate   NUMERIC     NOT NULL,
	open_interest  NUMERIC     NOT NULL DEFAULT 0,
	borrow_rates   JSONB       NOT NULL DEFAULT '{}',
	lend_rates     JSONB       NOT NULL DEFAULT '{}',
	strategy_a_apy NUMERIC     NOT NULL,
	strategy_b_apy NUMERIC     NOT NULL,
	lending_apy    NUMERIC     NOT NULL,
	recommendation TEXT        NOT NULL,
	unavailable    TEXT[]      NOT NULL DEFAULT '{}',
	recorded_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_rate_snapshots_asset_recorded_at
	ON rate_snapshots (asset, recorded_at DESC);
`

const selectRateColumns = `
	SELECT id, asset, funding_rate::text, open_interest::text,
		borrow_rates::text, lend_rates::text,
		strategy_a_apy::text, strategy_b_apy::text, lending_apy::text,
		recommendation, unavailable, recorded_at
	FROM rate_snapshots`

// DatabasePool defines the interface for database pool operations.
// *pgxpool.Pool and pgxmock pools both satisfy it.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// RateRepository persists collected snapshots in rate_snapshots.
type RateRepository struct {
	pool DatabasePool
}

// NewRateRepository creates a new rate repository.
//
// Parameters:
//
//	pool: The database connection pool.
//
// Returns:
//
//	*RateRepository: The initialized repository.
func NewRateRepository(pool DatabasePool) *RateRepository {
	return &RateRepository{pool: pool}
}

// EnsureSchema creates the table and index when missing.
func (r *RateRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create rate_snapshots schema: %w", err)
	}
	return nil
}

// Insert stores one record and fills in its ID and RecordedAt.
func (r *RateRepository) Insert(ctx context.Context, record *models.RateRecord) error {
	borrow, err := json.Marshal(nonNil(record.BorrowRates))
	if err != nil {
		return fmt.Errorf("failed to encode borrow rates: %w", err)
	}
	lend, err := json.Marshal(nonNil(record.LendRates))
	if err != nil {
		return fmt.Errorf("failed to encode lend rates: %w", err)
	}
	unavailable := record.Unavailable
	if unavailable == nil {
		unavailable = []string{}
	}

	query := `
		INSERT INTO rate_snapshots (asset, funding_rate, open_interest, borrow_rates, lend_rates,
			strategy_a_apy, strategy_b_apy, lending_apy, recommendation, unavailable)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, recorded_at
	`
	err = r.pool.QueryRow(ctx, query,
		record.Asset,
		record.FundingRate.String(),
		record.OpenInterest.String(),
		string(borrow),
		string(lend),
		record.StrategyAAPY.String(),
		record.StrategyBAPY.String(),
		record.LendingAPY.String(),
		string(record.Recommendation),
		unavailable,
	).Scan(&record.ID, &record.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rate snapshot: %w", err)
	}
	return nil
}

// History returns the records for asset recorded at or after since, oldest first.
func (r *RateRepository) History(ctx context.Context, asset string, since time.Time) ([]models.RateRecord, error) {
	query := selectRateColumns + `
	WHERE asset = $1 AND recorded_at >= $2
	ORDER BY recorded_at ASC`

	rows, err := r.pool.Query(ctx, query, asset, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate history: %w", err)
	}
	defer rows.Close()

	var records []models.RateRecord
	for rows.Next() {
		record, err := scanRateRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rate history: %w", err)
	}
	return records, nil
}

// Latest returns the most recent record for asset, or nil when there is none.
func (r *RateRepository) Latest(ctx context.Context, asset string) (*models.RateRecord, error) {
	query := selectRateColumns + `
	WHERE asset = $1
	ORDER BY recorded_at DESC
	LIMIT 1`

	record, err := scanRateRecord(r.pool.QueryRow(ctx, query, asset))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// DeleteOlderThan removes records recorded before cutoff and returns how many went.
func (r *RateRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM rate_snapshots WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old rate snapshots: %w", err)
	}
	return result.RowsAffected(), nil
}

func scanRateRecord(row pgx.Row) (models.RateRecord, error) {
	var (
		record                              models.RateRecord
		funding, openInterest, borrow, lend string
		apyA, apyB, lending, recommendation string
	)
	err := row.Scan(
		&record.ID,
		&record.Asset,
		&funding,
		&openInterest,
		&borrow,
		&lend,
		&apyA,
		&apyB,
		&lending,
		&recommendation,
		&record.Unavailable,
		&record.RecordedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return record, err
		}
		return record, fmt.Errorf("failed to scan rate snapshot: %w", err)
	}

	decimals := []struct {
		name string
		text string
		dst  *decimal.Decimal
	}{
		{"funding_rate", funding, &record.FundingRate},
		{"open_interest", openInterest, &record.OpenInterest},
		{"strategy_a_apy", apyA, &record.StrategyAAPY},
		{"strategy_b_apy", apyB, &record.StrategyBAPY},
		{"lending_apy", lending, &record.LendingAPY},
	}
	for _, d := range decimals {
		value, err := decimal.NewFromString(d.text)
		if err != nil {
			return record, fmt.Errorf("invalid %s %q: %w", d.name, d.text, err)
		}
		*d.dst = value
	}

	if err := json.Unmarshal([]byte(borrow), &record.BorrowRates); err != nil {
		return record, fmt.Errorf("invalid borrow_rates: %w", err)
	}
	if err := json.Unmarshal([]byte(lend), &record.LendRates); err != nil {
		return record, fmt.Errorf("invalid lend_rates: %w", err)
	}
	record.Recommendation = models.StrategyKind(recommendation)
	return record, nil
}

func nonNil(rates map[string]decimal.Decimal) map[string]decimal.Decimal {
	if rates == nil {
		return map[string]decimal.Decimal{}
	}
	return rates
}
