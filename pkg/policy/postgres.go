package policy

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/veilcash/pullauth/pkg/contracts"

	_ "github.com/lib/pq"
)

// PostgresStorage implements Storage using PostgreSQL. Amounts are
// stored as decimal strings so they survive beyond int64.
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage wraps an open database handle.
func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

func (s *PostgresStorage) GetPolicy(ctx context.Context, principal contracts.Address) (*contracts.Policy, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT principal, max_per_tx, daily_limit, enabled, updated_at FROM policies WHERE principal = $1",
		principal.Hex())

	var p contracts.Policy
	var addr, maxPerTx, dailyLimit string
	err := row.Scan(&addr, &maxPerTx, &dailyLimit, &p.Enabled, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("policy: get policy: %w", err)
	}
	if p.Principal, err = contracts.ParseAddress(addr); err != nil {
		return nil, fmt.Errorf("policy: corrupt principal column: %w", err)
	}
	if p.MaxPerTx, err = parseAmount(maxPerTx); err != nil {
		return nil, fmt.Errorf("policy: corrupt max_per_tx column: %w", err)
	}
	if p.DailyLimit, err = parseAmount(dailyLimit); err != nil {
		return nil, fmt.Errorf("policy: corrupt daily_limit column: %w", err)
	}
	return &p, nil
}

func (s *PostgresStorage) SetPolicy(ctx context.Context, p *contracts.Policy) error {
	query := `
		INSERT INTO policies (principal, max_per_tx, daily_limit, enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (principal) DO UPDATE SET
			max_per_tx = EXCLUDED.max_per_tx,
			daily_limit = EXCLUDED.daily_limit,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		p.Principal.Hex(), p.MaxPerTx.String(), p.DailyLimit.String(), p.Enabled, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("policy: persist policy: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetUsage(ctx context.Context, principal contracts.Address) (*contracts.Usage, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT principal, day, spent FROM usage WHERE principal = $1",
		principal.Hex())

	var u contracts.Usage
	var addr, spent string
	err := row.Scan(&addr, &u.Day, &spent)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("policy: get usage: %w", err)
	}
	if u.Principal, err = contracts.ParseAddress(addr); err != nil {
		return nil, fmt.Errorf("policy: corrupt principal column: %w", err)
	}
	if u.Spent, err = parseAmount(spent); err != nil {
		return nil, fmt.Errorf("policy: corrupt spent column: %w", err)
	}
	return &u, nil
}

func (s *PostgresStorage) SetUsage(ctx context.Context, u *contracts.Usage) error {
	query := `
		INSERT INTO usage (principal, day, spent)
		VALUES ($1, $2, $3)
		ON CONFLICT (principal) DO UPDATE SET
			day = EXCLUDED.day,
			spent = EXCLUDED.spent
	`
	_, err := s.db.ExecContext(ctx, query, u.Principal.Hex(), u.Day, u.Spent.String())
	if err != nil {
		return fmt.Errorf("policy: persist usage: %w", err)
	}
	return nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal amount: %q", s)
	}
	return v, nil
}
