package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-planner/internal/domain"
)

// balanceRepository implements domain.BalanceRepository
type balanceRepository struct {
	db *DB
}

// NewBalanceRepository creates a new account balance repository
func NewBalanceRepository(db *DB) domain.BalanceRepository {
	return &balanceRepository{db: db}
}

// Add creates a new account balance snapshot
func (r *balanceRepository) Add(ctx context.Context, entry *domain.AccountBalance) error {
	query := `
		INSERT INTO account_balances (id, account_id, balance, as_of)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.AccountID,
		entry.Balance.String(),
		entry.AsOf,
	)
	if err != nil {
		return fmt.Errorf("failed to insert account balance: %w", err)
	}

	return nil
}

// GetLatest retrieves the most recent balance snapshot for an account
func (r *balanceRepository) GetLatest(ctx context.Context, accountID string) (*domain.AccountBalance, error) {
	query := `
		SELECT id, account_id, balance, as_of
		FROM account_balances
		WHERE account_id = $1
		ORDER BY as_of DESC
		LIMIT 1
	`

	var entry domain.AccountBalance
	var balanceStr string

	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&entry.ID,
		&entry.AccountID,
		&balanceStr,
		&entry.AsOf,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no balance recorded for account %s: %w", accountID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest balance: %w", err)
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}
	entry.Balance = balance

	return &entry, nil
}
