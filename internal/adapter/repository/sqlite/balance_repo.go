package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-planner/internal/domain"
)

type balanceRepository struct {
	db *DB
}

// NewBalanceRepository creates an account balance repository backed by SQLite
func NewBalanceRepository(db *DB) domain.BalanceRepository {
	return &balanceRepository{db: db}
}

func (r *balanceRepository) Add(ctx context.Context, entry *domain.AccountBalance) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO account_balances (id, account_id, balance, as_of) VALUES (?, ?, ?, ?)`,
		entry.ID.String(),
		entry.AccountID,
		entry.Balance.String(),
		formatTime(entry.AsOf),
	)
	if err != nil {
		return fmt.Errorf("failed to insert account balance: %w", err)
	}
	return nil
}

func (r *balanceRepository) GetLatest(ctx context.Context, accountID string) (*domain.AccountBalance, error) {
	var id, balance, asOf string
	entry := domain.AccountBalance{AccountID: accountID}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, balance, as_of
		FROM account_balances
		WHERE account_id = ?
		ORDER BY as_of DESC
		LIMIT 1`,
		accountID,
	).Scan(&id, &balance, &asOf)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no balance recorded for account %s: %w", accountID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest balance: %w", err)
	}

	if entry.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to parse balance id: %w", err)
	}
	if entry.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}
	if entry.AsOf, err = parseTime(asOf); err != nil {
		return nil, err
	}
	return &entry, nil
}
