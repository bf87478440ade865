package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when a row does not exist
var ErrNotFound = errors.New("not found")

// PlanRepository defines the interface for confirmed plan persistence operations
type PlanRepository interface {
	// Save stores a confirmed plan together with its buckets
	Save(ctx context.Context, plan *ConfirmedPlan) error

	// GetByID retrieves a confirmed plan by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*ConfirmedPlan, error)

	// List retrieves the most recently confirmed plans, newest first
	List(ctx context.Context, limit int) ([]*ConfirmedPlan, error)
}

// BalanceRepository defines the interface for linked account balance history
type BalanceRepository interface {
	// Add creates a new balance snapshot
	Add(ctx context.Context, entry *AccountBalance) error

	// GetLatest retrieves the most recent snapshot for an account
	GetLatest(ctx context.Context, accountID string) (*AccountBalance, error)
}
