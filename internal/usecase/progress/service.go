package progress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-planner/internal/domain"
)

// BucketProgress represents how far a confirmed bucket is toward its goal
type BucketProgress struct {
	BucketID        uuid.UUID
	Name            string
	Type            domain.BucketType
	Allocated       decimal.Decimal
	LinkedBalance   decimal.Decimal
	TargetAmount    *decimal.Decimal
	PercentComplete *decimal.Decimal
	MonthsRemaining *int
	MissingAccounts []string
}

// PlanProgress represents progress for every bucket of a confirmed plan
type PlanProgress struct {
	PlanID  uuid.UUID
	Buckets []BucketProgress
}

// ProgressService handles linked-account balances and goal progress
type ProgressService struct {
	PlanRepo    domain.PlanRepository
	BalanceRepo domain.BalanceRepository
	now         func() time.Time
}

// NewProgressService creates a new ProgressService instance
func NewProgressService(planRepo domain.PlanRepository, balanceRepo domain.BalanceRepository) *ProgressService {
	return &ProgressService{
		PlanRepo:    planRepo,
		BalanceRepo: balanceRepo,
		now:         time.Now,
	}
}

// RecordBalance stores a balance snapshot for a linked account.
// Balances are history: a new row is inserted every time.
func (s *ProgressService) RecordBalance(ctx context.Context, accountID string, balance decimal.Decimal) (*domain.AccountBalance, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, errors.New("account ID cannot be empty")
	}

	entry := &domain.AccountBalance{
		ID:        uuid.New(),
		AccountID: accountID,
		Balance:   balance,
		AsOf:      s.now().UTC(),
	}

	if err := s.BalanceRepo.Add(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record balance: %w", err)
	}

	return entry, nil
}

// GetProgress calculates goal progress for a confirmed plan
// Logic:
//   - LinkedBalance: sum of the latest snapshot of every linked account
//   - PercentComplete: LinkedBalance / TargetAmount * 100, capped at 100
//   - MonthsRemaining: ceil((TargetAmount - LinkedBalance) / Allocated)
func (s *ProgressService) GetProgress(ctx context.Context, planID uuid.UUID) (*PlanProgress, error) {
	plan, err := s.PlanRepo.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}

	result := &PlanProgress{PlanID: plan.ID}
	for _, b := range plan.Buckets {
		p := BucketProgress{
			BucketID:      b.ID,
			Name:          b.Name,
			Type:          b.Type,
			Allocated:     b.AllocatedAmount,
			LinkedBalance: decimal.Zero,
			TargetAmount:  b.TargetAmount,
		}

		for _, accountID := range b.LinkedAccountIDs {
			latest, err := s.BalanceRepo.GetLatest(ctx, accountID)
			if errors.Is(err, domain.ErrNotFound) {
				// No snapshot yet counts as zero
				p.MissingAccounts = append(p.MissingAccounts, accountID)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to get balance for account %s: %w", accountID, err)
			}
			p.LinkedBalance = p.LinkedBalance.Add(latest.Balance)
		}

		if b.TargetAmount != nil {
			p.PercentComplete = percentComplete(p.LinkedBalance, *b.TargetAmount)
			p.MonthsRemaining = monthsRemaining(p.LinkedBalance, *b.TargetAmount, b.AllocatedAmount)
		}

		result.Buckets = append(result.Buckets, p)
	}

	return result, nil
}

func percentComplete(balance, target decimal.Decimal) *decimal.Decimal {
	pct := decimal.NewFromInt(100)
	if target.IsPositive() && balance.LessThan(target) {
		pct = decimal.Max(balance, decimal.Zero).Div(target).Mul(pct).Round(1)
	}
	return &pct
}

// monthsRemaining is nil when the goal is unreachable at this allocation
func monthsRemaining(balance, target, allocated decimal.Decimal) *int {
	gap := target.Sub(balance)
	if !gap.IsPositive() {
		zero := 0
		return &zero
	}
	if !allocated.IsPositive() {
		return nil
	}
	months := int(gap.Div(allocated).Ceil().IntPart())
	return &months
}
