package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Recommendation is one line of the first-draft split produced by the
// external recommendation step (heuristic or AI based)
type Recommendation struct {
	Type             BucketType
	Name             string
	Percent          decimal.Decimal // 0-100, share of monthly income
	IsModifiable     *bool           // nil = default for the type
	LinkedCategories []string
	LinkedAccountIDs []string
	TargetAmount     *decimal.Decimal
}

// ConfirmedPlan is the final set of bucket amounts handed off to
// downstream budget and goal creation
type ConfirmedPlan struct {
	ID            uuid.UUID
	SessionID     uuid.UUID
	MonthlyIncome decimal.Decimal
	Buckets       []AllocationBucket
	ConfirmedAt   time.Time
}

// Validate ensures the plan adheres to domain rules
func (p *ConfirmedPlan) Validate() error {
	if p.ID == uuid.Nil {
		return errors.New("plan ID cannot be empty")
	}
	if !p.MonthlyIncome.IsPositive() {
		return errors.New("plan monthly income must be positive")
	}
	if len(p.Buckets) == 0 {
		return errors.New("plan must have at least one bucket")
	}
	for i := range p.Buckets {
		if err := p.Buckets[i].Validate(); err != nil {
			return err
		}
	}
	return CheckUniqueIDs(p.Buckets)
}

// AccountBalance is a point-in-time balance of a linked bank account.
// Read-only input, used to display goal progress.
type AccountBalance struct {
	ID        uuid.UUID
	AccountID string
	Balance   decimal.Decimal
	AsOf      time.Time
}
