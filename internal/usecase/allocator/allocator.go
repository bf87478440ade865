package allocator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-planner/internal/domain"
)

var (
	hundred          = decimal.NewFromInt(100)
	percentTolerance = decimal.RequireFromString("0.1")
)

// CalculateAllocation turns a recommended percentage split into buckets
// holding dollar amounts.
// Logic:
//  1. Validate percentages (0-100 each, summing to 100 within 0.1)
//  2. Round each share of income to cents
//  3. Assign the rounding residue to the largest bucket
//
// Safety: Ensures total allocation equals monthly income exactly (no penny lost)
func CalculateAllocation(monthlyIncome decimal.Decimal, recommendations []domain.Recommendation) ([]domain.AllocationBucket, error) {
	if monthlyIncome.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("monthly income must be positive")
	}

	if len(recommendations) == 0 {
		return nil, errors.New("recommendations list cannot be empty")
	}

	seen := make(map[domain.BucketType]bool, len(recommendations))
	percentTotal := decimal.Zero
	for _, rec := range recommendations {
		if !rec.Type.IsKnown() {
			return nil, fmt.Errorf("invalid bucket type %q", rec.Type)
		}
		if seen[rec.Type] {
			return nil, fmt.Errorf("bucket type %s must appear at most once", rec.Type)
		}
		seen[rec.Type] = true

		if rec.Percent.LessThan(decimal.Zero) || rec.Percent.GreaterThan(hundred) {
			return nil, errors.New("recommended percent must be between 0 and 100")
		}
		percentTotal = percentTotal.Add(rec.Percent)
	}

	if percentTotal.Sub(hundred).Abs().GreaterThanOrEqual(percentTolerance) {
		return nil, fmt.Errorf("recommended percentages must sum to 100, got %s", percentTotal.String())
	}

	buckets := make([]domain.AllocationBucket, 0, len(recommendations))
	allocated := decimal.Zero
	for _, rec := range recommendations {
		amount := monthlyIncome.Mul(rec.Percent).Div(hundred).Round(2)
		allocated = allocated.Add(amount)
		buckets = append(buckets, newBucket(rec, amount))
	}

	// Hand the rounding residue to the largest bucket
	residue := monthlyIncome.Sub(allocated)
	if !residue.IsZero() {
		largest := largestBucket(buckets)
		adjusted := buckets[largest].AllocatedAmount.Add(residue)
		if adjusted.IsNegative() {
			return nil, errors.New("rounding residue exceeds the largest bucket")
		}
		buckets[largest].AllocatedAmount = adjusted
		buckets[largest].RecommendedAmount = adjusted
	}

	// Safety check: Ensure total allocation equals monthly income exactly
	if !domain.TotalAllocated(buckets).Equal(monthlyIncome) {
		return nil, errors.New("total allocation does not equal monthly income")
	}

	for i := range buckets {
		buckets[i].MonthsToTarget = monthsToTarget(buckets[i])
		if err := buckets[i].Validate(); err != nil {
			return nil, err
		}
	}

	return buckets, nil
}

// SortByPriority orders buckets for display: cascade order first, then the
// remaining types in their declared order
func SortByPriority(buckets []domain.AllocationBucket, policy domain.Policy) {
	position := make(map[domain.BucketType]int, len(domain.AllBucketTypes))
	for i, t := range domain.AllBucketTypes {
		position[t] = len(domain.AllBucketTypes) + i
	}
	for i, t := range policy.PriorityOrder() {
		position[t] = i
	}
	sort.SliceStable(buckets, func(i, j int) bool {
		return position[buckets[i].Type] < position[buckets[j].Type]
	})
}

func newBucket(rec domain.Recommendation, amount decimal.Decimal) domain.AllocationBucket {
	// Essential spending reflects measured spending, not a choice
	modifiable := rec.Type != domain.BucketTypeEssentialSpending
	if rec.IsModifiable != nil {
		modifiable = *rec.IsModifiable
	}

	name := rec.Name
	if name == "" {
		name = DisplayName(rec.Type)
	}

	b := domain.AllocationBucket{
		ID:                uuid.New(),
		Name:              name,
		Type:              rec.Type,
		AllocatedAmount:   amount,
		RecommendedAmount: amount,
		IsModifiable:      modifiable,
		LinkedCategories:  append([]string(nil), rec.LinkedCategories...),
		LinkedAccountIDs:  append([]string(nil), rec.LinkedAccountIDs...),
		Acknowledged:      true,
	}
	if rec.TargetAmount != nil && rec.Type == domain.BucketTypeEmergencyFund {
		target := *rec.TargetAmount
		b.TargetAmount = &target
	}
	return b
}

// largestBucket finds the bucket with the largest amount (first wins ties)
func largestBucket(buckets []domain.AllocationBucket) int {
	largest := 0
	for i := 1; i < len(buckets); i++ {
		if buckets[i].AllocatedAmount.GreaterThan(buckets[largest].AllocatedAmount) {
			largest = i
		}
	}
	return largest
}

// monthsToTarget is how many months of the current allocation it takes to
// reach the target from zero. Nil when there is no target or no allocation.
func monthsToTarget(b domain.AllocationBucket) *int {
	if b.TargetAmount == nil || !b.AllocatedAmount.IsPositive() {
		return nil
	}
	months := int(b.TargetAmount.Div(b.AllocatedAmount).Ceil().IntPart())
	return &months
}

// DisplayName returns the human name for a bucket type
func DisplayName(t domain.BucketType) string {
	switch t {
	case domain.BucketTypeEssentialSpending:
		return "Essential Spending"
	case domain.BucketTypeEmergencyFund:
		return "Emergency Fund"
	case domain.BucketTypeDiscretionarySpending:
		return "Discretionary Spending"
	case domain.BucketTypeInvestments:
		return "Investments"
	case domain.BucketTypeDebtPaydown:
		return "Debt Paydown"
	default:
		return string(t)
	}
}
