package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BucketType represents the kind of allocation bucket in a spending plan
type BucketType string

const (
	BucketTypeEssentialSpending     BucketType = "ESSENTIAL_SPENDING"
	BucketTypeEmergencyFund         BucketType = "EMERGENCY_FUND"
	BucketTypeDiscretionarySpending BucketType = "DISCRETIONARY_SPENDING"
	BucketTypeInvestments           BucketType = "INVESTMENTS"
	BucketTypeDebtPaydown           BucketType = "DEBT_PAYDOWN"
)

// AllBucketTypes lists every bucket type in display order
var AllBucketTypes = []BucketType{
	BucketTypeEssentialSpending,
	BucketTypeEmergencyFund,
	BucketTypeDiscretionarySpending,
	BucketTypeInvestments,
	BucketTypeDebtPaydown,
}

// IsKnown reports whether t is one of the closed set of bucket types
func (t BucketType) IsKnown() bool {
	for _, known := range AllBucketTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseBucketType parses a bucket type name. Matching ignores case and
// accepts '-' in place of '_'.
func ParseBucketType(s string) (BucketType, error) {
	normalized := BucketType(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if !normalized.IsKnown() {
		return "", fmt.Errorf("invalid bucket type %q", s)
	}
	return normalized, nil
}

var hundred = decimal.NewFromInt(100)

// AllocationBucket is one row of the spending plan.
// It is a value record: updates produce a modified copy.
type AllocationBucket struct {
	ID                uuid.UUID
	Name              string
	Type              BucketType
	AllocatedAmount   decimal.Decimal
	RecommendedAmount decimal.Decimal // Last externally supplied recommendation
	IsModifiable      bool
	IsLocked          bool // Session scoped: excluded from compensating adjustments

	LinkedCategories []string
	LinkedAccountIDs []string

	// Goal tracking, EMERGENCY_FUND only. Never touched by rebalancing.
	TargetAmount   *decimal.Decimal
	MonthsToTarget *int

	ChangeFromOriginal decimal.Decimal
	Acknowledged       bool
}

// PercentageOfIncome returns the share of monthly income held by the bucket.
// Returns zero when income is not positive.
func (b AllocationBucket) PercentageOfIncome(monthlyIncome decimal.Decimal) decimal.Decimal {
	return PercentOf(b.AllocatedAmount, monthlyIncome)
}

// Validate ensures the bucket adheres to domain rules
func (b *AllocationBucket) Validate() error {
	if b.ID == uuid.Nil {
		return errors.New("bucket ID cannot be empty")
	}

	if !b.Type.IsKnown() {
		return fmt.Errorf("invalid bucket type %q", b.Type)
	}

	if b.AllocatedAmount.IsNegative() {
		return errors.New("allocated amount must not be negative")
	}

	// Goal fields only make sense for the emergency fund
	if b.Type != BucketTypeEmergencyFund && (b.TargetAmount != nil || b.MonthsToTarget != nil) {
		return errors.New("only an emergency fund bucket may have a target")
	}

	if b.TargetAmount != nil && b.TargetAmount.IsNegative() {
		return errors.New("target amount must not be negative")
	}

	return nil
}

// Clone returns a deep copy of the bucket
func (b AllocationBucket) Clone() AllocationBucket {
	out := b
	if b.LinkedCategories != nil {
		out.LinkedCategories = append([]string(nil), b.LinkedCategories...)
	}
	if b.LinkedAccountIDs != nil {
		out.LinkedAccountIDs = append([]string(nil), b.LinkedAccountIDs...)
	}
	if b.TargetAmount != nil {
		target := *b.TargetAmount
		out.TargetAmount = &target
	}
	if b.MonthsToTarget != nil {
		months := *b.MonthsToTarget
		out.MonthsToTarget = &months
	}
	return out
}

// CloneBuckets returns a deep copy of the bucket slice
func CloneBuckets(buckets []AllocationBucket) []AllocationBucket {
	out := make([]AllocationBucket, len(buckets))
	for i := range buckets {
		out[i] = buckets[i].Clone()
	}
	return out
}

// FindBucket returns the index of the bucket with the given ID, or -1
func FindBucket(buckets []AllocationBucket, id uuid.UUID) int {
	for i := range buckets {
		if buckets[i].ID == id {
			return i
		}
	}
	return -1
}

// CheckUniqueIDs rejects a bucket set in which two buckets share an ID
func CheckUniqueIDs(buckets []AllocationBucket) error {
	seen := make(map[uuid.UUID]struct{}, len(buckets))
	for _, b := range buckets {
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("duplicate bucket ID %s", b.ID)
		}
		seen[b.ID] = struct{}{}
	}
	return nil
}

// TotalAllocated sums the allocated amount of every bucket
func TotalAllocated(buckets []AllocationBucket) decimal.Decimal {
	total := decimal.Zero
	for _, b := range buckets {
		total = total.Add(b.AllocatedAmount)
	}
	return total
}

// PercentOf returns amount / whole * 100, or zero when whole is not positive
func PercentOf(amount, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return amount.Div(whole).Mul(hundred)
}
