package domain

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// PolicyRule describes how one bucket type takes part in automatic rebalancing
type PolicyRule struct {
	Rank         int             // Cascade position, 1 absorbs first. 0 = outside the cascade
	FloorPercent decimal.Decimal // Recommended minimum as a percentage of income
	Adjustable   bool            // May absorb compensating changes at all
}

// Policy maps bucket types to their rebalancing rules.
// Tuning the cascade means editing this table, not the engine.
type Policy struct {
	Rules map[BucketType]PolicyRule
}

// DefaultPolicy returns the product default: cut discretionary spending
// before investments before the emergency fund. Debt paydown is a
// commitment and stays out of every compensating stage, not only the
// cascade; give it a rank and mark it adjustable to change that.
func DefaultPolicy() Policy {
	return Policy{
		Rules: map[BucketType]PolicyRule{
			BucketTypeDiscretionarySpending: {Rank: 1, FloorPercent: decimal.Zero, Adjustable: true},
			BucketTypeInvestments:           {Rank: 2, FloorPercent: decimal.NewFromInt(5), Adjustable: true},
			BucketTypeEmergencyFund:         {Rank: 3, FloorPercent: decimal.NewFromInt(5), Adjustable: true},
			BucketTypeEssentialSpending:     {Rank: 0, FloorPercent: decimal.Zero, Adjustable: false},
			BucketTypeDebtPaydown:           {Rank: 0, FloorPercent: decimal.Zero, Adjustable: false},
		},
	}
}

// PriorityOrder returns the ranked bucket types, highest priority first
func (p Policy) PriorityOrder() []BucketType {
	order := make([]BucketType, 0, len(p.Rules))
	for t, rule := range p.Rules {
		if rule.Rank > 0 {
			order = append(order, t)
		}
	}
	sort.Slice(order, func(i, j int) bool {
		return p.Rules[order[i]].Rank < p.Rules[order[j]].Rank
	})
	return order
}

// RecommendedMinimum returns the floor below which automatic rebalancing
// will not push a bucket of the given type. Rounded to cents.
func (p Policy) RecommendedMinimum(bucketType BucketType, monthlyIncome decimal.Decimal) decimal.Decimal {
	if !monthlyIncome.IsPositive() {
		return decimal.Zero
	}
	rule, ok := p.Rules[bucketType]
	if !ok || !rule.FloorPercent.IsPositive() {
		return decimal.Zero
	}
	return monthlyIncome.Mul(rule.FloorPercent).Div(hundred).Round(2)
}

// IsAdjustable reports whether buckets of this type may be changed by
// compensating adjustments
func (p Policy) IsAdjustable(bucketType BucketType) bool {
	rule, ok := p.Rules[bucketType]
	return ok && rule.Adjustable
}

// Validate ensures the policy table is coherent
func (p Policy) Validate() error {
	if len(p.Rules) == 0 {
		return errors.New("policy must have at least one rule")
	}

	seenRanks := make(map[int]BucketType)
	for t, rule := range p.Rules {
		if !t.IsKnown() {
			return fmt.Errorf("invalid bucket type %q in policy", t)
		}
		if rule.Rank < 0 {
			return fmt.Errorf("rank for %s must not be negative", t)
		}
		if rule.Rank > 0 {
			if other, dup := seenRanks[rule.Rank]; dup {
				return fmt.Errorf("rank %d assigned to both %s and %s", rule.Rank, other, t)
			}
			seenRanks[rule.Rank] = t
			if !rule.Adjustable {
				return fmt.Errorf("ranked bucket type %s must be adjustable", t)
			}
		}
		if rule.FloorPercent.IsNegative() || rule.FloorPercent.GreaterThan(hundred) {
			return fmt.Errorf("floor percent for %s must be between 0 and 100", t)
		}
	}

	return nil
}
