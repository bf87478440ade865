package validation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-planner/internal/domain"
)

// DiscretionaryStatus is the tri-state outcome for discretionary spending
type DiscretionaryStatus string

const (
	DiscretionaryValid     DiscretionaryStatus = "VALID"
	DiscretionaryWarning   DiscretionaryStatus = "WARNING"
	DiscretionaryHardLimit DiscretionaryStatus = "HARD_LIMIT"
)

// Limits holds the policy parameters used by validation.
// All values are percentages of monthly income.
type Limits struct {
	SoftPercent  decimal.Decimal
	HardPercent  decimal.Decimal
	SumTolerance decimal.Decimal // Percentage points
}

// DefaultLimits returns the product defaults: warn above 35%, block above 50%
func DefaultLimits() Limits {
	return Limits{
		SoftPercent:  decimal.NewFromInt(35),
		HardPercent:  decimal.NewFromInt(50),
		SumTolerance: decimal.RequireFromString("0.1"),
	}
}

// Validate ensures the limits are coherent
func (l Limits) Validate() error {
	if l.SoftPercent.IsNegative() || l.HardPercent.IsNegative() {
		return errors.New("discretionary limits must not be negative")
	}
	if l.SoftPercent.GreaterThan(l.HardPercent) {
		return errors.New("soft discretionary limit must not exceed the hard limit")
	}
	if !l.SumTolerance.IsPositive() {
		return errors.New("sum tolerance must be positive")
	}
	return nil
}

// StatusFor maps a discretionary percentage of income to its status
func (l Limits) StatusFor(percent decimal.Decimal) DiscretionaryStatus {
	switch {
	case percent.GreaterThan(l.HardPercent):
		return DiscretionaryHardLimit
	case percent.GreaterThan(l.SoftPercent):
		return DiscretionaryWarning
	default:
		return DiscretionaryValid
	}
}

// Report is the full validation outcome for a bucket set
type Report struct {
	MonthlyIncome        decimal.Decimal
	TotalAllocated       decimal.Decimal
	SumPercent           decimal.Decimal
	SumOK                bool
	DiscretionaryPercent decimal.Decimal
	DiscretionaryStatus  DiscretionaryStatus
	DegenerateIncome     bool
	Valid                bool
	Messages             []string
}

// Check validates the bucket set against monthly income.
// A plan is valid when income is positive, the buckets sum to 100% within
// tolerance, and discretionary spending is not over the hard limit.
func (l Limits) Check(monthlyIncome decimal.Decimal, buckets []domain.AllocationBucket) Report {
	total := domain.TotalAllocated(buckets)
	discretionary := decimal.Zero
	for _, b := range buckets {
		if b.Type == domain.BucketTypeDiscretionarySpending {
			discretionary = discretionary.Add(b.AllocatedAmount)
		}
	}

	report := Report{
		MonthlyIncome:        monthlyIncome,
		TotalAllocated:       total,
		SumPercent:           domain.PercentOf(total, monthlyIncome),
		DiscretionaryPercent: domain.PercentOf(discretionary, monthlyIncome),
		DegenerateIncome:     !monthlyIncome.IsPositive(),
	}

	if report.DegenerateIncome {
		report.DiscretionaryStatus = DiscretionaryValid
		report.Messages = append(report.Messages, "monthly income must be positive")
		return report
	}

	report.SumOK = report.SumPercent.Sub(decimal.NewFromInt(100)).Abs().LessThan(l.SumTolerance)
	if !report.SumOK {
		report.Messages = append(report.Messages,
			fmt.Sprintf("allocations total %s%% of income, expected 100%%", report.SumPercent.StringFixed(1)))
	}

	report.DiscretionaryStatus = l.StatusFor(report.DiscretionaryPercent)
	switch report.DiscretionaryStatus {
	case DiscretionaryWarning:
		report.Messages = append(report.Messages,
			fmt.Sprintf("discretionary spending is %s%% of income, above the recommended %s%%",
				report.DiscretionaryPercent.StringFixed(1), l.SoftPercent.String()))
	case DiscretionaryHardLimit:
		report.Messages = append(report.Messages,
			fmt.Sprintf("discretionary spending is %s%% of income, over the %s%% limit",
				report.DiscretionaryPercent.StringFixed(1), l.HardPercent.String()))
	}

	report.Valid = report.SumOK && report.DiscretionaryStatus != DiscretionaryHardLimit
	return report
}

// IsValid reports whether the plan may be confirmed
func (l Limits) IsValid(monthlyIncome decimal.Decimal, buckets []domain.AllocationBucket) bool {
	return l.Check(monthlyIncome, buckets).Valid
}
