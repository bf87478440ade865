package rebalancer

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/wealthflow-planner/internal/domain"
)

var income = decimal.NewFromInt(5000)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fixture builds the reference plan: Essential 2500 (non-modifiable),
// Emergency 500, Discretionary 1000, Investments 1000.
func fixture() ([]domain.AllocationBucket, map[domain.BucketType]uuid.UUID) {
	mk := func(t domain.BucketType, amount string, modifiable bool) domain.AllocationBucket {
		return domain.AllocationBucket{
			ID:                uuid.New(),
			Name:              string(t),
			Type:              t,
			AllocatedAmount:   dec(amount),
			RecommendedAmount: dec(amount),
			IsModifiable:      modifiable,
			Acknowledged:      true,
		}
	}

	buckets := []domain.AllocationBucket{
		mk(domain.BucketTypeEssentialSpending, "2500", false),
		mk(domain.BucketTypeEmergencyFund, "500", true),
		mk(domain.BucketTypeDiscretionarySpending, "1000", true),
		mk(domain.BucketTypeInvestments, "1000", true),
	}

	ids := make(map[domain.BucketType]uuid.UUID)
	for _, b := range buckets {
		ids[b.Type] = b.ID
	}
	return buckets, ids
}

func amountOf(t *testing.T, buckets []domain.AllocationBucket, id uuid.UUID) decimal.Decimal {
	t.Helper()
	i := domain.FindBucket(buckets, id)
	require.GreaterOrEqual(t, i, 0, "bucket %s missing", id)
	return buckets[i].AllocatedAmount
}

func bucketOf(t *testing.T, buckets []domain.AllocationBucket, id uuid.UUID) domain.AllocationBucket {
	t.Helper()
	i := domain.FindBucket(buckets, id)
	require.GreaterOrEqual(t, i, 0, "bucket %s missing", id)
	return buckets[i]
}

func setLocked(buckets []domain.AllocationBucket, id uuid.UUID) {
	buckets[domain.FindBucket(buckets, id)].IsLocked = true
}

func edit(buckets []domain.AllocationBucket, id uuid.UUID, amount string) Result {
	return Rebalance(Input{
		Buckets:       buckets,
		BucketID:      id,
		NewAmount:     dec(amount),
		MonthlyIncome: income,
		Policy:        domain.DefaultPolicy(),
	})
}

func TestRebalance_IncreaseDiscretionaryTakesFromInvestmentsFirst(t *testing.T) {
	buckets, ids := fixture()

	res := edit(buckets, ids[domain.BucketTypeDiscretionarySpending], "1300")

	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeDiscretionarySpending]).Equal(dec("1300")))
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeInvestments]).Equal(dec("700")))
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeEmergencyFund]).Equal(dec("500")))
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeEssentialSpending]).Equal(dec("2500")))
	assert.True(t, res.Total.Equal(income), "total should stay at income, got %s", res.Total)
	assert.True(t, res.IsBalanced())
}

func TestRebalance_IncreaseSpillsIntoEmergencyFundAfterInvestmentsFloor(t *testing.T) {
	buckets, ids := fixture()

	// +1000: Investments can give 750 (floor 250), Emergency gives the other 250
	res := edit(buckets, ids[domain.BucketTypeDiscretionarySpending], "2000")

	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeInvestments]).Equal(dec("250")))
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeEmergencyFund]).Equal(dec("250")))
	assert.True(t, res.Total.Equal(income))

	require.Len(t, res.Adjustments, 3)
	assert.Equal(t, StageDirect, res.Adjustments[0].Stage)
	assert.Equal(t, domain.BucketTypeInvestments, res.Adjustments[1].Type)
	assert.Equal(t, domain.BucketTypeEmergencyFund, res.Adjustments[2].Type)
}

func TestRebalance_DecreaseGivesBackToInvestments(t *testing.T) {
	buckets, ids := fixture()

	res := edit(buckets, ids[domain.BucketTypeDiscretionarySpending], "700")

	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeDiscretionarySpending]).Equal(dec("700")))
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeInvestments]).Equal(dec("1300")))
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeEmergencyFund]).Equal(dec("500")))
	assert.True(t, res.Total.Equal(income))
}

func TestRebalance_DecreaseWithInvestmentsLockedGoesToEmergencyFund(t *testing.T) {
	buckets, ids := fixture()
	setLocked(buckets, ids[domain.BucketTypeInvestments])

	res := edit(buckets, ids[domain.BucketTypeDiscretionarySpending], "700")

	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeInvestments]).Equal(dec("1000")))
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeEmergencyFund]).Equal(dec("800")))
	assert.True(t, res.Total.Equal(income))
}

func TestRebalance_InvestmentsLockedEmergencyFundHitsFloor(t *testing.T) {
	buckets, ids := fixture()
	setLocked(buckets, ids[domain.BucketTypeInvestments])

	// Emergency can only give 250 above its 250 floor, 50 stays unresolved
	res := edit(buckets, ids[domain.BucketTypeDiscretionarySpending], "1300")

	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeEmergencyFund]).Equal(dec("250")))
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeInvestments]).Equal(dec("1000")))
	assert.True(t, res.Imbalance.Equal(dec("50")), "imbalance %s", res.Imbalance)
	assert.False(t, res.IsBalanced())
}

func TestRebalance_EssentialIsNotModifiable(t *testing.T) {
	buckets, ids := fixture()

	res := edit(buckets, ids[domain.BucketTypeEssentialSpending], "3000")

	assert.Equal(t, OutcomeNotModifiable, res.Outcome)
	assert.False(t, res.Changed())
	for i := range buckets {
		assert.True(t, res.Buckets[i].AllocatedAmount.Equal(buckets[i].AllocatedAmount))
	}
}

func TestRebalance_UnknownBucketIsNoOp(t *testing.T) {
	buckets, _ := fixture()

	res := edit(buckets, uuid.New(), "10")

	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.False(t, res.Changed())
	assert.True(t, res.Total.Equal(income))
}

func TestRebalance_NegativeAmountRejected(t *testing.T) {
	buckets, ids := fixture()

	res := edit(buckets, ids[domain.BucketTypeInvestments], "-1")

	assert.Equal(t, OutcomeInvalidAmount, res.Outcome)
	assert.False(t, res.Changed())
}

func TestRebalance_SameAmountIsIdempotent(t *testing.T) {
	buckets, ids := fixture()

	res := edit(buckets, ids[domain.BucketTypeInvestments], "1000")

	assert.Equal(t, OutcomeNegligible, res.Outcome)
	assert.False(t, res.Changed())
	for i := range buckets {
		assert.True(t, res.Buckets[i].AllocatedAmount.Equal(buckets[i].AllocatedAmount))
	}
}

func TestRebalance_SubCentEditDoesNotCascade(t *testing.T) {
	buckets, ids := fixture()

	res := edit(buckets, ids[domain.BucketTypeDiscretionarySpending], "1000.005")

	assert.Equal(t, OutcomeNegligible, res.Outcome)
	require.Len(t, res.Adjustments, 1)
	assert.Equal(t, ids[domain.BucketTypeDiscretionarySpending], res.Adjustments[0].BucketID)
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeInvestments]).Equal(dec("1000")))
}

func TestRebalance_CentEditsDriftUntilNextRealEdit(t *testing.T) {
	buckets, ids := fixture()
	discretionary := ids[domain.BucketTypeDiscretionarySpending]

	for _, amount := range []string{"1000.01", "1000.02", "1000.03"} {
		res := edit(buckets, discretionary, amount)
		require.Equal(t, OutcomeNegligible, res.Outcome, "edit to %s", amount)
		buckets = res.Buckets
	}

	// Each cent edit is applied alone, so the total drifts and only the
	// imbalance reports it
	res := edit(buckets, discretionary, "1000.03")
	assert.True(t, res.Imbalance.Equal(dec("0.03")))
	assert.False(t, res.IsBalanced())
	assert.True(t, amountOf(t, buckets, ids[domain.BucketTypeInvestments]).Equal(dec("1000")))

	// The next real edit reconciles the accumulated drift
	res = edit(buckets, discretionary, "1100")
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.True(t, res.IsBalanced(), "imbalance %s", res.Imbalance)
	assert.True(t, domain.TotalAllocated(res.Buckets).Equal(income))
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeInvestments]).Equal(dec("900")))
}

func TestRebalance_AllOthersLockedLeavesImbalance(t *testing.T) {
	buckets, ids := fixture()
	setLocked(buckets, ids[domain.BucketTypeInvestments])
	setLocked(buckets, ids[domain.BucketTypeEmergencyFund])

	res := edit(buckets, ids[domain.BucketTypeDiscretionarySpending], "1300")

	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeDiscretionarySpending]).Equal(dec("1300")))
	assert.True(t, res.Imbalance.Equal(dec("300")))
	assert.Len(t, res.Adjustments, 1)
}

func TestRebalance_LockedBucketCanStillBeEditedDirectly(t *testing.T) {
	buckets, ids := fixture()
	setLocked(buckets, ids[domain.BucketTypeInvestments])

	res := edit(buckets, ids[domain.BucketTypeInvestments], "1200")

	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeInvestments]).Equal(dec("1200")))
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeDiscretionarySpending]).Equal(dec("800")))
	assert.True(t, res.Total.Equal(income))
}

func TestRebalance_EditBeyondIncomeLeavesOverAllocation(t *testing.T) {
	buckets, ids := fixture()

	res := edit(buckets, ids[domain.BucketTypeDiscretionarySpending], "6000")

	// Investments and Emergency both end at their 250 floors
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeInvestments]).Equal(dec("250")))
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeEmergencyFund]).Equal(dec("250")))
	assert.True(t, res.Imbalance.IsPositive())
	assert.False(t, res.IsBalanced())
}

func TestRebalance_DebtPaydownStaysOutOfCascade(t *testing.T) {
	buckets, ids := fixture()
	debt := domain.AllocationBucket{
		ID:              uuid.New(),
		Type:            domain.BucketTypeDebtPaydown,
		AllocatedAmount: dec("400"),
		IsModifiable:    true,
	}
	buckets[domain.FindBucket(buckets, ids[domain.BucketTypeDiscretionarySpending])].AllocatedAmount = dec("600")
	buckets = append(buckets, debt)

	res := edit(buckets, ids[domain.BucketTypeDiscretionarySpending], "900")

	assert.True(t, amountOf(t, res.Buckets, debt.ID).Equal(dec("400")), "debt paydown must not absorb changes")
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeInvestments]).Equal(dec("700")))
	assert.True(t, res.Total.Equal(income))
}

func TestRebalance_ProportionalFallbackSpreadsOverUnrankedAdjustable(t *testing.T) {
	buckets, ids := fixture()
	policy := domain.DefaultPolicy()
	// Debt paydown absorbs changes, but only through the fallback pass
	policy.Rules[domain.BucketTypeDebtPaydown] = domain.PolicyRule{Rank: 0, Adjustable: true}

	debt := domain.AllocationBucket{
		ID:              uuid.New(),
		Type:            domain.BucketTypeDebtPaydown,
		AllocatedAmount: dec("500"),
		IsModifiable:    true,
	}
	buckets[domain.FindBucket(buckets, ids[domain.BucketTypeDiscretionarySpending])].AllocatedAmount = dec("500")
	buckets = append(buckets, debt)

	// +1200: cascade frees 750 + 250, fallback takes the last 200 from debt
	res := Rebalance(Input{
		Buckets:       buckets,
		BucketID:      ids[domain.BucketTypeDiscretionarySpending],
		NewAmount:     dec("1700"),
		MonthlyIncome: income,
		Policy:        policy,
	})

	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeInvestments]).Equal(dec("250")))
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeEmergencyFund]).Equal(dec("250")))
	assert.True(t, amountOf(t, res.Buckets, debt.ID).Equal(dec("300")))
	assert.True(t, res.Total.Equal(income))

	last := res.Adjustments[len(res.Adjustments)-1]
	assert.Equal(t, StageProportional, last.Stage)
	assert.Equal(t, debt.ID, last.BucketID)
}

func TestRebalance_ProportionalFallbackWeightsByHeadroom(t *testing.T) {
	policy := domain.Policy{Rules: map[domain.BucketType]domain.PolicyRule{
		domain.BucketTypeDiscretionarySpending: {Rank: 1, Adjustable: true},
		domain.BucketTypeInvestments:           {Rank: 0, Adjustable: true},
		domain.BucketTypeEmergencyFund:         {Rank: 0, Adjustable: true},
	}}
	total := decimal.NewFromInt(1000)
	disc := domain.AllocationBucket{ID: uuid.New(), Type: domain.BucketTypeDiscretionarySpending, AllocatedAmount: dec("100"), IsModifiable: true}
	inv := domain.AllocationBucket{ID: uuid.New(), Type: domain.BucketTypeInvestments, AllocatedAmount: dec("600"), IsModifiable: true}
	emf := domain.AllocationBucket{ID: uuid.New(), Type: domain.BucketTypeEmergencyFund, AllocatedAmount: dec("300"), IsModifiable: true}

	// Nothing ranked besides the edited bucket, so everything goes proportional 2:1
	res := Rebalance(Input{
		Buckets:       []domain.AllocationBucket{disc, inv, emf},
		BucketID:      disc.ID,
		NewAmount:     dec("400"),
		MonthlyIncome: total,
		Policy:        policy,
	})

	assert.True(t, amountOf(t, res.Buckets, inv.ID).Equal(dec("400")))
	assert.True(t, amountOf(t, res.Buckets, emf.ID).Equal(dec("200")))
	assert.True(t, res.Total.Equal(total))
}

func TestRebalance_ReconcilePutsRoundingResidueOnLargest(t *testing.T) {
	policy := domain.Policy{Rules: map[domain.BucketType]domain.PolicyRule{
		domain.BucketTypeDiscretionarySpending: {Rank: 0, Adjustable: true},
		domain.BucketTypeDebtPaydown:           {Rank: 0, Adjustable: true},
	}}
	total := decimal.NewFromInt(1300)

	edited := domain.AllocationBucket{ID: uuid.New(), Type: domain.BucketTypeDebtPaydown, AllocatedAmount: dec("100"), IsModifiable: true}
	buckets := []domain.AllocationBucket{edited}
	for i := 0; i < 12; i++ {
		buckets = append(buckets, domain.AllocationBucket{
			ID:              uuid.New(),
			Type:            domain.BucketTypeDiscretionarySpending,
			AllocatedAmount: dec("100"),
			IsModifiable:    true,
		})
	}

	// 100 / 12 rounds to 8.33 per bucket, leaving 0.04 for the first largest bucket
	res := Rebalance(Input{
		Buckets:       buckets,
		BucketID:      edited.ID,
		NewAmount:     dec("200"),
		MonthlyIncome: total,
		Policy:        policy,
	})

	assert.True(t, res.Total.Equal(total), "total %s", res.Total)
	assert.True(t, res.Buckets[1].AllocatedAmount.Equal(dec("91.63")), "got %s", res.Buckets[1].AllocatedAmount)
	for _, b := range res.Buckets[2:] {
		assert.True(t, b.AllocatedAmount.Equal(dec("91.67")))
	}

	last := res.Adjustments[len(res.Adjustments)-1]
	assert.Equal(t, StageReconcile, last.Stage)
	assert.Equal(t, buckets[1].ID, last.BucketID)
}

func TestRebalance_GrowthBoundedByHeadroom(t *testing.T) {
	buckets, ids := fixture()
	// Start over-allocated by 100
	buckets[domain.FindBucket(buckets, ids[domain.BucketTypeInvestments])].AllocatedAmount = dec("1100")

	res := edit(buckets, ids[domain.BucketTypeDiscretionarySpending], "700")

	// Only 200 of headroom exists after the -300 edit
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeInvestments]).Equal(dec("1300")))
	assert.True(t, res.Total.Equal(income))
}

func TestRebalance_DegenerateIncomeAppliesEditOnly(t *testing.T) {
	buckets, ids := fixture()

	res := Rebalance(Input{
		Buckets:       buckets,
		BucketID:      ids[domain.BucketTypeDiscretionarySpending],
		NewAmount:     dec("1300"),
		MonthlyIncome: decimal.Zero,
		Policy:        domain.DefaultPolicy(),
	})

	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Len(t, res.Adjustments, 1)
	assert.True(t, amountOf(t, res.Buckets, ids[domain.BucketTypeInvestments]).Equal(dec("1000")))
}

func TestRebalance_ChangeTracking(t *testing.T) {
	buckets, ids := fixture()

	res := edit(buckets, ids[domain.BucketTypeDiscretionarySpending], "1300")

	disc := bucketOf(t, res.Buckets, ids[domain.BucketTypeDiscretionarySpending])
	inv := bucketOf(t, res.Buckets, ids[domain.BucketTypeInvestments])
	emf := bucketOf(t, res.Buckets, ids[domain.BucketTypeEmergencyFund])

	assert.True(t, disc.ChangeFromOriginal.Equal(dec("300")))
	assert.True(t, disc.Acknowledged, "the edited bucket needs no badge")
	assert.True(t, inv.ChangeFromOriginal.Equal(dec("-300")))
	assert.False(t, inv.Acknowledged, "auto-adjusted bucket should show a badge")
	assert.True(t, emf.ChangeFromOriginal.IsZero())
	assert.True(t, emf.Acknowledged, "untouched bucket keeps its state")
}

func TestRebalance_ChangeTrackingUsesSessionOriginals(t *testing.T) {
	buckets, ids := fixture()
	invID := ids[domain.BucketTypeInvestments]

	res := Rebalance(Input{
		Buckets:       buckets,
		BucketID:      ids[domain.BucketTypeDiscretionarySpending],
		NewAmount:     dec("1300"),
		MonthlyIncome: income,
		Policy:        domain.DefaultPolicy(),
		Originals:     map[uuid.UUID]decimal.Decimal{invID: dec("900")},
	})

	assert.True(t, bucketOf(t, res.Buckets, invID).ChangeFromOriginal.Equal(dec("-200")))
}

func TestRebalance_DoesNotMutateInput(t *testing.T) {
	buckets, ids := fixture()
	before := domain.CloneBuckets(buckets)

	_ = edit(buckets, ids[domain.BucketTypeDiscretionarySpending], "1300")

	assert.Equal(t, before, buckets)
}

func TestAdjustment_Delta(t *testing.T) {
	a := Adjustment{From: dec("1000"), To: dec("700")}
	assert.True(t, a.Delta().Equal(dec("-300")))
}
