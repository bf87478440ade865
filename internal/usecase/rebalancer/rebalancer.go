package rebalancer

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-planner/internal/domain"
)

// Epsilon is the absolute dollar amount below which a difference is ignored
var Epsilon = decimal.New(1, -2)

// Outcome describes what a rebalance call did
type Outcome string

const (
	OutcomeApplied       Outcome = "APPLIED"
	OutcomeNegligible    Outcome = "NEGLIGIBLE"
	OutcomeNotFound      Outcome = "NOT_FOUND"
	OutcomeNotModifiable Outcome = "NOT_MODIFIABLE"
	OutcomeInvalidAmount Outcome = "INVALID_AMOUNT"
)

// Stage names the step of the algorithm that produced an adjustment
type Stage string

const (
	StageDirect       Stage = "direct"
	StageCascade      Stage = "cascade"
	StageProportional Stage = "proportional"
	StageReconcile    Stage = "reconcile"
)

// Adjustment records one amount change made while rebalancing
type Adjustment struct {
	BucketID uuid.UUID
	Type     domain.BucketType
	From     decimal.Decimal
	To       decimal.Decimal
	Stage    Stage
}

// Delta returns To - From
func (a Adjustment) Delta() decimal.Decimal {
	return a.To.Sub(a.From)
}

// Input holds everything a rebalance needs
type Input struct {
	Buckets       []domain.AllocationBucket
	BucketID      uuid.UUID
	NewAmount     decimal.Decimal
	MonthlyIncome decimal.Decimal
	Policy        domain.Policy

	// Originals are the session-start amounts used for change tracking.
	// Buckets missing from the map fall back to their RecommendedAmount.
	Originals map[uuid.UUID]decimal.Decimal
}

// Result is the new bucket collection plus what changed.
// The input slice is never modified.
type Result struct {
	Buckets     []domain.AllocationBucket
	Outcome     Outcome
	Adjustments []Adjustment
	Total       decimal.Decimal
	Imbalance   decimal.Decimal // Total - MonthlyIncome; positive means over-allocated
}

// Changed reports whether any bucket amount changed
func (r Result) Changed() bool {
	return len(r.Adjustments) > 0
}

// IsBalanced reports whether the total is within Epsilon of income
func (r Result) IsBalanced() bool {
	return negligible(r.Imbalance)
}

// Rebalance applies a direct edit to one bucket and compensates across the
// other eligible buckets so the total stays at monthly income.
//
// Steps:
//  1. Set the edited bucket. Stop if the change is within Epsilon
//  2. Collect candidates: other modifiable, unlocked, adjustable buckets
//  3. Cascade through the policy priority order, respecting floors
//  4. Spread whatever is left proportionally across all candidates
//  5. Put any residual difference on the largest candidate
//  6. Refresh change tracking on every touched bucket
func Rebalance(in Input) Result {
	r := &run{
		in:      in,
		buckets: domain.CloneBuckets(in.Buckets),
		changed: make(map[int]bool),
	}

	idx := domain.FindBucket(r.buckets, in.BucketID)
	if idx < 0 {
		return r.result(OutcomeNotFound, -1)
	}
	if !r.buckets[idx].IsModifiable {
		return r.result(OutcomeNotModifiable, -1)
	}
	if in.NewAmount.IsNegative() {
		return r.result(OutcomeInvalidAmount, -1)
	}

	delta := in.NewAmount.Sub(r.buckets[idx].AllocatedAmount)
	r.set(idx, in.NewAmount, StageDirect)
	if negligible(delta) {
		return r.result(OutcomeNegligible, idx)
	}

	// Without a positive income there is no total to pin
	if !in.MonthlyIncome.IsPositive() {
		return r.result(OutcomeApplied, idx)
	}

	candidates := r.candidates(idx)
	if len(candidates) == 0 {
		return r.result(OutcomeApplied, idx)
	}

	remaining := delta.Neg()
	remaining = r.cascade(candidates, remaining)
	if !negligible(remaining) {
		r.proportional(candidates, remaining)
	}
	r.reconcile(candidates)

	return r.result(OutcomeApplied, idx)
}

// run carries the working state of a single Rebalance call
type run struct {
	in          Input
	buckets     []domain.AllocationBucket
	adjustments []Adjustment
	changed     map[int]bool
}

func (r *run) set(i int, amount decimal.Decimal, stage Stage) {
	b := &r.buckets[i]
	if b.AllocatedAmount.Equal(amount) {
		return
	}
	r.adjustments = append(r.adjustments, Adjustment{
		BucketID: b.ID,
		Type:     b.Type,
		From:     b.AllocatedAmount,
		To:       amount,
		Stage:    stage,
	})
	b.AllocatedAmount = amount
	r.changed[i] = true
}

func (r *run) candidates(edited int) []int {
	out := make([]int, 0, len(r.buckets))
	for i, b := range r.buckets {
		if i == edited || !b.IsModifiable || b.IsLocked {
			continue
		}
		if !r.in.Policy.IsAdjustable(b.Type) {
			continue
		}
		out = append(out, i)
	}
	return out
}

func (r *run) floor(t domain.BucketType) decimal.Decimal {
	return r.in.Policy.RecommendedMinimum(t, r.in.MonthlyIncome)
}

func (r *run) headroom() decimal.Decimal {
	return decimal.Max(decimal.Zero, r.in.MonthlyIncome.Sub(domain.TotalAllocated(r.buckets)))
}

// cascade walks the priority order. A positive remaining means money must
// be taken from the candidates, a negative one means it must be given back.
func (r *run) cascade(candidates []int, remaining decimal.Decimal) decimal.Decimal {
	for _, bucketType := range r.in.Policy.PriorityOrder() {
		for _, i := range candidates {
			if negligible(remaining) {
				return remaining
			}
			b := r.buckets[i]
			if b.Type != bucketType {
				continue
			}

			if remaining.IsPositive() {
				available := decimal.Max(decimal.Zero, b.AllocatedAmount.Sub(r.floor(b.Type)))
				take := decimal.Min(remaining, available)
				if take.IsPositive() {
					r.set(i, b.AllocatedAmount.Sub(take), StageCascade)
					remaining = remaining.Sub(take)
				}
				continue
			}

			add := decimal.Min(remaining.Neg(), r.headroom())
			if add.IsPositive() {
				r.set(i, b.AllocatedAmount.Add(add), StageCascade)
				remaining = remaining.Add(add)
			}
		}
	}
	return remaining
}

// proportional spreads the remainder across every candidate, weighted by
// what each can give (amount above floor) or by its current amount when
// growing. Shares are rounded to cents; reconcile picks up the residue.
func (r *run) proportional(candidates []int, remaining decimal.Decimal) decimal.Decimal {
	shrinking := remaining.IsPositive()

	weights := make([]decimal.Decimal, len(candidates))
	totalWeight := decimal.Zero
	for k, i := range candidates {
		b := r.buckets[i]
		if shrinking {
			weights[k] = decimal.Max(decimal.Zero, b.AllocatedAmount.Sub(r.floor(b.Type)))
		} else {
			weights[k] = decimal.Max(decimal.Zero, b.AllocatedAmount)
		}
		totalWeight = totalWeight.Add(weights[k])
	}

	var pool decimal.Decimal
	if shrinking {
		if !totalWeight.IsPositive() {
			return remaining
		}
		pool = decimal.Min(remaining, totalWeight)
	} else {
		pool = decimal.Min(remaining.Neg(), r.headroom())
		if !pool.IsPositive() {
			return remaining
		}
		// All candidates empty: split evenly
		if !totalWeight.IsPositive() {
			for k := range weights {
				weights[k] = decimal.NewFromInt(1)
			}
			totalWeight = decimal.NewFromInt(int64(len(weights)))
		}
	}

	distributed := decimal.Zero
	for k, i := range candidates {
		if !weights[k].IsPositive() {
			continue
		}
		share := pool.Mul(weights[k]).Div(totalWeight).Round(2)
		share = decimal.Min(share, pool.Sub(distributed))
		if shrinking {
			share = decimal.Min(share, weights[k])
		}
		if !share.IsPositive() {
			continue
		}

		b := r.buckets[i]
		if shrinking {
			r.set(i, b.AllocatedAmount.Sub(share), StageProportional)
		} else {
			r.set(i, b.AllocatedAmount.Add(share), StageProportional)
		}
		distributed = distributed.Add(share)
	}

	if shrinking {
		return remaining.Sub(distributed)
	}
	return remaining.Add(distributed)
}

// reconcile puts any leftover difference on the largest candidate (first
// one wins ties). A reduction never takes the bucket below its floor, or
// below its current amount when it already sits under the floor.
func (r *run) reconcile(candidates []int) {
	diff := r.in.MonthlyIncome.Sub(domain.TotalAllocated(r.buckets))
	if negligible(diff) || len(candidates) == 0 {
		return
	}

	largest := candidates[0]
	for _, i := range candidates[1:] {
		if r.buckets[i].AllocatedAmount.GreaterThan(r.buckets[largest].AllocatedAmount) {
			largest = i
		}
	}

	b := r.buckets[largest]
	next := b.AllocatedAmount.Add(diff)
	if diff.IsNegative() {
		lowest := decimal.Min(b.AllocatedAmount, r.floor(b.Type))
		next = decimal.Max(next, lowest)
		next = decimal.Max(next, decimal.Zero)
	}
	r.set(largest, next, StageReconcile)
}

func (r *run) original(b domain.AllocationBucket) decimal.Decimal {
	if r.in.Originals != nil {
		if amount, ok := r.in.Originals[b.ID]; ok {
			return amount
		}
	}
	return b.RecommendedAmount
}

func (r *run) result(outcome Outcome, edited int) Result {
	for i := range r.changed {
		b := &r.buckets[i]
		b.ChangeFromOriginal = b.AllocatedAmount.Sub(r.original(*b))
		// Auto-adjusted buckets get a badge until the user dismisses it
		b.Acknowledged = i == edited
	}

	total := domain.TotalAllocated(r.buckets)
	return Result{
		Buckets:     r.buckets,
		Outcome:     outcome,
		Adjustments: r.adjustments,
		Total:       total,
		Imbalance:   total.Sub(r.in.MonthlyIncome),
	}
}

func negligible(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(Epsilon)
}
