package editor

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-planner/internal/domain"
	"github.com/simaogato/wealthflow-planner/internal/observability"
	"github.com/simaogato/wealthflow-planner/internal/usecase/rebalancer"
	"github.com/simaogato/wealthflow-planner/internal/usecase/validation"
)

// Session holds the working bucket set while a user reviews a plan.
// It exclusively owns its buckets; every method is serialized so edits
// apply one at a time, each reading the result of the previous one.
type Session struct {
	mu          sync.Mutex
	policy      domain.Policy
	logger      *slog.Logger
	initialized bool
	buckets     []domain.AllocationBucket
	original    map[uuid.UUID]decimal.Decimal
}

// NewSession creates an editing session using the given rebalancing policy.
// A nil logger discards output.
func NewSession(policy domain.Policy, logger *slog.Logger) *Session {
	if logger == nil {
		logger = observability.Discard()
	}
	return &Session{
		policy: policy,
		logger: logger,
	}
}

// Initialize snapshots the bucket amounts as both working and original
// values. Must be called once before any edit.
func (s *Session) Initialize(buckets []domain.AllocationBucket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buckets = domain.CloneBuckets(buckets)
	s.original = make(map[uuid.UUID]decimal.Decimal, len(buckets))
	for i := range s.buckets {
		b := &s.buckets[i]
		s.original[b.ID] = b.AllocatedAmount
		b.ChangeFromOriginal = decimal.Zero
		b.Acknowledged = true
	}
	s.initialized = true

	s.logger.Debug("editing session initialized", "buckets", len(s.buckets))
}

func (s *Session) mustBeInitialized() {
	if !s.initialized {
		panic("editor: session used before Initialize")
	}
}

// UpdateBucket sets one bucket to a new amount and rebalances the others.
// Unknown or non-modifiable buckets are logged and left untouched.
func (s *Session) UpdateBucket(id uuid.UUID, newAmount, monthlyIncome decimal.Decimal) rebalancer.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mustBeInitialized()

	res := rebalancer.Rebalance(rebalancer.Input{
		Buckets:       s.buckets,
		BucketID:      id,
		NewAmount:     newAmount,
		MonthlyIncome: monthlyIncome,
		Policy:        s.policy,
		Originals:     s.original,
	})

	switch res.Outcome {
	case rebalancer.OutcomeNotFound:
		s.logger.Warn("bucket update ignored: unknown bucket", "bucket_id", id)
		return res
	case rebalancer.OutcomeNotModifiable:
		s.logger.Warn("bucket update rejected: bucket is not modifiable", "bucket_id", id)
		return res
	case rebalancer.OutcomeInvalidAmount:
		s.logger.Warn("bucket update rejected: negative amount", "bucket_id", id, "amount", newAmount.String())
		return res
	}

	s.buckets = res.Buckets
	for _, adj := range res.Adjustments {
		s.logger.Debug("bucket adjusted",
			"bucket_id", adj.BucketID,
			"type", adj.Type,
			"stage", adj.Stage,
			"from", adj.From.StringFixed(2),
			"to", adj.To.StringFixed(2),
		)
	}
	if !res.IsBalanced() && monthlyIncome.IsPositive() {
		s.logger.Info("allocation left unbalanced",
			"bucket_id", id,
			"imbalance", res.Imbalance.StringFixed(2),
		)
	}

	return res
}

// ResetBucket restores one bucket's working amount to its session-start
// value. Other buckets are not rebalanced. Returns false for unknown ids.
func (s *Session) ResetBucket(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mustBeInitialized()

	i := domain.FindBucket(s.buckets, id)
	if i < 0 {
		s.logger.Warn("bucket reset ignored: unknown bucket", "bucket_id", id)
		return false
	}

	b := s.buckets[i].Clone()
	b.AllocatedAmount = s.original[id]
	b.ChangeFromOriginal = decimal.Zero
	b.Acknowledged = true
	s.replace(i, b)
	return true
}

// ResetAll restores every bucket to its session-start amount
func (s *Session) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mustBeInitialized()

	next := domain.CloneBuckets(s.buckets)
	for i := range next {
		next[i].AllocatedAmount = s.original[next[i].ID]
		next[i].ChangeFromOriginal = decimal.Zero
		next[i].Acknowledged = true
	}
	s.buckets = next
}

// SetLocked excludes (or re-includes) a bucket from compensating adjustments
func (s *Session) SetLocked(id uuid.UUID, locked bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mustBeInitialized()

	i := domain.FindBucket(s.buckets, id)
	if i < 0 {
		return false
	}
	b := s.buckets[i].Clone()
	b.IsLocked = locked
	s.replace(i, b)
	return true
}

// Acknowledge dismisses the auto-adjusted badge of one bucket
func (s *Session) Acknowledge(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mustBeInitialized()

	i := domain.FindBucket(s.buckets, id)
	if i < 0 {
		return false
	}
	b := s.buckets[i].Clone()
	b.Acknowledged = true
	s.replace(i, b)
	return true
}

// AcknowledgeAll dismisses every auto-adjusted badge
func (s *Session) AcknowledgeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mustBeInitialized()

	next := domain.CloneBuckets(s.buckets)
	for i := range next {
		next[i].Acknowledged = true
	}
	s.buckets = next
}

// replace swaps in a new bucket without touching slices already handed out
func (s *Session) replace(i int, b domain.AllocationBucket) {
	next := make([]domain.AllocationBucket, len(s.buckets))
	copy(next, s.buckets)
	next[i] = b
	s.buckets = next
}

// Buckets returns a copy of the working bucket set
func (s *Session) Buckets() []domain.AllocationBucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneBuckets(s.buckets)
}

// WorkingAmounts returns the current amount per bucket id
func (s *Session) WorkingAmounts() map[uuid.UUID]decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[uuid.UUID]decimal.Decimal, len(s.buckets))
	for _, b := range s.buckets {
		out[b.ID] = b.AllocatedAmount
	}
	return out
}

// OriginalAmounts returns the session-start amount per bucket id
func (s *Session) OriginalAmounts() map[uuid.UUID]decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[uuid.UUID]decimal.Decimal, len(s.original))
	for id, amount := range s.original {
		out[id] = amount
	}
	return out
}

// TotalAllocated sums the working amounts
func (s *Session) TotalAllocated() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.TotalAllocated(s.buckets)
}

// AllocationPercentage returns total / income * 100, or zero when income
// is not positive
func (s *Session) AllocationPercentage(monthlyIncome decimal.Decimal) decimal.Decimal {
	return domain.PercentOf(s.TotalAllocated(), monthlyIncome)
}

// Validate checks the working set against the given limits
func (s *Session) Validate(monthlyIncome decimal.Decimal, limits validation.Limits) validation.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return limits.Check(monthlyIncome, s.buckets)
}
