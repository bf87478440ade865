package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-planner/internal/domain"
	"github.com/simaogato/wealthflow-planner/internal/observability"
	"github.com/simaogato/wealthflow-planner/internal/usecase/allocator"
	"github.com/simaogato/wealthflow-planner/internal/usecase/editor"
	"github.com/simaogato/wealthflow-planner/internal/usecase/rebalancer"
	"github.com/simaogato/wealthflow-planner/internal/usecase/validation"
)

var (
	ErrSessionNotFound = errors.New("editing session not found")
	ErrBucketNotFound  = errors.New("bucket not found in session")
	ErrPlanInvalid     = errors.New("plan is not valid for confirmation")
	ErrInvalidInput    = errors.New("invalid input")
)

// StartSessionInput represents the input for opening an editing session.
// Either Recommendations (percentages) or Buckets (amounts) must be set.
type StartSessionInput struct {
	MonthlyIncome   decimal.Decimal
	Recommendations []domain.Recommendation
	Buckets         []domain.AllocationBucket
}

// SessionView is a read-only snapshot of a session for display
type SessionView struct {
	ID             uuid.UUID
	MonthlyIncome  decimal.Decimal
	Buckets        []domain.AllocationBucket
	TotalAllocated decimal.Decimal
	Percentage     decimal.Decimal
	Report         validation.Report
	LastUpdate     *rebalancer.Result
}

// openSession is one registry entry. mu is held for the whole of each
// operation, confirmation included, so no edit lands between the
// confirmed snapshot and the close.
type openSession struct {
	mu      sync.Mutex
	closed  bool
	session *editor.Session
	income  decimal.Decimal
	started time.Time
}

// PlannerService manages editing sessions and confirms plans
type PlannerService struct {
	PlanRepo domain.PlanRepository
	Policy   domain.Policy
	Limits   validation.Limits

	logger   *slog.Logger
	observer observability.Observer
	now      func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*openSession
}

// NewPlannerService creates a new PlannerService instance
func NewPlannerService(
	planRepo domain.PlanRepository,
	policy domain.Policy,
	limits validation.Limits,
	logger *slog.Logger,
) *PlannerService {
	if logger == nil {
		logger = observability.Discard()
	}
	return &PlannerService{
		PlanRepo: planRepo,
		Policy:   policy,
		Limits:   limits,
		logger:   logger,
		observer: observability.NewLogObserver(logger),
		now:      time.Now,
		sessions: make(map[uuid.UUID]*openSession),
	}
}

// StartSession opens an editing session over a recommended plan
func (s *PlannerService) StartSession(ctx context.Context, input StartSessionInput) (*SessionView, error) {
	var view *SessionView
	err := observability.Track(ctx, s.observer, "start_session", nil, func() error {
		if !input.MonthlyIncome.IsPositive() {
			return fmt.Errorf("%w: monthly income must be positive", ErrInvalidInput)
		}

		buckets, err := s.initialBuckets(input)
		if err != nil {
			return err
		}

		sess := editor.NewSession(s.Policy, s.logger)
		sess.Initialize(buckets)

		id := uuid.New()
		open := &openSession{session: sess, income: input.MonthlyIncome, started: s.now()}
		s.mu.Lock()
		s.sessions[id] = open
		s.mu.Unlock()

		view = s.view(id, open, nil)
		return nil
	})
	return view, err
}

func (s *PlannerService) initialBuckets(input StartSessionInput) ([]domain.AllocationBucket, error) {
	switch {
	case len(input.Recommendations) > 0 && len(input.Buckets) > 0:
		return nil, fmt.Errorf("%w: provide recommendations or buckets, not both", ErrInvalidInput)
	case len(input.Recommendations) > 0:
		buckets, err := allocator.CalculateAllocation(input.MonthlyIncome, input.Recommendations)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return buckets, nil
	case len(input.Buckets) > 0:
		for i := range input.Buckets {
			if err := input.Buckets[i].Validate(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
		}
		if err := domain.CheckUniqueIDs(input.Buckets); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return domain.CloneBuckets(input.Buckets), nil
	default:
		return nil, fmt.Errorf("%w: session needs at least one bucket", ErrInvalidInput)
	}
}

func (s *PlannerService) lookup(id uuid.UUID) (*openSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	open, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return open, nil
}

// acquire returns the session with its lock held. The caller must unlock.
// Lock order is open.mu before s.mu.
func (s *PlannerService) acquire(id uuid.UUID) (*openSession, error) {
	open, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	open.mu.Lock()
	if open.closed {
		open.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	return open, nil
}

// closeSession drops a session; the caller holds open.mu
func (s *PlannerService) closeSession(id uuid.UUID, open *openSession) {
	open.closed = true
	s.mu.Lock()
	if s.sessions[id] == open {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
}

func (s *PlannerService) view(id uuid.UUID, open *openSession, last *rebalancer.Result) *SessionView {
	buckets := open.session.Buckets()
	total := domain.TotalAllocated(buckets)
	return &SessionView{
		ID:             id,
		MonthlyIncome:  open.income,
		Buckets:        buckets,
		TotalAllocated: total,
		Percentage:     domain.PercentOf(total, open.income),
		Report:         s.Limits.Check(open.income, buckets),
		LastUpdate:     last,
	}
}

// GetSession returns the current state of a session
func (s *PlannerService) GetSession(ctx context.Context, sessionID uuid.UUID) (*SessionView, error) {
	open, err := s.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer open.mu.Unlock()
	return s.view(sessionID, open, nil), nil
}

// UpdateBucket applies a user edit and rebalances the session.
// Edits the engine ignores (unknown or non-modifiable bucket) are not
// errors; the returned view carries the outcome.
func (s *PlannerService) UpdateBucket(ctx context.Context, sessionID, bucketID uuid.UUID, amount decimal.Decimal) (*SessionView, error) {
	var view *SessionView
	fields := map[string]any{"session_id": sessionID.String(), "bucket_id": bucketID.String()}
	err := observability.Track(ctx, s.observer, "update_bucket", fields, func() error {
		open, err := s.acquire(sessionID)
		if err != nil {
			return err
		}
		defer open.mu.Unlock()

		res := open.session.UpdateBucket(bucketID, amount, open.income)
		fields["outcome"] = string(res.Outcome)
		fields["adjustments"] = len(res.Adjustments)

		view = s.view(sessionID, open, &res)
		return nil
	})
	return view, err
}

// ResetBucket restores one bucket to its session-start amount
func (s *PlannerService) ResetBucket(ctx context.Context, sessionID, bucketID uuid.UUID) (*SessionView, error) {
	open, err := s.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer open.mu.Unlock()
	if !open.session.ResetBucket(bucketID) {
		return nil, ErrBucketNotFound
	}
	return s.view(sessionID, open, nil), nil
}

// ResetAll restores every bucket to its session-start amount
func (s *PlannerService) ResetAll(ctx context.Context, sessionID uuid.UUID) (*SessionView, error) {
	open, err := s.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer open.mu.Unlock()
	open.session.ResetAll()
	return s.view(sessionID, open, nil), nil
}

// SetLocked locks or unlocks a bucket for the rest of the session
func (s *PlannerService) SetLocked(ctx context.Context, sessionID, bucketID uuid.UUID, locked bool) (*SessionView, error) {
	open, err := s.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer open.mu.Unlock()
	if !open.session.SetLocked(bucketID, locked) {
		return nil, ErrBucketNotFound
	}
	return s.view(sessionID, open, nil), nil
}

// Acknowledge dismisses the auto-adjusted badge of a bucket.
// A nil bucket ID acknowledges every bucket.
func (s *PlannerService) Acknowledge(ctx context.Context, sessionID uuid.UUID, bucketID *uuid.UUID) (*SessionView, error) {
	open, err := s.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer open.mu.Unlock()
	if bucketID == nil {
		open.session.AcknowledgeAll()
	} else if !open.session.Acknowledge(*bucketID) {
		return nil, ErrBucketNotFound
	}
	return s.view(sessionID, open, nil), nil
}

// ConfirmPlan validates the session and persists it as a confirmed plan.
// The session is closed on success.
func (s *PlannerService) ConfirmPlan(ctx context.Context, sessionID uuid.UUID) (*domain.ConfirmedPlan, error) {
	var plan *domain.ConfirmedPlan
	fields := map[string]any{"session_id": sessionID.String()}
	err := observability.Track(ctx, s.observer, "confirm_plan", fields, func() error {
		open, err := s.acquire(sessionID)
		if err != nil {
			return err
		}
		defer open.mu.Unlock()

		buckets := open.session.Buckets()
		report := s.Limits.Check(open.income, buckets)
		if !report.Valid {
			return &InvalidPlanError{Report: report}
		}

		for i := range buckets {
			buckets[i].IsLocked = false
		}
		candidate := &domain.ConfirmedPlan{
			ID:            uuid.New(),
			SessionID:     sessionID,
			MonthlyIncome: open.income,
			Buckets:       buckets,
			ConfirmedAt:   s.now().UTC(),
		}
		if err := candidate.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}

		if err := s.PlanRepo.Save(ctx, candidate); err != nil {
			return fmt.Errorf("failed to save confirmed plan: %w", err)
		}

		s.closeSession(sessionID, open)

		fields["plan_id"] = candidate.ID.String()
		plan = candidate
		return nil
	})
	return plan, err
}

// AbandonSession discards a session without saving
func (s *PlannerService) AbandonSession(ctx context.Context, sessionID uuid.UUID) error {
	open, err := s.acquire(sessionID)
	if err != nil {
		return err
	}
	defer open.mu.Unlock()
	s.closeSession(sessionID, open)
	return nil
}

// ExpireSessions abandons sessions opened before the cutoff and returns how
// many were dropped. A session busy with an operation is left for the next
// sweep.
func (s *PlannerService) ExpireSessions(olderThan time.Duration) int {
	cutoff := s.now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id, open := range s.sessions {
		if !open.started.Before(cutoff) || !open.mu.TryLock() {
			continue
		}
		open.closed = true
		open.mu.Unlock()
		delete(s.sessions, id)
		dropped++
	}
	if dropped > 0 {
		s.logger.Info("expired editing sessions", "count", dropped)
	}
	return dropped
}

// GetPlan retrieves a confirmed plan
func (s *PlannerService) GetPlan(ctx context.Context, planID uuid.UUID) (*domain.ConfirmedPlan, error) {
	return s.PlanRepo.GetByID(ctx, planID)
}

// ListPlans retrieves the most recent confirmed plans
func (s *PlannerService) ListPlans(ctx context.Context, limit int) ([]*domain.ConfirmedPlan, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}
	return s.PlanRepo.List(ctx, limit)
}

// InvalidPlanError carries the validation report that blocked confirmation
type InvalidPlanError struct {
	Report validation.Report
}

func (e *InvalidPlanError) Error() string {
	if len(e.Report.Messages) == 0 {
		return ErrPlanInvalid.Error()
	}
	return fmt.Sprintf("%s: %s", ErrPlanInvalid.Error(), e.Report.Messages[0])
}

func (e *InvalidPlanError) Unwrap() error {
	return ErrPlanInvalid
}
