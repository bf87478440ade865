package grpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/wealthflow-planner/internal/domain"
	"github.com/simaogato/wealthflow-planner/internal/usecase/planner"
	"github.com/simaogato/wealthflow-planner/internal/usecase/progress"
)

const defaultListLimit = 20

// Server implements the PlannerService gRPC server
type Server struct {
	PlannerService  *planner.PlannerService
	ProgressService *progress.ProgressService
}

var _ PlannerServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server instance
func NewServer(plannerService *planner.PlannerService, progressService *progress.ProgressService) *Server {
	return &Server{
		PlannerService:  plannerService,
		ProgressService: progressService,
	}
}

// StartSession handles the StartSession RPC.
// The request carries monthly_income and either recommendations
// (type, percent) or buckets (type, allocated_amount).
func (s *Server) StartSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields(req.GetFields())

	income, err := f.decimal("monthly_income")
	if err != nil {
		return nil, err
	}

	input := planner.StartSessionInput{MonthlyIncome: income}
	for _, item := range f.list("recommendations") {
		rec, err := parseRecommendation(item)
		if err != nil {
			return nil, err
		}
		input.Recommendations = append(input.Recommendations, rec)
	}
	for _, item := range f.list("buckets") {
		b, err := parseBucket(item)
		if err != nil {
			return nil, err
		}
		input.Buckets = append(input.Buckets, b)
	}

	view, err := s.PlannerService.StartSession(ctx, input)
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(sessionToMap(view))
}

// UpdateBucket handles the UpdateBucket RPC
func (s *Server) UpdateBucket(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields(req.GetFields())

	sessionID, err := f.uuid("session_id")
	if err != nil {
		return nil, err
	}
	bucketID, err := f.uuid("bucket_id")
	if err != nil {
		return nil, err
	}
	amount, err := f.decimal("amount")
	if err != nil {
		return nil, err
	}

	view, err := s.PlannerService.UpdateBucket(ctx, sessionID, bucketID, amount)
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(sessionToMap(view))
}

// ResetBucket handles the ResetBucket RPC.
// Without a bucket_id every bucket is reset.
func (s *Server) ResetBucket(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields(req.GetFields())

	sessionID, err := f.uuid("session_id")
	if err != nil {
		return nil, err
	}
	bucketID, err := f.optionalUUID("bucket_id")
	if err != nil {
		return nil, err
	}

	var view *planner.SessionView
	if bucketID == nil {
		view, err = s.PlannerService.ResetAll(ctx, sessionID)
	} else {
		view, err = s.PlannerService.ResetBucket(ctx, sessionID, *bucketID)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(sessionToMap(view))
}

// SetBucketLock handles the SetBucketLock RPC
func (s *Server) SetBucketLock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields(req.GetFields())

	sessionID, err := f.uuid("session_id")
	if err != nil {
		return nil, err
	}
	bucketID, err := f.uuid("bucket_id")
	if err != nil {
		return nil, err
	}

	view, err := s.PlannerService.SetLocked(ctx, sessionID, bucketID, f.boolean("locked"))
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(sessionToMap(view))
}

// AcknowledgeBucket handles the AcknowledgeBucket RPC.
// Without a bucket_id every badge is dismissed.
func (s *Server) AcknowledgeBucket(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields(req.GetFields())

	sessionID, err := f.uuid("session_id")
	if err != nil {
		return nil, err
	}
	bucketID, err := f.optionalUUID("bucket_id")
	if err != nil {
		return nil, err
	}

	view, err := s.PlannerService.Acknowledge(ctx, sessionID, bucketID)
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(sessionToMap(view))
}

// GetSession handles the GetSession RPC
func (s *Server) GetSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sessionID, err := fields(req.GetFields()).uuid("session_id")
	if err != nil {
		return nil, err
	}

	view, err := s.PlannerService.GetSession(ctx, sessionID)
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(sessionToMap(view))
}

// ConfirmPlan handles the ConfirmPlan RPC
func (s *Server) ConfirmPlan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sessionID, err := fields(req.GetFields()).uuid("session_id")
	if err != nil {
		return nil, err
	}

	plan, err := s.PlannerService.ConfirmPlan(ctx, sessionID)
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(planToMap(plan))
}

// AbandonSession handles the AbandonSession RPC
func (s *Server) AbandonSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sessionID, err := fields(req.GetFields()).uuid("session_id")
	if err != nil {
		return nil, err
	}

	if err := s.PlannerService.AbandonSession(ctx, sessionID); err != nil {
		return nil, mapError(err)
	}
	return toStruct(map[string]any{"session_id": sessionID.String()})
}

// GetPlan handles the GetPlan RPC
func (s *Server) GetPlan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	planID, err := fields(req.GetFields()).uuid("plan_id")
	if err != nil {
		return nil, err
	}

	plan, err := s.PlannerService.GetPlan(ctx, planID)
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(planToMap(plan))
}

// ListPlans handles the ListPlans RPC
func (s *Server) ListPlans(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit := defaultListLimit
	if v, ok := req.GetFields()["limit"]; ok {
		limit = int(v.GetNumberValue())
		if limit <= 0 {
			return nil, status.Errorf(codes.InvalidArgument, "limit must be positive")
		}
	}

	plans, err := s.PlannerService.ListPlans(ctx, limit)
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]any, 0, len(plans))
	for _, p := range plans {
		out = append(out, planToMap(p))
	}
	return toStruct(map[string]any{"plans": out})
}

// RecordBalance handles the RecordBalance RPC
func (s *Server) RecordBalance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields(req.GetFields())

	balance, err := f.decimal("balance")
	if err != nil {
		return nil, err
	}

	entry, err := s.ProgressService.RecordBalance(ctx, f.str("account_id"), balance)
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(balanceToMap(entry))
}

// GetProgress handles the GetProgress RPC
func (s *Server) GetProgress(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	planID, err := fields(req.GetFields()).uuid("plan_id")
	if err != nil {
		return nil, err
	}

	result, err := s.ProgressService.GetProgress(ctx, planID)
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(progressToMap(result))
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	errorMsg := err.Error()

	switch {
	case errors.Is(err, planner.ErrSessionNotFound),
		errors.Is(err, planner.ErrBucketNotFound),
		errors.Is(err, domain.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s", errorMsg)
	case errors.Is(err, planner.ErrPlanInvalid):
		return status.Errorf(codes.FailedPrecondition, "%s", errorMsg)
	case errors.Is(err, planner.ErrInvalidInput):
		return status.Errorf(codes.InvalidArgument, "%s", errorMsg)
	}

	// Validation errors from the domain are plain errors.New values
	if strings.Contains(errorMsg, "cannot be empty") ||
		strings.Contains(errorMsg, "must be positive") ||
		strings.Contains(errorMsg, "invalid") {
		return status.Errorf(codes.InvalidArgument, "%s", errorMsg)
	}

	// Default to Internal error for unknown errors
	return status.Errorf(codes.Internal, "%s", errorMsg)
}
