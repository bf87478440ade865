package grpc

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/simaogato/wealthflow-planner/internal/adapter/repository/sqlite"
	"github.com/simaogato/wealthflow-planner/internal/domain"
	"github.com/simaogato/wealthflow-planner/internal/observability"
	"github.com/simaogato/wealthflow-planner/internal/usecase/planner"
	"github.com/simaogato/wealthflow-planner/internal/usecase/progress"
	"github.com/simaogato/wealthflow-planner/internal/usecase/validation"
)

const testToken = "test-token-123"

func newTestClient(t *testing.T) (*PlannerClient, context.Context) {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	planRepo := sqlite.NewPlanRepository(db)
	plannerService := planner.NewPlannerService(planRepo, domain.DefaultPolicy(), validation.DefaultLimits(), nil)
	progressService := progress.NewProgressService(planRepo, sqlite.NewBalanceRepository(db))

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		LoggingInterceptor(observability.Discard()),
		AuthInterceptor(testToken),
	))
	RegisterPlannerServiceServer(srv, NewServer(plannerService, progressService))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", testToken)
	return NewPlannerClient(conn), ctx
}

func startReferenceSession(t *testing.T, client *PlannerClient, ctx context.Context) map[string]any {
	t.Helper()
	resp, err := client.Call(ctx, "StartSession", map[string]any{
		"monthly_income": "5000",
		"recommendations": []any{
			map[string]any{"type": "ESSENTIAL_SPENDING", "percent": "50"},
			map[string]any{"type": "EMERGENCY_FUND", "percent": "10", "linked_account_ids": []any{"acc-savings"}, "target_amount": "6000"},
			map[string]any{"type": "DISCRETIONARY_SPENDING", "percent": "20"},
			map[string]any{"type": "INVESTMENTS", "percent": "20"},
		},
	})
	require.NoError(t, err)
	return resp
}

func bucketIDByType(t *testing.T, resp map[string]any, bucketType string) string {
	t.Helper()
	for _, raw := range resp["buckets"].([]any) {
		b := raw.(map[string]any)
		if b["type"] == bucketType {
			return b["id"].(string)
		}
	}
	t.Fatalf("no %s bucket in response", bucketType)
	return ""
}

func amountByType(t *testing.T, resp map[string]any, bucketType string) string {
	t.Helper()
	for _, raw := range resp["buckets"].([]any) {
		b := raw.(map[string]any)
		if b["type"] == bucketType {
			return b["allocated_amount"].(string)
		}
	}
	t.Fatalf("no %s bucket in response", bucketType)
	return ""
}

func TestServer_EditAndConfirmFlow(t *testing.T) {
	client, ctx := newTestClient(t)

	session := startReferenceSession(t, client, ctx)
	sessionID := session["session_id"].(string)
	assert.Equal(t, "5000.00", session["total_allocated"])
	assert.Equal(t, true, session["validation"].(map[string]any)["valid"])

	updated, err := client.Call(ctx, "UpdateBucket", map[string]any{
		"session_id": sessionID,
		"bucket_id":  bucketIDByType(t, session, "DISCRETIONARY_SPENDING"),
		"amount":     "1300",
	})
	require.NoError(t, err)
	assert.Equal(t, "1300.00", amountByType(t, updated, "DISCRETIONARY_SPENDING"))
	assert.Equal(t, "700.00", amountByType(t, updated, "INVESTMENTS"))
	lastUpdate := updated["last_update"].(map[string]any)
	assert.Equal(t, "APPLIED", lastUpdate["outcome"])
	assert.Equal(t, true, lastUpdate["balanced"])

	confirmed, err := client.Call(ctx, "ConfirmPlan", map[string]any{"session_id": sessionID})
	require.NoError(t, err)
	planID := confirmed["plan_id"].(string)

	plan, err := client.Call(ctx, "GetPlan", map[string]any{"plan_id": planID})
	require.NoError(t, err)
	assert.Equal(t, "700.00", amountByType(t, plan, "INVESTMENTS"))

	plans, err := client.Call(ctx, "ListPlans", map[string]any{"limit": 5})
	require.NoError(t, err)
	assert.Len(t, plans["plans"].([]any), 1)

	_, err = client.Call(ctx, "GetSession", map[string]any{"session_id": sessionID})
	assert.Equal(t, codes.NotFound, status.Code(err), "confirmed session is closed")
}

func TestServer_LockResetAndAcknowledge(t *testing.T) {
	client, ctx := newTestClient(t)
	session := startReferenceSession(t, client, ctx)
	sessionID := session["session_id"].(string)

	_, err := client.Call(ctx, "SetBucketLock", map[string]any{
		"session_id": sessionID,
		"bucket_id":  bucketIDByType(t, session, "INVESTMENTS"),
		"locked":     true,
	})
	require.NoError(t, err)

	updated, err := client.Call(ctx, "UpdateBucket", map[string]any{
		"session_id": sessionID,
		"bucket_id":  bucketIDByType(t, session, "DISCRETIONARY_SPENDING"),
		"amount":     "1300",
	})
	require.NoError(t, err)
	assert.Equal(t, "250.00", amountByType(t, updated, "EMERGENCY_FUND"))
	assert.Equal(t, "50.00", updated["last_update"].(map[string]any)["imbalance"])

	_, err = client.Call(ctx, "ConfirmPlan", map[string]any{"session_id": sessionID})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	acked, err := client.Call(ctx, "AcknowledgeBucket", map[string]any{"session_id": sessionID})
	require.NoError(t, err)
	for _, raw := range acked["buckets"].([]any) {
		assert.Equal(t, true, raw.(map[string]any)["acknowledged"])
	}

	reset, err := client.Call(ctx, "ResetBucket", map[string]any{"session_id": sessionID})
	require.NoError(t, err)
	assert.Equal(t, "500.00", amountByType(t, reset, "EMERGENCY_FUND"))

	_, err = client.Call(ctx, "AbandonSession", map[string]any{"session_id": sessionID})
	require.NoError(t, err)
	_, err = client.Call(ctx, "AbandonSession", map[string]any{"session_id": sessionID})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServer_Progress(t *testing.T) {
	client, ctx := newTestClient(t)
	session := startReferenceSession(t, client, ctx)

	confirmed, err := client.Call(ctx, "ConfirmPlan", map[string]any{"session_id": session["session_id"]})
	require.NoError(t, err)

	_, err = client.Call(ctx, "RecordBalance", map[string]any{"account_id": "acc-savings", "balance": "1500"})
	require.NoError(t, err)

	result, err := client.Call(ctx, "GetProgress", map[string]any{"plan_id": confirmed["plan_id"]})
	require.NoError(t, err)

	for _, raw := range result["buckets"].([]any) {
		b := raw.(map[string]any)
		if b["type"] != "EMERGENCY_FUND" {
			continue
		}
		assert.Equal(t, "1500.00", b["linked_balance"])
		assert.Equal(t, "25.0", b["percent_complete"])
		// (6000 - 1500) / 500 = 9
		assert.Equal(t, float64(9), b["months_remaining"])
	}
}

func TestServer_ErrorMapping(t *testing.T) {
	client, ctx := newTestClient(t)

	tests := []struct {
		name   string
		method string
		req    map[string]any
		code   codes.Code
	}{
		{"bad session id", "GetSession", map[string]any{"session_id": "nope"}, codes.InvalidArgument},
		{"unknown session", "GetSession", map[string]any{"session_id": "7f3c9c58-3c1e-4a61-9d5e-2a4f0f1b2c3d"}, codes.NotFound},
		{"bad amount", "UpdateBucket", map[string]any{
			"session_id": "7f3c9c58-3c1e-4a61-9d5e-2a4f0f1b2c3d",
			"bucket_id":  "7f3c9c58-3c1e-4a61-9d5e-2a4f0f1b2c3d",
			"amount":     "lots",
		}, codes.InvalidArgument},
		{"zero income", "StartSession", map[string]any{
			"monthly_income":  "0",
			"recommendations": []any{map[string]any{"type": "INVESTMENTS", "percent": "100"}},
		}, codes.InvalidArgument},
		{"unknown bucket type", "StartSession", map[string]any{
			"monthly_income":  "100",
			"recommendations": []any{map[string]any{"type": "CRYPTO", "percent": "100"}},
		}, codes.InvalidArgument},
		{"unknown plan", "GetPlan", map[string]any{"plan_id": "7f3c9c58-3c1e-4a61-9d5e-2a4f0f1b2c3d"}, codes.NotFound},
		{"empty account", "RecordBalance", map[string]any{"account_id": "", "balance": "1"}, codes.InvalidArgument},
		{"bad limit", "ListPlans", map[string]any{"limit": 0}, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Call(ctx, tt.method, tt.req)
			assert.Equal(t, tt.code, status.Code(err), "error: %v", err)
		})
	}
}

func TestServer_RequiresToken(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.Call(context.Background(), "GetSession", map[string]any{"session_id": "x"})

	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
