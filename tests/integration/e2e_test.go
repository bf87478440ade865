//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	grpcadapter "github.com/simaogato/wealthflow-planner/internal/adapter/grpc"
	"github.com/simaogato/wealthflow-planner/internal/adapter/repository/postgres"
	"github.com/simaogato/wealthflow-planner/internal/config"
)

var (
	db         *postgres.DB
	grpcConn   *grpc.ClientConn
	grpcClient *grpcadapter.PlannerClient
)

// TestMain connects to a running server and its database
func TestMain(m *testing.M) {
	ctx := context.Background()

	// 1. Connect to Database
	cfg := config.DefaultConfig()
	dbConnStr := os.Getenv("DB_CONN_STR")
	if dbConnStr == "" {
		dbConnStr = cfg.Database.DSN()
	}
	var err error
	db, err = postgres.NewDB(ctx, dbConnStr)
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to database: %v", err))
	}

	// 2. Connect to gRPC Server
	grpcConn, err = grpc.NewClient(getGRPCAddress(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to gRPC server: %v", err))
	}
	grpcClient = grpcadapter.NewPlannerClient(grpcConn)

	code := m.Run()

	_ = grpcConn.Close()
	_ = db.Close()
	os.Exit(code)
}

// getAuthContext returns a context with authorization metadata
func getAuthContext() context.Context {
	token := os.Getenv("API_TOKEN")
	if token == "" {
		token = config.DefaultConfig().Server.APIToken
	}
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", token)
}

// getGRPCAddress returns the gRPC server address from environment or defaults
func getGRPCAddress() string {
	addr := os.Getenv("GRPC_ADDRESS")
	if addr == "" {
		addr = "localhost:8080"
	}
	return addr
}

func bucketByType(t *testing.T, resp map[string]any, bucketType string) map[string]any {
	t.Helper()
	for _, raw := range resp["buckets"].([]any) {
		b := raw.(map[string]any)
		if b["type"] == bucketType {
			return b
		}
	}
	t.Fatalf("no %s bucket in response", bucketType)
	return nil
}

// TestEndToEndFlow covers review -> edit -> confirm -> progress
func TestEndToEndFlow(t *testing.T) {
	ctx := getAuthContext()
	accountID := "e2e-" + uuid.NewString()

	// 1. Open a session from recommendations
	session, err := grpcClient.Call(ctx, "StartSession", map[string]any{
		"monthly_income": "5000",
		"recommendations": []any{
			map[string]any{"type": "ESSENTIAL_SPENDING", "percent": "50"},
			map[string]any{"type": "EMERGENCY_FUND", "percent": "10", "linked_account_ids": []any{accountID}, "target_amount": "6000"},
			map[string]any{"type": "DISCRETIONARY_SPENDING", "percent": "20"},
			map[string]any{"type": "INVESTMENTS", "percent": "20"},
		},
	})
	require.NoError(t, err)
	sessionID := session["session_id"].(string)

	// 2. Raise discretionary; investments absorbs it
	updated, err := grpcClient.Call(ctx, "UpdateBucket", map[string]any{
		"session_id": sessionID,
		"bucket_id":  bucketByType(t, session, "DISCRETIONARY_SPENDING")["id"],
		"amount":     "1300",
	})
	require.NoError(t, err)
	assert.Equal(t, "700.00", bucketByType(t, updated, "INVESTMENTS")["allocated_amount"])
	assert.Equal(t, "5000.00", updated["total_allocated"])

	// 3. Confirm and verify persistence directly
	confirmed, err := grpcClient.Call(ctx, "ConfirmPlan", map[string]any{"session_id": sessionID})
	require.NoError(t, err)
	planID, err := uuid.Parse(confirmed["plan_id"].(string))
	require.NoError(t, err)

	stored, err := postgres.NewPlanRepository(db).GetByID(context.Background(), planID)
	require.NoError(t, err)
	assert.Len(t, stored.Buckets, 4)
	assert.Equal(t, uuid.MustParse(sessionID), stored.SessionID)

	// 4. Record a balance and read progress
	_, err = grpcClient.Call(ctx, "RecordBalance", map[string]any{"account_id": accountID, "balance": "3000"})
	require.NoError(t, err)

	progress, err := grpcClient.Call(ctx, "GetProgress", map[string]any{"plan_id": planID.String()})
	require.NoError(t, err)
	ef := bucketByType(t, progress, "EMERGENCY_FUND")
	assert.Equal(t, "3000.00", ef["linked_balance"])
	assert.Equal(t, "50.0", ef["percent_complete"])
	// (6000 - 3000) / 500 = 6
	assert.Equal(t, float64(6), ef["months_remaining"])
}

func TestHardLimitBlocksConfirmation(t *testing.T) {
	ctx := getAuthContext()

	session, err := grpcClient.Call(ctx, "StartSession", map[string]any{
		"monthly_income": "4000",
		"recommendations": []any{
			map[string]any{"type": "ESSENTIAL_SPENDING", "percent": "50"},
			map[string]any{"type": "DISCRETIONARY_SPENDING", "percent": "50"},
		},
	})
	require.NoError(t, err)
	sessionID := session["session_id"].(string)

	_, err = grpcClient.Call(ctx, "UpdateBucket", map[string]any{
		"session_id": sessionID,
		"bucket_id":  bucketByType(t, session, "DISCRETIONARY_SPENDING")["id"],
		"amount":     "2100",
	})
	require.NoError(t, err)

	_, err = grpcClient.Call(ctx, "ConfirmPlan", map[string]any{"session_id": sessionID})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err), "error: %v", err)

	_, err = grpcClient.Call(ctx, "AbandonSession", map[string]any{"session_id": sessionID})
	require.NoError(t, err)
}

func TestAuthentication(t *testing.T) {
	_, err := grpcClient.Call(context.Background(), "ListPlans", map[string]any{"limit": 1})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	bad := metadata.AppendToOutgoingContext(context.Background(), "authorization", "wrong")
	_, err = grpcClient.Call(bad, "ListPlans", map[string]any{"limit": 1})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestHealthCheckIsPublic(t *testing.T) {
	resp, err := healthpb.NewHealthClient(grpcConn).Check(context.Background(), &healthpb.HealthCheckRequest{
		Service: grpcadapter.ServiceName,
	})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
