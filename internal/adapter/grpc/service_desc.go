package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "wealthflow.planner.v1.PlannerService"

// PlannerServiceServer is the server API for the planner service.
// Requests and responses are google.protobuf.Struct documents.
type PlannerServiceServer interface {
	StartSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateBucket(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResetBucket(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetBucketLock(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AcknowledgeBucket(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmPlan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AbandonSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPlan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPlans(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordBalance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetProgress(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type rpc func(PlannerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call rpc) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PlannerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PlannerServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var methods = map[string]rpc{
	"StartSession":      PlannerServiceServer.StartSession,
	"UpdateBucket":      PlannerServiceServer.UpdateBucket,
	"ResetBucket":       PlannerServiceServer.ResetBucket,
	"SetBucketLock":     PlannerServiceServer.SetBucketLock,
	"AcknowledgeBucket": PlannerServiceServer.AcknowledgeBucket,
	"GetSession":        PlannerServiceServer.GetSession,
	"ConfirmPlan":       PlannerServiceServer.ConfirmPlan,
	"AbandonSession":    PlannerServiceServer.AbandonSession,
	"GetPlan":           PlannerServiceServer.GetPlan,
	"ListPlans":         PlannerServiceServer.ListPlans,
	"RecordBalance":     PlannerServiceServer.RecordBalance,
	"GetProgress":       PlannerServiceServer.GetProgress,
}

// PlannerServiceDesc describes the service for grpc.Server.RegisterService
var PlannerServiceDesc = func() grpc.ServiceDesc {
	desc := grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*PlannerServiceServer)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    "wealthflow/planner/v1/planner.proto",
	}
	for name, call := range methods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: name,
			Handler:    unaryHandler(name, call),
		})
	}
	return desc
}()

// RegisterPlannerServiceServer registers the planner service with a gRPC server
func RegisterPlannerServiceServer(s grpc.ServiceRegistrar, srv PlannerServiceServer) {
	s.RegisterService(&PlannerServiceDesc, srv)
}

// PlannerClient calls the planner service over a client connection
type PlannerClient struct {
	cc grpc.ClientConnInterface
}

// NewPlannerClient creates a new PlannerClient
func NewPlannerClient(cc grpc.ClientConnInterface) *PlannerClient {
	return &PlannerClient{cc: cc}
}

// Call invokes a unary method by name, e.g. "StartSession"
func (c *PlannerClient) Call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
