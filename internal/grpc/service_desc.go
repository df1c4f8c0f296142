package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Every method takes
// and returns a google.protobuf.Struct whose fields are documented on the
// request and response payload types.
const ServiceName = "reviewengine.v1.ReviewEngine"

// ReviewEngineServer is the server API for the review engine.
type ReviewEngineServer interface {
	CreateReview(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RetryReview(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteReview(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CorrectReviewScores(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetReview(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSeries(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefreshDashboards(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(ReviewEngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReviewEngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ReviewEngineServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReviewEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateReview", Handler: unaryHandler("CreateReview", ReviewEngineServer.CreateReview)},
		{MethodName: "RetryReview", Handler: unaryHandler("RetryReview", ReviewEngineServer.RetryReview)},
		{MethodName: "DeleteReview", Handler: unaryHandler("DeleteReview", ReviewEngineServer.DeleteReview)},
		{MethodName: "CorrectReviewScores", Handler: unaryHandler("CorrectReviewScores", ReviewEngineServer.CorrectReviewScores)},
		{MethodName: "GetReview", Handler: unaryHandler("GetReview", ReviewEngineServer.GetReview)},
		{MethodName: "GetSeries", Handler: unaryHandler("GetSeries", ReviewEngineServer.GetSeries)},
		{MethodName: "RefreshDashboards", Handler: unaryHandler("RefreshDashboards", ReviewEngineServer.RefreshDashboards)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "reviewengine/v1/review_engine.proto",
}

func RegisterReviewEngineServer(s grpc.ServiceRegistrar, srv ReviewEngineServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ReviewEngineClient calls a remote ReviewEngine.
type ReviewEngineClient struct {
	cc grpc.ClientConnInterface
}

func NewReviewEngineClient(cc grpc.ClientConnInterface) *ReviewEngineClient {
	return &ReviewEngineClient{cc: cc}
}

func (c *ReviewEngineClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ReviewEngineClient) CreateReview(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CreateReview", in, opts...)
}

func (c *ReviewEngineClient) RetryReview(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "RetryReview", in, opts...)
}

func (c *ReviewEngineClient) DeleteReview(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "DeleteReview", in, opts...)
}

func (c *ReviewEngineClient) CorrectReviewScores(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CorrectReviewScores", in, opts...)
}

func (c *ReviewEngineClient) GetReview(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetReview", in, opts...)
}

func (c *ReviewEngineClient) GetSeries(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetSeries", in, opts...)
}

func (c *ReviewEngineClient) RefreshDashboards(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "RefreshDashboards", in, opts...)
}
