package server

import (
	"context"

	"google.golang.org/grpc"

	"github.com/solatis/segmenter/internal/core/api"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "segmenter.v1.SegmentAPI"

// SegmentAPIServer is the server API of segmenter.v1.SegmentAPI.
// *api.SegmentService implements it.
type SegmentAPIServer interface {
	Fields(context.Context, *api.FieldsRequest) (*api.FieldsResponse, error)
	ComputeAudience(context.Context, *api.ComputeAudienceRequest) (*api.ComputeAudienceResponse, error)
	CreateSegment(context.Context, *api.CreateSegmentRequest) (*api.SegmentResponse, error)
	GetSegment(context.Context, *api.GetSegmentRequest) (*api.SegmentResponse, error)
	ListSegments(context.Context, *api.ListSegmentsRequest) (*api.ListSegmentsResponse, error)
	DeleteSegment(context.Context, *api.DeleteSegmentRequest) (*api.DeleteSegmentResponse, error)
	EditSegment(context.Context, *api.EditSegmentRequest) (*api.SegmentResponse, error)
	RecalculateSegment(context.Context, *api.RecalculateSegmentRequest) (*api.RecalculateSegmentResponse, error)
	GenerateSegment(context.Context, *api.GenerateSegmentRequest) (*api.GenerateSegmentResponse, error)
	DescribeSegment(context.Context, *api.DescribeSegmentRequest) (*api.DescribeSegmentResponse, error)
}

var _ SegmentAPIServer = (*api.SegmentService)(nil)

// unaryHandler adapts a typed service method to grpc.MethodHandler.
func unaryHandler[Req, Resp any](method string, call func(SegmentAPIServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(SegmentAPIServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(*Req))
		})
	}
}

// SegmentAPIServiceDesc describes segmenter.v1.SegmentAPI for
// grpc.Server.RegisterService.
var SegmentAPIServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SegmentAPIServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Fields", Handler: unaryHandler("Fields", SegmentAPIServer.Fields)},
		{MethodName: "ComputeAudience", Handler: unaryHandler("ComputeAudience", SegmentAPIServer.ComputeAudience)},
		{MethodName: "CreateSegment", Handler: unaryHandler("CreateSegment", SegmentAPIServer.CreateSegment)},
		{MethodName: "GetSegment", Handler: unaryHandler("GetSegment", SegmentAPIServer.GetSegment)},
		{MethodName: "ListSegments", Handler: unaryHandler("ListSegments", SegmentAPIServer.ListSegments)},
		{MethodName: "DeleteSegment", Handler: unaryHandler("DeleteSegment", SegmentAPIServer.DeleteSegment)},
		{MethodName: "EditSegment", Handler: unaryHandler("EditSegment", SegmentAPIServer.EditSegment)},
		{MethodName: "RecalculateSegment", Handler: unaryHandler("RecalculateSegment", SegmentAPIServer.RecalculateSegment)},
		{MethodName: "GenerateSegment", Handler: unaryHandler("GenerateSegment", SegmentAPIServer.GenerateSegment)},
		{MethodName: "DescribeSegment", Handler: unaryHandler("DescribeSegment", SegmentAPIServer.DescribeSegment)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "segmenter/v1/segment_api",
}

// RegisterSegmentAPIServer registers srv on s.
func RegisterSegmentAPIServer(s grpc.ServiceRegistrar, srv SegmentAPIServer) {
	s.RegisterService(&SegmentAPIServiceDesc, srv)
}
