package server

import (
	"context"

	"google.golang.org/grpc"

	"github.com/solatis/segmenter/internal/core/api"
)

// Client calls segmenter.v1.SegmentAPI over an existing connection using
// the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Fields(ctx context.Context, in *api.FieldsRequest, opts ...grpc.CallOption) (*api.FieldsResponse, error) {
	return invoke[api.FieldsResponse](ctx, c, "Fields", in, opts)
}

func (c *Client) ComputeAudience(ctx context.Context, in *api.ComputeAudienceRequest, opts ...grpc.CallOption) (*api.ComputeAudienceResponse, error) {
	return invoke[api.ComputeAudienceResponse](ctx, c, "ComputeAudience", in, opts)
}

func (c *Client) CreateSegment(ctx context.Context, in *api.CreateSegmentRequest, opts ...grpc.CallOption) (*api.SegmentResponse, error) {
	return invoke[api.SegmentResponse](ctx, c, "CreateSegment", in, opts)
}

func (c *Client) GetSegment(ctx context.Context, in *api.GetSegmentRequest, opts ...grpc.CallOption) (*api.SegmentResponse, error) {
	return invoke[api.SegmentResponse](ctx, c, "GetSegment", in, opts)
}

func (c *Client) ListSegments(ctx context.Context, in *api.ListSegmentsRequest, opts ...grpc.CallOption) (*api.ListSegmentsResponse, error) {
	return invoke[api.ListSegmentsResponse](ctx, c, "ListSegments", in, opts)
}

func (c *Client) DeleteSegment(ctx context.Context, in *api.DeleteSegmentRequest, opts ...grpc.CallOption) (*api.DeleteSegmentResponse, error) {
	return invoke[api.DeleteSegmentResponse](ctx, c, "DeleteSegment", in, opts)
}

func (c *Client) EditSegment(ctx context.Context, in *api.EditSegmentRequest, opts ...grpc.CallOption) (*api.SegmentResponse, error) {
	return invoke[api.SegmentResponse](ctx, c, "EditSegment", in, opts)
}

func (c *Client) RecalculateSegment(ctx context.Context, in *api.RecalculateSegmentRequest, opts ...grpc.CallOption) (*api.RecalculateSegmentResponse, error) {
	return invoke[api.RecalculateSegmentResponse](ctx, c, "RecalculateSegment", in, opts)
}

func (c *Client) GenerateSegment(ctx context.Context, in *api.GenerateSegmentRequest, opts ...grpc.CallOption) (*api.GenerateSegmentResponse, error) {
	return invoke[api.GenerateSegmentResponse](ctx, c, "GenerateSegment", in, opts)
}

func (c *Client) DescribeSegment(ctx context.Context, in *api.DescribeSegmentRequest, opts ...grpc.CallOption) (*api.DescribeSegmentResponse, error) {
	return invoke[api.DescribeSegmentResponse](ctx, c, "DescribeSegment", in, opts)
}
