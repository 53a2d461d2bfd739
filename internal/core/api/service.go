// Package api implements the segment service behind the gRPC and HTTP
// transports.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/solatis/segmenter/internal/core/observability"
	"github.com/solatis/segmenter/internal/rules"
	"github.com/solatis/segmenter/internal/translate"
	"github.com/solatis/segmenter/internal/types"
)

// SegmentRepository persists segments. *db.SegmentStore implements it.
type SegmentRepository interface {
	Create(ctx context.Context, seg *types.Segment) error
	Get(ctx context.Context, id types.SegmentID) (*types.Segment, error)
	List(ctx context.Context, limit, offset int) ([]types.Segment, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, seg *types.Segment, ifMatch string) error
	SetAudienceSize(ctx context.Context, id types.SegmentID, size int64) error
	Delete(ctx context.Context, id types.SegmentID) error
}

// CustomerRepository yields the stored population. *db.CustomerStore
// implements it.
type CustomerRepository interface {
	Stream(chunk int) rules.CustomerSource
}

// Generator produces untrusted rule documents from free text.
// *translate.Chain implements it.
type Generator interface {
	Translate(ctx context.Context, query string) (translate.Result, error)
}

// SegmentService orchestrates the editor, calculator, stores and
// translators. Methods return gRPC status errors.
type SegmentService struct {
	registry   *rules.Registry
	editor     *rules.Editor
	calculator *rules.Calculator
	segments   SegmentRepository
	customers  CustomerRepository
	generator  Generator
	metrics    *observability.Metrics
	logger     *slog.Logger

	maxInline int
	chunkSize int
	newID     func() types.NodeID
	calcOpts  []rules.CalculatorOption
}

// Option configures a SegmentService.
type Option func(*SegmentService)

// WithGenerator enables GenerateSegment.
func WithGenerator(g Generator) Option {
	return func(s *SegmentService) { s.generator = g }
}

// WithMetrics records service metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *SegmentService) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *SegmentService) { s.logger = l }
}

// WithMaxInlineCustomers bounds the customers accepted by ComputeAudience.
func WithMaxInlineCustomers(n int) Option {
	return func(s *SegmentService) { s.maxInline = n }
}

// WithCalculatorOptions tunes the audience calculator.
func WithCalculatorOptions(opts ...rules.CalculatorOption) Option {
	return func(s *SegmentService) { s.calcOpts = append(s.calcOpts, opts...) }
}

// WithChunkSize sets the page size used when streaming stored customers.
func WithChunkSize(n int) Option {
	return func(s *SegmentService) { s.chunkSize = n }
}

// WithNodeIDs overrides node id generation.
func WithNodeIDs(fn func() types.NodeID) Option {
	return func(s *SegmentService) { s.newID = fn }
}

// NewSegmentService creates the service. segments and customers are
// required; the generator is optional.
func NewSegmentService(reg *rules.Registry, segments SegmentRepository, customers CustomerRepository, opts ...Option) (*SegmentService, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if segments == nil {
		return nil, fmt.Errorf("segments cannot be nil")
	}
	if customers == nil {
		return nil, fmt.Errorf("customers cannot be nil")
	}

	s := &SegmentService{
		registry:  reg,
		segments:  segments,
		customers: customers,
		logger:    slog.Default(),
		maxInline: 10000,
		chunkSize: rules.DefaultChunkSize,
		newID:     types.NewNodeID,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.editor = rules.NewEditor(reg, rules.WithIDGenerator(s.newID))
	s.calculator = rules.NewCalculator(reg, append([]rules.CalculatorOption{rules.WithChunkSize(s.chunkSize)}, s.calcOpts...)...)
	return s, nil
}

// Registry returns the field registry the service validates against.
func (s *SegmentService) Registry() *rules.Registry { return s.registry }

// Fields lists the registry in display order.
func (s *SegmentService) Fields(ctx context.Context, _ *FieldsRequest) (*FieldsResponse, error) {
	return &FieldsResponse{Fields: s.registry.Fields()}, nil
}

// accept validates an untrusted rules document from a client.
func (s *SegmentService) accept(raw []byte, opts rules.AcceptOptions) (*rules.Tree, error) {
	opts.NewID = s.newID
	return rules.Accept(raw, s.registry, opts)
}

// encodeTree renders a tree for storage.
func encodeTree(t *rules.Tree) ([]byte, error) {
	raw, err := t.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}
	return raw, nil
}

// ComputeAudience evaluates a client-supplied tree against inline customers
// or the stored population.
func (s *SegmentService) ComputeAudience(ctx context.Context, req *ComputeAudienceRequest) (*ComputeAudienceResponse, error) {
	tree, err := s.accept(req.Rules, rules.AcceptOptions{AssignMissingIDs: true})
	if err != nil {
		return nil, toStatus(err)
	}

	source := req.Source
	if source == "" {
		source = SourceStored
		if len(req.Customers) > 0 {
			source = SourceInline
		}
	}

	var audience rules.Audience
	start := time.Now()
	switch source {
	case SourceInline:
		if len(req.Customers) > s.maxInline {
			return nil, invalidArgument("too many inline customers: %d (max %d)", len(req.Customers), s.maxInline)
		}
		audience, err = s.calculator.Compute(ctx, tree.Root(), req.Customers)
	case SourceStored:
		audience, err = s.calculator.ComputeStream(ctx, tree.Root(), s.customers.Stream(s.chunkSize))
	default:
		return nil, invalidArgument("unknown source %q", source)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	s.metrics.ObserveAudience(source, time.Since(start), audience.Evaluated, audience.UnevaluableCount)
	s.logger.Debug("audience computed",
		"source", source,
		"matched", audience.MatchedCount,
		"evaluated", audience.Evaluated,
		"unevaluable", audience.UnevaluableCount,
	)

	return &ComputeAudienceResponse{
		Audience: audience,
		Summary:  rules.Describe(s.registry, tree.Root()),
	}, nil
}

// DescribeSegment renders a tree as English.
func (s *SegmentService) DescribeSegment(ctx context.Context, req *DescribeSegmentRequest) (*DescribeSegmentResponse, error) {
	tree, err := s.accept(req.Rules, rules.AcceptOptions{AssignMissingIDs: true})
	if err != nil {
		return nil, toStatus(err)
	}
	return &DescribeSegmentResponse{Summary: rules.Describe(s.registry, tree.Root())}, nil
}
