package api

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/segmenter/internal/rules"
	"github.com/solatis/segmenter/internal/types"
)

// CreateSegment validates and stores a new segment. A segment without rules
// starts from the default rule.
func (s *SegmentService) CreateSegment(ctx context.Context, req *CreateSegmentRequest) (*SegmentResponse, error) {
	var (
		tree *rules.Tree
		err  error
	)
	if len(req.Rules) == 0 || string(req.Rules) == "null" {
		tree, err = s.editor.NewTree(rules.DefaultRuleSpec)
	} else {
		tree, err = s.accept(req.Rules, rules.AcceptOptions{AssignMissingIDs: true})
	}
	if err != nil {
		return nil, toStatus(err)
	}
	raw, err := encodeTree(tree)
	if err != nil {
		return nil, toStatus(err)
	}

	seg := &types.Segment{
		Name:          req.Name,
		Description:   req.Description,
		Rules:         raw,
		IsAIGenerated: req.IsAIGenerated,
	}
	if err := s.segments.Create(ctx, seg); err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info("segment created", "segment_id", seg.ID, "name", seg.Name, "ai", seg.IsAIGenerated)
	return s.segmentResponse(seg, tree, ""), nil
}

// GetSegment loads one segment.
func (s *SegmentService) GetSegment(ctx context.Context, req *GetSegmentRequest) (*SegmentResponse, error) {
	seg, tree, err := s.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return s.segmentResponse(seg, tree, ""), nil
}

// ListSegments pages through stored segments, newest first.
func (s *SegmentService) ListSegments(ctx context.Context, req *ListSegmentsRequest) (*ListSegmentsResponse, error) {
	segments, err := s.segments.List(ctx, req.Limit, req.Offset)
	if err != nil {
		return nil, toStatus(err)
	}
	total, err := s.segments.Count(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	if segments == nil {
		segments = []types.Segment{}
	}
	return &ListSegmentsResponse{Segments: segments, Total: total}, nil
}

// DeleteSegment removes a segment.
func (s *SegmentService) DeleteSegment(ctx context.Context, req *DeleteSegmentRequest) (*DeleteSegmentResponse, error) {
	if req.ID == "" {
		return nil, invalidArgument("id is required")
	}
	if err := s.segments.Delete(ctx, req.ID); err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info("segment deleted", "segment_id", req.ID)
	return &DeleteSegmentResponse{}, nil
}

// EditSegment applies one editor operation to a stored segment. The write is
// conditional on the etag the edit was based on, so concurrent edits fail
// with FailedPrecondition instead of overwriting each other.
func (s *SegmentService) EditSegment(ctx context.Context, req *EditSegmentRequest) (resp *SegmentResponse, err error) {
	defer func() { s.metrics.ObserveEdit(req.Op, editStatus(err)) }()

	seg, tree, err := s.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	ifMatch := strings.TrimSpace(req.IfMatch)
	if ifMatch == "" {
		ifMatch = seg.ETag
	} else if ifMatch != seg.ETag {
		return nil, toStatus(types.ErrETagMismatch)
	}

	next, created, err := s.applyEdit(tree, req)
	if err != nil {
		return nil, toStatus(err)
	}
	if next == tree {
		return s.segmentResponse(seg, tree, created), nil
	}

	raw, err := encodeTree(next)
	if err != nil {
		return nil, toStatus(err)
	}
	seg.Rules = raw
	if err := s.segments.Update(ctx, seg, ifMatch); err != nil {
		return nil, toStatus(err)
	}
	s.logger.Debug("segment edited", "segment_id", seg.ID, "op", req.Op, "nodes", next.Len())
	return s.segmentResponse(seg, next, created), nil
}

func (s *SegmentService) applyEdit(t *rules.Tree, req *EditSegmentRequest) (*rules.Tree, types.NodeID, error) {
	parent := req.ParentID
	if parent == "" {
		parent = t.Root().ID
	}

	switch req.Op {
	case OpAddRule:
		spec := rules.DefaultRuleSpec
		if req.Rule != nil {
			spec = req.Rule.spec()
		}
		return s.editor.AddRule(t, parent, spec)
	case OpAddGroup:
		c, err := combinatorOr(req.Combinator, rules.And)
		if err != nil {
			return nil, "", err
		}
		return s.editor.AddGroup(t, parent, c)
	case OpRemoveNode:
		next, err := s.editor.RemoveNode(t, req.NodeID)
		return next, "", err
	case OpUpdateRule:
		if req.Patch == nil {
			return t, "", nil
		}
		next, err := s.editor.UpdateRule(t, req.NodeID, req.Patch.patch())
		return next, "", err
	case OpSetCombinator:
		c, err := rules.ParseCombinator(req.Combinator)
		if err != nil {
			return nil, "", err
		}
		id := req.NodeID
		if id == "" {
			id = t.Root().ID
		}
		next, err := s.editor.SetCombinator(t, id, c)
		return next, "", err
	}
	return nil, "", invalidArgument("unknown edit op %q", req.Op)
}

func combinatorOr(s string, def rules.Combinator) (rules.Combinator, error) {
	if s == "" {
		return def, nil
	}
	return rules.ParseCombinator(s)
}

// RecalculateSegment evaluates a stored segment against the stored
// population and records the audience size.
func (s *SegmentService) RecalculateSegment(ctx context.Context, req *RecalculateSegmentRequest) (*RecalculateSegmentResponse, error) {
	seg, tree, err := s.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	audience, err := s.calculator.ComputeStream(ctx, tree.Root(), s.customers.Stream(s.chunkSize))
	if err != nil {
		return nil, toStatus(err)
	}
	s.metrics.ObserveAudience(SourceStored, time.Since(start), audience.Evaluated, audience.UnevaluableCount)

	if err := s.segments.SetAudienceSize(ctx, seg.ID, int64(audience.MatchedCount)); err != nil {
		return nil, toStatus(err)
	}
	seg.AudienceSize = int64(audience.MatchedCount)
	s.logger.Info("segment recalculated",
		"segment_id", seg.ID,
		"audience_size", audience.MatchedCount,
		"unevaluable", audience.UnevaluableCount,
		"elapsed", time.Since(start),
	)
	return &RecalculateSegmentResponse{Segment: *seg, Audience: audience}, nil
}

// load fetches a segment and decodes its tree against the current registry.
func (s *SegmentService) load(ctx context.Context, id types.SegmentID) (*types.Segment, *rules.Tree, error) {
	if id == "" {
		return nil, nil, invalidArgument("id is required")
	}
	seg, err := s.segments.Get(ctx, id)
	if err != nil {
		return nil, nil, toStatus(err)
	}
	tree, err := s.accept(seg.Rules, rules.AcceptOptions{})
	if err != nil {
		s.logger.Warn("stored segment no longer valid", "segment_id", id, "error", err)
		return nil, nil, toStatus(err)
	}
	return seg, tree, nil
}

func (s *SegmentService) segmentResponse(seg *types.Segment, tree *rules.Tree, created types.NodeID) *SegmentResponse {
	return &SegmentResponse{
		Segment: *seg,
		Summary: rules.Describe(s.registry, tree.Root()),
		NodeID:  created,
	}
}

// editStatus labels an edit outcome for metrics.
func editStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case status.Code(err) == codes.InvalidArgument, status.Code(err) == codes.NotFound:
		return "invalid"
	case status.Code(err) == codes.FailedPrecondition:
		return "conflict"
	default:
		return "error"
	}
}
