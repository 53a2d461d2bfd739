package api

import (
	"context"
	"strings"
	"unicode/utf8"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/segmenter/internal/rules"
	"github.com/solatis/segmenter/internal/types"
)

// GenerateSegment turns a free-text description into a validated tree.
// Translator output is untrusted and goes through rules.Accept; an empty
// result is seeded with the default rule.
func (s *SegmentService) GenerateSegment(ctx context.Context, req *GenerateSegmentRequest) (*GenerateSegmentResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, invalidArgument("query is required")
	}
	if s.generator == nil {
		return nil, status.Error(codes.Unimplemented, "segment generation is not configured")
	}

	result, err := s.generator.Translate(ctx, query)
	if err != nil {
		s.metrics.ObserveTranslation("none", "error")
		s.logger.Warn("segment generation failed", "error", err)
		return nil, toStatus(err)
	}

	tree, err := s.accept(result.Document, rules.AcceptOptions{AssignMissingIDs: true, SeedIfEmpty: true})
	if err != nil {
		s.metrics.ObserveTranslation(result.Source, "rejected")
		s.logger.Warn("generated rules rejected", "source", result.Source, "error", err)
		return nil, toStatus(err)
	}
	s.metrics.ObserveTranslation(result.Source, "ok")

	raw, err := encodeTree(tree)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &GenerateSegmentResponse{
		Rules:   raw,
		Summary: rules.Describe(s.registry, tree.Root()),
		Source:  result.Source,
	}
	if !req.Save {
		return resp, nil
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = truncate(query, types.MaxSegmentNameLength)
	}
	seg := &types.Segment{
		Name:          name,
		Description:   resp.Summary,
		Rules:         raw,
		IsAIGenerated: true,
	}
	if err := s.segments.Create(ctx, seg); err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info("generated segment saved", "segment_id", seg.ID, "source", result.Source)
	resp.Segment = seg
	return resp, nil
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
