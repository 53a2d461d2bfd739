package db

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gowebpki/jcs"

	"github.com/solatis/segmenter/internal/types"
)

// DefaultListLimit applies when List is called without a limit.
const DefaultListLimit = 50

// segmentRow is the scan target for the segments table. Rules is read as
// text because sqlite returns TEXT and postgres returns JSONB bytes.
type segmentRow struct {
	ID            string    `db:"segment_id"`
	Name          string    `db:"name"`
	Description   string    `db:"description"`
	Rules         string    `db:"rules"`
	ETag          string    `db:"etag"`
	AudienceSize  int64     `db:"audience_size"`
	IsAIGenerated bool      `db:"is_ai_generated"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r segmentRow) segment() types.Segment {
	return types.Segment{
		ID:            types.SegmentID(r.ID),
		Name:          r.Name,
		Description:   r.Description,
		Rules:         json.RawMessage(r.Rules),
		ETag:          r.ETag,
		AudienceSize:  r.AudienceSize,
		IsAIGenerated: r.IsAIGenerated,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

// ETag returns the entity tag of a segment's editable content: the SHA-256
// of its RFC 8785 canonical JSON. Key order and whitespace in rules do not
// change the tag.
func ETag(name, description string, rules json.RawMessage) (string, error) {
	doc, err := json.Marshal(struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Rules       json.RawMessage `json:"rules"`
	}{name, description, rules})
	if err != nil {
		return "", fmt.Errorf("etag: %w", err)
	}
	canonical, err := jcs.Transform(doc)
	if err != nil {
		return "", fmt.Errorf("etag: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// SegmentStore persists named rule trees.
type SegmentStore struct {
	q   *Queries
	now func() time.Time
}

// NewSegmentStore creates a store over q.
func NewSegmentStore(q *Queries) *SegmentStore {
	return &SegmentStore{q: q, now: time.Now}
}

// normalizeSegment trims and checks the user-editable fields.
func normalizeSegment(seg *types.Segment) error {
	seg.Name = strings.TrimSpace(seg.Name)
	seg.Description = strings.TrimSpace(seg.Description)
	if seg.Name == "" {
		return types.ErrNameRequired
	}
	if utf8.RuneCountInString(seg.Name) > types.MaxSegmentNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", types.ErrInvalidDocument, types.MaxSegmentNameLength)
	}
	if !json.Valid(seg.Rules) {
		return fmt.Errorf("%w: rules are not valid JSON", types.ErrInvalidDocument)
	}
	return nil
}

// Create inserts seg, assigning its id, etag and timestamps.
func (s *SegmentStore) Create(ctx context.Context, seg *types.Segment) error {
	if err := normalizeSegment(seg); err != nil {
		return err
	}
	etag, err := ETag(seg.Name, seg.Description, seg.Rules)
	if err != nil {
		return err
	}
	if seg.ID == "" {
		seg.ID = types.NewSegmentID()
	}
	now := s.now().UTC()

	_, err = s.q.Exec(ctx, "create-segment",
		string(seg.ID), seg.Name, seg.Description, string(seg.Rules), etag,
		seg.AudienceSize, seg.IsAIGenerated, now, now,
	)
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	seg.ETag = etag
	seg.CreatedAt = now
	seg.UpdatedAt = now
	return nil
}

// Get loads one segment.
func (s *SegmentStore) Get(ctx context.Context, id types.SegmentID) (*types.Segment, error) {
	var row segmentRow
	if err := s.q.Get(ctx, "get-segment", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", types.ErrSegmentNotFound, id)
		}
		return nil, fmt.Errorf("get segment: %w", err)
	}
	seg := row.segment()
	return &seg, nil
}

// List returns segments newest first.
func (s *SegmentStore) List(ctx context.Context, limit, offset int) ([]types.Segment, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	var rows []segmentRow
	if err := s.q.Select(ctx, "list-segments", &rows, limit, offset); err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	segments := make([]types.Segment, len(rows))
	for i, r := range rows {
		segments[i] = r.segment()
	}
	return segments, nil
}

// Count returns the number of stored segments.
func (s *SegmentStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.q.Get(ctx, "count-segments", &n); err != nil {
		return 0, fmt.Errorf("count segments: %w", err)
	}
	return n, nil
}

// Update replaces the editable content of seg if the stored etag still
// equals ifMatch. On success seg carries the new etag.
func (s *SegmentStore) Update(ctx context.Context, seg *types.Segment, ifMatch string) error {
	if err := normalizeSegment(seg); err != nil {
		return err
	}
	etag, err := ETag(seg.Name, seg.Description, seg.Rules)
	if err != nil {
		return err
	}
	now := s.now().UTC()

	res, err := s.q.Exec(ctx, "update-segment",
		seg.Name, seg.Description, string(seg.Rules), etag, seg.IsAIGenerated, now,
		string(seg.ID), ifMatch,
	)
	if err != nil {
		return fmt.Errorf("update segment: %w", err)
	}
	if err := s.expectOne(ctx, res, seg.ID, true); err != nil {
		return err
	}
	seg.ETag = etag
	seg.UpdatedAt = now
	return nil
}

// SetAudienceSize records the result of the latest audience pass.
func (s *SegmentStore) SetAudienceSize(ctx context.Context, id types.SegmentID, size int64) error {
	res, err := s.q.Exec(ctx, "set-audience-size", size, s.now().UTC(), string(id))
	if err != nil {
		return fmt.Errorf("set audience size: %w", err)
	}
	return s.expectOne(ctx, res, id, false)
}

// Delete removes a segment.
func (s *SegmentStore) Delete(ctx context.Context, id types.SegmentID) error {
	res, err := s.q.Exec(ctx, "delete-segment", string(id))
	if err != nil {
		return fmt.Errorf("delete segment: %w", err)
	}
	return s.expectOne(ctx, res, id, false)
}

// expectOne turns a zero-row write into ErrSegmentNotFound, or into
// ErrETagMismatch when the row exists and the write was conditional.
func (s *SegmentStore) expectOne(ctx context.Context, res sql.Result, id types.SegmentID, conditional bool) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if conditional {
		var count int64
		if err := s.q.Get(ctx, "segment-exists", &count, string(id)); err != nil {
			return fmt.Errorf("segment exists: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", types.ErrETagMismatch, id)
		}
	}
	return fmt.Errorf("%w: %s", types.ErrSegmentNotFound, id)
}
