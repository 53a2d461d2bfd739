package api

import (
	"encoding/json"

	"github.com/solatis/segmenter/internal/rules"
	"github.com/solatis/segmenter/internal/types"
)

// Messages travel as JSON over both transports. Binding tags are enforced by
// the HTTP gateway; the service re-checks anything it depends on.

// Edit operations accepted by EditSegment.
const (
	OpAddRule       = "addRule"
	OpAddGroup      = "addGroup"
	OpRemoveNode    = "removeNode"
	OpUpdateRule    = "updateRule"
	OpSetCombinator = "setCombinator"
)

// Audience sources accepted by ComputeAudience.
const (
	SourceInline = "inline"
	SourceStored = "stored"
)

type FieldsRequest struct{}

type FieldsResponse struct {
	Fields []rules.Descriptor `json:"fields"`
}

type ComputeAudienceRequest struct {
	Rules json.RawMessage `json:"rules" binding:"required"`
	// Source selects the population; empty means inline when customers are
	// given and stored otherwise.
	Source    string           `json:"source,omitempty" binding:"omitempty,oneof=inline stored"`
	Customers []types.Customer `json:"customers,omitempty" binding:"omitempty"`
}

type ComputeAudienceResponse struct {
	Audience rules.Audience `json:"audience"`
	Summary  string         `json:"summary"`
}

type CreateSegmentRequest struct {
	Name        string `json:"name" binding:"required,max=128"`
	Description string `json:"description,omitempty" binding:"max=1024"`
	// Rules may be omitted; the segment then starts with the default rule.
	Rules         json.RawMessage `json:"rules,omitempty"`
	IsAIGenerated bool            `json:"is_ai_generated,omitempty"`
}

type SegmentResponse struct {
	Segment types.Segment `json:"segment"`
	Summary string        `json:"summary"`
	// NodeID is the node created by an addRule or addGroup edit.
	NodeID types.NodeID `json:"node_id,omitempty"`
}

type GetSegmentRequest struct {
	ID types.SegmentID `json:"id" uri:"id" binding:"required"`
}

type ListSegmentsRequest struct {
	Limit  int `json:"limit,omitempty" form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `json:"offset,omitempty" form:"offset" binding:"omitempty,min=0"`
}

type ListSegmentsResponse struct {
	Segments []types.Segment `json:"segments"`
	Total    int64           `json:"total"`
}

type DeleteSegmentRequest struct {
	ID types.SegmentID `json:"id" uri:"id" binding:"required"`
}

type DeleteSegmentResponse struct{}

// RulePatch is the wire form of rules.RulePatch; absent fields are kept.
type RulePatch struct {
	Field    *string `json:"field,omitempty"`
	Operator *string `json:"operator,omitempty"`
	Value    *string `json:"value,omitempty"`
}

// RuleInput is the wire form of rules.RuleSpec.
type RuleInput struct {
	Field    string `json:"field" binding:"required"`
	Operator string `json:"operator,omitempty"`
	Value    string `json:"value,omitempty"`
}

type EditSegmentRequest struct {
	ID types.SegmentID `json:"id"`
	// IfMatch, when set, must equal the stored etag.
	IfMatch    string       `json:"if_match,omitempty"`
	Op         string       `json:"op" binding:"required,oneof=addRule addGroup removeNode updateRule setCombinator"`
	ParentID   types.NodeID `json:"parent_id,omitempty"`
	NodeID     types.NodeID `json:"node_id,omitempty"`
	Rule       *RuleInput   `json:"rule,omitempty"`
	Patch      *RulePatch   `json:"patch,omitempty"`
	Combinator string       `json:"combinator,omitempty" binding:"omitempty,combinator"`
}

type RecalculateSegmentRequest struct {
	ID types.SegmentID `json:"id" uri:"id" binding:"required"`
}

type RecalculateSegmentResponse struct {
	Segment  types.Segment  `json:"segment"`
	Audience rules.Audience `json:"audience"`
}

type GenerateSegmentRequest struct {
	Query string `json:"query" binding:"required,max=2000"`
	// Save persists the generated tree as a segment named Name (or the query).
	Save bool   `json:"save,omitempty"`
	Name string `json:"name,omitempty" binding:"max=128"`
}

type GenerateSegmentResponse struct {
	Rules   json.RawMessage `json:"rules"`
	Summary string          `json:"summary"`
	Source  string          `json:"source"`
	Segment *types.Segment  `json:"segment,omitempty"`
}

type DescribeSegmentRequest struct {
	Rules json.RawMessage `json:"rules" binding:"required"`
}

type DescribeSegmentResponse struct {
	Summary string `json:"summary"`
}

func (r RuleInput) spec() rules.RuleSpec {
	return rules.RuleSpec{Field: r.Field, Operator: rules.Operator(r.Operator), Value: r.Value}
}

func (p RulePatch) patch() rules.RulePatch {
	out := rules.RulePatch{Field: p.Field, Value: p.Value}
	if p.Operator != nil {
		op := rules.Operator(*p.Operator)
		out.Operator = &op
	}
	return out
}
