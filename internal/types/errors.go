package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for segment operations.
var (
	// ErrUnknownField indicates a field key absent from the registry.
	ErrUnknownField = errors.New("unknown field")

	// ErrUnknownOperator indicates an operator not valid for the field's type.
	ErrUnknownOperator = errors.New("operator not valid for field type")

	// ErrInvalidValue indicates a rule value that cannot be interpreted for its operator.
	ErrInvalidValue = errors.New("invalid rule value")

	// ErrValueTooLong indicates a rule value exceeds MaxValueLength.
	ErrValueTooLong = errors.New("rule value too long")

	// ErrNotAGroup indicates an insertion targeted a rule node.
	ErrNotAGroup = errors.New("target node is not a group")

	// ErrNotARule indicates a rule update targeted a group node.
	ErrNotARule = errors.New("target node is not a rule")

	// ErrNodeNotFound indicates an id absent from the tree (or the root for removal).
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidCombinator indicates a combinator other than AND or OR.
	ErrInvalidCombinator = errors.New("invalid combinator")

	// ErrDuplicateID indicates two nodes sharing one id.
	ErrDuplicateID = errors.New("duplicate node id")

	// ErrCycle indicates a group reachable from itself.
	ErrCycle = errors.New("tree contains a cycle")

	// ErrTreeTooDeep indicates group nesting beyond MaxTreeDepth.
	ErrTreeTooDeep = errors.New("tree exceeds maximum depth")

	// ErrTooManyNodes indicates a tree larger than MaxTreeNodes.
	ErrTooManyNodes = errors.New("tree exceeds maximum node count")

	// ErrInvalidDocument indicates an externally supplied document of the wrong shape.
	ErrInvalidDocument = errors.New("invalid rule document")

	// ErrSegmentNotFound indicates a segment id absent from the store.
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrETagMismatch indicates a stale If-Match on a segment update.
	ErrETagMismatch = errors.New("segment etag mismatch")

	// ErrNameRequired indicates a segment saved without a name.
	ErrNameRequired = errors.New("segment name is required")
)

// ValidationError pins a rejected edit or document to the node that caused it.
// Unwraps to one of the sentinel errors above so callers can use errors.Is.
type ValidationError struct {
	Err      error
	NodeID   NodeID
	Field    string
	Operator string
	Value    string
	Reason   string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.NodeID != "" {
		fmt.Fprintf(&b, " (node %s)", e.NodeID)
	}
	switch {
	case e.Operator != "" && e.Field != "":
		fmt.Fprintf(&b, ": %q on field %q", e.Operator, e.Field)
	case e.Field != "":
		fmt.Fprintf(&b, ": %q", e.Field)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " value %q", e.Value)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a rejection of caller input rather than
// an infrastructure failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	for _, s := range []error{
		ErrUnknownField, ErrUnknownOperator, ErrInvalidValue, ErrValueTooLong,
		ErrNotAGroup, ErrNotARule, ErrInvalidCombinator, ErrDuplicateID, ErrCycle,
		ErrTreeTooDeep, ErrTooManyNodes, ErrInvalidDocument, ErrNameRequired,
	} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
