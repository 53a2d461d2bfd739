// internal/rules/editor.go
package rules

import (
	"slices"

	"github.com/solatis/segmenter/internal/types"
)

/*
 * Tree Editor.
 *
 * Every operation takes a *Tree and returns a new *Tree; the input is never
 * modified, so on error the caller still holds the unchanged tree. Only the
 * groups on the path from the root to the edited node are copied.
 *
 * Validation happens before any copying:
 *   - parent ids must exist and resolve to a group
 *   - field and operator must pass the registry
 *   - a non-empty value must parse for its (type, operator)
 *
 * Editing never triggers evaluation; callers re-run the calculator.
 */

// RuleSpec describes a rule to add. An empty Operator selects the field's
// default operator.
type RuleSpec struct {
	Field    string
	Operator Operator
	Value    string
}

// DefaultRuleSpec is the rule added when the caller supplies none.
var DefaultRuleSpec = RuleSpec{Field: "totalSpend", Operator: OpGreaterThan, Value: "1000"}

// RulePatch carries the fields updateRule should change; nil means keep.
type RulePatch struct {
	Field    *string
	Operator *Operator
	Value    *string
}

// Editor applies validated mutations to rule trees.
type Editor struct {
	registry *Registry
	newID    func() types.NodeID
}

// EditorOption configures an Editor.
type EditorOption func(*Editor)

// WithIDGenerator overrides UUIDv7 node ids.
func WithIDGenerator(fn func() types.NodeID) EditorOption {
	return func(e *Editor) { e.newID = fn }
}

// NewEditor creates an editor validating against reg.
func NewEditor(reg *Registry, opts ...EditorOption) *Editor {
	e := &Editor{registry: reg, newID: types.NewNodeID}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the editor's registry.
func (e *Editor) Registry() *Registry { return e.registry }

// NewTree creates a tree with an AND root holding the given rules.
func (e *Editor) NewTree(specs ...RuleSpec) (*Tree, error) {
	t, err := NewTree(&Group{ID: e.newID(), Combinator: And})
	if err != nil {
		return nil, err
	}
	for _, s := range specs {
		if t, _, err = e.AddRule(t, t.root.ID, s); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// AddRule appends a rule as the last child of parentID.
func (e *Editor) AddRule(t *Tree, parentID types.NodeID, spec RuleSpec) (*Tree, types.NodeID, error) {
	parent, err := e.group(t, parentID)
	if err != nil {
		return nil, "", err
	}
	if spec.Operator == "" {
		op, err := e.registry.DefaultOperator(spec.Field)
		if err != nil {
			return nil, "", err
		}
		spec.Operator = op
	}
	if err := e.validateRule("", spec.Field, spec.Operator, spec.Value); err != nil {
		return nil, "", err
	}
	r := &Rule{ID: e.freshID(t), Field: spec.Field, Operator: spec.Operator, Value: spec.Value}
	out, err := e.withChildren(t, parent, append(slices.Clone(parent.Children), r))
	if err != nil {
		return nil, "", err
	}
	return out, r.ID, nil
}

// AddGroup appends an empty group as the last child of parentID.
func (e *Editor) AddGroup(t *Tree, parentID types.NodeID, c Combinator) (*Tree, types.NodeID, error) {
	parent, err := e.group(t, parentID)
	if err != nil {
		return nil, "", err
	}
	if c != And && c != Or {
		return nil, "", &types.ValidationError{Err: types.ErrInvalidCombinator, Value: string(c)}
	}
	g := &Group{ID: e.freshID(t), Combinator: c}
	out, err := e.withChildren(t, parent, append(slices.Clone(parent.Children), g))
	if err != nil {
		return nil, "", err
	}
	return out, g.ID, nil
}

// RemoveNode deletes id and its subtree. The root cannot be removed.
func (e *Editor) RemoveNode(t *Tree, id types.NodeID) (*Tree, error) {
	parent, ok := t.Parent(id)
	if !ok {
		return nil, &types.ValidationError{Err: types.ErrNodeNotFound, NodeID: id}
	}
	children := slices.DeleteFunc(slices.Clone(parent.Children), func(n Node) bool {
		return n.NodeID() == id
	})
	return e.withChildren(t, parent, children)
}

// UpdateRule merges patch into the rule id as one atomic change.
//
// When the field changes, an operator not valid for the new field's type is
// replaced by the type's first operator, and a value that no longer parses is
// cleared. Explicitly supplied operators and values are never adjusted; if
// they are invalid the update is rejected.
func (e *Editor) UpdateRule(t *Tree, id types.NodeID, patch RulePatch) (*Tree, error) {
	n, ok := t.Find(id)
	if !ok {
		return nil, &types.ValidationError{Err: types.ErrNodeNotFound, NodeID: id}
	}
	cur, ok := n.(*Rule)
	if !ok {
		return nil, &types.ValidationError{Err: types.ErrNotARule, NodeID: id}
	}
	next := *cur

	if patch.Field != nil {
		next.Field = *patch.Field
	}
	if _, err := e.registry.TypeOf(next.Field); err != nil {
		return nil, withNode(err, id)
	}

	switch {
	case patch.Operator != nil:
		next.Operator = *patch.Operator
	case e.registry.Allows(next.Field, next.Operator) != nil:
		next.Operator, _ = e.registry.DefaultOperator(next.Field)
	}

	switch {
	case patch.Value != nil:
		next.Value = *patch.Value
	case e.validateRule(id, next.Field, next.Operator, next.Value) != nil:
		next.Value = ""
	}

	if err := e.validateRule(id, next.Field, next.Operator, next.Value); err != nil {
		return nil, err
	}
	if next == *cur {
		return t, nil
	}
	return e.replace(t, id, &next)
}

// SetCombinator changes the combinator of groupID only.
func (e *Editor) SetCombinator(t *Tree, groupID types.NodeID, c Combinator) (*Tree, error) {
	g, err := e.group(t, groupID)
	if err != nil {
		return nil, err
	}
	if c != And && c != Or {
		return nil, &types.ValidationError{Err: types.ErrInvalidCombinator, NodeID: groupID, Value: string(c)}
	}
	if g.Combinator == c {
		return t, nil
	}
	cp := *g
	cp.Combinator = c
	return e.replace(t, groupID, &cp)
}

// Validate checks every rule of t against the editor's registry.
func (e *Editor) Validate(t *Tree) error {
	for _, r := range t.Rules() {
		if err := e.validateRule(r.ID, r.Field, r.Operator, r.Value); err != nil {
			return err
		}
	}
	return nil
}

func (e *Editor) validateRule(id types.NodeID, field string, op Operator, value string) error {
	ft, err := e.registry.TypeOf(field)
	if err != nil {
		return withNode(err, id)
	}
	if err := e.registry.Allows(field, op); err != nil {
		return withNode(err, id)
	}
	if len(value) > types.MaxValueLength {
		return &types.ValidationError{Err: types.ErrValueTooLong, NodeID: id, Field: field, Operator: string(op)}
	}
	if value == "" {
		return nil
	}
	if err := ParseValue(ft, op, value); err != nil {
		if ve, ok := err.(*types.ValidationError); ok {
			cp := *ve
			cp.NodeID, cp.Field = id, field
			return &cp
		}
		return err
	}
	return nil
}

func (e *Editor) group(t *Tree, id types.NodeID) (*Group, error) {
	n, ok := t.Find(id)
	if !ok {
		return nil, &types.ValidationError{Err: types.ErrNodeNotFound, NodeID: id}
	}
	g, ok := n.(*Group)
	if !ok {
		return nil, &types.ValidationError{Err: types.ErrNotAGroup, NodeID: id}
	}
	return g, nil
}

// freshID returns an id not present in t.
func (e *Editor) freshID(t *Tree) types.NodeID {
	for {
		if id := e.newID(); id != "" && !t.Contains(id) {
			return id
		}
	}
}

func (e *Editor) withChildren(t *Tree, g *Group, children []Node) (*Tree, error) {
	cp := *g
	cp.Children = children
	return e.replace(t, g.ID, &cp)
}

// replace rebuilds the path from the root to id with n substituted for the
// node at id, then re-indexes the result.
func (e *Editor) replace(t *Tree, id types.NodeID, n Node) (*Tree, error) {
	cur, curID := n, id
	path := t.pathTo(id)
	for i := len(path) - 1; i >= 0; i-- {
		cp := *path[i]
		cp.Children = slices.Clone(cp.Children)
		for j, c := range cp.Children {
			if c.NodeID() == curID {
				cp.Children[j] = cur
				break
			}
		}
		cur, curID = &cp, cp.ID
	}
	root, ok := cur.(*Group)
	if !ok {
		return nil, &types.ValidationError{Err: types.ErrNotAGroup, NodeID: curID}
	}
	return NewTree(root)
}
