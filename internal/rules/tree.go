// internal/rules/tree.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/segmenter/internal/types"
)

/*
 * Rule tree data model.
 *
 * Node is a sealed interface with exactly two variants: *Rule (leaf predicate)
 * and *Group (AND/OR over ordered children). Tree wraps a root group with an
 * id index so any node is addressable in O(1) regardless of depth.
 *
 * Ownership: nodes reachable from a Tree are never mutated. The editor copies
 * the path from the root to the edited node and shares untouched subtrees, so
 * a *Tree is an immutable snapshot safe to evaluate while editing continues.
 *
 * NewTree enforces the structural invariants: root present, every node has a
 * non-empty id, ids unique across rules and groups, no cycles, and the depth
 * and size limits from internal/types.
 */

// Node is a Rule or a Group.
type Node interface {
	NodeID() types.NodeID
	isNode()
}

// Combinator joins a group's children.
type Combinator string

const (
	And Combinator = "AND"
	Or  Combinator = "OR"
)

// ParseCombinator accepts AND/OR in any letter case.
func ParseCombinator(s string) (Combinator, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AND":
		return And, nil
	case "OR":
		return Or, nil
	}
	return "", &types.ValidationError{Err: types.ErrInvalidCombinator, Value: s}
}

// Rule is a leaf predicate. Value is kept as entered and interpreted
// according to the field's type at evaluation time.
type Rule struct {
	ID       types.NodeID
	Field    string
	Operator Operator
	Value    string
}

// Group combines its children with Combinator. Children order is display
// order only.
type Group struct {
	ID         types.NodeID
	Combinator Combinator
	Children   []Node
}

func (r *Rule) NodeID() types.NodeID  { return r.ID }
func (g *Group) NodeID() types.NodeID { return g.ID }
func (*Rule) isNode()                 {}
func (*Group) isNode()                {}

type location struct {
	node   Node
	parent *Group
	depth  int
}

// Tree is an immutable, indexed rule tree.
type Tree struct {
	root  *Group
	index map[types.NodeID]location
}

// NewTree indexes root and checks the structural invariants.
func NewTree(root *Group) (*Tree, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: missing root group", types.ErrInvalidDocument)
	}
	t := &Tree{root: root, index: make(map[types.NodeID]location)}
	onPath := make(map[*Group]bool)
	if err := t.indexNode(root, nil, 0, onPath); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) indexNode(n Node, parent *Group, depth int, onPath map[*Group]bool) error {
	switch v := n.(type) {
	case *Rule:
		if v == nil {
			return fmt.Errorf("%w: nil rule", types.ErrInvalidDocument)
		}
	case *Group:
		if v == nil {
			return fmt.Errorf("%w: nil group", types.ErrInvalidDocument)
		}
		if onPath[v] {
			return &types.ValidationError{Err: types.ErrCycle, NodeID: v.ID}
		}
	default:
		return fmt.Errorf("%w: unknown node %T", types.ErrInvalidDocument, n)
	}
	if len(t.index) >= types.MaxTreeNodes {
		return types.ErrTooManyNodes
	}
	id := n.NodeID()
	if id == "" {
		return fmt.Errorf("%w: node without id", types.ErrInvalidDocument)
	}
	if _, dup := t.index[id]; dup {
		return &types.ValidationError{Err: types.ErrDuplicateID, NodeID: id}
	}
	t.index[id] = location{node: n, parent: parent, depth: depth}

	if v, ok := n.(*Group); ok {
		if depth >= types.MaxTreeDepth {
			return &types.ValidationError{Err: types.ErrTreeTooDeep, NodeID: id}
		}
		if v.Combinator != And && v.Combinator != Or {
			return &types.ValidationError{Err: types.ErrInvalidCombinator, NodeID: id, Value: string(v.Combinator)}
		}
		onPath[v] = true
		for _, c := range v.Children {
			if err := t.indexNode(c, v, depth+1, onPath); err != nil {
				return err
			}
		}
		delete(onPath, v)
	}
	return nil
}

// Root returns the root group. Callers must not mutate it.
func (t *Tree) Root() *Group { return t.root }

// Len returns the number of nodes, root included.
func (t *Tree) Len() int { return len(t.index) }

// Find returns the node with id.
func (t *Tree) Find(id types.NodeID) (Node, bool) {
	loc, ok := t.index[id]
	return loc.node, ok
}

// Parent returns the group containing id; false for the root or unknown ids.
func (t *Tree) Parent(id types.NodeID) (*Group, bool) {
	loc, ok := t.index[id]
	if !ok || loc.parent == nil {
		return nil, false
	}
	return loc.parent, true
}

// Contains reports whether id addresses a node of t.
func (t *Tree) Contains(id types.NodeID) bool {
	_, ok := t.index[id]
	return ok
}

// Rules returns every rule in depth-first display order.
func (t *Tree) Rules() []*Rule {
	var out []*Rule
	Walk(t.root, func(n Node, _ int) bool {
		if r, ok := n.(*Rule); ok {
			out = append(out, r)
		}
		return true
	})
	return out
}

// pathTo returns the groups from the root down to (excluding) id.
func (t *Tree) pathTo(id types.NodeID) []*Group {
	var path []*Group
	for loc := t.index[id]; loc.parent != nil; loc = t.index[loc.parent.ID] {
		path = append(path, loc.parent)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Walk visits n and its descendants depth-first in display order. Returning
// false from fn skips the children of the visited group.
func Walk(n Node, fn func(n Node, depth int) bool) {
	walk(n, 0, fn)
}

func walk(n Node, depth int, fn func(Node, int) bool) {
	if !fn(n, depth) {
		return
	}
	if g, ok := n.(*Group); ok {
		for _, c := range g.Children {
			walk(c, depth+1, fn)
		}
	}
}

// Equal reports structural equality: same ids, order, combinators and
// rule field/operator/value.
func Equal(a, b Node) bool {
	switch x := a.(type) {
	case *Rule:
		y, ok := b.(*Rule)
		if !ok || x == nil || y == nil {
			return ok && x == y
		}
		return *x == *y
	case *Group:
		y, ok := b.(*Group)
		if !ok || x == nil || y == nil {
			return ok && x == y
		}
		if x.ID != y.ID || x.Combinator != y.Combinator || len(x.Children) != len(y.Children) {
			return false
		}
		for i := range x.Children {
			if !Equal(x.Children[i], y.Children[i]) {
				return false
			}
		}
		return true
	}
	return a == nil && b == nil
}

// Equal reports whether t and o hold structurally equal trees.
func (t *Tree) Equal(o *Tree) bool {
	if t == nil || o == nil {
		return t == o
	}
	return Equal(t.root, o.root)
}
