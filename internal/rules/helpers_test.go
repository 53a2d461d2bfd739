package rules

import (
	"fmt"
	"testing"
	"time"

	"github.com/solatis/segmenter/internal/types"
)

// seqIDs returns a deterministic id generator: n1, n2, ...
func seqIDs() func() types.NodeID {
	n := 0
	return func() types.NodeID {
		n++
		return types.NodeID(fmt.Sprintf("n%d", n))
	}
}

func ptr[T any](v T) *T { return &v }

var refNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func sampleValue(ft FieldType, op Operator) string {
	switch ft {
	case TypeString:
		return "ann"
	case TypeNumber:
		if op == OpBetween {
			return "10,500"
		}
		return "100"
	case TypeDate:
		switch op {
		case OpDaysAgo:
			return "30"
		case OpBetween:
			return "2024-01-01,2024-12-31"
		}
		return "2024-06-01"
	}
	return ""
}

// buildTree derives a valid tree from a list of integers. Each integer picks
// an action (add rule, add group, flip combinator) and its arguments, so
// gopter can shrink failing cases to small op lists.
func buildTree(t testing.TB, ops []int) *Tree {
	t.Helper()
	reg := DefaultRegistry()
	ed := NewEditor(reg, WithIDGenerator(seqIDs()))
	tree, err := ed.NewTree()
	if err != nil {
		t.Fatalf("NewTree() error = %v, want nil", err)
	}
	fields := reg.Fields()
	for _, op := range ops {
		if op < 0 {
			op = -op
		}
		var groups []types.NodeID
		Walk(tree.Root(), func(n Node, depth int) bool {
			if g, ok := n.(*Group); ok && depth < 4 {
				groups = append(groups, g.ID)
			}
			return true
		})
		parent := groups[(op/3)%len(groups)]
		switch op % 3 {
		case 0, 1:
			d := fields[(op/7)%len(fields)]
			oper := d.Operators[(op/11)%len(d.Operators)]
			tree, _, err = ed.AddRule(tree, parent, RuleSpec{Field: d.Key, Operator: oper, Value: sampleValue(d.Type, oper)})
		case 2:
			c := And
			if op%2 == 0 {
				c = Or
			}
			tree, _, err = ed.AddGroup(tree, parent, c)
		}
		if err != nil {
			t.Fatalf("buildTree op %d error = %v, want nil", op, err)
		}
	}
	return tree
}

// treeOf builds a tree from literal nodes, failing the test on error.
func treeOf(t testing.TB, root *Group) *Tree {
	t.Helper()
	tree, err := NewTree(root)
	if err != nil {
		t.Fatalf("NewTree() error = %v, want nil", err)
	}
	return tree
}

func rule(id, field string, op Operator, value string) *Rule {
	return &Rule{ID: types.NodeID(id), Field: field, Operator: op, Value: value}
}

func group(id string, c Combinator, children ...Node) *Group {
	return &Group{ID: types.NodeID(id), Combinator: c, Children: children}
}
