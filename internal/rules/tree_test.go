package rules

import (
	"errors"
	"fmt"
	"testing"

	"github.com/solatis/segmenter/internal/types"
)

func TestNewTree_Index(t *testing.T) {
	inner := group("g2", Or, rule("r2", "visits", OpLessThan, "3"))
	tree := treeOf(t, group("g1", And, rule("r1", "totalSpend", OpGreaterThan, "10000"), inner))

	if tree.Len() != 4 {
		t.Errorf("Len() = %d, want 4", tree.Len())
	}
	n, ok := tree.Find("r2")
	if !ok || n.NodeID() != "r2" {
		t.Fatalf("Find(r2) = %v, %v; want rule r2", n, ok)
	}
	p, ok := tree.Parent("r2")
	if !ok || p.ID != "g2" {
		t.Errorf("Parent(r2) = %v, want g2", p)
	}
	if _, ok := tree.Parent("g1"); ok {
		t.Errorf("Parent(root) ok = true, want false")
	}
	if got := len(tree.Rules()); got != 2 {
		t.Errorf("Rules() len = %d, want 2", got)
	}
}

func TestNewTree_DuplicateID(t *testing.T) {
	_, err := NewTree(group("g1", And, rule("x", "visits", OpEquals, "1"), group("x", Or)))
	if !errors.Is(err, types.ErrDuplicateID) {
		t.Errorf("NewTree() error = %v, want ErrDuplicateID", err)
	}
}

func TestNewTree_Cycle(t *testing.T) {
	root := group("g1", And)
	child := group("g2", Or, root)
	root.Children = []Node{child}

	_, err := NewTree(root)
	if !errors.Is(err, types.ErrCycle) {
		t.Errorf("NewTree() error = %v, want ErrCycle", err)
	}
}

func TestNewTree_Limits(t *testing.T) {
	deep := group("g0", And)
	cur := deep
	for i := 1; i <= types.MaxTreeDepth; i++ {
		next := group(fmt.Sprintf("g%d", i), And)
		cur.Children = []Node{next}
		cur = next
	}
	if _, err := NewTree(deep); !errors.Is(err, types.ErrTreeTooDeep) {
		t.Errorf("NewTree(deep) error = %v, want ErrTreeTooDeep", err)
	}

	wide := group("root", Or)
	for i := 0; i < types.MaxTreeNodes; i++ {
		wide.Children = append(wide.Children, rule(fmt.Sprintf("r%d", i), "visits", OpEquals, "1"))
	}
	if _, err := NewTree(wide); !errors.Is(err, types.ErrTooManyNodes) {
		t.Errorf("NewTree(wide) error = %v, want ErrTooManyNodes", err)
	}
}

func TestNewTree_Malformed(t *testing.T) {
	tests := []struct {
		name string
		root *Group
	}{
		{"nil root", nil},
		{"missing id", group("", And)},
		{"bad combinator", group("g1", "XOR")},
		{"nil child", group("g1", And, nil)},
		{"nil rule", group("g1", And, (*Rule)(nil))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTree(tt.root); err == nil {
				t.Errorf("NewTree() error = nil, want error")
			}
		})
	}
}

func TestEqual(t *testing.T) {
	a := group("g", And, rule("r1", "visits", OpLessThan, "3"), rule("r2", "email", OpContains, "x"))
	b := group("g", And, rule("r1", "visits", OpLessThan, "3"), rule("r2", "email", OpContains, "x"))
	reordered := group("g", And, rule("r2", "email", OpContains, "x"), rule("r1", "visits", OpLessThan, "3"))

	if !Equal(a, b) {
		t.Errorf("Equal(a, b) = false, want true")
	}
	if Equal(a, reordered) {
		t.Errorf("Equal(a, reordered) = true, want false (order is significant)")
	}
	if Equal(a, group("g", Or, a.Children...)) {
		t.Errorf("Equal ignores combinator")
	}

	nilTests := []struct {
		name string
		a, b Node
		want bool
	}{
		{"rule vs nil rule", rule("r", "visits", OpLessThan, "3"), (*Rule)(nil), false},
		{"nil rule vs rule", (*Rule)(nil), rule("r", "visits", OpLessThan, "3"), false},
		{"group vs nil group", group("g", And), (*Group)(nil), false},
		{"nil group vs group", (*Group)(nil), group("g", And), false},
		{"nil rules", (*Rule)(nil), (*Rule)(nil), true},
		{"nil groups", (*Group)(nil), (*Group)(nil), true},
		{"rule vs group", rule("x", "visits", OpLessThan, "3"), group("x", And), false},
	}
	for _, tt := range nilTests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseCombinator(t *testing.T) {
	for _, in := range []string{"AND", "and", " And "} {
		if c, err := ParseCombinator(in); err != nil || c != And {
			t.Errorf("ParseCombinator(%q) = %v, %v; want AND", in, c, err)
		}
	}
	if _, err := ParseCombinator("NOR"); !errors.Is(err, types.ErrInvalidCombinator) {
		t.Errorf("ParseCombinator(NOR) error = %v, want ErrInvalidCombinator", err)
	}
}
