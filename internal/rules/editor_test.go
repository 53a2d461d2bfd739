package rules

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/segmenter/internal/types"
)

func newTestEditor() *Editor {
	return NewEditor(DefaultRegistry(), WithIDGenerator(seqIDs()))
}

func TestEditor_NewTreeSeed(t *testing.T) {
	ed := newTestEditor()
	tree, err := ed.NewTree(
		RuleSpec{Field: "totalSpend", Operator: OpGreaterThan, Value: "10000"},
		RuleSpec{Field: "visits", Operator: OpLessThan, Value: "3"},
	)
	if err != nil {
		t.Fatalf("NewTree() error = %v, want nil", err)
	}
	root := tree.Root()
	if root.Combinator != And {
		t.Errorf("root combinator = %v, want AND", root.Combinator)
	}
	if len(root.Children) != 2 {
		t.Fatalf("root children = %d, want 2", len(root.Children))
	}
	if r := root.Children[1].(*Rule); r.Field != "visits" || r.Operator != OpLessThan {
		t.Errorf("second child = %+v, want visits lessThan", r)
	}
}

func TestEditor_AddRule(t *testing.T) {
	ed := newTestEditor()
	tree, _ := ed.NewTree()
	root := tree.Root().ID

	next, id, err := ed.AddRule(tree, root, RuleSpec{Field: "email", Value: "@acme.io"})
	if err != nil {
		t.Fatalf("AddRule() error = %v, want nil", err)
	}
	n, ok := next.Find(id)
	if !ok {
		t.Fatalf("Find(%s) ok = false, want true", id)
	}
	if r := n.(*Rule); r.Operator != OpEquals {
		t.Errorf("default operator = %v, want equals (first for string)", r.Operator)
	}
	if len(tree.Root().Children) != 0 {
		t.Errorf("input tree modified: %d children, want 0", len(tree.Root().Children))
	}
}

func TestEditor_AddRuleErrors(t *testing.T) {
	ed := newTestEditor()
	tree, _ := ed.NewTree(RuleSpec{Field: "visits", Operator: OpLessThan, Value: "3"})
	ruleID := tree.Root().Children[0].NodeID()

	tests := []struct {
		name   string
		parent types.NodeID
		spec   RuleSpec
		want   error
	}{
		{"missing parent", "nope", RuleSpec{Field: "visits"}, types.ErrNodeNotFound},
		{"parent is rule", ruleID, RuleSpec{Field: "visits"}, types.ErrNotAGroup},
		{"unknown field", tree.Root().ID, RuleSpec{Field: "shoeSize"}, types.ErrUnknownField},
		{"bad operator", tree.Root().ID, RuleSpec{Field: "visits", Operator: OpContains}, types.ErrUnknownOperator},
		{"bad value", tree.Root().ID, RuleSpec{Field: "visits", Operator: OpLessThan, Value: "three"}, types.ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ed.AddRule(tree, tt.parent, tt.spec)
			if !errors.Is(err, tt.want) {
				t.Errorf("AddRule() error = %v, want %v", err, tt.want)
			}
			if tree.Len() != 2 {
				t.Errorf("tree changed after failed AddRule: Len() = %d", tree.Len())
			}
		})
	}
}

func TestEditor_AddGroupNested(t *testing.T) {
	ed := newTestEditor()
	tree, _ := ed.NewTree()
	tree, gid, err := ed.AddGroup(tree, tree.Root().ID, Or)
	if err != nil {
		t.Fatalf("AddGroup() error = %v, want nil", err)
	}
	tree, rid, err := ed.AddRule(tree, gid, RuleSpec{Field: "visits", Operator: OpLessThan, Value: "3"})
	if err != nil {
		t.Fatalf("AddRule(nested) error = %v, want nil", err)
	}
	p, _ := tree.Parent(rid)
	if p.ID != gid {
		t.Errorf("Parent(rule) = %s, want %s", p.ID, gid)
	}
	if _, _, err := ed.AddGroup(tree, gid, "XOR"); !errors.Is(err, types.ErrInvalidCombinator) {
		t.Errorf("AddGroup(XOR) error = %v, want ErrInvalidCombinator", err)
	}
}

func TestEditor_RemoveNode(t *testing.T) {
	ed := newTestEditor()
	tree, _ := ed.NewTree(RuleSpec{Field: "visits", Operator: OpLessThan, Value: "3"})
	tree, gid, _ := ed.AddGroup(tree, tree.Root().ID, Or)
	tree, _, _ = ed.AddRule(tree, gid, RuleSpec{Field: "totalSpend", Operator: OpGreaterThan, Value: "5000"})

	next, err := ed.RemoveNode(tree, gid)
	if err != nil {
		t.Fatalf("RemoveNode() error = %v, want nil", err)
	}
	if next.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (subtree removed)", next.Len())
	}

	if _, err := ed.RemoveNode(tree, tree.Root().ID); !errors.Is(err, types.ErrNodeNotFound) {
		t.Errorf("RemoveNode(root) error = %v, want ErrNodeNotFound", err)
	}
	if _, err := ed.RemoveNode(tree, "ghost"); !errors.Is(err, types.ErrNodeNotFound) {
		t.Errorf("RemoveNode(absent) error = %v, want ErrNodeNotFound", err)
	}
}

func TestEditor_IDsNotReused(t *testing.T) {
	ed := NewEditor(DefaultRegistry())
	tree, _ := ed.NewTree()
	tree, first, _ := ed.AddRule(tree, tree.Root().ID, DefaultRuleSpec)
	tree, _ = ed.RemoveNode(tree, first)
	_, second, _ := ed.AddRule(tree, tree.Root().ID, DefaultRuleSpec)
	if first == second {
		t.Errorf("AddRule reused id %s after removal", first)
	}
}

func TestEditor_UpdateRuleFieldChange(t *testing.T) {
	tests := []struct {
		name      string
		start     RuleSpec
		patch     RulePatch
		wantOp    Operator
		wantValue string
	}{
		{
			name:      "number to string resets operator and keeps text value",
			start:     RuleSpec{Field: "totalSpend", Operator: OpGreaterThan, Value: "1000"},
			patch:     RulePatch{Field: ptr("email")},
			wantOp:    OpEquals,
			wantValue: "1000",
		},
		{
			name:      "number to number keeps operator and value",
			start:     RuleSpec{Field: "totalSpend", Operator: OpLessThan, Value: "3"},
			patch:     RulePatch{Field: ptr("visits")},
			wantOp:    OpLessThan,
			wantValue: "3",
		},
		{
			name:      "number to date resets to before and clears value",
			start:     RuleSpec{Field: "visits", Operator: OpEquals, Value: "3"},
			patch:     RulePatch{Field: ptr("lastPurchaseDate")},
			wantOp:    OpBefore,
			wantValue: "",
		},
		{
			name:      "between survives a number to date change but value does not",
			start:     RuleSpec{Field: "visits", Operator: OpBetween, Value: "1,5"},
			patch:     RulePatch{Field: ptr("lastPurchaseDate")},
			wantOp:    OpBetween,
			wantValue: "",
		},
		{
			name:      "field and operator together",
			start:     RuleSpec{Field: "visits", Operator: OpEquals, Value: "3"},
			patch:     RulePatch{Field: ptr("lastPurchaseDate"), Operator: ptr(OpDaysAgo), Value: ptr("90")},
			wantOp:    OpDaysAgo,
			wantValue: "90",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ed := newTestEditor()
			tree, _ := ed.NewTree()
			tree, id, err := ed.AddRule(tree, tree.Root().ID, tt.start)
			if err != nil {
				t.Fatalf("AddRule() error = %v, want nil", err)
			}
			next, err := ed.UpdateRule(tree, id, tt.patch)
			if err != nil {
				t.Fatalf("UpdateRule() error = %v, want nil", err)
			}
			n, _ := next.Find(id)
			r := n.(*Rule)
			if r.Operator != tt.wantOp {
				t.Errorf("Operator = %v, want %v", r.Operator, tt.wantOp)
			}
			if r.Value != tt.wantValue {
				t.Errorf("Value = %q, want %q", r.Value, tt.wantValue)
			}
			if err := ed.Validate(next); err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestEditor_UpdateRuleRejects(t *testing.T) {
	ed := newTestEditor()
	tree, _ := ed.NewTree(RuleSpec{Field: "visits", Operator: OpLessThan, Value: "3"})
	id := tree.Root().Children[0].NodeID()

	tests := []struct {
		name  string
		id    types.NodeID
		patch RulePatch
		want  error
	}{
		{"explicit invalid operator", id, RulePatch{Field: ptr("email"), Operator: ptr(OpGreaterThan)}, types.ErrUnknownOperator},
		{"explicit invalid value", id, RulePatch{Value: ptr("many")}, types.ErrInvalidValue},
		{"unknown field", id, RulePatch{Field: ptr("shoeSize")}, types.ErrUnknownField},
		{"group target", tree.Root().ID, RulePatch{Value: ptr("1")}, types.ErrNotARule},
		{"absent", "ghost", RulePatch{}, types.ErrNodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ed.UpdateRule(tree, tt.id, tt.patch)
			if !errors.Is(err, tt.want) {
				t.Errorf("UpdateRule() error = %v, want %v", err, tt.want)
			}
			n, _ := tree.Find(id)
			if r := n.(*Rule); r.Field != "visits" || r.Operator != OpLessThan || r.Value != "3" {
				t.Errorf("tree changed after failed UpdateRule: %+v", r)
			}
		})
	}
}

func TestEditor_SetCombinator(t *testing.T) {
	ed := newTestEditor()
	tree, _ := ed.NewTree()
	tree, gid, _ := ed.AddGroup(tree, tree.Root().ID, And)

	next, err := ed.SetCombinator(tree, tree.Root().ID, Or)
	if err != nil {
		t.Fatalf("SetCombinator() error = %v, want nil", err)
	}
	if next.Root().Combinator != Or {
		t.Errorf("root combinator = %v, want OR", next.Root().Combinator)
	}
	n, _ := next.Find(gid)
	if n.(*Group).Combinator != And {
		t.Errorf("nested combinator = %v, want AND (non-recursive)", n.(*Group).Combinator)
	}
	if tree.Root().Combinator != And {
		t.Errorf("input tree modified")
	}
}

func TestEditorProperty_UpdateIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	fields := DefaultRegistry().Fields()
	properties.Property("updateRule twice equals updateRule once", prop.ForAll(
		func(ops []int, fieldIdx int, opIdx int) bool {
			tree := buildTree(t, append(ops, 0))
			ed := NewEditor(DefaultRegistry(), WithIDGenerator(seqIDs()))
			target := tree.Rules()[0].ID

			d := fields[fieldIdx%len(fields)]
			op := d.Operators[opIdx%len(d.Operators)]
			patch := RulePatch{Field: &d.Key, Operator: &op, Value: ptr(sampleValue(d.Type, op))}

			once, err := ed.UpdateRule(tree, target, patch)
			if err != nil {
				return false
			}
			twice, err := ed.UpdateRule(once, target, patch)
			if err != nil {
				return false
			}
			return once.Equal(twice)
		},
		gen.SliceOf(gen.IntRange(0, 500)),
		gen.IntRange(0, 100),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

func TestEditorProperty_AddRemoveRestores(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("addRule then removeNode restores the tree", prop.ForAll(
		func(ops []int, pick int) bool {
			tree := buildTree(t, ops)
			ed := NewEditor(DefaultRegistry(), WithIDGenerator(types.NewNodeID))

			var groups []types.NodeID
			Walk(tree.Root(), func(n Node, _ int) bool {
				if g, ok := n.(*Group); ok {
					groups = append(groups, g.ID)
				}
				return true
			})
			parent := groups[pick%len(groups)]

			added, id, err := ed.AddRule(tree, parent, DefaultRuleSpec)
			if err != nil {
				return false
			}
			restored, err := ed.RemoveNode(added, id)
			if err != nil {
				return false
			}
			return restored.Equal(tree)
		},
		gen.SliceOf(gen.IntRange(0, 500)),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

func TestEditorProperty_FieldChangeKeepsOperatorValid(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	reg := DefaultRegistry()
	numberFields := []string{"totalSpend", "visits", "daysInactive"}
	stringFields := []string{"customerName", "email"}
	numberOps := OperatorsForType(TypeNumber)

	properties.Property("number to string field change yields a valid operator", prop.ForAll(
		func(from, to, opIdx int) bool {
			ed := NewEditor(reg, WithIDGenerator(seqIDs()))
			op := numberOps[opIdx%len(numberOps)]
			tree, _ := ed.NewTree()
			tree, id, err := ed.AddRule(tree, tree.Root().ID, RuleSpec{
				Field: numberFields[from%len(numberFields)], Operator: op, Value: sampleValue(TypeNumber, op),
			})
			if err != nil {
				return false
			}
			next, err := ed.UpdateRule(tree, id, RulePatch{Field: ptr(stringFields[to%len(stringFields)])})
			if err != nil {
				return false
			}
			n, _ := next.Find(id)
			r := n.(*Rule)
			return reg.Allows(r.Field, r.Operator) == nil && ed.Validate(next) == nil
		},
		gen.IntRange(0, 10),
		gen.IntRange(0, 10),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
