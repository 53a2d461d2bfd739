package translate

import (
	"context"
	"testing"

	"github.com/solatis/segmenter/internal/rules"
)

func TestKeywordTranslator(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantComb  rules.Combinator
		wantRules []rules.Rule
	}{
		{
			name:      "inactive default",
			query:     "Customers who are inactive",
			wantComb:  rules.And,
			wantRules: []rules.Rule{{Field: "lastPurchaseDate", Operator: rules.OpDaysAgo, Value: "180"}},
		},
		{
			name:     "inactive months and spend suffix",
			query:    "People who haven’t shopped in 6 months and spent over ₹5K",
			wantComb: rules.And,
			wantRules: []rules.Rule{
				{Field: "lastPurchaseDate", Operator: rules.OpDaysAgo, Value: "180"},
				{Field: "totalSpend", Operator: rules.OpGreaterThan, Value: "5000"},
			},
		},
		{
			name:     "or combinator",
			query:    "spent more than $10,000 or visited less than 2 times",
			wantComb: rules.Or,
			wantRules: []rules.Rule{
				{Field: "totalSpend", Operator: rules.OpGreaterThan, Value: "10000"},
				{Field: "visits", Operator: rules.OpLessThan, Value: "2"},
			},
		},
		{
			name:      "fewer visits default",
			query:     "customers with fewer visits",
			wantComb:  rules.And,
			wantRules: []rules.Rule{{Field: "visits", Operator: rules.OpLessThan, Value: "3"}},
		},
		{
			name:     "spend under and many visits",
			query:    "spent less than 200 but visited more than 10 times",
			wantComb: rules.And,
			wantRules: []rules.Rule{
				{Field: "totalSpend", Operator: rules.OpLessThan, Value: "200"},
				{Field: "visits", Operator: rules.OpGreaterThan, Value: "10"},
			},
		},
		{
			name:     "nothing recognized",
			query:    "people who like cats",
			wantComb: rules.And,
		},
	}
	reg := rules.DefaultRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := NewKeywordTranslator().Translate(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("Translate() error = %v, want nil", err)
			}
			tree, err := rules.Accept(doc, reg, rules.AcceptOptions{AssignMissingIDs: true})
			if err != nil {
				t.Fatalf("Accept(%s) error = %v, want nil", doc, err)
			}
			if tree.Root().Combinator != tt.wantComb {
				t.Errorf("combinator = %v, want %v", tree.Root().Combinator, tt.wantComb)
			}
			got := tree.Rules()
			if len(got) != len(tt.wantRules) {
				t.Fatalf("rules = %d (%s), want %d", len(got), doc, len(tt.wantRules))
			}
			for i, want := range tt.wantRules {
				g := got[i]
				if g.Field != want.Field || g.Operator != want.Operator || g.Value != want.Value {
					t.Errorf("rule[%d] = %s %s %s, want %s %s %s", i, g.Field, g.Operator, g.Value, want.Field, want.Operator, want.Value)
				}
			}
		})
	}
}
