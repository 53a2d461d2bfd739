// internal/rules/compile.go
package rules

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/text/cases"

	"github.com/solatis/segmenter/internal/types"
)

/*
 * Rule tree compilation.
 *
 * Compiles a Node into a Program: every rule's field is resolved against the
 * registry, its operator checked, its value parsed once, and each group's
 * children ordered by cost. A Program is read-only and shared by any number
 * of Matchers.
 *
 * Compilation workflow:
 *   1. Resolve field type; unknown field -> ErrUnknownField
 *   2. Check operator against the field's set -> ErrUnknownOperator
 *   3. Parse value; an empty or unparsable value compiles to an always-false
 *     rule (a rule still being typed matches nobody)
 *   4. Order children by ascending cost (stable sort for determinism)
 *
 * Depth is bounded by types.MaxTreeDepth so a hand-built cyclic Node fails
 * with ErrTreeTooDeep instead of recursing forever.
 */

// Vacuous results of empty groups.
const (
	VacuousAnd = true
	VacuousOr  = false
)

// EvalOptions configures a compiled program.
type EvalOptions struct {
	// Now is the reference time for daysAgo. Zero means time.Now() at
	// compile time.
	Now time.Time

	// CaseSensitive disables Unicode case folding for string operators.
	CaseSensitive bool
}

type compiledRule struct {
	id      types.NodeID
	field   string
	ftype   FieldType
	op      Operator
	operand operand
	valid   bool
}

type compiledNode struct {
	rule  *compiledRule
	group *compiledGroup
	cost  int
}

type compiledGroup struct {
	id         types.NodeID
	combinator Combinator
	children   []compiledNode
}

// Program is a compiled, immutable rule tree.
type Program struct {
	root          compiledNode
	now           time.Time
	caseSensitive bool
	rules         int
}

// Compile validates root against reg and prepares it for evaluation.
func Compile(reg *Registry, root Node, opts EvalOptions) (*Program, error) {
	p := &Program{now: opts.Now, caseSensitive: opts.CaseSensitive}
	if p.now.IsZero() {
		p.now = time.Now()
	}
	n, err := p.compileNode(reg, root, 0)
	if err != nil {
		return nil, err
	}
	p.root = n
	return p, nil
}

func (p *Program) compileNode(reg *Registry, n Node, depth int) (compiledNode, error) {
	switch v := n.(type) {
	case *Rule:
		if v == nil {
			break
		}
		cr, err := compileRule(reg, v, p.caseSensitive)
		if err != nil {
			return compiledNode{}, err
		}
		p.rules++
		cost := CostInvalid
		if cr.valid {
			cost = CalculateRuleCost(cr.op, cr.ftype)
		}
		return compiledNode{rule: cr, cost: cost}, nil

	case *Group:
		if v == nil {
			break
		}
		if depth >= types.MaxTreeDepth {
			return compiledNode{}, &types.ValidationError{Err: types.ErrTreeTooDeep, NodeID: v.ID}
		}
		if v.Combinator != And && v.Combinator != Or {
			return compiledNode{}, &types.ValidationError{Err: types.ErrInvalidCombinator, NodeID: v.ID, Value: string(v.Combinator)}
		}
		g := &compiledGroup{
			id:         v.ID,
			combinator: v.Combinator,
			children:   make([]compiledNode, 0, len(v.Children)),
		}
		cost := CostGroup
		for _, c := range v.Children {
			cn, err := p.compileNode(reg, c, depth+1)
			if err != nil {
				return compiledNode{}, err
			}
			g.children = append(g.children, cn)
			cost += cn.cost
		}
		// Stable: equal-cost children keep display order.
		sort.SliceStable(g.children, func(i, j int) bool {
			return g.children[i].cost < g.children[j].cost
		})
		return compiledNode{group: g, cost: cost}, nil
	}
	return compiledNode{}, fmt.Errorf("%w: unknown node %T", types.ErrInvalidDocument, n)
}

func compileRule(reg *Registry, r *Rule, caseSensitive bool) (*compiledRule, error) {
	ft, err := reg.TypeOf(r.Field)
	if err != nil {
		return nil, withNode(err, r.ID)
	}
	if err := reg.Allows(r.Field, r.Operator); err != nil {
		return nil, withNode(err, r.ID)
	}
	cr := &compiledRule{id: r.ID, field: r.Field, ftype: ft, op: r.Operator}
	od, err := parseOperand(ft, r.Operator, r.Value)
	if err == nil {
		if ft == TypeString && !caseSensitive {
			// Casers carry state; the operand gets its own and each
			// Matcher folds record values with another.
			od.text = cases.Fold().String(od.text)
		}
		cr.operand = od
		cr.valid = true
	}
	return cr, nil
}

// withNode stamps a node id on a registry validation error.
func withNode(err error, id types.NodeID) error {
	if ve, ok := err.(*types.ValidationError); ok {
		cp := *ve
		cp.NodeID = id
		return &cp
	}
	return err
}

// Now returns the program's reference time.
func (p *Program) Now() time.Time { return p.now }

// RuleCount returns the number of compiled rules.
func (p *Program) RuleCount() int { return p.rules }
