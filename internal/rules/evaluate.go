// internal/rules/evaluate.go
package rules

import (
	"golang.org/x/text/cases"

	"github.com/solatis/segmenter/internal/types"
)

/*
 * Rule evaluation.
 *
 * Evaluates a compiled Program against one customer record.
 *
 * Evaluation flow:
 *   1. Group: fold children with the combinator (AND short-circuits on the
 *      first false child, OR on the first true child); empty groups yield
 *      VacuousAnd / VacuousOr
 *   2. Rule: look up record[field] -> coerce to the field type -> compare
 *
 * Policy handling:
 *   - Missing or nil attribute: false for every operator
 *   - Incoercible attribute: false, and counted in Outcome.CoercionFailures
 *   - Rule with an unparsable value: false
 *
 * Evaluation never returns an error: all registry checks happened in
 * Compile, and record-level problems are fail-closed.
 */

// Outcome is the result of matching one record.
type Outcome struct {
	Matched          bool
	CoercionFailures int
}

// Unevaluable reports a non-match caused at least in part by record values
// that could not be read as their field's type.
func (o Outcome) Unevaluable() bool {
	return !o.Matched && o.CoercionFailures > 0
}

// Matcher evaluates records against a Program. A Matcher holds per-goroutine
// case-folding state; share the Program, not the Matcher.
type Matcher struct {
	p        *Program
	fold     *cases.Caser
	failures int
}

// NewMatcher returns a Matcher bound to p.
func (p *Program) NewMatcher() *Matcher {
	m := &Matcher{p: p}
	if !p.caseSensitive {
		fold := cases.Fold()
		m.fold = &fold
	}
	return m
}

// Match evaluates rec.
func (m *Matcher) Match(rec types.Record) Outcome {
	m.failures = 0
	matched := m.evalNode(m.p.root, rec)
	return Outcome{Matched: matched, CoercionFailures: m.failures}
}

func (m *Matcher) evalNode(n compiledNode, rec types.Record) bool {
	if n.rule != nil {
		return m.evalRule(n.rule, rec)
	}
	return m.evalGroup(n.group, rec)
}

func (m *Matcher) evalGroup(g *compiledGroup, rec types.Record) bool {
	if len(g.children) == 0 {
		if g.combinator == And {
			return VacuousAnd
		}
		return VacuousOr
	}
	if g.combinator == And {
		for _, c := range g.children {
			if !m.evalNode(c, rec) {
				return false
			}
		}
		return true
	}
	for _, c := range g.children {
		if m.evalNode(c, rec) {
			return true
		}
	}
	return false
}

func (m *Matcher) evalRule(r *compiledRule, rec types.Record) bool {
	if !r.valid {
		return false
	}
	raw, ok := rec[r.field]
	if !ok {
		return false
	}
	v, err := coerceRecord(r.ftype, raw)
	if err != nil {
		m.failures++
		return false
	}
	if v.missing {
		return false
	}
	switch r.ftype {
	case TypeString:
		s := v.text
		if m.fold != nil {
			s = m.fold.String(s)
		}
		return compareText(r.op, s, r.operand.text)
	case TypeNumber:
		return compareNumber(r.op, v.num, r.operand)
	case TypeDate:
		return compareDate(r.op, v.instant, r.operand, m.p.now)
	}
	return false
}

// Evaluate compiles node and matches a single record. Use Compile and a
// Matcher directly when evaluating many records.
func Evaluate(reg *Registry, node Node, rec types.Record, opts EvalOptions) (bool, error) {
	p, err := Compile(reg, node, opts)
	if err != nil {
		return false, err
	}
	return p.NewMatcher().Match(rec).Matched, nil
}
