// internal/rules/describe.go
package rules

import (
	"strconv"
	"strings"
)

/*
 * Rule -> English description.
 *
 * Deterministic rendering used for segment summaries:
 *
 *   Total Spend is greater than 10000 and (Visits is less than 3 or
 *   Last Purchase Date was at least 180 days ago)
 *
 * Fields render with their registry label; string values are quoted; nested
 * groups with more than one child are parenthesized. An empty AND group reads
 * "all customers", an empty OR group "no customers". Incomplete rules render
 * their value as "(no value)".
 */

var phrases = map[Operator]string{
	OpEquals:      "is",
	OpContains:    "contains",
	OpStartsWith:  "starts with",
	OpEndsWith:    "ends with",
	OpGreaterThan: "is greater than",
	OpLessThan:    "is less than",
	OpBetween:     "is between",
	OpBefore:      "is before",
	OpAfter:       "is after",
	OpDaysAgo:     "was at least",
}

// Describe renders node in English.
func Describe(reg *Registry, node Node) string {
	var b strings.Builder
	describe(&b, reg, node, true)
	return b.String()
}

func describe(b *strings.Builder, reg *Registry, n Node, top bool) {
	switch v := n.(type) {
	case *Rule:
		describeRule(b, reg, v)
	case *Group:
		if len(v.Children) == 0 {
			if v.Combinator == Or {
				b.WriteString("no customers")
			} else {
				b.WriteString("all customers")
			}
			return
		}
		wrap := !top && len(v.Children) > 1
		if wrap {
			b.WriteByte('(')
		}
		sep := " and "
		if v.Combinator == Or {
			sep = " or "
		}
		for i, c := range v.Children {
			if i > 0 {
				b.WriteString(sep)
			}
			describe(b, reg, c, false)
		}
		if wrap {
			b.WriteByte(')')
		}
	}
}

func describeRule(b *strings.Builder, reg *Registry, r *Rule) {
	b.WriteString(reg.Label(r.Field))
	b.WriteByte(' ')
	if p, ok := phrases[r.Operator]; ok {
		b.WriteString(p)
	} else {
		b.WriteString(string(r.Operator))
	}
	b.WriteByte(' ')

	value := strings.TrimSpace(r.Value)
	if value == "" {
		b.WriteString("(no value)")
		return
	}
	ft, _ := reg.TypeOf(r.Field)
	switch {
	case r.Operator == OpDaysAgo:
		b.WriteString(value)
		if value == "1" {
			b.WriteString(" day ago")
		} else {
			b.WriteString(" days ago")
		}
	case r.Operator == OpBetween:
		if lo, hi, ok := splitRange(value); ok {
			b.WriteString(lo)
			b.WriteString(" and ")
			b.WriteString(hi)
			return
		}
		b.WriteString(strconv.Quote(value))
	case ft == TypeString:
		b.WriteString(strconv.Quote(r.Value))
	default:
		b.WriteString(value)
	}
}
