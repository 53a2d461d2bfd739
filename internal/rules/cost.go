// internal/rules/cost.go
package rules

/*
 * Cost model for child ordering.
 *
 * cost(rule)  = operator_cost * type_multiplier
 * cost(group) = CostGroup + sum(cost(child))
 *
 * Compile orders each group's children by ascending cost (stable) so the
 * fold short-circuits on cheap numeric rules before folded substring scans
 * or nested groups. AND/OR are commutative, so ordering never changes a
 * result; it only changes how many children are visited.
 */

const (
	// Operator base costs
	CostEquals   = 5
	CostCompare  = 7
	CostBetween  = 8
	CostPrefix   = 10
	CostContains = 12
	CostDaysAgo  = 9

	// Field type multipliers
	MultiplierNumber = 1
	MultiplierDate   = 4
	MultiplierString = 48

	// CostGroup is the fixed overhead of descending into a nested group.
	CostGroup = 16

	// CostInvalid is the cost of a rule whose value never parses; it is
	// always false and costs nothing to evaluate.
	CostInvalid = 0
)

// CalculateRuleCost computes the evaluation cost of a single rule.
func CalculateRuleCost(op Operator, ft FieldType) int {
	return operatorCost(op) * typeMultiplier(ft)
}

func operatorCost(op Operator) int {
	switch op {
	case OpEquals:
		return CostEquals
	case OpGreaterThan, OpLessThan, OpBefore, OpAfter:
		return CostCompare
	case OpBetween:
		return CostBetween
	case OpStartsWith, OpEndsWith:
		return CostPrefix
	case OpContains:
		return CostContains
	case OpDaysAgo:
		return CostDaysAgo
	default:
		return CostEquals
	}
}

func typeMultiplier(ft FieldType) int {
	switch ft {
	case TypeNumber:
		return MultiplierNumber
	case TypeDate:
		return MultiplierDate
	default:
		return MultiplierString
	}
}
